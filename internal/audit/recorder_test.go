package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type memoryRepo struct {
	mu   sync.Mutex
	logs []*AuditLog
	err  error
}

func (m *memoryRepo) Create(_ context.Context, log *AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.logs = append(m.logs, log)
	return nil
}

func (m *memoryRepo) List(context.Context, Filter) (*ListResult, error) {
	return nil, errors.New("not implemented")
}

func (m *memoryRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.logs)
}

type countingLogger struct {
	mu    sync.Mutex
	warns int
	errs  int
}

func (l *countingLogger) Warn(string, ...any)  { l.mu.Lock(); l.warns++; l.mu.Unlock() }
func (l *countingLogger) Error(string, ...any) { l.mu.Lock(); l.errs++; l.mu.Unlock() }

func TestRecorder_WritesInOrder(t *testing.T) {
	repo := &memoryRepo{}
	rec := NewRecorder(repo, &countingLogger{}, 8)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		rec.Run(ctx)
		close(done)
	}()

	for _, outcome := range []string{OutcomeSuccess, OutcomeFailed, OutcomeRejected} {
		rec.Record(&AuditLog{Action: ActionCommand, Outcome: outcome})
	}

	deadline := time.Now().Add(2 * time.Second)
	for repo.count() < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-done

	if repo.count() != 3 {
		t.Fatalf("written = %d, want 3", repo.count())
	}
	if repo.logs[0].Outcome != OutcomeSuccess || repo.logs[2].Outcome != OutcomeRejected {
		t.Errorf("entries written out of order")
	}
}

func TestRecorder_DropsWhenFull(t *testing.T) {
	logger := &countingLogger{}
	rec := NewRecorder(&memoryRepo{}, logger, 2)

	for range 5 {
		rec.Record(&AuditLog{Action: ActionCommand, Outcome: OutcomeSuccess})
	}

	if rec.Dropped() != 3 {
		t.Errorf("Dropped() = %d, want 3", rec.Dropped())
	}
	if logger.warns != 3 {
		t.Errorf("warnings = %d, want 3", logger.warns)
	}
}

func TestRecorder_DrainsOnShutdown(t *testing.T) {
	repo := &memoryRepo{}
	rec := NewRecorder(repo, &countingLogger{}, 4)

	for range 4 {
		rec.Record(&AuditLog{Action: ActionLogin, Outcome: OutcomeSuccess})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec.Run(ctx)

	if repo.count() != 4 {
		t.Errorf("written = %d, want all 4 queued entries flushed", repo.count())
	}
}

func TestRecorder_WriteErrorIsLogged(t *testing.T) {
	logger := &countingLogger{}
	rec := NewRecorder(&memoryRepo{err: errors.New("database is locked")}, logger, 1)

	rec.Record(&AuditLog{Action: ActionCommand, Outcome: OutcomeSuccess})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec.Run(ctx)

	if logger.errs != 1 {
		t.Errorf("errors logged = %d, want 1", logger.errs)
	}
}
