package audit

import (
	"context"
	"sync/atomic"
)

// defaultQueueSize bounds the number of entries waiting to be written.
const defaultQueueSize = 256

// Logger is the logging surface the recorder needs.
type Logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Recorder writes audit entries asynchronously and serially.
//
// Record never blocks: when the queue is full the entry is dropped and
// counted. Run drains the queue into the repository until its context is
// cancelled, then flushes whatever is left.
type Recorder struct {
	repo    Repository
	logger  Logger
	queue   chan *AuditLog
	dropped atomic.Uint64
}

// NewRecorder creates a Recorder over repo. A queueSize <= 0 uses 256.
func NewRecorder(repo Repository, logger Logger, queueSize int) *Recorder {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Recorder{
		repo:   repo,
		logger: logger,
		queue:  make(chan *AuditLog, queueSize),
	}
}

// Record enqueues entry.
func (r *Recorder) Record(entry *AuditLog) {
	select {
	case r.queue <- entry:
	default:
		r.dropped.Add(1)
		r.logger.Warn("audit queue full, dropping entry",
			"action", entry.Action,
			"outcome", entry.Outcome,
		)
	}
}

// Dropped returns how many entries were discarded because the queue was full.
func (r *Recorder) Dropped() uint64 {
	return r.dropped.Load()
}

// Run writes queued entries until ctx is cancelled, then drains the queue.
func (r *Recorder) Run(ctx context.Context) {
	for {
		select {
		case entry := <-r.queue:
			r.write(entry)
		case <-ctx.Done():
			for {
				select {
				case entry := <-r.queue:
					r.write(entry)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) write(entry *AuditLog) {
	// The caller's context may be gone by the time the entry is written.
	if err := r.repo.Create(context.Background(), entry); err != nil {
		r.logger.Error("audit log write failed",
			"action", entry.Action,
			"outcome", entry.Outcome,
			"error", err,
		)
	}
}
