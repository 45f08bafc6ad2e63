package audit

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-relay/migrations"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.Open(config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "audit.db"),
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("applying migrations: %v", err)
	}
	return db.DB
}

func TestSQLiteRepository_CreateAndList(t *testing.T) {
	repo := NewSQLiteRepository(testDB(t))
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	entries := []*AuditLog{
		{Action: ActionCommand, Outcome: OutcomeSuccess, UserID: "usr-1", Topic: "esp8266/fromWeb", Source: "api", CreatedAt: base},
		{Action: ActionCommand, Outcome: OutcomeFailed, UserID: "usr-1", Topic: "esp8266/fromWeb", Error: "mqtt: client not connected", Source: "api", CreatedAt: base.Add(time.Second)},
		{Action: ActionLogin, Outcome: OutcomeSuccess, UserID: "usr-2", Source: "api", CreatedAt: base.Add(2 * time.Second)},
		{Action: ActionCommand, Outcome: OutcomeRejected, Source: "api", CreatedAt: base.Add(3 * time.Second)},
	}
	for _, e := range entries {
		if err := repo.Create(ctx, e); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if e.ID == "" {
			t.Fatal("Create() should generate an ID")
		}
	}

	all, err := repo.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if all.Total != 4 || len(all.Logs) != 4 {
		t.Fatalf("List() total=%d len=%d, want 4/4", all.Total, len(all.Logs))
	}
	if all.Logs[0].Outcome != OutcomeRejected {
		t.Errorf("first entry outcome = %q, want most recent (rejected)", all.Logs[0].Outcome)
	}
	if all.Limit != defaultListLimit {
		t.Errorf("Limit = %d, want default %d", all.Limit, defaultListLimit)
	}
	if got := all.Logs[2]; got.Error != "mqtt: client not connected" || got.Topic != "esp8266/fromWeb" {
		t.Errorf("failed entry = %+v, want error and topic preserved", got)
	}
	if !all.Logs[3].CreatedAt.Equal(base) {
		t.Errorf("CreatedAt = %v, want %v", all.Logs[3].CreatedAt, base)
	}

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"by action", Filter{Action: ActionCommand}, 3},
		{"by outcome", Filter{Outcome: OutcomeSuccess}, 2},
		{"by action and outcome", Filter{Action: ActionCommand, Outcome: OutcomeFailed}, 1},
		{"by user", Filter{UserID: "usr-1"}, 2},
		{"no match", Filter{UserID: "usr-9"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := repo.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if res.Total != tt.want || len(res.Logs) != tt.want {
				t.Errorf("List() total=%d len=%d, want %d", res.Total, len(res.Logs), tt.want)
			}
		})
	}
}

func TestSQLiteRepository_ListPagination(t *testing.T) {
	repo := NewSQLiteRepository(testDB(t))
	ctx := context.Background()

	for range 5 {
		if err := repo.Create(ctx, &AuditLog{Action: ActionCommand, Outcome: OutcomeSuccess, Source: "api"}); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	page, err := repo.List(ctx, Filter{Limit: 2, Offset: 4})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if page.Total != 5 || len(page.Logs) != 1 {
		t.Errorf("List() total=%d len=%d, want 5/1", page.Total, len(page.Logs))
	}

	clamped, err := repo.List(ctx, Filter{Limit: 1000, Offset: -3})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if clamped.Limit != maxListLimit || clamped.Offset != 0 {
		t.Errorf("clamped limit/offset = %d/%d, want %d/0", clamped.Limit, clamped.Offset, maxListLimit)
	}
}
