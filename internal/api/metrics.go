package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-relay/internal/relay"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string                 `json:"timestamp"`
	Version       string                 `json:"version"`
	UptimeSeconds int64                  `json:"uptime_seconds"`
	Runtime       RuntimeMetrics         `json:"runtime"`
	WebSocket     WSMetrics              `json:"websocket"`
	MQTT          *MQTTMetrics           `json:"mqtt,omitempty"`
	Relay         *relay.MetricsSnapshot `json:"relay,omitempty"`
	Database      *DatabaseMetrics       `json:"database,omitempty"`
	Audit         *AuditMetrics          `json:"audit,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int    `json:"connected_clients"`
	EvictedClients   uint64 `json:"evicted_clients"`
	PendingTickets   int    `json:"pending_tickets"`
}

// MQTTMetrics contains broker connection statistics.
type MQTTMetrics struct {
	State         string `json:"state"`
	Connected     bool   `json:"connected"`
	Reconnects    uint64 `json:"reconnects"`
	Subscriptions int    `json:"subscriptions"`
}

// DatabaseMetrics contains database connection pool statistics and the
// schema migration state.
type DatabaseMetrics struct {
	OpenConnections   int    `json:"open_connections"`
	InUse             int    `json:"in_use"`
	Idle              int    `json:"idle"`
	WaitCount         int64  `json:"wait_count"`
	SchemaVersion     string `json:"schema_version,omitempty"`
	AppliedMigrations int    `json:"applied_migrations"`
	PendingMigrations int    `json:"pending_migrations"`
}

// AuditMetrics reports audit entries lost to a full queue.
type AuditMetrics struct {
	Dropped uint64 `json:"dropped"`
}

// handleMetrics returns comprehensive system metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{
			ConnectedClients: s.hub.ClientCount(),
			EvictedClients:   s.hub.Evicted(),
			PendingTickets:   s.gate.PendingTickets(),
		},
	}

	if s.broker != nil {
		state := s.broker.State()
		metrics.MQTT = &MQTTMetrics{
			State:         state.String(),
			Connected:     state == mqtt.StateConnected,
			Reconnects:    s.broker.Reconnects(),
			Subscriptions: s.broker.SubscriptionCount(),
		}
	}

	if s.metrics != nil {
		snap := s.metrics.Snapshot()
		metrics.Relay = &snap
	}

	if s.db != nil {
		dbStats := s.db.Stats()
		metrics.Database = &DatabaseMetrics{
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
			WaitCount:       dbStats.WaitCount,
		}
		if s.migrate != nil {
			applied, pending, err := s.db.MigrationStatus(r.Context(), s.migrate)
			if err != nil {
				s.logger.Warn("reading migration status failed", "error", err)
			} else {
				metrics.Database.AppliedMigrations = len(applied)
				metrics.Database.PendingMigrations = len(pending)
				if len(applied) > 0 {
					metrics.Database.SchemaVersion = applied[len(applied)-1].Version
				}
			}
		}
	}

	if s.audit != nil {
		metrics.Audit = &AuditMetrics{Dropped: s.audit.Dropped()}
	}

	writeJSON(w, http.StatusOK, metrics)
}
