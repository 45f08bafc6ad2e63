package relay

import "sync/atomic"

// Metrics counts relay traffic in both directions.
type Metrics struct {
	routed    atomic.Uint64
	unrouted  atomic.Uint64
	malformed atomic.Uint64

	sinkDropped atomic.Uint64

	published atomic.Uint64
	failed    atomic.Uint64
	rejected  atomic.Uint64
}

// MetricsSnapshot is a point-in-time copy of Metrics.
type MetricsSnapshot struct {
	EventsRouted      uint64 `json:"events_routed"`
	EventsUnrouted    uint64 `json:"events_unrouted"`
	EventsMalformed   uint64 `json:"events_malformed"`
	SinkDropped       uint64 `json:"sink_dropped"`
	CommandsPublished uint64 `json:"commands_published"`
	CommandsFailed    uint64 `json:"commands_failed"`
	CommandsRejected  uint64 `json:"commands_rejected"`
}

// Snapshot returns the current counter values.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		EventsRouted:      m.routed.Load(),
		EventsUnrouted:    m.unrouted.Load(),
		EventsMalformed:   m.malformed.Load(),
		SinkDropped:       m.sinkDropped.Load(),
		CommandsPublished: m.published.Load(),
		CommandsFailed:    m.failed.Load(),
		CommandsRejected:  m.rejected.Load(),
	}
}
