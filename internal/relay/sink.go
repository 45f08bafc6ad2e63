package relay

import (
	"context"

	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/logging"
)

// defaultSinkQueueSize bounds events waiting for a slow sink.
const defaultSinkQueueSize = 1024

// QueuedSink decouples a slow Sink from the broker delivery goroutine.
//
// Record never blocks: when the queue is full the event is dropped and
// counted in Metrics. Run feeds queued events to the wrapped sink until its
// context is cancelled, then drains what is left.
type QueuedSink struct {
	inner   Sink
	queue   chan Event
	metrics *Metrics
	logger  *logging.Logger
}

// NewQueuedSink wraps inner. A size <= 0 uses 1024. A nil metrics gets a
// private counter set and a nil logger discards output.
func NewQueuedSink(inner Sink, size int, metrics *Metrics, logger *logging.Logger) *QueuedSink {
	if size <= 0 {
		size = defaultSinkQueueSize
	}
	if metrics == nil {
		metrics = &Metrics{}
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &QueuedSink{
		inner:   inner,
		queue:   make(chan Event, size),
		metrics: metrics,
		logger:  logger.With("component", "sink"),
	}
}

// Record enqueues ev.
func (q *QueuedSink) Record(ev Event) {
	select {
	case q.queue <- ev:
	default:
		q.metrics.sinkDropped.Add(1)
		q.logger.Warn("sink queue full, dropping event", "event", ev.Name, "topic", ev.Topic)
	}
}

// Pending returns how many events are waiting.
func (q *QueuedSink) Pending() int {
	return len(q.queue)
}

// Run delivers queued events until ctx is cancelled, then drains the queue.
func (q *QueuedSink) Run(ctx context.Context) {
	for {
		select {
		case ev := <-q.queue:
			q.inner.Record(ev)
		case <-ctx.Done():
			for {
				select {
				case ev := <-q.queue:
					q.inner.Record(ev)
				default:
					return
				}
			}
		}
	}
}
