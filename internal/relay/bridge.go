package relay

import (
	"errors"
	"fmt"

	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/mqtt"
)

// Subscriber registers interest in broker topics.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// Broadcaster fans an Event out to every connected web client. Broadcast
// must not block on I/O.
type Broadcaster interface {
	Broadcast(ev Event)
}

// Sink receives every routed Event after it has been broadcast. Record runs
// on the broker delivery goroutine; wrap sinks that do I/O in a QueuedSink.
type Sink interface {
	Record(ev Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ev Event)

// Record calls f(ev).
func (f SinkFunc) Record(ev Event) { f(ev) }

// Bridge carries broker messages to web clients: it subscribes every routed
// topic, routes each message and broadcasts the result.
//
// Messages arrive one at a time on the broker client's ordered delivery
// goroutine, so events on one topic reach the Broadcaster in broker order.
type Bridge struct {
	router  *Router
	hub     Broadcaster
	sinks   []Sink
	metrics *Metrics
	logger  *logging.Logger
}

// NewBridge creates a Bridge. A nil metrics gets a private counter set and a
// nil logger discards output.
func NewBridge(router *Router, hub Broadcaster, metrics *Metrics, logger *logging.Logger) *Bridge {
	if metrics == nil {
		metrics = &Metrics{}
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Bridge{
		router:  router,
		hub:     hub,
		metrics: metrics,
		logger:  logger.With("component", "bridge"),
	}
}

// AddSink registers a side consumer such as the telemetry archive. Call it
// before Start.
func (b *Bridge) AddSink(s Sink) {
	b.sinks = append(b.sinks, s)
}

// Start subscribes every topic in the routing table. Subscriptions made
// while the broker is down are established on the next connect.
func (b *Bridge) Start(sub Subscriber, qos byte) error {
	for _, topic := range b.router.Table().Topics() {
		if err := sub.Subscribe(topic, qos, b.Handle); err != nil {
			return fmt.Errorf("subscribing %s: %w", topic, err)
		}
		event, _ := b.router.Table().Lookup(topic)
		b.logger.Info("relaying topic", "topic", topic, "event", event)
	}
	return nil
}

// Handle routes one broker message. Unrouted topics and malformed payloads
// are counted and dropped; Handle never returns an error for them.
func (b *Bridge) Handle(topic string, payload []byte) error {
	ev, err := b.router.Route(topic, payload)
	switch {
	case err == nil:
	case errors.Is(err, ErrUnroutedTopic):
		b.metrics.unrouted.Add(1)
		b.logger.Debug("dropping unrouted topic", "topic", topic)
		return nil
	case errors.Is(err, ErrMalformedPayload):
		b.metrics.malformed.Add(1)
		b.logger.Warn("dropping malformed payload", "topic", topic, "bytes", len(payload), "error", err)
		return nil
	default:
		return err
	}

	b.hub.Broadcast(ev)
	b.metrics.routed.Add(1)

	for _, s := range b.sinks {
		s.Record(ev)
	}
	return nil
}
