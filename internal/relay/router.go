package relay

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"
)

var errInvalidUTF8 = errors.New("payload is not valid UTF-8")

// Event is one routed inbound message. Payload is the device's JSON with
// insignificant whitespace removed and nothing else changed.
type Event struct {
	Name       string          `json:"event"`
	Topic      string          `json:"topic"`
	Payload    json.RawMessage `json:"payload"`
	ReceivedAt time.Time       `json:"received_at"`
}

// Router turns broker messages into Events using a Table.
// Route does no I/O and is safe for concurrent use.
type Router struct {
	table *Table
	now   func() time.Time
}

// NewRouter creates a Router over table.
func NewRouter(table *Table) *Router {
	return &Router{table: table, now: time.Now}
}

// Table returns the routing table.
func (r *Router) Table() *Table {
	return r.table
}

// Route maps topic to its event and decodes raw.
//
// Unknown topics return an error wrapping ErrUnroutedTopic. A payload that
// is not UTF-8 JSON returns a *RoutingError matching ErrMalformedPayload;
// no partial Event is ever produced.
func (r *Router) Route(topic string, raw []byte) (Event, error) {
	name, ok := r.table.Lookup(topic)
	if !ok {
		return Event{}, fmt.Errorf("%w: %s", ErrUnroutedTopic, topic)
	}

	if !utf8.Valid(raw) {
		return Event{}, &RoutingError{Topic: topic, Reason: ReasonMalformedPayload, Err: errInvalidUTF8}
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return Event{}, &RoutingError{Topic: topic, Reason: ReasonMalformedPayload, Err: err}
	}

	return Event{
		Name:       name,
		Topic:      topic,
		Payload:    json.RawMessage(buf.Bytes()),
		ReceivedAt: r.now().UTC(),
	}, nil
}
