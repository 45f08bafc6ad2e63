package relay

import (
	"fmt"
	"strings"

	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/config"
)

// Table maps exact broker topics to event names. It is built once at
// startup and read-only afterwards.
type Table struct {
	events map[string]string
	topics []string
}

// NewTable builds a table from the configured routes, keeping their order.
// Topics must be unique, non-empty and free of MQTT wildcards.
func NewTable(routes []config.MQTTRouteConfig) (*Table, error) {
	if len(routes) == 0 {
		return nil, fmt.Errorf("%w: no routes", ErrInvalidRoute)
	}

	t := &Table{
		events: make(map[string]string, len(routes)),
		topics: make([]string, 0, len(routes)),
	}
	for i, r := range routes {
		switch {
		case r.Topic == "":
			return nil, fmt.Errorf("%w: route %d has no topic", ErrInvalidRoute, i)
		case strings.ContainsAny(r.Topic, "+#"):
			return nil, fmt.Errorf("%w: topic %q contains wildcards", ErrInvalidRoute, r.Topic)
		case r.Event == "":
			return nil, fmt.Errorf("%w: topic %q has no event name", ErrInvalidRoute, r.Topic)
		}
		if _, dup := t.events[r.Topic]; dup {
			return nil, fmt.Errorf("%w: topic %q routed twice", ErrInvalidRoute, r.Topic)
		}
		t.events[r.Topic] = r.Event
		t.topics = append(t.topics, r.Topic)
	}
	return t, nil
}

// Lookup returns the event name for topic.
func (t *Table) Lookup(topic string) (string, bool) {
	event, ok := t.events[topic]
	return event, ok
}

// Topics returns the routed topics in configuration order.
func (t *Table) Topics() []string {
	return append([]string(nil), t.topics...)
}

// Len returns the number of routes.
func (t *Table) Len() int {
	return len(t.topics)
}
