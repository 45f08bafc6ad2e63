package relay

import (
	"errors"
	"fmt"
)

// Sentinel errors for relay operations.
var (
	// ErrUnroutedTopic means the topic has no entry in the routing table.
	// Callers drop such messages silently.
	ErrUnroutedTopic = errors.New("relay: topic not routed")

	// ErrMalformedPayload matches any *RoutingError with ReasonMalformedPayload.
	ErrMalformedPayload = errors.New("relay: malformed payload")

	// ErrUnauthorized is returned by Submit when the session did not come
	// from the auth gate. The broker is never touched.
	ErrUnauthorized = errors.New("relay: unauthorized")

	// ErrInvalidCommand is returned by Submit for an empty or non-JSON payload.
	ErrInvalidCommand = errors.New("relay: invalid command payload")

	// ErrInvalidRoute is returned by NewTable for a bad route definition.
	ErrInvalidRoute = errors.New("relay: invalid route")
)

// Reason classifies a RoutingError.
type Reason string

// ReasonMalformedPayload marks a payload that is not valid UTF-8 JSON.
const ReasonMalformedPayload Reason = "malformed_payload"

// RoutingError reports why an inbound message could not become an Event.
type RoutingError struct {
	Topic  string
	Reason Reason
	Err    error
}

func (e *RoutingError) Error() string {
	return fmt.Sprintf("relay: %s on %q: %v", e.Reason, e.Topic, e.Err)
}

// Unwrap returns the underlying decode error.
func (e *RoutingError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for this error's reason.
func (e *RoutingError) Is(target error) bool {
	return target == ErrMalformedPayload && e.Reason == ReasonMalformedPayload
}
