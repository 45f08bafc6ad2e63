package mqtt

import "errors"

// Domain-specific errors for MQTT operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotConnected is returned when publishing while the client is not in
	// the Connected state. It is transient: the supervisor keeps retrying.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrConnectionFailed wraps a single failed connect attempt. A retry is
	// scheduled unless the attempt budget is exhausted.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrMaxAttemptsExceeded is delivered on Fatal() when
	// reconnect.max_attempts consecutive attempts have failed.
	ErrMaxAttemptsExceeded = errors.New("mqtt: reconnect attempts exhausted")

	// ErrPublishFailed is returned when a publish operation fails.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrSubscribeFailed is returned when a subscribe operation fails.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrInvalidQoS is returned when an invalid QoS level is specified.
	// Valid QoS levels are 0, 1, or 2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")

	// ErrInvalidTopic is returned when an empty or invalid topic is provided.
	ErrInvalidTopic = errors.New("mqtt: topic cannot be empty")

	// ErrTimeout is returned when the broker does not acknowledge in time.
	ErrTimeout = errors.New("mqtt: operation timed out")

	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("mqtt: client already started")

	// ErrClosed is returned by operations attempted after Close.
	ErrClosed = errors.New("mqtt: client closed")
)
