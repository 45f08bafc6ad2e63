package mqtt

// State is the lifecycle state of the broker connection.
//
// Transitions:
//
//	Disconnected -> Connecting            Start
//	Connecting   -> Connected             connect ok, subscriptions replayed
//	Connecting   -> Reconnecting          connect failed
//	Connected    -> Reconnecting          connection lost
//	Reconnecting -> Connected             reconnect ok, subscriptions replayed
//	any          -> Disconnected          Close, or attempts exhausted
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

// String returns the lowercase state name used in logs and health output.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}
