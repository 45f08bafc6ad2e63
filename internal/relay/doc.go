// Package relay is the core of the device relay.
//
// Inbound, a Bridge subscribes the topics of a routing Table on the broker
// client, turns each message into an Event with a Router and hands it to a
// Broadcaster (the WebSocket hub) and any Sinks (the telemetry archive).
// Outbound, a Publisher sends authenticated web commands to the device
// command topic.
//
// Failures stay where they happen: unrouted topics and malformed payloads
// are dropped inside the Bridge, while unauthorized or failed commands are
// returned to the caller of Submit.
package relay
