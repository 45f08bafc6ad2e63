// Package api implements the relay's HTTP API and WebSocket event stream.
//
// This package provides:
//   - Account endpoints: signup, login (session cookie plus bearer token),
//     verify and logout
//   - Command submission to the device command topic
//   - WebSocket hub broadcasting routed device events to every client
//   - Middleware stack (request ID, logging, recovery, CORS, auth)
//   - Health, metrics and audit trail endpoints
//
// # Graceful Degradation
//
// The server keeps running while the broker is unreachable. WebSocket
// clients stay connected and receive events again after reconnect; command
// submissions fail fast with 503 and are never queued.
//
// # Security
//
// Every route except health, metrics, signup, login and logout requires a
// session from the auth gate. WebSocket upgrades accept a single-use ticket
// so the JWT never appears in a URL.
package api
