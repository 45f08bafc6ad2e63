// Package auth authenticates web users of the relay.
//
// It provides:
//   - Argon2id password hashing (OWASP 2025 recommendation)
//   - HS256 session tokens carrying the user ID, username and a jti
//   - A Gate that turns a bearer header, session cookie or single-use
//     WebSocket ticket into a Session
//   - Logout through a RevocationStore, in memory or shared via Redis
//
// A Session can only be produced inside this package. Anything that acts on
// behalf of a user (publishing a device command, joining the event stream)
// takes a Session and checks Valid before doing any work.
package auth
