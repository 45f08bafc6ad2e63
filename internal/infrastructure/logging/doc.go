// Package logging provides structured logging for the relay.
//
// It wraps log/slog so every entry carries service and version fields,
// and components derive scoped loggers with With("component", ...).
//
// Configuration:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Never log broker passwords, JWTs, or WebSocket tickets.
package logging
