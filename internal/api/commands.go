package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/nerrad567/gray-logic-relay/internal/relay"
)

// handleSubmitCommand forwards the request body to the device command topic.
//
// The body is any JSON value and is published unchanged apart from
// whitespace. The response never echoes it and never waits for the device.
func (s *Server) handleSubmitCommand(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeBadRequest(w, "request body too large or unreadable")
		return
	}

	cmd := relay.Command{Payload: json.RawMessage(body)}
	if err := s.commands.Submit(r.Context(), cmd, sessionFromContext(r.Context())); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{
		Message: "Sent data to mqtt",
		Success: true,
	})
}
