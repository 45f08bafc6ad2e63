package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/nerrad567/gray-logic-relay/internal/audit"
	"github.com/nerrad567/gray-logic-relay/internal/auth"
)

// loginRequest is the request body for POST /auth/login.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// loginResponse is the response body for POST /auth/login.
type loginResponse struct {
	Message     string    `json:"message"`
	Success     bool      `json:"success"`
	Username    string    `json:"username"`
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// messageResponse is the plain success body used by most endpoints.
type messageResponse struct {
	Message  string `json:"message"`
	Success  bool   `json:"success"`
	Username string `json:"username,omitempty"`
}

// handleSignup creates an account. Username and email uniqueness are both
// checked before the password is hashed.
func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req auth.SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	user, err := s.auth.Signup(r.Context(), req)
	if err != nil {
		s.recordAccount(audit.ActionSignup, "", err)
		s.writeDomainError(w, r, err)
		return
	}
	s.recordAccount(audit.ActionSignup, user.ID, nil)

	s.logger.Info("user signed up", "user_id", user.ID, "username", user.Username)
	writeJSON(w, http.StatusCreated, messageResponse{
		Message:  "Sign up successfully",
		Success:  true,
		Username: user.Username,
	})
}

// handleLogin checks credentials, sets the session cookie and also returns
// the token for non-browser clients.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	token, session, err := s.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		s.recordAccount(audit.ActionLogin, "", err)
		s.writeDomainError(w, r, err)
		return
	}
	s.recordAccount(audit.ActionLogin, session.UserID(), nil)

	http.SetCookie(w, &http.Cookie{
		Name:     s.gate.CookieName(),
		Value:    token,
		Path:     "/",
		Expires:  session.ExpiresAt(),
		HttpOnly: true,
		Secure:   s.secCfg.Cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})

	writeJSON(w, http.StatusOK, loginResponse{
		Message:     "Log in successfully",
		Success:     true,
		Username:    session.Username(),
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   session.ExpiresAt().UTC(),
	})
}

// handleVerify confirms the caller's session. authMiddleware has already
// rejected anything else.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	session := sessionFromContext(r.Context())
	writeJSON(w, http.StatusOK, messageResponse{
		Message:  "Authenticate successfully",
		Success:  true,
		Username: session.Username(),
	})
}

// handleLogout revokes the caller's token when there is one and always
// clears the session cookie.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.gate.CookieName(),
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secCfg.Cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})

	session, err := s.gate.Verify(r)
	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		// Nothing to revoke.
	case err != nil:
		s.logger.Error("session verification failed during logout", "error", err)
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "session store unavailable")
		return
	default:
		if err := s.auth.Logout(r.Context(), session); err != nil {
			s.recordAccount(audit.ActionLogout, session.UserID(), err)
			s.logger.Error("token revocation failed", "user_id", session.UserID(), "error", err)
			writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "session store unavailable")
			return
		}
		s.recordAccount(audit.ActionLogout, session.UserID(), nil)
	}

	writeJSON(w, http.StatusOK, messageResponse{
		Message: "Log out successfully",
		Success: true,
	})
}

// wsTicketResponse is the response body for POST /auth/ws-ticket.
type wsTicketResponse struct {
	Ticket    string `json:"ticket"`
	ExpiresIn int    `json:"expires_in"`
}

// handleWSTicket issues a single-use ticket for the WebSocket upgrade, so
// the JWT never appears in a URL.
func (s *Server) handleWSTicket(w http.ResponseWriter, r *http.Request) {
	ticket, err := s.gate.IssueTicket(sessionFromContext(r.Context()))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, wsTicketResponse{
		Ticket:    ticket,
		ExpiresIn: int(auth.TicketTTL.Seconds()),
	})
}

// recordAccount adds an account action to the audit trail. Caller mistakes
// are "rejected" and server-side faults are "failed".
func (s *Server) recordAccount(action, userID string, err error) {
	if s.audit == nil {
		return
	}

	entry := &audit.AuditLog{
		Action:  action,
		Outcome: audit.OutcomeSuccess,
		UserID:  userID,
		Source:  "api",
	}
	if err != nil {
		entry.Error = err.Error()
		entry.Outcome = audit.OutcomeFailed
		var verr *auth.ValidationError
		if errors.As(err, &verr) ||
			errors.Is(err, auth.ErrUsernameExists) ||
			errors.Is(err, auth.ErrEmailExists) ||
			errors.Is(err, auth.ErrInvalidCredentials) {
			entry.Outcome = audit.OutcomeRejected
		}
	}
	s.audit.Record(entry)
}
