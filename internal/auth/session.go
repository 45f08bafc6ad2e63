package auth

import "time"

// Session is an authenticated identity produced by the Gate.
//
// Its fields are unexported, so code outside this package can only obtain a
// usable Session from Gate.Verify, Gate.RedeemTicket or Service.Login. The
// zero Session is never Valid; consumers such as the command publisher
// reject it before doing any work.
type Session struct {
	userID    string
	username  string
	tokenID   string
	expiresAt time.Time
}

func newSession(c *Claims) Session {
	return Session{
		userID:    c.Subject,
		username:  c.Username,
		tokenID:   c.ID,
		expiresAt: c.ExpiresAt.Time,
	}
}

// Valid reports whether the session was issued by this package and has not
// expired.
func (s Session) Valid() bool {
	return s.userID != "" && s.tokenID != "" && time.Now().Before(s.expiresAt)
}

// UserID returns the authenticated user's ID.
func (s Session) UserID() string { return s.userID }

// Username returns the authenticated user's name.
func (s Session) Username() string { return s.username }

// TokenID returns the jti of the token behind this session.
func (s Session) TokenID() string { return s.tokenID }

// ExpiresAt returns when the underlying token expires.
func (s Session) ExpiresAt() time.Time { return s.expiresAt }
