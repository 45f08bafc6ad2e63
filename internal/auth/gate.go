package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	// TicketTTL is how long a WebSocket ticket stays redeemable.
	TicketTTL = 60 * time.Second

	// ticketBytes is the number of random bytes in a ticket.
	ticketBytes = 32

	// DefaultCookieName is the session cookie set on login.
	DefaultCookieName = "token"
)

// Gate turns request credentials into a Session.
//
// It accepts a JWT from the Authorization header ("Bearer <token>") or, for
// browser clients, from the session cookie. Browsers cannot set headers on
// a WebSocket upgrade, so the Gate also hands out single-use tickets bound
// to an already verified Session.
type Gate struct {
	secret      string
	cookieName  string
	revocations RevocationStore

	mu      sync.Mutex
	tickets map[string]ticketEntry
}

type ticketEntry struct {
	session   Session
	expiresAt time.Time
}

// NewGate creates a Gate. An empty cookieName uses DefaultCookieName and a
// nil store uses an in-memory one.
func NewGate(secret, cookieName string, revocations RevocationStore) *Gate {
	if cookieName == "" {
		cookieName = DefaultCookieName
	}
	if revocations == nil {
		revocations = NewMemoryRevocationStore()
	}
	return &Gate{
		secret:      secret,
		cookieName:  cookieName,
		revocations: revocations,
		tickets:     make(map[string]ticketEntry),
	}
}

// CookieName returns the name of the session cookie.
func (g *Gate) CookieName() string {
	return g.cookieName
}

// Verify authenticates r. Missing credentials return ErrUnauthenticated;
// bad or revoked tokens return an error wrapping ErrTokenInvalid or
// ErrTokenRevoked (both also match ErrUnauthenticated).
func (g *Gate) Verify(r *http.Request) (Session, error) {
	token := bearerToken(r)
	if token == "" {
		if c, err := r.Cookie(g.cookieName); err == nil {
			token = c.Value
		}
	}
	if token == "" {
		return Session{}, ErrUnauthenticated
	}
	return g.VerifyToken(r.Context(), token)
}

// VerifyToken authenticates a raw JWT.
func (g *Gate) VerifyToken(ctx context.Context, token string) (Session, error) {
	claims, err := ParseToken(token, g.secret)
	if err != nil {
		return Session{}, errors.Join(ErrUnauthenticated, err)
	}

	revoked, err := g.revocations.IsRevoked(ctx, claims.ID)
	if err != nil {
		return Session{}, fmt.Errorf("checking token revocation: %w", err)
	}
	if revoked {
		return Session{}, errors.Join(ErrUnauthenticated, ErrTokenRevoked)
	}

	return newSession(claims), nil
}

// Revoke invalidates the token behind s until it would have expired, and
// drops any unredeemed tickets issued for it.
func (g *Gate) Revoke(ctx context.Context, s Session) error {
	if !s.Valid() {
		return ErrUnauthenticated
	}
	if err := g.revocations.Revoke(ctx, s.tokenID, s.expiresAt); err != nil {
		return err
	}

	g.mu.Lock()
	for ticket, entry := range g.tickets {
		if entry.session.tokenID == s.tokenID {
			delete(g.tickets, ticket)
		}
	}
	g.mu.Unlock()
	return nil
}

// HealthCheck pings the revocation store when it supports it. The
// in-memory store is always healthy.
func (g *Gate) HealthCheck(ctx context.Context) error {
	hc, ok := g.revocations.(interface {
		HealthCheck(ctx context.Context) error
	})
	if !ok {
		return nil
	}
	return hc.HealthCheck(ctx)
}

// IssueTicket returns a single-use WebSocket ticket bound to s, valid for
// TicketTTL.
func (g *Gate) IssueTicket(s Session) (string, error) {
	if !s.Valid() {
		return "", ErrUnauthenticated
	}

	b := make([]byte, ticketBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating ticket: %w", err)
	}
	ticket := hex.EncodeToString(b)

	g.mu.Lock()
	g.tickets[ticket] = ticketEntry{session: s, expiresAt: time.Now().Add(TicketTTL)}
	g.mu.Unlock()

	return ticket, nil
}

// RedeemTicket consumes ticket and returns its Session. A ticket can be
// redeemed at most once, and not after its token has been revoked.
func (g *Gate) RedeemTicket(ctx context.Context, ticket string) (Session, error) {
	g.mu.Lock()
	entry, ok := g.tickets[ticket]
	delete(g.tickets, ticket)
	g.mu.Unlock()

	if !ok || time.Now().After(entry.expiresAt) || !entry.session.Valid() {
		return Session{}, errors.Join(ErrUnauthenticated, ErrTicketInvalid)
	}

	revoked, err := g.revocations.IsRevoked(ctx, entry.session.tokenID)
	if err != nil {
		return Session{}, fmt.Errorf("checking token revocation: %w", err)
	}
	if revoked {
		return Session{}, errors.Join(ErrUnauthenticated, ErrTokenRevoked)
	}
	return entry.session, nil
}

// PendingTickets returns the number of unredeemed tickets.
func (g *Gate) PendingTickets() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.tickets)
}

// CleanTicketsLoop drops expired tickets every TicketTTL until ctx is done.
func (g *Gate) CleanTicketsLoop(ctx context.Context) {
	ticker := time.NewTicker(TicketTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.cleanExpiredTickets(time.Now())
		}
	}
}

func (g *Gate) cleanExpiredTickets(now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for ticket, entry := range g.tickets {
		if now.After(entry.expiresAt) {
			delete(g.tickets, ticket)
		}
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
