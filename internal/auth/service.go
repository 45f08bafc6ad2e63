package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// Service implements account signup, login and logout on top of a
// UserRepository and a Gate.
type Service struct {
	users  UserRepository
	gate   *Gate
	secret string
	ttl    time.Duration
	hasher Hasher
}

// NewService creates a Service issuing tokens signed with secret that live
// for ttl.
func NewService(users UserRepository, gate *Gate, secret string, ttl time.Duration) *Service {
	return &Service{
		users:  users,
		gate:   gate,
		secret: secret,
		ttl:    ttl,
		hasher: DefaultHasher,
	}
}

// SetHasher replaces the password hasher. Existing hashes stay verifiable.
func (s *Service) SetHasher(h Hasher) {
	s.hasher = h
}

// Gate returns the gate sessions are verified against.
func (s *Service) Gate() *Gate {
	return s.gate
}

// Signup validates req, checks that neither the username nor the email is
// taken, and only then hashes the password and stores the account.
//
// Both existence checks run concurrently and both are awaited before any
// hashing; a taken username is reported ahead of a taken email.
func (s *Service) Signup(ctx context.Context, req SignupRequest) (*User, error) {
	req.normalise()
	if err := req.validate(); err != nil {
		return nil, err
	}

	var usernameTaken, emailTaken bool
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		usernameTaken, err = s.users.ExistsByUsername(gctx, req.Username)
		return err
	})
	g.Go(func() error {
		var err error
		emailTaken, err = s.users.ExistsByEmail(gctx, req.Email)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("checking signup uniqueness: %w", err)
	}

	switch {
	case usernameTaken:
		return nil, ErrUsernameExists
	case emailTaken:
		return nil, ErrEmailExists
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	user := &User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Login checks credentials and returns a signed token with its Session.
// Unknown usernames and wrong passwords both yield ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, username, password string) (string, Session, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return "", Session{}, ErrInvalidCredentials
		}
		return "", Session{}, fmt.Errorf("looking up user: %w", err)
	}

	ok, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		return "", Session{}, fmt.Errorf("verifying password: %w", err)
	}
	if !ok {
		return "", Session{}, ErrInvalidCredentials
	}

	token, claims, err := IssueToken(user, s.secret, s.ttl)
	if err != nil {
		return "", Session{}, err
	}
	return token, newSession(claims), nil
}

// Logout revokes the session's token. Later Verify calls with it fail.
func (s *Service) Logout(ctx context.Context, session Session) error {
	if err := s.gate.Revoke(ctx, session); err != nil {
		return fmt.Errorf("logging out: %w", err)
	}
	return nil
}
