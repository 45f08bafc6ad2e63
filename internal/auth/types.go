package auth

import (
	"errors"
	"net/mail"
	"regexp"
	"strings"
	"time"
)

// usernamePattern defines the valid format for usernames:
// alphanumeric, dots, hyphens, underscores, 1-64 characters.
var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,64}$`)

const (
	maxUsernameLength = 64
	minPasswordLength = 8
	maxPasswordLength = 128
	maxEmailLength    = 254
)

// IsValidUsername checks if a username meets format requirements.
func IsValidUsername(username string) bool {
	return len(username) <= maxUsernameLength && usernamePattern.MatchString(username)
}

// IsValidEmail accepts a bare address (no display name) of sane length.
func IsValidEmail(email string) bool {
	if email == "" || len(email) > maxEmailLength {
		return false
	}
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

// User is a web account allowed to watch device events and send commands.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // never serialised
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// SignupRequest carries the fields needed to create an account.
type SignupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// normalise trims whitespace and lowercases the email.
func (r *SignupRequest) normalise() {
	r.Username = strings.TrimSpace(r.Username)
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
}

// validate reports the first problem with the request as an error wrapping
// ErrInvalidSignup.
func (r SignupRequest) validate() error {
	switch {
	case !IsValidUsername(r.Username):
		return &ValidationError{Field: "username", Reason: "must be 1-64 letters, digits, dots, hyphens or underscores"}
	case !IsValidEmail(r.Email):
		return &ValidationError{Field: "email", Reason: "must be a valid email address"}
	case len(r.Password) < minPasswordLength:
		return &ValidationError{Field: "password", Reason: "must be at least 8 characters"}
	case len(r.Password) > maxPasswordLength:
		return &ValidationError{Field: "password", Reason: "must be at most 128 characters"}
	}
	return nil
}

// ValidationError describes a rejected signup field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Field + " " + e.Reason
}

// Unwrap lets errors.Is(err, ErrInvalidSignup) match.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidSignup
}

// Sentinel errors for auth operations.
var (
	ErrInvalidSignup      = errors.New("invalid signup request")
	ErrUsernameExists     = errors.New("username already exists")
	ErrEmailExists        = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
	ErrUnauthenticated    = errors.New("not authenticated")
	ErrTokenInvalid       = errors.New("invalid token")
	ErrTokenRevoked       = errors.New("token has been revoked")
	ErrTicketInvalid      = errors.New("invalid or expired ticket")
)
