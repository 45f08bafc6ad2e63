package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// defaultTokenTTL matches the one-day session the web app expects.
const defaultTokenTTL = 24 * time.Hour

// Claims is the JWT payload of a relay session token.
// Subject is the user ID, ID (jti) identifies the token for revocation.
type Claims struct {
	jwt.RegisteredClaims
	Username string `json:"name"`
}

// IssueToken creates a signed HS256 session token for user.
// A non-positive ttl falls back to one day.
func IssueToken(user *User, secret string, ttl time.Duration) (string, *Claims, error) {
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}

	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		Username: user.Username,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", nil, fmt.Errorf("signing session token: %w", err)
	}
	return signed, claims, nil
}

// ParseToken validates signature, algorithm, expiry and required fields.
func ParseToken(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}

	switch {
	case claims.Subject == "":
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	case claims.ID == "":
		return nil, fmt.Errorf("%w: missing jti", ErrTokenInvalid)
	case claims.Username == "":
		return nil, fmt.Errorf("%w: missing name", ErrTokenInvalid)
	}

	return claims, nil
}
