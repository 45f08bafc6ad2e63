package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestIssueAndParseToken(t *testing.T) {
	user := &User{ID: "usr-001", Username: "alice"}

	token, issued, err := IssueToken(user, testSecret, 15*time.Minute)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}

	claims, err := ParseToken(token, testSecret)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}

	if claims.Subject != "usr-001" || claims.Username != "alice" {
		t.Errorf("claims = %q/%q, want usr-001/alice", claims.Subject, claims.Username)
	}
	if claims.ID == "" || claims.ID != issued.ID {
		t.Errorf("jti = %q, want %q", claims.ID, issued.ID)
	}
	if ttl := time.Until(claims.ExpiresAt.Time); ttl <= 14*time.Minute || ttl > 15*time.Minute {
		t.Errorf("expiry in %v, want about 15m", ttl)
	}
}

func TestIssueToken_DefaultTTL(t *testing.T) {
	_, claims, err := IssueToken(&User{ID: "usr-001", Username: "alice"}, testSecret, 0)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	if ttl := time.Until(claims.ExpiresAt.Time); ttl < 23*time.Hour {
		t.Errorf("default ttl = %v, want one day", ttl)
	}
}

func TestParseToken_Rejects(t *testing.T) {
	user := &User{ID: "usr-001", Username: "alice"}
	good, _, err := IssueToken(user, testSecret, time.Minute)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}

	sign := func(c *Claims, method jwt.SigningMethod, key any) string {
		t.Helper()
		s, err := jwt.NewWithClaims(method, c).SignedString(key)
		if err != nil {
			t.Fatalf("signing: %v", err)
		}
		return s
	}
	past := time.Now().Add(-time.Hour)

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-valid-jwt"},
		{"tampered signature", good + "x"},
		{"expired", sign(&Claims{
			RegisteredClaims: jwt.RegisteredClaims{Subject: "usr-001", ID: "j", ExpiresAt: jwt.NewNumericDate(past)},
			Username:         "alice",
		}, jwt.SigningMethodHS256, []byte(testSecret))},
		{"no expiry", sign(&Claims{
			RegisteredClaims: jwt.RegisteredClaims{Subject: "usr-001", ID: "j"},
			Username:         "alice",
		}, jwt.SigningMethodHS256, []byte(testSecret))},
		{"missing jti", sign(&Claims{
			RegisteredClaims: jwt.RegisteredClaims{Subject: "usr-001", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
			Username:         "alice",
		}, jwt.SigningMethodHS256, []byte(testSecret))},
		{"wrong algorithm", sign(&Claims{
			RegisteredClaims: jwt.RegisteredClaims{Subject: "usr-001", ID: "j", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
			Username:         "alice",
		}, jwt.SigningMethodHS512, []byte(testSecret))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseToken(tt.token, testSecret); !errors.Is(err, ErrTokenInvalid) {
				t.Errorf("ParseToken() error = %v, want ErrTokenInvalid", err)
			}
		})
	}
}
