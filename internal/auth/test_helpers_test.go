package auth

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-relay/migrations"
)

const testSecret = "test-secret-key-at-least-32-chars!"

// fastHasher keeps Argon2id but at a cost suitable for tests.
var fastHasher = Hasher{Time: 1, Memory: 1024, Threads: 1, KeyLen: 32, SaltLen: 16}

// testDB opens a temp-file SQLite database with the relay migrations applied.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.Open(config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "auth.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("applying migrations: %v", err)
	}
	return db.DB
}

// seedTestUser inserts a user with password "test-password".
func seedTestUser(t *testing.T, repo UserRepository, username string) *User {
	t.Helper()

	hash, err := fastHasher.Hash("test-password")
	if err != nil {
		t.Fatalf("hashing password: %v", err)
	}

	user := &User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: hash,
	}
	if err := repo.Create(context.Background(), user); err != nil {
		t.Fatalf("creating test user %s: %v", username, err)
	}
	return user
}

// testSession issues a real token for user and returns its Session.
func testSession(t *testing.T, user *User) (string, Session) {
	t.Helper()

	token, claims, err := IssueToken(user, testSecret, 0)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	return token, newSession(claims)
}
