package auth

import (
	"database/sql"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/housing-backoffice/internal/infrastructure/database"
	"github.com/nerrad567/housing-backoffice/migrations"
)

const testSecret = "test-secret-key-for-jwt-signing-0123456789"

// testDB creates a temporary SQLite database with every migration applied.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.Open(t.Context(), database.Config{
		Path:        filepath.Join(t.TempDir(), "auth-test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup

	if err := db.Migrate(t.Context(), migrations.FS); err != nil {
		t.Fatalf("applying migrations: %v", err)
	}
	return db.DB
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testTokens creates a token service with a fixed clock the test can move.
func testTokens(t *testing.T, now *time.Time) *TokenService {
	t.Helper()

	svc, err := NewTokenService(testSecret, time.Hour, WithTokenClock(func() time.Time { return *now }))
	if err != nil {
		t.Fatalf("NewTokenService() error = %v", err)
	}
	return svc
}

// seedPrimary inserts a primary account with the given password.
func seedPrimary(t *testing.T, repo PrimaryRepository, email, password string, role Role) *PrimaryAccount {
	t.Helper()

	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("hashing password: %v", err)
	}
	acct := &PrimaryAccount{Email: email, Name: email, PasswordHash: hash, Role: role}
	if err := repo.Create(t.Context(), acct); err != nil {
		t.Fatalf("creating primary %s: %v", email, err)
	}
	return acct
}

// seedStaff inserts an active staff account owned by ownerID.
func seedStaff(t *testing.T, repo StaffRepository, ownerID, email, password string, perms StaffPermissions) *StaffAccount {
	t.Helper()

	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("hashing password: %v", err)
	}
	acct := &StaffAccount{
		Email:        email,
		Name:         email,
		PasswordHash: hash,
		OwnerID:      ownerID,
		Permissions:  perms,
		Active:       true,
	}
	if err := repo.Create(t.Context(), acct); err != nil {
		t.Fatalf("creating staff %s: %v", email, err)
	}
	return acct
}
