package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/mattn/go-sqlite3"
)

// PrimaryRepository persists Admin and Managing Agent accounts.
type PrimaryRepository interface {
	Create(ctx context.Context, acct *PrimaryAccount) error
	GetByID(ctx context.Context, id string) (*PrimaryAccount, error)
	GetByEmail(ctx context.Context, email string) (*PrimaryAccount, error)
	List(ctx context.Context) ([]PrimaryAccount, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	Count(ctx context.Context) (int, error)
}

// StaffRepository persists staff accounts. Soft-deleted rows are still
// returned by the getters so their emails stay reserved; callers check
// StaffAccount.CanAuthenticate.
type StaffRepository interface {
	Create(ctx context.Context, acct *StaffAccount) error
	GetByID(ctx context.Context, id string) (*StaffAccount, error)
	GetByEmail(ctx context.Context, email string) (*StaffAccount, error)
	// ListByOwner returns non-deleted staff for ownerID, or for every
	// owner when ownerID is empty.
	ListByOwner(ctx context.Context, ownerID string) ([]StaffAccount, error)
	UpdatePermissions(ctx context.Context, id string, perms StaffPermissions) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	SoftDelete(ctx context.Context, id string) error
}

// scanner is an interface for sql.Row and sql.Rows Scan methods.
type scanner interface {
	Scan(dest ...any) error
}

// timestamp returns now in the stored format and its parsed value.
func timestamp() (string, time.Time) {
	now := time.Now().UTC().Format(time.RFC3339)
	parsed, _ := time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled
	return now, parsed
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s) //nolint:errcheck // format is controlled
	return t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isUniqueViolation reports whether err is a SQLite UNIQUE constraint failure.
func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique
}

// rowsAffected maps a zero-row update to ErrAccountNotFound.
func rowsAffected(result sql.Result) error {
	n, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if n == 0 {
		return ErrAccountNotFound
	}
	return nil
}
