package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

const staffColumns = "id, email, name, password_hash, owner_id, permissions, active, deleted, created_at, updated_at"

// SQLiteStaffRepository implements StaffRepository using SQLite.
type SQLiteStaffRepository struct {
	db *sql.DB
}

// NewStaffRepository creates a SQLite-backed staff account repository.
func NewStaffRepository(db *sql.DB) *SQLiteStaffRepository {
	return &SQLiteStaffRepository{db: db}
}

// Create inserts a staff account. The ID is generated if empty and the
// email is normalised.
func (r *SQLiteStaffRepository) Create(ctx context.Context, acct *StaffAccount) error {
	if acct.ID == "" {
		acct.ID = "stf-" + uuid.NewString()
	}
	acct.Email = NormalizeEmail(acct.Email)

	perms, err := json.Marshal(acct.Permissions)
	if err != nil {
		return fmt.Errorf("marshalling permissions: %w", err)
	}

	now, parsed := timestamp()
	acct.CreatedAt, acct.UpdatedAt = parsed, parsed

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO staff_accounts (`+staffColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		acct.ID, acct.Email, acct.Name, acct.PasswordHash, acct.OwnerID, string(perms),
		boolToInt(acct.Active), boolToInt(acct.Deleted), now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrEmailExists
		}
		return fmt.Errorf("creating staff account: %w", err)
	}
	return nil
}

// GetByID retrieves a staff account by ID, including soft-deleted ones.
func (r *SQLiteStaffRepository) GetByID(ctx context.Context, id string) (*StaffAccount, error) {
	return scanStaff(r.db.QueryRowContext(ctx,
		"SELECT "+staffColumns+" FROM staff_accounts WHERE id = ?", id))
}

// GetByEmail retrieves a staff account by email, including soft-deleted ones.
func (r *SQLiteStaffRepository) GetByEmail(ctx context.Context, email string) (*StaffAccount, error) {
	return scanStaff(r.db.QueryRowContext(ctx,
		"SELECT "+staffColumns+" FROM staff_accounts WHERE email = ?", NormalizeEmail(email)))
}

// ListByOwner returns non-deleted staff, filtered by owner unless ownerID is empty.
func (r *SQLiteStaffRepository) ListByOwner(ctx context.Context, ownerID string) ([]StaffAccount, error) {
	query := "SELECT " + staffColumns + " FROM staff_accounts WHERE deleted = 0"
	var args []any
	if ownerID != "" {
		query += " AND owner_id = ?"
		args = append(args, ownerID)
	}
	query += " ORDER BY created_at ASC, email ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing staff accounts: %w", err)
	}
	defer rows.Close()

	accounts := []StaffAccount{}
	for rows.Next() {
		a, err := scanStaff(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating staff accounts: %w", err)
	}
	return accounts, nil
}

// UpdatePermissions replaces the permission set of a non-deleted staff account.
func (r *SQLiteStaffRepository) UpdatePermissions(ctx context.Context, id string, perms StaffPermissions) error {
	body, err := json.Marshal(perms)
	if err != nil {
		return fmt.Errorf("marshalling permissions: %w", err)
	}

	now, _ := timestamp()
	result, err := r.db.ExecContext(ctx,
		"UPDATE staff_accounts SET permissions = ?, updated_at = ? WHERE id = ? AND deleted = 0",
		string(body), now, id)
	if err != nil {
		return fmt.Errorf("updating permissions: %w", err)
	}
	return rowsAffected(result)
}

// UpdatePassword replaces the stored hash.
func (r *SQLiteStaffRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	now, _ := timestamp()
	result, err := r.db.ExecContext(ctx,
		"UPDATE staff_accounts SET password_hash = ?, updated_at = ? WHERE id = ?",
		passwordHash, now, id)
	if err != nil {
		return fmt.Errorf("updating password: %w", err)
	}
	return rowsAffected(result)
}

// SoftDelete flags a staff account as deleted. Deleting twice returns
// ErrAccountNotFound.
func (r *SQLiteStaffRepository) SoftDelete(ctx context.Context, id string) error {
	now, _ := timestamp()
	result, err := r.db.ExecContext(ctx,
		"UPDATE staff_accounts SET deleted = 1, active = 0, updated_at = ? WHERE id = ? AND deleted = 0",
		now, id)
	if err != nil {
		return fmt.Errorf("deleting staff account: %w", err)
	}
	return rowsAffected(result)
}

func scanStaff(s scanner) (*StaffAccount, error) {
	var a StaffAccount
	var perms string
	var active, deleted int
	var createdAt, updatedAt string

	err := s.Scan(&a.ID, &a.Email, &a.Name, &a.PasswordHash, &a.OwnerID, &perms,
		&active, &deleted, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("scanning staff account: %w", err)
	}

	if err := json.Unmarshal([]byte(perms), &a.Permissions); err != nil {
		return nil, fmt.Errorf("%w: staff %s permissions: %w", ErrCredentialStoreCorrupted, a.ID, err)
	}
	a.Active = active != 0
	a.Deleted = deleted != 0
	a.CreatedAt = parseTime(createdAt)
	a.UpdatedAt = parseTime(updatedAt)
	return &a, nil
}
