package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

const primaryColumns = "id, email, name, password_hash, role, created_at, updated_at"

// SQLitePrimaryRepository implements PrimaryRepository using SQLite.
type SQLitePrimaryRepository struct {
	db *sql.DB
}

// NewPrimaryRepository creates a SQLite-backed primary account repository.
func NewPrimaryRepository(db *sql.DB) *SQLitePrimaryRepository {
	return &SQLitePrimaryRepository{db: db}
}

// Create inserts a primary account. The ID is generated if empty and the
// email is normalised.
func (r *SQLitePrimaryRepository) Create(ctx context.Context, acct *PrimaryAccount) error {
	if acct.ID == "" {
		acct.ID = "pri-" + uuid.NewString()
	}
	acct.Email = NormalizeEmail(acct.Email)

	now, parsed := timestamp()
	acct.CreatedAt, acct.UpdatedAt = parsed, parsed

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO primary_accounts (`+primaryColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		acct.ID, acct.Email, acct.Name, acct.PasswordHash, int(acct.Role), now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrEmailExists
		}
		return fmt.Errorf("creating primary account: %w", err)
	}
	return nil
}

// GetByID retrieves a primary account by ID.
func (r *SQLitePrimaryRepository) GetByID(ctx context.Context, id string) (*PrimaryAccount, error) {
	return scanPrimary(r.db.QueryRowContext(ctx,
		"SELECT "+primaryColumns+" FROM primary_accounts WHERE id = ?", id))
}

// GetByEmail retrieves a primary account by email (case-insensitive).
func (r *SQLitePrimaryRepository) GetByEmail(ctx context.Context, email string) (*PrimaryAccount, error) {
	return scanPrimary(r.db.QueryRowContext(ctx,
		"SELECT "+primaryColumns+" FROM primary_accounts WHERE email = ?", NormalizeEmail(email)))
}

// List returns all primary accounts ordered by creation date.
func (r *SQLitePrimaryRepository) List(ctx context.Context) ([]PrimaryAccount, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+primaryColumns+" FROM primary_accounts ORDER BY created_at ASC, email ASC")
	if err != nil {
		return nil, fmt.Errorf("listing primary accounts: %w", err)
	}
	defer rows.Close()

	accounts := []PrimaryAccount{}
	for rows.Next() {
		a, err := scanPrimary(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating primary accounts: %w", err)
	}
	return accounts, nil
}

// UpdatePassword replaces the stored hash.
func (r *SQLitePrimaryRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	now, _ := timestamp()
	result, err := r.db.ExecContext(ctx,
		"UPDATE primary_accounts SET password_hash = ?, updated_at = ? WHERE id = ?",
		passwordHash, now, id)
	if err != nil {
		return fmt.Errorf("updating password: %w", err)
	}
	return rowsAffected(result)
}

// Count returns the number of primary accounts.
func (r *SQLitePrimaryRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM primary_accounts").Scan(&count); err != nil {
		return 0, fmt.Errorf("counting primary accounts: %w", err)
	}
	return count, nil
}

func scanPrimary(s scanner) (*PrimaryAccount, error) {
	var a PrimaryAccount
	var role int
	var createdAt, updatedAt string

	err := s.Scan(&a.ID, &a.Email, &a.Name, &a.PasswordHash, &role, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("scanning primary account: %w", err)
	}

	a.Role = Role(role)
	a.CreatedAt = parseTime(createdAt)
	a.UpdatedAt = parseTime(updatedAt)
	return &a, nil
}
