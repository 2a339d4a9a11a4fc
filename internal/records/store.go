package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/housing-backoffice/internal/auth"
)

const (
	defaultLimit = 50
	maxLimit     = 200

	recordColumns = "id, collection, body, added_by, added_by_role, owner_id, signed_out_on, created_at, updated_at"
)

// Store defines record persistence.
type Store interface {
	Create(ctx context.Context, rec *Record) error
	Get(ctx context.Context, collection Collection, id string) (*Record, error)
	List(ctx context.Context, filter Filter) (*ListResult, error)
	Update(ctx context.Context, collection Collection, id string, body json.RawMessage) (*Record, error)
	SignOut(ctx context.Context, collection Collection, id string, on time.Time) (*Record, error)
	SoftDelete(ctx context.Context, collection Collection, id string) error
}

// SQLiteStore implements Store on the records table.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a SQLite-backed record store.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Create inserts a record. The ID is generated if empty. OwnerID is
// required.
func (s *SQLiteStore) Create(ctx context.Context, rec *Record) error {
	if err := validateCollection(rec.Collection); err != nil {
		return err
	}
	if rec.OwnerID == "" {
		return ErrMissingOwner
	}
	if err := ValidateBody(rec.Body); err != nil {
		return err
	}
	if rec.ID == "" {
		rec.ID = "rec-" + uuid.NewString()
	}

	now := time.Now().UTC().Format(time.RFC3339)
	rec.CreatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled
	rec.UpdatedAt = rec.CreatedAt

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO records (`+recordColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, string(rec.Collection), string(rec.Body), rec.AddedBy, int(rec.AddedByRole),
		rec.OwnerID, nullString(rec.SignOutDate), now, now,
	)
	if err != nil {
		return fmt.Errorf("inserting record %s: %w", rec.ID, err)
	}
	return nil
}

// Get returns a live record from collection.
func (s *SQLiteStore) Get(ctx context.Context, collection Collection, id string) (*Record, error) {
	if err := validateCollection(collection); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx,
		"SELECT "+recordColumns+" FROM records WHERE collection = ? AND id = ? AND deleted = 0",
		string(collection), id)
	return scanRecord(row)
}

// List returns live records matching the filter, newest first.
func (s *SQLiteStore) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if err := validateCollection(filter.Collection); err != nil {
		return nil, err
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultLimit
	}
	if filter.Limit > maxLimit {
		filter.Limit = maxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	conditions := []string{"collection = ?", "deleted = 0"}
	args := []any{string(filter.Collection)}
	if filter.AddedBy != "" {
		conditions = append(conditions, "added_by = ?")
		args = append(args, filter.AddedBy)
	}
	if filter.OwnerID != "" {
		conditions = append(conditions, "owner_id = ?")
		args = append(args, filter.OwnerID)
	}
	where := "WHERE " + strings.Join(conditions, " AND ")

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM records "+where, args...).Scan(&total); err != nil { //nolint:gosec // WHERE built from parameterised conditions
		return nil, fmt.Errorf("counting records: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, //nolint:gosec // WHERE built from parameterised conditions
		"SELECT "+recordColumns+" FROM records "+where+" ORDER BY created_at DESC, id ASC LIMIT ? OFFSET ?",
		append(args, filter.Limit, filter.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	list := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating records: %w", err)
	}

	return &ListResult{Records: list, Total: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}

// Update replaces a record's body.
func (s *SQLiteStore) Update(ctx context.Context, collection Collection, id string, body json.RawMessage) (*Record, error) {
	if err := ValidateBody(body); err != nil {
		return nil, err
	}
	return s.modify(ctx, collection, id, "body = ?", string(body))
}

// SignOut records the calendar date a tenant moved out. Signing out again
// replaces the date.
func (s *SQLiteStore) SignOut(ctx context.Context, collection Collection, id string, on time.Time) (*Record, error) {
	return s.modify(ctx, collection, id, "signed_out_on = ?", on.Format(time.DateOnly))
}

// SoftDelete hides a record from Get and List.
func (s *SQLiteStore) SoftDelete(ctx context.Context, collection Collection, id string) error {
	_, err := s.modify(ctx, collection, id, "deleted = 1")
	return err
}

// modify applies a SET clause to a live record and returns the result.
func (s *SQLiteStore) modify(ctx context.Context, collection Collection, id, set string, args ...any) (*Record, error) {
	if err := validateCollection(collection); err != nil {
		return nil, err
	}

	now := time.Now().UTC().Format(time.RFC3339)
	args = append(args, now, string(collection), id)
	result, err := s.db.ExecContext(ctx, //nolint:gosec // set clauses are constants
		"UPDATE records SET "+set+", updated_at = ? WHERE collection = ? AND id = ? AND deleted = 0", args...)
	if err != nil {
		return nil, fmt.Errorf("updating record %s: %w", id, err)
	}
	if n, _ := result.RowsAffected(); n == 0 { //nolint:errcheck // always succeeds on SQLite
		return nil, ErrRecordNotFound
	}

	if strings.HasPrefix(set, "deleted") {
		return nil, nil
	}
	return s.Get(ctx, collection, id)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (*Record, error) {
	var rec Record
	var collection, body, createdAt, updatedAt string
	var signedOutOn sql.NullString
	var role int

	err := sc.Scan(&rec.ID, &collection, &body, &rec.AddedBy, &role, &rec.OwnerID, &signedOutOn, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("scanning record: %w", err)
	}

	rec.Collection = Collection(collection)
	rec.Body = json.RawMessage(body)
	rec.AddedByRole = auth.Role(role)
	rec.SignOutDate = signedOutOn.String
	rec.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	rec.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // format is controlled
	return &rec, nil
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
