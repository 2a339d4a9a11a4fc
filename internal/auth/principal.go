package auth

import (
	"context"
	"errors"
	"fmt"
)

// Lookup is the result of resolving an email or id to a principal.
// Exactly one of Primary and Staff is set when Found returns true.
type Lookup struct {
	Primary *PrimaryAccount
	Staff   *StaffAccount
}

// NotFound is the empty lookup.
var NotFound = Lookup{}

// Found reports whether a principal was resolved.
func (l Lookup) Found() bool {
	return l.Primary != nil || l.Staff != nil
}

// Kind returns the principal kind, or "" when not found.
func (l Lookup) Kind() Kind {
	switch {
	case l.Primary != nil:
		return KindPrimary
	case l.Staff != nil:
		return KindStaff
	default:
		return ""
	}
}

// Subject returns the token subject for a found principal.
func (l Lookup) Subject() Subject {
	switch {
	case l.Primary != nil:
		return Subject{ID: l.Primary.ID, Role: l.Primary.Role, Kind: KindPrimary}
	case l.Staff != nil:
		return Subject{ID: l.Staff.ID, Role: RoleStaff, Kind: KindStaff}
	default:
		return Subject{}
	}
}

// Email returns the principal's email, or "" when not found.
func (l Lookup) Email() string {
	switch {
	case l.Primary != nil:
		return l.Primary.Email
	case l.Staff != nil:
		return l.Staff.Email
	default:
		return ""
	}
}

// OwnerID returns the primary account whose records the principal works
// on: its own ID for a primary, the owner for staff, "" when not found.
func (l Lookup) OwnerID() string {
	switch {
	case l.Primary != nil:
		return l.Primary.ID
	case l.Staff != nil:
		return l.Staff.OwnerID
	default:
		return ""
	}
}

// passwordHash returns the stored hash of a found principal.
func (l Lookup) passwordHash() string {
	switch {
	case l.Primary != nil:
		return l.Primary.PasswordHash
	case l.Staff != nil:
		return l.Staff.PasswordHash
	default:
		return ""
	}
}

// CanAuthenticate reports whether the principal may sign in or keep using
// an issued token. Primary accounts always can; staff must be active and
// not soft-deleted.
func (l Lookup) CanAuthenticate() bool {
	switch {
	case l.Primary != nil:
		return true
	case l.Staff != nil:
		return l.Staff.CanAuthenticate()
	default:
		return false
	}
}

// Resolver finds principals across both account tables. The primary table
// is always consulted first and the staff table only on a miss. Login and
// current-principal resolution both go through a Resolver so the two paths
// cannot disagree.
type Resolver struct {
	primaries PrimaryRepository
	staff     StaffRepository
}

// NewResolver creates a Resolver over the two account repositories.
func NewResolver(primaries PrimaryRepository, staff StaffRepository) *Resolver {
	return &Resolver{primaries: primaries, staff: staff}
}

// ByEmail resolves a principal by email.
func (r *Resolver) ByEmail(ctx context.Context, email string) (Lookup, error) {
	email = NormalizeEmail(email)
	return r.resolve(
		func() (*PrimaryAccount, error) { return r.primaries.GetByEmail(ctx, email) },
		func() (*StaffAccount, error) { return r.staff.GetByEmail(ctx, email) },
	)
}

// ByID resolves a principal by account ID.
func (r *Resolver) ByID(ctx context.Context, id string) (Lookup, error) {
	return r.resolve(
		func() (*PrimaryAccount, error) { return r.primaries.GetByID(ctx, id) },
		func() (*StaffAccount, error) { return r.staff.GetByID(ctx, id) },
	)
}

func (r *Resolver) resolve(primary func() (*PrimaryAccount, error), staff func() (*StaffAccount, error)) (Lookup, error) {
	p, err := primary()
	switch {
	case err == nil:
		return Lookup{Primary: p}, nil
	case !errors.Is(err, ErrAccountNotFound):
		return NotFound, fmt.Errorf("resolving primary account: %w", err)
	}

	s, err := staff()
	switch {
	case err == nil:
		return Lookup{Staff: s}, nil
	case errors.Is(err, ErrAccountNotFound):
		return NotFound, nil
	default:
		return NotFound, fmt.Errorf("resolving staff account: %w", err)
	}
}
