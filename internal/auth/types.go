package auth

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Role represents an authorisation tier. The numeric values are part of the
// token format and must not change.
type Role int

const (
	// RoleAdmin has every page, including user management and activity.
	RoleAdmin Role = 1

	// RoleManagingAgent runs day-to-day operations: everything except
	// user management and the activity trail.
	RoleManagingAgent Role = 2

	// RoleStaff is an employee login owned by a primary account. Page
	// access is narrow and mutations are further gated by StaffPermissions.
	RoleStaff Role = 3
)

// String returns the role name used in logs and API responses.
func (r Role) String() string {
	switch r {
	case RoleAdmin:
		return "admin"
	case RoleManagingAgent:
		return "managing_agent"
	case RoleStaff:
		return "staff"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// IsPrimary reports whether r is a role a primary account may hold.
func (r Role) IsPrimary() bool {
	return r == RoleAdmin || r == RoleManagingAgent
}

// Kind tags which principal table an account lives in.
type Kind string

const (
	KindPrimary Kind = "primary"
	KindStaff   Kind = "staff"
)

// PrimaryAccount is an Admin or Managing Agent login.
type PrimaryAccount struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"` // never serialised
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// StaffAccount is an employee login owned by a primary account.
type StaffAccount struct {
	ID           string           `json:"id"`
	Email        string           `json:"email"`
	Name         string           `json:"name"`
	PasswordHash string           `json:"-"` // never serialised
	OwnerID      string           `json:"ownerId"`
	Permissions  StaffPermissions `json:"permissions"`
	Active       bool             `json:"active"`
	Deleted      bool             `json:"deleted"`
	CreatedAt    time.Time        `json:"createdAt"`
	UpdatedAt    time.Time        `json:"updatedAt"`
}

// CanAuthenticate reports whether the staff account may sign in or keep
// using an issued token.
func (s *StaffAccount) CanAuthenticate() bool {
	return s.Active && !s.Deleted
}

// Subject is what a session token is issued for.
type Subject struct {
	ID   string
	Role Role
	Kind Kind
}

// emailPattern is deliberately loose: one @, no spaces, a dot in the domain.
var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

const (
	maxEmailLength    = 254
	minPasswordLength = 8
	maxPasswordLength = 128
)

// NormalizeEmail trims and lower-cases an email for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IsValidEmail checks the basic shape of an already normalised email.
func IsValidEmail(email string) bool {
	return len(email) <= maxEmailLength && emailPattern.MatchString(email)
}

// ValidatePassword enforces the length policy for new passwords.
func ValidatePassword(password string) error {
	if len(password) < minPasswordLength || len(password) > maxPasswordLength {
		return fmt.Errorf("%w: must be %d-%d characters", ErrWeakPassword, minPasswordLength, maxPasswordLength)
	}
	return nil
}

// Sentinel errors for auth operations.
var (
	ErrUnauthenticated     = errors.New("unauthenticated")
	ErrForbidden           = errors.New("insufficient permissions")
	ErrBadCredentials      = errors.New("invalid email or password")
	ErrConflictingIdentity = errors.New("email already registered")

	// ErrCredentialStoreCorrupted means a stored hash could not be parsed.
	// It is never returned for a simple password mismatch.
	ErrCredentialStoreCorrupted = errors.New("credential store corrupted")

	ErrTokenMalformed = fmt.Errorf("%w: token malformed", ErrUnauthenticated)
	ErrTokenExpired   = fmt.Errorf("%w: token expired", ErrUnauthenticated)
	ErrTokenForged    = fmt.Errorf("%w: token signature invalid", ErrUnauthenticated)

	ErrAccountNotFound = errors.New("account not found")
	ErrEmailExists     = fmt.Errorf("%w: duplicate email", ErrConflictingIdentity)
	ErrInvalidEmail    = errors.New("invalid email address")
	ErrWeakPassword    = errors.New("password does not meet policy")
	ErrInvalidRole     = errors.New("invalid role")
	ErrWeakSigningKey  = errors.New("signing key too short")
)
