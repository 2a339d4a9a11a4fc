package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// LoginResult is a successful login: the issued token and who it is for.
type LoginResult struct {
	IssuedToken
	Principal Lookup
}

// RegisterRequest holds the fields for a new primary account.
type RegisterRequest struct {
	Email    string
	Password string
	Name     string
	Role     Role
}

// StaffRequest holds the fields for a new staff account.
type StaffRequest struct {
	Email       string
	Password    string
	Name        string
	Permissions StaffPermissions
}

// Service implements login, registration and staff account management on
// top of the account repositories and the token service.
type Service struct {
	resolver  *Resolver
	primaries PrimaryRepository
	staff     StaffRepository
	tokens    *TokenService
	logger    *slog.Logger

	dummyOnce sync.Once
	dummyHash string
}

// NewService creates an auth service.
func NewService(primaries PrimaryRepository, staff StaffRepository, tokens *TokenService, logger *slog.Logger) *Service {
	return &Service{
		resolver:  NewResolver(primaries, staff),
		primaries: primaries,
		staff:     staff,
		tokens:    tokens,
		logger:    logger,
	}
}

// Resolver returns the principal resolver shared by every path.
func (s *Service) Resolver() *Resolver {
	return s.resolver
}

// Tokens returns the token service.
func (s *Service) Tokens() *TokenService {
	return s.tokens
}

// Login checks credentials and issues a session token.
//
// Returns ErrBadCredentials for an unknown email, a wrong password, or a
// staff account that is inactive or soft-deleted. The caller cannot tell
// these apart.
func (s *Service) Login(ctx context.Context, email, password string) (LoginResult, error) {
	lookup, err := s.resolver.ByEmail(ctx, email)
	if err != nil {
		return LoginResult{}, err
	}

	if !lookup.Found() {
		// Burn the same hashing time as a real check.
		_, _ = VerifyPassword(password, s.dummy()) //nolint:errcheck // result unused
		return LoginResult{}, ErrBadCredentials
	}

	hash := lookup.passwordHash()
	ok, err := VerifyPassword(password, hash)
	if err != nil {
		return LoginResult{}, fmt.Errorf("verifying password for %s %s: %w", lookup.Kind(), lookup.Subject().ID, err)
	}
	if !ok || !lookup.CanAuthenticate() {
		return LoginResult{}, ErrBadCredentials
	}

	if NeedsRehash(hash) {
		s.rehash(ctx, lookup, password)
	}

	issued, err := s.tokens.Issue(lookup.Subject())
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{IssuedToken: issued, Principal: lookup}, nil
}

// rehash upgrades a legacy hash to Argon2id. Failure is logged and ignored.
func (s *Service) rehash(ctx context.Context, lookup Lookup, password string) {
	hash, err := HashPassword(password)
	if err != nil {
		s.logger.Warn("rehashing legacy password", "error", err)
		return
	}

	sub := lookup.Subject()
	if sub.Kind == KindPrimary {
		err = s.primaries.UpdatePassword(ctx, sub.ID, hash)
	} else {
		err = s.staff.UpdatePassword(ctx, sub.ID, hash)
	}
	if err != nil {
		s.logger.Warn("storing rehashed password", "principal_id", sub.ID, "error", err)
		return
	}
	s.logger.Info("legacy password hash upgraded", "principal_id", sub.ID, "principal_kind", sub.Kind)
}

func (s *Service) dummy() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = HashPassword("not-a-real-password") //nolint:errcheck // crypto/rand failure surfaces elsewhere
	})
	return s.dummyHash
}

// Register creates a primary account.
//
// Returns ErrConflictingIdentity if the email is held by any principal,
// primary or staff.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*PrimaryAccount, error) {
	email := NormalizeEmail(req.Email)
	if !IsValidEmail(email) {
		return nil, ErrInvalidEmail
	}
	if err := ValidatePassword(req.Password); err != nil {
		return nil, err
	}
	if !req.Role.IsPrimary() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRole, req.Role)
	}
	if err := s.ensureEmailFree(ctx, email); err != nil {
		return nil, err
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	acct := &PrimaryAccount{
		Email:        email,
		Name:         strings.TrimSpace(req.Name),
		PasswordHash: hash,
		Role:         req.Role,
	}
	if err := s.primaries.Create(ctx, acct); err != nil {
		return nil, err
	}
	return acct, nil
}

// CreateStaff creates a staff account owned by the calling primary account.
func (s *Service) CreateStaff(ctx context.Context, actor Subject, req StaffRequest) (*StaffAccount, error) {
	if actor.Kind != KindPrimary || !actor.Role.IsPrimary() {
		return nil, ErrForbidden
	}

	email := NormalizeEmail(req.Email)
	if !IsValidEmail(email) {
		return nil, ErrInvalidEmail
	}
	if err := ValidatePassword(req.Password); err != nil {
		return nil, err
	}
	if err := s.ensureEmailFree(ctx, email); err != nil {
		return nil, err
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	acct := &StaffAccount{
		Email:        email,
		Name:         strings.TrimSpace(req.Name),
		PasswordHash: hash,
		OwnerID:      actor.ID,
		Permissions:  req.Permissions,
		Active:       true,
	}
	if err := s.staff.Create(ctx, acct); err != nil {
		return nil, err
	}
	return acct, nil
}

// ListStaff returns the staff visible to actor: every staff account for
// an Admin, otherwise the actor's own.
func (s *Service) ListStaff(ctx context.Context, actor Subject) ([]StaffAccount, error) {
	switch {
	case actor.Kind != KindPrimary:
		return nil, ErrForbidden
	case actor.Role == RoleAdmin:
		return s.staff.ListByOwner(ctx, "")
	default:
		return s.staff.ListByOwner(ctx, actor.ID)
	}
}

// UpdateStaffPermissions replaces a staff account's permission set.
// Only the owner or an Admin may do this.
func (s *Service) UpdateStaffPermissions(ctx context.Context, actor Subject, staffID string, perms StaffPermissions) (*StaffAccount, error) {
	acct, err := s.manageableStaff(ctx, actor, staffID)
	if err != nil {
		return nil, err
	}
	if err := s.staff.UpdatePermissions(ctx, staffID, perms); err != nil {
		return nil, err
	}
	acct.Permissions = perms
	return acct, nil
}

// DeleteStaff soft-deletes a staff account. Tokens already issued to it
// stay valid until they expire but no longer resolve to a principal.
func (s *Service) DeleteStaff(ctx context.Context, actor Subject, staffID string) error {
	if _, err := s.manageableStaff(ctx, actor, staffID); err != nil {
		return err
	}
	return s.staff.SoftDelete(ctx, staffID)
}

func (s *Service) manageableStaff(ctx context.Context, actor Subject, staffID string) (*StaffAccount, error) {
	if actor.Kind != KindPrimary {
		return nil, ErrForbidden
	}
	acct, err := s.staff.GetByID(ctx, staffID)
	if err != nil {
		return nil, err
	}
	if acct.Deleted {
		return nil, ErrAccountNotFound
	}
	if actor.Role != RoleAdmin && acct.OwnerID != actor.ID {
		return nil, ErrForbidden
	}
	return acct, nil
}

// ListPrimaries returns every primary account.
func (s *Service) ListPrimaries(ctx context.Context) ([]PrimaryAccount, error) {
	return s.primaries.List(ctx)
}

// Current resolves the principal behind verified claims.
//
// Returns ErrUnauthenticated if the subject no longer resolves, resolves
// to a different kind than the token says, or is a staff account that
// can no longer authenticate.
func (s *Service) Current(ctx context.Context, claims *Claims) (Lookup, error) {
	lookup, err := s.resolver.ByID(ctx, claims.Subject)
	if err != nil {
		return NotFound, err
	}
	if !lookup.Found() || lookup.Kind() != claims.Kind || !lookup.CanAuthenticate() {
		return NotFound, ErrUnauthenticated
	}
	return lookup, nil
}

func (s *Service) ensureEmailFree(ctx context.Context, email string) error {
	existing, err := s.resolver.ByEmail(ctx, email)
	if err != nil {
		return err
	}
	if existing.Found() {
		return ErrEmailExists
	}
	return nil
}

// IsClientError reports whether err is a validation failure safe to show
// to the caller.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidEmail) || errors.Is(err, ErrWeakPassword) || errors.Is(err, ErrInvalidRole)
}
