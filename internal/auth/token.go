package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// MinSigningKeyLength is the minimum HS256 secret length in bytes.
	MinSigningKeyLength = 32

	// DefaultTokenTTL is used when no lifetime is configured.
	DefaultTokenTTL = 7 * 24 * time.Hour

	tokenSegments = 3
)

// IssuedToken is a signed token and its absolute expiry. ExpiresAt equals
// the signed exp claim.
type IssuedToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// TokenService issues and verifies HS256 session tokens.
//
// The key is fixed at construction. Verification does no I/O and is safe
// for concurrent use.
type TokenService struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// TokenOption configures a TokenService.
type TokenOption func(*TokenService)

// WithTokenClock overrides the time source (tests).
func WithTokenClock(now func() time.Time) TokenOption {
	return func(s *TokenService) { s.now = now }
}

// NewTokenService creates a token service.
//
// Parameters:
//   - secret: HS256 signing key, at least MinSigningKeyLength bytes
//   - ttl: token lifetime; zero or negative means DefaultTokenTTL
//
// Returns:
//   - *TokenService: ready for use
//   - error: ErrWeakSigningKey if the secret is too short
func NewTokenService(secret string, ttl time.Duration, opts ...TokenOption) (*TokenService, error) {
	if len(secret) < MinSigningKeyLength {
		return nil, fmt.Errorf("%w: need %d bytes, got %d", ErrWeakSigningKey, MinSigningKeyLength, len(secret))
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	s := &TokenService{
		key: []byte(secret),
		ttl: ttl,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// TTL returns the configured token lifetime.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// Issue signs a token for sub.
func (s *TokenService) Issue(sub Subject) (IssuedToken, error) {
	// JWT times have second precision; truncate so ExpiresAt matches exp.
	now := s.now().UTC().Truncate(time.Second)
	expiresAt := now.Add(s.ttl)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
		Role: sub.Role,
		Kind: sub.Kind,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return IssuedToken{}, fmt.Errorf("signing token: %w", err)
	}
	return IssuedToken{Token: signed, ExpiresAt: expiresAt}, nil
}

// Verify checks a token and returns its claims.
//
// Returns one of (all wrapping ErrUnauthenticated):
//   - ErrTokenMalformed: not three segments, empty signature, bad header or payload
//   - ErrTokenExpired: signature valid but exp has passed
//   - ErrTokenForged: signature mismatch, wrong algorithm, or undecodable signature
func (s *TokenService) Verify(token string) (*Claims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != tokenSegments || parts[2] == "" {
		return nil, ErrTokenMalformed
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
	)
	if err != nil {
		return nil, s.classify(token, err)
	}

	if err := claims.validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenMalformed, err)
	}
	return claims, nil
}

// classify maps a jwt parse error onto the token error taxonomy.
func (s *TokenService) classify(token string, err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrTokenForged
	case errors.Is(err, jwt.ErrTokenMalformed):
		// Header and payload decode but the parse still failed: the
		// signature segment is not valid encoding.
		if _, _, uerr := jwt.NewParser(jwt.WithStrictDecoding()).ParseUnverified(token, &Claims{}); uerr == nil {
			return ErrTokenForged
		}
		return ErrTokenMalformed
	default:
		return fmt.Errorf("%w: %w", ErrTokenMalformed, err)
	}
}
