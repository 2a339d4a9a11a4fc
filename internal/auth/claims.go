package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the payload of a session token.
//
// Registered claims used: sub (principal id), iat, exp, jti.
type Claims struct {
	jwt.RegisteredClaims
	Role Role `json:"role"`
	Kind Kind `json:"kind"`
}

// Principal returns the subject the token was issued for.
func (c *Claims) Principal() Subject {
	return Subject{ID: c.Subject, Role: c.Role, Kind: c.Kind}
}

// validate checks the fields every issued token carries. Signature and
// time checks are done by the parser.
func (c *Claims) validate() error {
	if c.Subject == "" {
		return fmt.Errorf("missing subject")
	}
	if c.Kind != KindPrimary && c.Kind != KindStaff {
		return fmt.Errorf("unknown principal kind %q", c.Kind)
	}
	if c.ExpiresAt == nil {
		return fmt.Errorf("missing expiry")
	}
	return nil
}

// DecodeUnverified reads the claims of a token without checking its
// signature or expiry. Only for advisory client-side use.
func DecodeUnverified(token string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenMalformed, err)
	}
	return claims, nil
}
