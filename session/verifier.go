package session

import (
	"errors"
	"fmt"

	"github.com/MrEthical07/edgeauth/jwt"
)

// ErrInvalidCredential is returned for credentials that fail signature,
// expiry or shape checks.
var ErrInvalidCredential = errors.New("invalid session credential")

// Verifier checks session credentials without any store access. Built from a
// verify-only jwt.Manager it holds no signing material.
type Verifier struct {
	jwt *jwt.Manager
}

// NewVerifier returns a Verifier over m.
func NewVerifier(m *jwt.Manager) (*Verifier, error) {
	if m == nil {
		return nil, errors.New("session verifier requires a jwt manager")
	}
	return &Verifier{jwt: m}, nil
}

// Verify parses token into a Valid or Degraded credential.
func (v *Verifier) Verify(token string) (Credential, error) {
	claims, err := v.jwt.ParseSession(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}
	return fromWire(claims)
}

func fromWire(c *jwt.SessionClaims) (Credential, error) {
	out := Claims{
		UserID:     c.UID,
		Role:       ParseRole(c.Role),
		RefreshKey: c.RID,
	}
	if c.IssuedAt != nil {
		out.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		out.ExpiresAt = c.ExpiresAt.Time
	}

	if c.Err == "" {
		return NewValid(out), nil
	}
	reason := Reason(c.Err)
	if !reason.known() {
		return nil, fmt.Errorf("%w: unknown degradation reason %q", ErrInvalidCredential, c.Err)
	}
	return NewDegraded(out, reason), nil
}
