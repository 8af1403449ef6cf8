package session

import "time"

// Role is the coarse privilege level carried in a credential.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// ParseRole maps a stored role name to a Role. Anything other than "admin"
// is treated as a plain user.
func ParseRole(s string) Role {
	if Role(s) == RoleAdmin {
		return RoleAdmin
	}
	return RoleUser
}

// Reason explains why a credential is degraded.
type Reason string

const (
	// RefreshTokenExpired means the refresh token behind the session is gone or expired.
	RefreshTokenExpired Reason = "RefreshTokenExpired"
	// RefreshTokenMissing means the session never referenced a refresh token.
	RefreshTokenMissing Reason = "RefreshTokenMissing"
)

func (r Reason) known() bool {
	return r == RefreshTokenExpired || r == RefreshTokenMissing
}

// Claims is the verified content of a session credential.
type Claims struct {
	UserID     string
	Role       Role
	RefreshKey string
	IssuedAt   time.Time
	ExpiresAt  time.Time
}

// Credential is either Valid or Degraded. Callers type-switch on it:
//
//	switch c := cred.(type) {
//	case session.Valid:
//	case session.Degraded:
//	}
type Credential interface {
	Claims() Claims
	sealed()
}

// Valid is a credential whose refresh token was live when it was last issued.
type Valid struct {
	claims Claims
}

// NewValid wraps c.
func NewValid(c Claims) Valid {
	return Valid{claims: c}
}

func (v Valid) Claims() Claims { return v.claims }
func (Valid) sealed()          {}

// Degraded is a still-signed credential whose refresh token could not be
// confirmed. It grants no access to protected pages.
type Degraded struct {
	claims Claims
	reason Reason
}

// NewDegraded wraps c with reason.
func NewDegraded(c Claims, reason Reason) Degraded {
	return Degraded{claims: c, reason: reason}
}

func (d Degraded) Claims() Claims { return d.claims }
func (d Degraded) Reason() Reason { return d.reason }
func (Degraded) sealed()          {}

// IsAdmin reports whether cred is a Valid credential with the admin role.
func IsAdmin(cred Credential) bool {
	v, ok := cred.(Valid)
	return ok && v.claims.Role == RoleAdmin
}
