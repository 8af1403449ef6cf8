package flows

import (
	"context"

	"github.com/MrEthical07/edgeauth/session"
)

// User is the flow-level view of an account.
type User struct {
	ID           string
	Email        string
	Name         string
	Image        string
	Role         session.Role
	PasswordHash string
}

// UserLookup resolves accounts. The root adapts the public UserProvider to it.
type UserLookup interface {
	GetUserByID(ctx context.Context, id string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
}

// SessionIssuer signs session credentials. session.Issuer satisfies it.
type SessionIssuer interface {
	Issue(ownerID string, role session.Role, refreshKey string) (session.Issued, error)
}

// Deps groups flow dependency sets. Root engine builds this once and delegates
// request methods to the matching flow implementation.
type Deps struct {
	Refresh RefreshDeps
	SignIn  SignInDeps
	Revoke  RevokeDeps
}
