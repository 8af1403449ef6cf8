package flows

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/edgeauth/refresh"
)

type RefreshRevoker interface {
	Revoke(ctx context.Context, token string) error
	RevokeAll(ctx context.Context, ownerID string) (int, error)
}

// RevokeDeps captures sign-out and revoke-all dependencies.
type RevokeDeps struct {
	Revoker RefreshRevoker
}

// RevokeResult reports how many refresh tokens were removed.
type RevokeResult struct {
	Removed    int
	RefreshKey string
	Err        error
	// Invalid is set when the input could not name a token or user.
	Invalid bool
}

// RunSignOut consumes the presented refresh token. Unknown tokens succeed so
// that signing out twice is harmless.
func RunSignOut(ctx context.Context, token string, deps RevokeDeps) RevokeResult {
	token = strings.TrimSpace(token)
	if token == "" {
		return RevokeResult{Invalid: true, Err: errors.New("empty refresh token")}
	}
	key, _ := refresh.KeyOf(token)
	if err := deps.Revoker.Revoke(ctx, token); err != nil {
		return RevokeResult{Err: err, RefreshKey: key}
	}
	return RevokeResult{Removed: 1, RefreshKey: key}
}

// RunRevokeAll removes every refresh token owned by userID.
func RunRevokeAll(ctx context.Context, userID string, deps RevokeDeps) RevokeResult {
	if strings.TrimSpace(userID) == "" {
		return RevokeResult{Invalid: true, Err: errors.New("empty user id")}
	}
	n, err := deps.Revoker.RevokeAll(ctx, userID)
	if err != nil {
		return RevokeResult{Err: err}
	}
	return RevokeResult{Removed: n}
}
