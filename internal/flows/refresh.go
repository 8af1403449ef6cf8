package flows

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/edgeauth/internal/rate"
	"github.com/MrEthical07/edgeauth/refresh"
	"github.com/MrEthical07/edgeauth/session"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureValidation
	RefreshFailureInvalid
	RefreshFailureRateLimited
	RefreshFailureUnavailable
	RefreshFailureUserNotFound
	RefreshFailureUserLookup
	RefreshFailureRotate
	RefreshFailureReuse
	RefreshFailureIssueSession
)

// RefreshResult carries either the rotated token and new session or failure metadata.
type RefreshResult struct {
	Failure      RefreshFailureKind
	Err          error
	RefreshKey   string
	UserID       string
	User         User
	RefreshToken string
	Session      session.Issued
}

type RefreshRotator interface {
	Validate(ctx context.Context, token string) (ownerID string, ok bool, err error)
	Rotate(ctx context.Context, old, ownerID string) (string, error)
}

type RefreshRateLimiter interface {
	CheckRefresh(ctx context.Context, refreshKey string) error
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	Rotator     RefreshRotator
	Issuer      SessionIssuer
	Users       UserLookup
	RateLimiter RefreshRateLimiter
	// IsNotFound reports whether a Users error means the user is gone.
	IsNotFound func(error) bool
}

// RunRefresh validates token, resolves its owner, rotates it and issues a
// session bound to the replacement. The owner is resolved before rotation so
// that a vanished user leaves the presented token untouched.
func RunRefresh(ctx context.Context, token string, deps RefreshDeps) RefreshResult {
	token = strings.TrimSpace(token)
	if token == "" {
		return RefreshResult{Failure: RefreshFailureValidation, Err: errors.New("empty refresh token")}
	}
	key, err := refresh.KeyOf(token)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureInvalid, Err: err}
	}

	if deps.RateLimiter != nil {
		if err := deps.RateLimiter.CheckRefresh(ctx, key); err != nil {
			kind := RefreshFailureUnavailable
			if errors.Is(err, rate.ErrRateLimited) {
				kind = RefreshFailureRateLimited
			}
			return RefreshResult{Failure: kind, Err: err, RefreshKey: key}
		}
	}

	owner, ok, err := deps.Rotator.Validate(ctx, token)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureUnavailable, Err: err, RefreshKey: key}
	}
	if !ok {
		return RefreshResult{Failure: RefreshFailureInvalid, Err: errors.New("refresh token not found or expired"), RefreshKey: key}
	}

	user, err := deps.Users.GetUserByID(ctx, owner)
	if err != nil {
		kind := RefreshFailureUserLookup
		if deps.IsNotFound != nil && deps.IsNotFound(err) {
			kind = RefreshFailureUserNotFound
		}
		return RefreshResult{Failure: kind, Err: err, RefreshKey: key, UserID: owner}
	}

	next, err := deps.Rotator.Rotate(ctx, token, owner)
	if err != nil {
		kind := RefreshFailureRotate
		switch {
		case errors.Is(err, refresh.ErrReuseDetected):
			kind = RefreshFailureReuse
		case errors.Is(err, refresh.ErrUnavailable):
			kind = RefreshFailureUnavailable
		}
		return RefreshResult{Failure: kind, Err: err, RefreshKey: key, UserID: owner, User: user}
	}

	nextKey, err := refresh.KeyOf(next)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureRotate, Err: err, RefreshKey: key, UserID: owner, User: user}
	}
	issued, err := deps.Issuer.Issue(owner, user.Role, nextKey)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureIssueSession, Err: err, RefreshKey: key, UserID: owner, User: user}
	}

	return RefreshResult{
		Failure:      RefreshFailureNone,
		RefreshKey:   nextKey,
		UserID:       owner,
		User:         user,
		RefreshToken: next,
		Session:      issued,
	}
}
