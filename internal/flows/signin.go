package flows

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/edgeauth/internal/rate"
	"github.com/MrEthical07/edgeauth/refresh"
	"github.com/MrEthical07/edgeauth/session"
)

// SignInFailureKind classifies sign-in flow failures for root-level mapping.
type SignInFailureKind int

const (
	SignInFailureNone SignInFailureKind = iota
	SignInFailureValidation
	SignInFailureRateLimited
	SignInFailureInvalidCredentials
	SignInFailureUserLookup
	SignInFailureUnavailable
	SignInFailureIssueRefresh
	SignInFailureIssueSession
)

// SignInResult carries the first refresh token and session of a sign-in.
type SignInResult struct {
	Failure      SignInFailureKind
	Err          error
	User         User
	RefreshToken string
	RefreshKey   string
	Session      session.Issued
}

type RefreshIssuer interface {
	Issue(ctx context.Context, ownerID string) (string, error)
}

type SignInRateLimiter interface {
	CheckSignIn(ctx context.Context, email, ip string) error
	RecordSignInFailure(ctx context.Context, email, ip string) error
	ResetSignIn(ctx context.Context, email string) error
}

// SignInDeps captures sign-in flow dependencies.
type SignInDeps struct {
	Refresh     RefreshIssuer
	Issuer      SessionIssuer
	Users       UserLookup
	RateLimiter SignInRateLimiter
	IsNotFound  func(error) bool
	// VerifyPassword compares password against an encoded hash.
	VerifyPassword func(password, encoded string) (bool, error)
	// DummyHash is verified when the user does not exist so that unknown and
	// known emails take the same time.
	DummyHash string
	Warn      func(ctx context.Context, msg string, args ...any)
}

// RunPasswordSignIn checks email and password and starts a session.
func RunPasswordSignIn(ctx context.Context, email, password, ip string, deps SignInDeps) SignInResult {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return SignInResult{Failure: SignInFailureValidation, Err: errors.New("email and password are required")}
	}

	if deps.RateLimiter != nil {
		if err := deps.RateLimiter.CheckSignIn(ctx, email, ip); err != nil {
			if errors.Is(err, rate.ErrRateLimited) {
				return SignInResult{Failure: SignInFailureRateLimited, Err: err}
			}
			return SignInResult{Failure: SignInFailureUnavailable, Err: err}
		}
	}

	user, err := deps.Users.GetUserByEmail(ctx, email)
	if err != nil {
		if deps.IsNotFound == nil || !deps.IsNotFound(err) {
			return SignInResult{Failure: SignInFailureUserLookup, Err: err}
		}
		if deps.DummyHash != "" && deps.VerifyPassword != nil {
			_, _ = deps.VerifyPassword(password, deps.DummyHash)
		}
		return failedSignIn(ctx, email, ip, deps, err, User{})
	}

	if user.PasswordHash == "" || deps.VerifyPassword == nil {
		return failedSignIn(ctx, email, ip, deps, errors.New("account has no password"), user)
	}
	ok, err := deps.VerifyPassword(password, user.PasswordHash)
	if err != nil || !ok {
		if err == nil {
			err = errors.New("password mismatch")
		}
		return failedSignIn(ctx, email, ip, deps, err, user)
	}

	if deps.RateLimiter != nil {
		if err := deps.RateLimiter.ResetSignIn(ctx, email); err != nil && deps.Warn != nil {
			deps.Warn(ctx, "sign-in limiter reset failed", "error", err)
		}
	}
	return RunIssueSession(ctx, user, deps)
}

func failedSignIn(ctx context.Context, email, ip string, deps SignInDeps, cause error, user User) SignInResult {
	if deps.RateLimiter != nil {
		if err := deps.RateLimiter.RecordSignInFailure(ctx, email, ip); err != nil {
			if errors.Is(err, rate.ErrRateLimited) {
				return SignInResult{Failure: SignInFailureRateLimited, Err: err, User: user}
			}
			if deps.Warn != nil {
				deps.Warn(ctx, "sign-in limiter update failed", "error", err)
			}
		}
	}
	return SignInResult{Failure: SignInFailureInvalidCredentials, Err: cause, User: user}
}

// RunIssueSession creates the first refresh token for an authenticated user
// and signs a session bound to it. Password and OAuth sign-in both end here.
func RunIssueSession(ctx context.Context, user User, deps SignInDeps) SignInResult {
	if user.ID == "" {
		return SignInResult{Failure: SignInFailureIssueRefresh, Err: errors.New("user without id")}
	}
	token, err := deps.Refresh.Issue(ctx, user.ID)
	if err != nil {
		kind := SignInFailureIssueRefresh
		if errors.Is(err, refresh.ErrUnavailable) {
			kind = SignInFailureUnavailable
		}
		return SignInResult{Failure: kind, Err: err, User: user}
	}
	key, err := refresh.KeyOf(token)
	if err != nil {
		return SignInResult{Failure: SignInFailureIssueRefresh, Err: err, User: user}
	}

	issued, err := deps.Issuer.Issue(user.ID, user.Role, key)
	if err != nil {
		return SignInResult{Failure: SignInFailureIssueSession, Err: err, User: user, RefreshKey: key}
	}

	return SignInResult{
		Failure:      SignInFailureNone,
		User:         user,
		RefreshToken: token,
		RefreshKey:   key,
		Session:      issued,
	}
}
