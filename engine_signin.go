package edgeauth

import (
	"context"
	"fmt"
	"strings"

	"github.com/MrEthical07/edgeauth/internal/flows"
)

// PasswordUpgrader is optionally implemented by a [UserProvider]. When
// present, a successful sign-in with an outdated hash stores a fresh
// argon2id hash.
type PasswordUpgrader interface {
	UpdatePasswordHash(ctx context.Context, userID, hash string) error
}

// SignInWithPassword checks email and password and starts a session: a new
// refresh token plus a session credential bound to it.
func (e *Engine) SignInWithPassword(ctx context.Context, email, password string) (SignInResult, error) {
	if !e.ready() {
		return SignInResult{}, ErrEngineNotReady
	}

	res := e.flow.PasswordSignIn(ctx, email, password, clientIPFromContext(ctx))
	if res.Failure != flows.SignInFailureNone {
		return SignInResult{}, e.signInFailed(ctx, email, res)
	}

	e.upgradePassword(ctx, res.User, password)

	e.metricInc(MetricSignInSuccess)
	e.metricInc(MetricSessionCreated)
	e.emitAudit(ctx, auditEventSignInSuccess, true, res.User.ID, res.RefreshKey, nil, func() map[string]string {
		return map[string]string{"method": "password"}
	})
	return SignInResult{
		RefreshToken: res.RefreshToken,
		Session:      res.Session,
		User:         publicFromFlow(res.User),
	}, nil
}

// SignInWithIdentity starts a session for an identity vouched for by an
// OAuth provider, creating or linking the account through the UserProvider.
func (e *Engine) SignInWithIdentity(ctx context.Context, ident ExternalIdentity) (SignInResult, error) {
	if !e.ready() {
		return SignInResult{}, ErrEngineNotReady
	}
	if strings.TrimSpace(ident.Provider) == "" || strings.TrimSpace(ident.Subject) == "" || strings.TrimSpace(ident.Email) == "" {
		e.metricInc(MetricSignInFailure)
		return SignInResult{}, fmt.Errorf("%w: identity requires provider, subject and email", ErrValidation)
	}

	rec, err := e.users.UpsertOAuthUser(ctx, ident)
	if err != nil {
		e.metricInc(MetricSignInFailure)
		e.logger.Error(ctx, "oauth user upsert failed", "provider", ident.Provider, "error", err)
		err = fmt.Errorf("%w: %v", ErrUserLookup, err)
		e.emitAudit(ctx, auditEventSignInFailure, false, "", "", err, func() map[string]string {
			return map[string]string{"method": ident.Provider}
		})
		return SignInResult{}, err
	}

	res := e.flow.IssueSession(ctx, flowUser(rec))
	if res.Failure != flows.SignInFailureNone {
		return SignInResult{}, e.signInFailed(ctx, ident.Email, res)
	}

	e.metricInc(MetricSignInSuccess)
	e.metricInc(MetricSessionCreated)
	e.emitAudit(ctx, auditEventOAuthSignIn, true, rec.ID, res.RefreshKey, nil, func() map[string]string {
		return map[string]string{"method": ident.Provider}
	})
	return SignInResult{
		RefreshToken: res.RefreshToken,
		Session:      res.Session,
		User:         rec.Public(),
	}, nil
}

func (e *Engine) signInFailed(ctx context.Context, email string, res flows.SignInResult) error {
	var (
		err    error
		metric = MetricSignInFailure
		event  = auditEventSignInFailure
	)

	switch res.Failure {
	case flows.SignInFailureValidation:
		err = ErrMissingCredentials
	case flows.SignInFailureRateLimited:
		err = ErrRateLimited
		metric = MetricSignInRateLimited
		event = auditEventSignInRateLimited
	case flows.SignInFailureInvalidCredentials:
		err = ErrInvalidCredentials
	case flows.SignInFailureUserLookup:
		err = fmt.Errorf("%w: %v", ErrUserLookup, res.Err)
		e.logger.Error(ctx, "sign-in user lookup failed", "error", res.Err)
	case flows.SignInFailureUnavailable:
		err = fmt.Errorf("%w: %v", ErrTransientStore, res.Err)
		metric = MetricStoreUnavailable
		e.logger.Warn(ctx, "sign-in store unavailable", "error", res.Err)
	case flows.SignInFailureIssueRefresh, flows.SignInFailureIssueSession:
		err = fmt.Errorf("%w: %v", ErrSessionIssue, res.Err)
		e.logger.Error(ctx, "sign-in session issue failed", "user_id", res.User.ID, "error", res.Err)
	default:
		err = fmt.Errorf("unexpected sign-in failure: %v", res.Err)
	}

	e.metricInc(metric)
	e.emitAudit(ctx, event, false, res.User.ID, res.RefreshKey, err, func() map[string]string {
		return map[string]string{"identifier": strings.ToLower(strings.TrimSpace(email))}
	})
	return err
}

func (e *Engine) upgradePassword(ctx context.Context, user flows.User, password string) {
	up, ok := e.users.(PasswordUpgrader)
	if !ok || e.hasher == nil {
		return
	}
	needs, err := e.hasher.NeedsUpgrade(user.PasswordHash)
	if err != nil || !needs {
		return
	}
	hash, err := e.hasher.Hash(password)
	if err != nil {
		e.logger.Warn(ctx, "password hash upgrade generation failed", "user_id", user.ID, "error", err)
		return
	}
	// Best effort; the sign-in already succeeded.
	if err := up.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
		e.logger.Warn(ctx, "password hash upgrade update failed", "user_id", user.ID, "error", err)
	}
}
