package edgeauth

import (
	"context"
	"fmt"

	"github.com/MrEthical07/edgeauth/internal/flows"
)

// Refresh exchanges a refresh token for a replacement and a new session
// credential bound to it.
//
// Errors: ErrValidation for an empty token; ErrRefreshInvalid for unknown,
// expired or malformed tokens (no record is created); ErrNotFound when the
// owner no longer exists (the token is left in place); ErrRotationFailed,
// joined with ErrRefreshReuse in strict mode, when the replacement cannot be
// issued; ErrRateLimited; ErrTransientStore for store timeouts.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (SignInResult, error) {
	if !e.ready() {
		return SignInResult{}, ErrEngineNotReady
	}
	start := e.now()
	defer func() {
		if e.metrics != nil {
			e.metrics.Observe(MetricRefreshLatency, e.now().Sub(start))
		}
	}()

	res := e.flow.Refresh(ctx, refreshToken)
	if res.Failure != flows.RefreshFailureNone {
		return SignInResult{}, e.refreshFailed(ctx, res)
	}

	e.metricInc(MetricRefreshSuccess)
	e.metricInc(MetricSessionCreated)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, res.UserID, res.RefreshKey, nil, nil)

	return SignInResult{
		RefreshToken: res.RefreshToken,
		Session:      res.Session,
		User:         publicFromFlow(res.User),
	}, nil
}

func (e *Engine) refreshFailed(ctx context.Context, res flows.RefreshResult) error {
	var (
		err    error
		metric = MetricRefreshFailure
		event  = auditEventRefreshFailure
	)

	switch res.Failure {
	case flows.RefreshFailureValidation:
		err = ErrValidation
		metric = MetricRefreshInvalid
		event = auditEventRefreshInvalid
	case flows.RefreshFailureInvalid:
		err = ErrRefreshInvalid
		metric = MetricRefreshInvalid
		event = auditEventRefreshInvalid
	case flows.RefreshFailureRateLimited:
		err = ErrRateLimited
		metric = MetricRefreshRateLimited
		event = auditEventRefreshRateLimited
	case flows.RefreshFailureUnavailable:
		err = fmt.Errorf("%w: %v", ErrTransientStore, res.Err)
		metric = MetricStoreUnavailable
		e.logger.Warn(ctx, "refresh store unavailable", "error", res.Err)
	case flows.RefreshFailureUserNotFound:
		err = ErrNotFound
		metric = MetricRefreshUserMissing
		event = auditEventRefreshUserMissing
	case flows.RefreshFailureUserLookup:
		err = fmt.Errorf("%w: %v", ErrUserLookup, res.Err)
		e.logger.Error(ctx, "refresh user lookup failed", "user_id", res.UserID, "error", res.Err)
	case flows.RefreshFailureReuse:
		err = fmt.Errorf("%w: %w", ErrRotationFailed, ErrRefreshReuse)
		metric = MetricRefreshReuseDetected
		event = auditEventRefreshReuseDetected
		e.logger.Warn(ctx, "refresh token reuse detected", "user_id", res.UserID)
	case flows.RefreshFailureRotate:
		err = fmt.Errorf("%w: %v", ErrRotationFailed, res.Err)
	case flows.RefreshFailureIssueSession:
		err = fmt.Errorf("%w: %v", ErrSessionIssue, res.Err)
		e.logger.Error(ctx, "session issue after rotation failed", "user_id", res.UserID, "error", res.Err)
	default:
		err = fmt.Errorf("unexpected refresh failure: %v", res.Err)
	}

	e.metricInc(metric)
	e.emitAudit(ctx, event, false, res.UserID, res.RefreshKey, err, nil)
	return err
}
