package edgeauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	internalaudit "github.com/MrEthical07/edgeauth/internal/audit"
	"github.com/MrEthical07/edgeauth/internal/flows"
	"github.com/MrEthical07/edgeauth/internal/logging"
	"github.com/MrEthical07/edgeauth/password"
	"github.com/MrEthical07/edgeauth/refresh"
	"github.com/MrEthical07/edgeauth/session"
	"github.com/MrEthical07/edgeauth/tokenstore"
)

// Engine is the full-capability authentication core: it owns the refresh
// token store handle, signs session credentials and enforces admin access.
//
// Engine methods are safe for concurrent use after [Builder.Build].
type Engine struct {
	config   Config
	store    tokenstore.Store
	rotator  *refresh.Rotator
	issuer   *session.Issuer
	verifier *session.Verifier
	hasher   *password.Hasher
	users    UserProvider
	flow     flows.Service
	audit    *internalaudit.Dispatcher
	metrics  *Metrics
	sweeper  *tokenstore.Sweeper
	logger   logging.Logger
	now      func() time.Time
	closers  []func() error
}

// Close drains the audit buffer and releases connections the engine opened
// itself. Handles passed to the Builder are left open.
func (e *Engine) Close() error {
	if e == nil {
		return nil
	}
	if e.audit != nil {
		e.audit.Close()
	}
	return e.closeResources()
}

func (e *Engine) closeResources() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	e.closers = nil
	return errors.Join(errs...)
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

// Ping checks the refresh token store.
func (e *Engine) Ping(ctx context.Context) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	if err := e.store.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrTransientStore, err)
	}
	return nil
}

// RunSweeper purges expired refresh tokens every Store.SweepInterval until
// ctx is done. It returns immediately when no interval is configured.
func (e *Engine) RunSweeper(ctx context.Context) {
	if e == nil || e.sweeper == nil {
		return
	}
	e.sweeper.Run(ctx)
}

// AuditDropped returns the number of audit events dropped due to a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of all counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) ready() bool {
	return e != nil && e.flow.Initialized()
}

// Verify checks a session credential string. Any failure is ErrUnauthenticated.
func (e *Engine) Verify(token string) (session.Credential, error) {
	if e == nil || e.verifier == nil {
		return nil, ErrEngineNotReady
	}
	if token == "" {
		return nil, ErrUnauthenticated
	}
	cred, err := e.verifier.Verify(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	return cred, nil
}

// RefreshOnAccess keeps cred alive while its refresh token is valid, or
// degrades it once the token is gone. A store failure returns cred unchanged
// together with an error wrapping ErrTransientStore; callers should keep
// serving the request.
func (e *Engine) RefreshOnAccess(ctx context.Context, cred session.Credential) (session.Issued, session.Outcome, error) {
	if e == nil || e.issuer == nil {
		return session.Issued{Credential: cred}, session.Unchanged, ErrEngineNotReady
	}
	issued, outcome, err := e.issuer.RefreshOnAccess(ctx, cred)
	if err != nil {
		if errors.Is(err, session.ErrNoCredential) {
			return issued, outcome, ErrUnauthenticated
		}
		if errors.Is(err, refresh.ErrUnavailable) {
			e.metricInc(MetricStoreUnavailable)
			e.logger.Warn(ctx, "session refresh check skipped", "error", err)
			return issued, outcome, fmt.Errorf("%w: %v", ErrTransientStore, err)
		}
		e.logger.Error(ctx, "session re-sign failed", "error", err)
		return issued, outcome, fmt.Errorf("%w: %v", ErrSessionIssue, err)
	}

	switch outcome {
	case session.Extended:
		e.metricInc(MetricSessionExtended)
	case session.Downgraded:
		e.metricInc(MetricSessionDegraded)
		claims := issued.Credential.Claims()
		reason := ""
		if d, ok := issued.Credential.(session.Degraded); ok {
			reason = string(d.Reason())
		}
		e.emitAudit(ctx, auditEventSessionDegraded, false, claims.UserID, claims.RefreshKey, nil, func() map[string]string {
			return map[string]string{"reason": reason}
		})
	}
	return issued, outcome, nil
}

// SignOut consumes the presented refresh token. Unknown tokens are not an error.
func (e *Engine) SignOut(ctx context.Context, refreshToken string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	res := e.flow.SignOut(ctx, refreshToken)
	if res.Invalid {
		return ErrValidation
	}
	if res.Err != nil {
		e.metricInc(MetricStoreUnavailable)
		e.logger.Warn(ctx, "sign-out failed", "error", res.Err)
		return fmt.Errorf("%w: %v", ErrTransientStore, res.Err)
	}
	e.metricInc(MetricSignOut)
	e.emitAudit(ctx, auditEventSignOut, true, "", res.RefreshKey, nil, nil)
	return nil
}

// RevokeAll removes every refresh token of userID and reports how many were
// removed. Sessions bound to them degrade on their next access check.
func (e *Engine) RevokeAll(ctx context.Context, userID string) (int, error) {
	if !e.ready() {
		return 0, ErrEngineNotReady
	}
	res := e.flow.RevokeAll(ctx, userID)
	if res.Invalid {
		return 0, ErrValidation
	}
	if res.Err != nil {
		e.metricInc(MetricStoreUnavailable)
		e.logger.Warn(ctx, "revoke-all failed", "user_id", userID, "error", res.Err)
		return 0, fmt.Errorf("%w: %v", ErrTransientStore, res.Err)
	}
	e.metricInc(MetricRevokeAll)
	e.emitAudit(ctx, auditEventRevokeAll, true, userID, "", nil, func() map[string]string {
		return map[string]string{"removed": fmt.Sprint(res.Removed)}
	})
	return res.Removed, nil
}
