package edgeauth

import (
	"context"

	"github.com/MrEthical07/edgeauth/session"
)

// RequireAdmin admits only a Valid credential carrying the admin role. A nil
// or Degraded credential is ErrUnauthenticated; any other role is
// ErrForbidden. Callers must keep the two apart (401 vs 403).
func (e *Engine) RequireAdmin(ctx context.Context, cred session.Credential) (session.Claims, error) {
	var err error
	switch c := cred.(type) {
	case session.Valid:
		if c.Claims().Role == session.RoleAdmin {
			return c.Claims(), nil
		}
		err = ErrForbidden
		e.metricInc(MetricAdminDenied)
		e.emitAudit(ctx, auditEventAdminDenied, false, c.Claims().UserID, c.Claims().RefreshKey, err, nil)
	default:
		err = ErrUnauthenticated
		e.metricInc(MetricAdminUnauthenticated)
	}
	return session.Claims{}, err
}

// RequireAdminToken verifies token and applies RequireAdmin.
func (e *Engine) RequireAdminToken(ctx context.Context, token string) (session.Claims, error) {
	cred, err := e.Verify(token)
	if err != nil {
		e.metricInc(MetricAdminUnauthenticated)
		return session.Claims{}, err
	}
	return e.RequireAdmin(ctx, cred)
}
