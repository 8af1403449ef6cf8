package middleware

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/MrEthical07/edgeauth"
	"github.com/MrEthical07/edgeauth/gate"
	"github.com/MrEthical07/edgeauth/session"
)

// RefreshOnAccess verifies the request's session credential and runs it
// through Engine.RefreshOnAccess. Extended and degraded credentials are
// written back as a new cookie. The resulting credential is placed in the
// request context for the gate and the handlers.
//
// Requests without a credential, or with one that fails verification, pass
// through untouched. A store outage keeps the presented credential.
func RefreshOnAccess(engine *edgeauth.Engine, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		if engine == nil {
			return next
		}
		cfg := engine.Config()
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := gate.TokenFromRequest(r, cfg.Edge.CookieName)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			cred, err := engine.Verify(token)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			issued, outcome, err := engine.RefreshOnAccess(ctx, cred)
			switch {
			case err == nil:
				if outcome != session.Unchanged {
					SetSessionCookie(w, cfg, issued)
				}
				cred = issued.Credential
			case errors.Is(err, edgeauth.ErrTransientStore):
				logger.WarnContext(ctx, "session check deferred", "request_id", edgeauth.RequestIDFromContext(ctx), "error", err)
			default:
				logger.ErrorContext(ctx, "session check failed", "request_id", edgeauth.RequestIDFromContext(ctx), "error", err)
			}

			next.ServeHTTP(w, r.WithContext(session.NewContext(ctx, cred)))
		})
	}
}
