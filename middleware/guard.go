package middleware

import (
	"context"
	"net/http"

	"github.com/MrEthical07/edgeauth"
	"github.com/MrEthical07/edgeauth/gate"
	"github.com/MrEthical07/edgeauth/session"
)

type claimsContextKey struct{}

// ClaimsFromContext returns the claims admitted by AdminOnly or RequireSession.
func ClaimsFromContext(ctx context.Context) (session.Claims, bool) {
	c, ok := ctx.Value(claimsContextKey{}).(session.Claims)
	return c, ok
}

// credential prefers a credential placed upstream by RefreshOnAccess and
// falls back to verifying the cookie or bearer header.
func credential(engine *edgeauth.Engine, r *http.Request) session.Credential {
	if cred, ok := session.FromContext(r.Context()); ok {
		return cred
	}
	token := gate.TokenFromRequest(r, engine.Config().Edge.CookieName)
	if token == "" {
		return nil
	}
	cred, err := engine.Verify(token)
	if err != nil {
		return nil
	}
	return cred
}

// AdminOnly admits Valid admin credentials. Missing or degraded sessions get
// 401, other roles get 403.
func AdminOnly(engine *edgeauth.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				WriteError(w, edgeauth.ErrEngineNotReady)
				return
			}
			claims, err := engine.RequireAdmin(r.Context(), credential(engine, r))
			if err != nil {
				WriteError(w, err)
				return
			}
			ctx := context.WithValue(r.Context(), claimsContextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireSession admits any Valid credential and answers 401 otherwise.
func RequireSession(engine *edgeauth.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				WriteError(w, edgeauth.ErrEngineNotReady)
				return
			}
			v, ok := credential(engine, r).(session.Valid)
			if !ok {
				WriteError(w, edgeauth.ErrUnauthenticated)
				return
			}
			ctx := context.WithValue(r.Context(), claimsContextKey{}, v.Claims())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
