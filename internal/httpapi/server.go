// Package httpapi exposes the full-capability edgeauth engine over HTTP.
package httpapi

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/MrEthical07/edgeauth"
	"github.com/MrEthical07/edgeauth/gate"
	"github.com/MrEthical07/edgeauth/metrics/export/prometheus"
	"github.com/MrEthical07/edgeauth/middleware"
	"github.com/MrEthical07/edgeauth/oauth"
)

const maxBodyBytes = 64 << 10

// Server wires engine operations to routes.
type Server struct {
	engine  *edgeauth.Engine
	cfg     edgeauth.Config
	oauth   *oauth.Registry
	gate    *gate.Gate
	pages   http.Handler
	metrics http.Handler
	logger  *slog.Logger
	router  *gin.Engine
}

// Option configures a Server.
type Option func(*Server)

// WithOAuth enables the /auth/oauth and /auth/callback routes.
func WithOAuth(r *oauth.Registry) Option {
	return func(s *Server) { s.oauth = r }
}

// WithPages mounts the application's page handler behind the gate. Without
// it, gated paths answer 404 once admitted.
func WithPages(h http.Handler) Option {
	return func(s *Server) { s.pages = h }
}

// WithLogger sets the access and error logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New builds the route table for engine.
func New(engine *edgeauth.Engine, opts ...Option) (*Server, error) {
	if engine == nil {
		return nil, errors.New("httpapi: nil engine")
	}
	s := &Server{
		engine: engine,
		cfg:    engine.Config(),
		pages:  http.NotFoundHandler(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	g, err := gate.New(s.cfg.Edge, engine, gate.WithObserver(s.observeGate))
	if err != nil {
		return nil, err
	}
	s.gate = g
	if s.cfg.Metrics.Enabled {
		s.metrics = prometheus.New(engine).Handler()
	}

	s.router = gin.New()
	s.router.HandleMethodNotAllowed = true
	s.router.Use(gin.Recovery())
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	r := s.router

	auth := r.Group("/auth")
	{
		auth.POST("/refresh", s.handleRefresh)
		auth.POST("/signin", s.handleSignIn)
		auth.POST("/signout", s.handleSignOut)
		auth.GET("/oauth/:provider", s.handleOAuthStart)
		auth.GET("/callback/:provider", s.handleOAuthCallback)
	}

	requireSession := adapt(middleware.RequireSession(s.engine))
	adminOnly := adapt(middleware.AdminOnly(s.engine))

	api := r.Group("/api")
	{
		api.GET("/session", requireSession, s.handleSession)

		admin := api.Group("/admin", adminOnly)
		admin.GET("/overview", s.handleAdminOverview)
		admin.POST("/users/:id/revoke", s.handleAdminRevoke)
	}

	r.GET("/healthz", s.handleHealth)
	if s.metrics != nil {
		if s.cfg.Metrics.Public {
			r.GET("/metrics", gin.WrapH(s.metrics))
		} else {
			r.GET("/metrics", adminOnly, gin.WrapH(s.metrics))
		}
	}

	// Everything else is a page and goes through the gate.
	pages := s.gate.Handler(s.pages)
	r.NoRoute(func(c *gin.Context) {
		// gin presets 404 here; pages that write without a status mean 200.
		c.Status(http.StatusOK)
		pages.ServeHTTP(c.Writer, c.Request)
	})
	r.NoMethod(func(c *gin.Context) {
		writeJSON(c, http.StatusMethodNotAllowed, errorBody{Error: "Method not allowed"})
	})
}

// Handler returns the complete middleware chain:
// access log, refresh-on-access, then the routes. API routes answer with
// JSON 401/403; every other path goes through the gate.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.router
	h = middleware.RefreshOnAccess(s.engine, s.logger)(h)
	h = middleware.AccessLog(s.logger, s.cfg.HTTP.TrustProxyHeaders)(h)
	return h
}

func (s *Server) observeGate(r *http.Request, d gate.Decision) {
	if d.Kind == gate.Allow {
		return
	}
	s.logger.DebugContext(r.Context(), "gate redirect",
		"request_id", edgeauth.RequestIDFromContext(r.Context()),
		"path", r.URL.Path,
		"decision", d.Kind.String(),
	)
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx := c.Request.Context()
	if err := s.engine.Ping(ctx); err != nil {
		s.logger.WarnContext(ctx, "health check failed", "error", err)
		c.Header("Retry-After", middleware.RetryAfter)
		writeJSON(c, http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": "ok"})
}
