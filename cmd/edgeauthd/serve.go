package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/MrEthical07/edgeauth"
	"github.com/MrEthical07/edgeauth/gate"
	"github.com/MrEthical07/edgeauth/internal/httpapi"
	"github.com/MrEthical07/edgeauth/internal/logging"
	"github.com/MrEthical07/edgeauth/internal/userdir"
	"github.com/MrEthical07/edgeauth/middleware"
	"github.com/MrEthical07/edgeauth/oauth"
	"github.com/MrEthical07/edgeauth/password"
)

// apiHandler builds the full-capability engine and its routes. The returned
// background func runs the expiry sweeper; closer releases the engine.
func apiHandler(ctx context.Context, cfg edgeauth.Config, usersPath string, logger *logging.SlogLogger) (http.Handler, func(context.Context), func() error, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, nil, fmt.Errorf("invalid config: %w", err)
	}
	users, err := userdir.Load(usersPath)
	if err != nil {
		return nil, nil, nil, err
	}
	logger.Info(ctx, "user directory loaded", "users", users.Len())

	engine, err := edgeauth.New().
		WithConfig(cfg).
		WithUserProvider(users).
		WithLogger(logger.Slog()).
		BuildContext(ctx)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("build engine: %w", err)
	}

	providers, err := oauth.NewRegistry(cfg.OAuth)
	if err != nil {
		_ = engine.Close()
		return nil, nil, nil, err
	}
	if names := providers.Names(); len(names) > 0 {
		logger.Info(ctx, "oauth providers configured", "providers", names)
	}

	srv, err := httpapi.New(engine,
		httpapi.WithOAuth(providers),
		httpapi.WithLogger(logger.Slog()),
	)
	if err != nil {
		_ = engine.Close()
		return nil, nil, nil, err
	}
	return srv.Handler(), engine.RunSweeper, engine.Close, nil
}

// edgeHandler builds the restricted process: the gate in front of a reverse
// proxy, holding only verification key material.
func edgeHandler(cfg edgeauth.Config, upstream string, logger *slog.Logger) (http.Handler, error) {
	if err := cfg.ValidateEdge(); err != nil {
		return nil, fmt.Errorf("invalid edge config: %w", err)
	}
	if upstream == "" {
		return nil, errors.New("-edge requires -upstream")
	}
	target, err := url.Parse(upstream)
	if err != nil || target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("invalid upstream %q", upstream)
	}

	g, err := gate.NewEdge(cfg.Edge, cfg.JWT.EdgeVerifier(), gate.WithObserver(func(r *http.Request, d gate.Decision) {
		if d.Kind != gate.Allow {
			logger.DebugContext(r.Context(), "gate redirect", "path", r.URL.Path, "decision", d.Kind.String())
		}
	}))
	if err != nil {
		return nil, err
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.WarnContext(r.Context(), "upstream unavailable", "error", err,
			"request_id", edgeauth.RequestIDFromContext(r.Context()))
		w.Header().Set("Retry-After", middleware.RetryAfter)
		w.WriteHeader(http.StatusBadGateway)
	}
	return middleware.AccessLog(logger, cfg.HTTP.TrustProxyHeaders)(g.Handler(proxy)), nil
}

func hashPassword(c edgeauth.PasswordConfig, stdin io.Reader, stdout io.Writer) error {
	h, err := password.NewHasher(password.Config{
		Memory:      c.Memory,
		Time:        c.Time,
		Parallelism: c.Parallelism,
		SaltLength:  c.SaltLength,
		KeyLength:   c.KeyLength,
	})
	if err != nil {
		return err
	}
	pw, err := readPassword(stdin)
	if err != nil {
		return err
	}
	hash, err := h.Hash(pw)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(stdout, hash)
	return err
}
