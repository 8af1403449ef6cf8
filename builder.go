package edgeauth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	internalaudit "github.com/MrEthical07/edgeauth/internal/audit"
	"github.com/MrEthical07/edgeauth/internal/flows"
	"github.com/MrEthical07/edgeauth/internal/logging"
	"github.com/MrEthical07/edgeauth/internal/rate"
	"github.com/MrEthical07/edgeauth/jwt"
	"github.com/MrEthical07/edgeauth/password"
	"github.com/MrEthical07/edgeauth/refresh"
	"github.com/MrEthical07/edgeauth/session"
	"github.com/MrEthical07/edgeauth/tokenstore"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an [Engine]. A Builder is single-use.
type Builder struct {
	config Config
	redis  redis.UniversalClient
	db     *sql.DB
	store  tokenstore.Store

	userProvider UserProvider
	auditSink    AuditSink
	logger       *slog.Logger
	now          func() time.Time

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis supplies the Redis client used by the redis store backend and
// by rate limiting. Without it, Build dials Config.Redis itself when the
// redis backend is selected, and rate limiting is off for other backends.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithDB supplies an open PostgreSQL handle for the postgres backend. The
// schema is migrated during Build. The engine does not close db.
func (b *Builder) WithDB(db *sql.DB) *Builder {
	b.db = db
	return b
}

// WithStore injects a ready refresh token store, overriding Store.Backend.
func (b *Builder) WithStore(store tokenstore.Store) *Builder {
	b.store = store
	return b
}

// WithUserProvider sets the account lookup. Required.
func (b *Builder) WithUserProvider(up UserProvider) *Builder {
	b.userProvider = up
	return b
}

// WithAuditSink sets where audit events go. Defaults to the engine logger.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the engine logger. Defaults to stderr per Config.Log.
func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

// WithClock overrides the engine time source. Intended for tests.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithMetricsEnabled toggles in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the refresh latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build is BuildContext with a background context.
func (b *Builder) Build() (*Engine, error) {
	return b.BuildContext(context.Background())
}

// BuildContext validates the configuration and wires every component. ctx
// bounds backend connection checks and migrations.
func (b *Builder) BuildContext(ctx context.Context) (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if b.store != nil {
		// An injected store needs no backend addressing.
		cfg.Store.Backend = StoreMemory
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.userProvider == nil {
		return nil, errors.New("user provider required")
	}

	now := b.now
	if now == nil {
		now = time.Now
	}

	var logger logging.Logger
	if b.logger != nil {
		logger = logging.NewSlogLogger(b.logger)
	} else {
		logger = logging.New(os.Stderr, cfg.Log.Format, cfg.Log.Level)
	}
	logger = logger.With("component", "edgeauth")

	engine := &Engine{
		config: cloneConfig(cfg),
		users:  b.userProvider,
		logger: logger,
		now:    now,
	}

	// -------- REFRESH TOKEN STORE --------
	redisClient := b.redis
	store := b.store
	if store == nil {
		storeOpts := []tokenstore.Option{
			tokenstore.WithPrefix(cfg.Store.KeyPrefix),
			tokenstore.WithClock(now),
		}
		switch cfg.Store.Backend {
		case StoreRedis:
			if redisClient == nil {
				client := redis.NewClient(&redis.Options{
					Addr:     cfg.Redis.Addr,
					Password: cfg.Redis.Password,
					DB:       cfg.Redis.DB,
				})
				engine.closers = append(engine.closers, client.Close)
				redisClient = client
			}
			store = tokenstore.NewRedisStore(redisClient, storeOpts...)
		case StorePostgres:
			if b.db != nil {
				if err := tokenstore.Migrate(ctx, b.db); err != nil {
					return nil, fmt.Errorf("migration error: %w", err)
				}
				store = tokenstore.NewPostgresStore(b.db, storeOpts...)
				break
			}
			pg, err := tokenstore.OpenPostgres(ctx, cfg.Database.Driver, cfg.Database.DSN, tokenstore.PoolConfig{
				MaxOpenConns:    cfg.Database.MaxOpenConns,
				MaxIdleConns:    cfg.Database.MaxIdleConns,
				ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
			}, storeOpts...)
			if err != nil {
				return nil, err
			}
			engine.closers = append(engine.closers, pg.Close)
			store = pg
		default:
			store = tokenstore.NewMemoryStore(storeOpts...)
		}
	}
	engine.store = store

	rotator, err := refresh.NewRotator(store, refresh.Options{
		TTL:              cfg.Refresh.TTL,
		StrictSingleUse:  cfg.Refresh.StrictSingleUse,
		OperationTimeout: cfg.Store.OperationTimeout,
	})
	if err != nil {
		engine.closeResources()
		return nil, err
	}
	engine.rotator = rotator

	// -------- SESSION CREDENTIALS --------
	jm, err := jwt.NewManager(managerConfig(cfg.JWT))
	if err != nil {
		engine.closeResources()
		return nil, err
	}
	issuer, err := session.NewIssuer(jm, rotator, session.IssuerConfig{
		MaxAge:    cfg.Session.MaxAge,
		UpdateAge: cfg.Session.UpdateAge,
	}, session.WithIssuerClock(now))
	if err != nil {
		engine.closeResources()
		return nil, err
	}
	verifier, err := session.NewVerifier(jm)
	if err != nil {
		engine.closeResources()
		return nil, err
	}
	engine.issuer = issuer
	engine.verifier = verifier

	// -------- PASSWORDS --------
	hasher, err := password.NewHasher(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		engine.closeResources()
		return nil, err
	}
	engine.hasher = hasher

	// -------- OBSERVABILITY --------
	engine.metrics = NewMetrics(cfg.Metrics)
	sink := b.auditSink
	if sink == nil {
		sink = internalaudit.NewLogSink(logger)
	}
	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, sink)

	// -------- FLOWS --------
	lookup := userLookup{provider: b.userProvider}
	isNotFound := func(err error) bool { return errors.Is(err, ErrNotFound) }
	refreshDeps := flows.RefreshDeps{
		Rotator:    rotator,
		Issuer:     issuer,
		Users:      lookup,
		IsNotFound: isNotFound,
	}
	signInDeps := flows.SignInDeps{
		Refresh:        rotator,
		Issuer:         issuer,
		Users:          lookup,
		IsNotFound:     isNotFound,
		VerifyPassword: hasher.Verify,
		DummyHash:      hasher.DummyHash(),
		Warn:           logger.Warn,
	}
	if redisClient != nil && (cfg.Security.EnableRefreshThrottle || cfg.Security.EnableSignInThrottle) {
		limiter := rate.New(redisClient, rate.Config{
			EnableSignInThrottle:    cfg.Security.EnableSignInThrottle,
			EnableIPThrottle:        cfg.Security.EnableIPThrottle,
			MaxSignInAttempts:       cfg.Security.MaxSignInAttempts,
			SignInCooldownDuration:  cfg.Security.SignInCooldownDuration,
			EnableRefreshThrottle:   cfg.Security.EnableRefreshThrottle,
			MaxRefreshAttempts:      cfg.Security.MaxRefreshAttempts,
			RefreshCooldownDuration: cfg.Security.RefreshCooldownDuration,
		})
		refreshDeps.RateLimiter = limiter
		signInDeps.RateLimiter = limiter
	} else if cfg.Security.EnableRefreshThrottle || cfg.Security.EnableSignInThrottle {
		logger.Info(ctx, "rate limiting disabled: no redis client")
	}
	engine.flow = flows.New(flows.Deps{
		Refresh: refreshDeps,
		SignIn:  signInDeps,
		Revoke:  flows.RevokeDeps{Revoker: rotator},
	})

	// -------- SWEEPER --------
	if cfg.Store.SweepInterval > 0 {
		metrics := engine.metrics
		sweeper, err := tokenstore.NewSweeper(store, cfg.Store.SweepInterval,
			tokenstore.WithSweepLogger(logger),
			tokenstore.WithSweepClock(now),
			tokenstore.WithSweepHook(func(purged int64, err error) {
				if err == nil && purged > 0 {
					metrics.Add(MetricTokensPurged, uint64(purged))
				}
			}),
		)
		if err != nil {
			engine.closeResources()
			return nil, err
		}
		engine.sweeper = sweeper
	}

	b.built = true

	return engine, nil
}

func managerConfig(c JWTConfig) jwt.Config {
	cfg := jwt.Config{
		SigningMethod: jwt.SigningMethod(c.SigningMethod),
		Issuer:        c.Issuer,
		Audience:      c.Audience,
		Leeway:        c.Leeway,
		KeyID:         c.KeyID,
		RequireIAT:    true,
	}
	switch cfg.SigningMethod {
	case jwt.MethodHS256:
		cfg.PrivateKey = []byte(c.Secret)
	default:
		if c.PrivateKey != "" {
			cfg.PrivateKey = []byte(c.PrivateKey)
		}
		if c.PublicKey != "" {
			cfg.PublicKey = []byte(c.PublicKey)
		}
	}
	return cfg
}
