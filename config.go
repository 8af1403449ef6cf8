package edgeauth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MrEthical07/edgeauth/gate"
	"github.com/MrEthical07/edgeauth/jwt"
)

// Config defines a public type used by edgeauth APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	JWT      JWTConfig      `yaml:"jwt"`
	Session  SessionConfig  `yaml:"session"`
	Refresh  RefreshConfig  `yaml:"refresh"`
	Store    StoreConfig    `yaml:"store"`
	Redis    RedisConfig    `yaml:"redis"`
	Database DatabaseConfig `yaml:"database"`
	Security SecurityConfig `yaml:"security"`
	Password PasswordConfig `yaml:"password"`
	Audit    AuditConfig    `yaml:"audit"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	OAuth    OAuthConfig    `yaml:"oauth"`
	Log      LogConfig      `yaml:"log"`
	// Edge is the only section the restricted gate process reads.
	Edge gate.Policy `yaml:"edge"`
}

/*
====================================
HTTP CONFIG
====================================
*/

// HTTPConfig controls the full-capability server.
type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	SecureCookies   bool          `yaml:"secure_cookies"`
	// SameSite is one of "lax", "strict" or "none".
	SameSite string `yaml:"same_site"`
	// TrustProxyHeaders makes client IP resolution honour X-Forwarded-For.
	TrustProxyHeaders bool `yaml:"trust_proxy_headers"`
}

// SameSiteMode maps SameSite onto net/http. Unknown values fall back to Lax.
func (h HTTPConfig) SameSiteMode() http.SameSite {
	switch strings.ToLower(h.SameSite) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig holds the session credential signing material.
//
// For "hs256", Secret is required. For "ed25519", PrivateKey is required in
// the full-capability process and PublicKey is enough for the edge.
type JWTConfig struct {
	SigningMethod string        `yaml:"signing_method"`
	Secret        string        `yaml:"secret"`
	PrivateKey    string        `yaml:"private_key"`
	PublicKey     string        `yaml:"public_key"`
	Issuer        string        `yaml:"issuer"`
	Audience      string        `yaml:"audience"`
	Leeway        time.Duration `yaml:"leeway"`
	KeyID         string        `yaml:"key_id"`
}

// EdgeVerifier returns the verify-only key material for gate.NewEdge. The
// ed25519 private key is never included.
func (c JWTConfig) EdgeVerifier() gate.VerifierConfig {
	vc := gate.VerifierConfig{
		SigningMethod: jwt.SigningMethod(c.SigningMethod),
		Issuer:        c.Issuer,
		Audience:      c.Audience,
		Leeway:        c.Leeway,
	}
	if vc.SigningMethod == jwt.MethodHS256 {
		vc.Secret = []byte(c.Secret)
	} else {
		vc.PublicKey = []byte(c.PublicKey)
	}
	return vc
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls session credential lifetimes.
type SessionConfig struct {
	MaxAge time.Duration `yaml:"max_age"`
	// UpdateAge is how old a credential must be before a request re-checks
	// its refresh token and extends it. Zero re-checks on every request.
	UpdateAge time.Duration `yaml:"update_age"`
}

// RefreshConfig controls refresh token issuance and rotation.
type RefreshConfig struct {
	TTL time.Duration `yaml:"ttl"`
	// StrictSingleUse fails a rotation whose presented token was already
	// consumed, so concurrent rotations of one token yield one winner.
	StrictSingleUse bool `yaml:"strict_single_use"`
}

/*
====================================
STORE CONFIG
====================================
*/

// Store backends.
const (
	StoreRedis    = "redis"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// StoreConfig selects and tunes the refresh token store.
type StoreConfig struct {
	Backend          string        `yaml:"backend"`
	OperationTimeout time.Duration `yaml:"operation_timeout"`
	KeyPrefix        string        `yaml:"key_prefix"`
	// SweepInterval enables the expiry sweeper when positive.
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// RedisConfig addresses the Redis server.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// DatabaseConfig addresses the PostgreSQL server.
type DatabaseConfig struct {
	// Driver is "pgx" or "postgres" (lib/pq).
	Driver          string        `yaml:"driver"`
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig holds throttling limits. Throttling needs Redis.
type SecurityConfig struct {
	EnableRefreshThrottle   bool          `yaml:"enable_refresh_throttle"`
	MaxRefreshAttempts      int           `yaml:"max_refresh_attempts"`
	RefreshCooldownDuration time.Duration `yaml:"refresh_cooldown"`
	EnableSignInThrottle    bool          `yaml:"enable_signin_throttle"`
	EnableIPThrottle        bool          `yaml:"enable_ip_throttle"`
	MaxSignInAttempts       int           `yaml:"max_signin_attempts"`
	SignInCooldownDuration  time.Duration `yaml:"signin_cooldown"`
}

// PasswordConfig holds argon2id parameters for password sign-in.
type PasswordConfig struct {
	Memory      uint32 `yaml:"memory"` // in KB
	Time        uint32 `yaml:"time"`
	Parallelism uint8  `yaml:"parallelism"`
	SaltLength  uint32 `yaml:"salt_length"`
	KeyLength   uint32 `yaml:"key_length"`
}

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool `yaml:"enabled"`
	BufferSize int  `yaml:"buffer_size"`
	DropIfFull bool `yaml:"drop_if_full"`
}

// MetricsConfig toggles in-process counters.
type MetricsConfig struct {
	Enabled                 bool `yaml:"enabled"`
	EnableLatencyHistograms bool `yaml:"enable_latency_histograms"`
	// Public serves /metrics without a session. When false the endpoint
	// requires an admin credential like the other admin routes.
	Public bool `yaml:"public"`
}

// OAuthConfig lists identity providers by name.
type OAuthConfig struct {
	Providers map[string]OAuthProviderConfig `yaml:"providers"`
}

// OAuthProviderConfig configures one provider. Only "google" has a built-in
// endpoint; others must set AuthURL, TokenURL and UserInfoURL.
type OAuthProviderConfig struct {
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	RedirectURL  string   `yaml:"redirect_url"`
	Scopes       []string `yaml:"scopes"`
	AuthURL      string   `yaml:"auth_url"`
	TokenURL     string   `yaml:"token_url"`
	UserInfoURL  string   `yaml:"userinfo_url"`
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the baseline configuration. Signing material and
// store addresses must still be supplied.
func DefaultConfig() Config {
	return Config{
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			SecureCookies:   true,
			SameSite:        "lax",
		},
		JWT: JWTConfig{
			SigningMethod: "ed25519",
			Issuer:        "edgeauth",
			Leeway:        30 * time.Second,
		},
		Session: SessionConfig{
			MaxAge:    7 * 24 * time.Hour,
			UpdateAge: time.Minute,
		},
		Refresh: RefreshConfig{
			TTL:             7 * 24 * time.Hour,
			StrictSingleUse: false,
		},
		Store: StoreConfig{
			Backend:          StoreRedis,
			OperationTimeout: 2 * time.Second,
			KeyPrefix:        "rt",
			SweepInterval:    0,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Database: DatabaseConfig{
			Driver:          "pgx",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxIdleTime: 5 * time.Minute,
		},
		Security: SecurityConfig{
			EnableRefreshThrottle:   true,
			MaxRefreshAttempts:      20,
			RefreshCooldownDuration: time.Minute,
			EnableSignInThrottle:    true,
			EnableIPThrottle:        true,
			MaxSignInAttempts:       5,
			SignInCooldownDuration:  15 * time.Minute,
		},
		Password: PasswordConfig{
			Memory:      65536,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Edge: gate.DefaultPolicy(),
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Edge = cfg.Edge.Clone()
	if cfg.OAuth.Providers != nil {
		out.OAuth.Providers = make(map[string]OAuthProviderConfig, len(cfg.OAuth.Providers))
		for name, p := range cfg.OAuth.Providers {
			p.Scopes = append([]string(nil), p.Scopes...)
			out.OAuth.Providers[name] = p
		}
	}
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks the full-capability configuration. The edge process only
// needs ValidateEdge.
func (c *Config) Validate() error {
	if err := c.validateJWT(true); err != nil {
		return err
	}

	// Session
	if c.Session.MaxAge <= 0 {
		return errors.New("Session MaxAge must be > 0")
	}
	if c.Session.UpdateAge < 0 || c.Session.UpdateAge >= c.Session.MaxAge {
		return errors.New("Session UpdateAge must be >= 0 and < MaxAge")
	}

	// Refresh
	if c.Refresh.TTL <= 0 {
		return errors.New("Refresh TTL must be > 0")
	}

	// Store
	switch c.Store.Backend {
	case StoreRedis:
		if c.Redis.Addr == "" {
			return errors.New("Redis Addr is required for the redis store")
		}
	case StorePostgres:
		if c.Database.DSN == "" {
			return errors.New("Database DSN is required for the postgres store")
		}
		if c.Database.Driver != "pgx" && c.Database.Driver != "postgres" {
			return errors.New("Database Driver must be pgx or postgres")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("unsupported store backend %q", c.Store.Backend)
	}
	if c.Store.OperationTimeout < 0 {
		return errors.New("Store OperationTimeout must be >= 0")
	}
	if c.Store.SweepInterval < 0 {
		return errors.New("Store SweepInterval must be >= 0")
	}

	// Security
	if c.Security.EnableRefreshThrottle {
		if c.Security.MaxRefreshAttempts <= 0 {
			return errors.New("Security MaxRefreshAttempts must be > 0 when refresh throttling is enabled")
		}
		if c.Security.RefreshCooldownDuration <= 0 {
			return errors.New("Security RefreshCooldownDuration must be > 0 when refresh throttling is enabled")
		}
	}
	if c.Security.EnableSignInThrottle {
		if c.Security.MaxSignInAttempts <= 0 {
			return errors.New("Security MaxSignInAttempts must be > 0 when sign-in throttling is enabled")
		}
		if c.Security.SignInCooldownDuration <= 0 {
			return errors.New("Security SignInCooldownDuration must be > 0 when sign-in throttling is enabled")
		}
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 || c.Password.Parallelism < 1 {
		return errors.New("Password Time and Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 || c.Password.KeyLength < 16 {
		return errors.New("Password SaltLength and KeyLength must be >= 16")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	for name, p := range c.OAuth.Providers {
		if p.ClientID == "" || p.RedirectURL == "" {
			return fmt.Errorf("OAuth provider %q requires ClientID and RedirectURL", name)
		}
		if name != "google" && (p.AuthURL == "" || p.TokenURL == "" || p.UserInfoURL == "") {
			return fmt.Errorf("OAuth provider %q requires AuthURL, TokenURL and UserInfoURL", name)
		}
	}

	return c.Edge.Validate()
}

// ValidateEdge checks only what the restricted gate process needs: the
// policy and verification key material.
func (c *Config) ValidateEdge() error {
	if err := c.validateJWT(false); err != nil {
		return err
	}
	return c.Edge.Validate()
}

func (c *Config) validateJWT(signing bool) error {
	switch c.JWT.SigningMethod {
	case "hs256":
		if len(c.JWT.Secret) < 32 {
			return errors.New("hs256 requires a Secret of at least 32 bytes")
		}
	case "ed25519":
		if signing && c.JWT.PrivateKey == "" {
			return errors.New("ed25519 requires PrivateKey")
		}
		if !signing && c.JWT.PublicKey == "" {
			return errors.New("ed25519 edge requires PublicKey")
		}
	default:
		return errors.New("unsupported JWT signing method")
	}
	if c.JWT.Leeway < 0 {
		return errors.New("JWT Leeway must be >= 0")
	}
	return nil
}
