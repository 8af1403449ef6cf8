package edgeauth

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override read by LoadConfig.
const EnvPrefix = "EDGEAUTH_"

// LoadConfig builds a Config from DefaultConfig, the YAML file at path (if it
// exists), a .env file in the working directory (if it exists) and finally
// EDGEAUTH_* environment variables. An empty path skips the file.
//
// The result is not validated; call Validate or ValidateEdge.
func LoadConfig(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config yaml: %w", err)
			}
		} else if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type envLookup func(string) (string, bool)

func applyEnv(cfg *Config, lookup envLookup) error {
	e := envReader{lookup: lookup}

	e.str("HTTP_ADDR", &cfg.HTTP.Addr)
	if port, ok := e.get("PORT"); ok {
		cfg.HTTP.Addr = ":" + port
	}
	e.duration("HTTP_SHUTDOWN_TIMEOUT", &cfg.HTTP.ShutdownTimeout)
	e.boolean("HTTP_SECURE_COOKIES", &cfg.HTTP.SecureCookies)
	e.str("HTTP_SAME_SITE", &cfg.HTTP.SameSite)
	e.boolean("HTTP_TRUST_PROXY_HEADERS", &cfg.HTTP.TrustProxyHeaders)

	e.str("JWT_SIGNING_METHOD", &cfg.JWT.SigningMethod)
	e.str("JWT_SECRET", &cfg.JWT.Secret)
	e.str("JWT_PRIVATE_KEY", &cfg.JWT.PrivateKey)
	e.str("JWT_PUBLIC_KEY", &cfg.JWT.PublicKey)
	e.str("JWT_ISSUER", &cfg.JWT.Issuer)
	e.str("JWT_AUDIENCE", &cfg.JWT.Audience)
	e.duration("JWT_LEEWAY", &cfg.JWT.Leeway)

	e.duration("SESSION_MAX_AGE", &cfg.Session.MaxAge)
	e.duration("SESSION_UPDATE_AGE", &cfg.Session.UpdateAge)
	e.duration("REFRESH_TTL", &cfg.Refresh.TTL)
	e.boolean("REFRESH_STRICT_SINGLE_USE", &cfg.Refresh.StrictSingleUse)

	e.str("STORE_BACKEND", &cfg.Store.Backend)
	e.duration("STORE_OPERATION_TIMEOUT", &cfg.Store.OperationTimeout)
	e.duration("STORE_SWEEP_INTERVAL", &cfg.Store.SweepInterval)
	e.str("REDIS_ADDR", &cfg.Redis.Addr)
	e.str("REDIS_PASSWORD", &cfg.Redis.Password)
	e.integer("REDIS_DB", &cfg.Redis.DB)
	e.str("DATABASE_DRIVER", &cfg.Database.Driver)
	e.str("DATABASE_DSN", &cfg.Database.DSN)

	e.boolean("AUDIT_ENABLED", &cfg.Audit.Enabled)
	e.boolean("METRICS_ENABLED", &cfg.Metrics.Enabled)
	e.boolean("METRICS_PUBLIC", &cfg.Metrics.Public)
	e.str("LOG_LEVEL", &cfg.Log.Level)
	e.str("LOG_FORMAT", &cfg.Log.Format)

	e.str("EDGE_LOGIN_PATH", &cfg.Edge.LoginPath)
	e.str("EDGE_HOME_PATH", &cfg.Edge.HomePath)
	e.str("EDGE_COOKIE_NAME", &cfg.Edge.CookieName)
	if v, ok := e.get("EDGE_PUBLIC_PREFIXES"); ok {
		cfg.Edge.PublicPrefixes = splitList(v)
	}

	if id, ok := e.get("OAUTH_GOOGLE_CLIENT_ID"); ok {
		if cfg.OAuth.Providers == nil {
			cfg.OAuth.Providers = map[string]OAuthProviderConfig{}
		}
		p := cfg.OAuth.Providers["google"]
		p.ClientID = id
		e.str("OAUTH_GOOGLE_CLIENT_SECRET", &p.ClientSecret)
		e.str("OAUTH_GOOGLE_REDIRECT_URL", &p.RedirectURL)
		cfg.OAuth.Providers["google"] = p
	}

	return e.err
}

// envReader records the first malformed value instead of silently skipping it.
type envReader struct {
	lookup envLookup
	err    error
}

func (e *envReader) get(name string) (string, bool) {
	v, ok := e.lookup(EnvPrefix + name)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func (e *envReader) fail(name, v string, err error) {
	if e.err == nil {
		e.err = fmt.Errorf("env %s%s=%q: %w", EnvPrefix, name, v, err)
	}
}

func (e *envReader) str(name string, dst *string) {
	if v, ok := e.get(name); ok {
		*dst = v
	}
}

func (e *envReader) duration(name string, dst *time.Duration) {
	if v, ok := e.get(name); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			e.fail(name, v, err)
			return
		}
		*dst = d
	}
}

func (e *envReader) boolean(name string, dst *bool) {
	if v, ok := e.get(name); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			e.fail(name, v, err)
			return
		}
		*dst = b
	}
}

func (e *envReader) integer(name string, dst *int) {
	if v, ok := e.get(name); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.fail(name, v, err)
			return
		}
		*dst = n
	}
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
