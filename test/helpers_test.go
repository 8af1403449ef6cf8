//go:build integration

package test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/edgeauth"
	"github.com/MrEthical07/edgeauth/session"
	"github.com/MrEthical07/edgeauth/tokenstore"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const testSecret = "integration-test-secret-0123456789abcdef"

// backend describes one refresh token store the suite runs against.
type backend struct {
	name  string
	setup func(t *testing.T) tokenstore.Store
}

// backends returns the stores to test. The memory store and miniredis always
// run. A real Redis is added when REDIS_ADDR is set (or REDIS_CLUSTER_ADDRS
// for a cluster), PostgreSQL when EDGEAUTH_TEST_POSTGRES_DSN is set.
func backends(t *testing.T) []backend {
	t.Helper()
	out := []backend{
		{
			name: "memory",
			setup: func(t *testing.T) tokenstore.Store {
				return tokenstore.NewMemoryStore()
			},
		},
		{
			name: "miniredis",
			setup: func(t *testing.T) tokenstore.Store {
				t.Helper()
				mr := miniredis.RunT(t)
				rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
				t.Cleanup(func() { _ = rdb.Close() })
				return tokenstore.NewRedisStore(rdb, tokenstore.WithPrefix(testPrefix()))
			},
		},
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		out = append(out, backend{
			name: "redis:" + addr,
			setup: func(t *testing.T) tokenstore.Store {
				t.Helper()
				rdb := redis.NewClient(&redis.Options{Addr: addr})
				pingOrSkip(t, rdb)
				t.Cleanup(func() { _ = rdb.Close() })
				return tokenstore.NewRedisStore(rdb, tokenstore.WithPrefix(testPrefix()))
			},
		})
	}

	if addrs := os.Getenv("REDIS_CLUSTER_ADDRS"); addrs != "" {
		out = append(out, backend{
			name: "redis-cluster",
			setup: func(t *testing.T) tokenstore.Store {
				t.Helper()
				rdb := redis.NewClusterClient(&redis.ClusterOptions{Addrs: splitAddrs(addrs)})
				pingOrSkip(t, rdb)
				t.Cleanup(func() { _ = rdb.Close() })
				return tokenstore.NewRedisStore(rdb, tokenstore.WithPrefix(testPrefix()))
			},
		})
	}

	if dsn := os.Getenv("EDGEAUTH_TEST_POSTGRES_DSN"); dsn != "" {
		for _, driver := range []string{tokenstore.DriverPGX, tokenstore.DriverPQ} {
			out = append(out, backend{
				name: "postgres/" + driver,
				setup: func(t *testing.T) tokenstore.Store {
					t.Helper()
					ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
					defer cancel()
					pg, err := tokenstore.OpenPostgres(ctx, driver, dsn, tokenstore.PoolConfig{MaxOpenConns: 16})
					if err != nil {
						t.Skipf("cannot open postgres: %v", err)
					}
					t.Cleanup(func() { _ = pg.Close() })
					return pg
				},
			})
		}
	}
	return out
}

func pingOrSkip(t *testing.T, rdb redis.UniversalClient) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("cannot connect to redis: %v", err)
	}
}

// testPrefix keeps runs against a shared Redis apart.
func testPrefix() string {
	return "it-" + uuid.NewString()[:8]
}

// owner returns a unique owner id so shared databases need no cleanup.
func owner(t *testing.T) string {
	return t.Name() + "-" + uuid.NewString()
}

func splitAddrs(s string) []string {
	var addrs []string
	for _, a := range strings.Split(s, ",") {
		if a = strings.TrimSpace(a); a != "" {
			addrs = append(addrs, a)
		}
	}
	return addrs
}

type users struct {
	mu   sync.Mutex
	byID map[string]edgeauth.UserRecord
}

func newUsers(records ...edgeauth.UserRecord) *users {
	u := &users{byID: make(map[string]edgeauth.UserRecord)}
	for _, r := range records {
		u.byID[r.ID] = r
	}
	return u
}

func (u *users) GetUserByID(_ context.Context, id string) (edgeauth.UserRecord, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if r, ok := u.byID[id]; ok {
		return r, nil
	}
	return edgeauth.UserRecord{}, edgeauth.ErrNotFound
}

func (u *users) GetUserByEmail(_ context.Context, email string) (edgeauth.UserRecord, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, r := range u.byID {
		if r.Email == email {
			return r, nil
		}
	}
	return edgeauth.UserRecord{}, edgeauth.ErrNotFound
}

func (u *users) UpsertOAuthUser(ctx context.Context, ident edgeauth.ExternalIdentity) (edgeauth.UserRecord, error) {
	if r, err := u.GetUserByEmail(ctx, ident.Email); err == nil {
		return r, nil
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	r := edgeauth.UserRecord{ID: ident.Provider + "-" + ident.Subject, Email: ident.Email, Name: ident.Name, Role: session.RoleUser}
	u.byID[r.ID] = r
	return r, nil
}

func baseConfig() edgeauth.Config {
	cfg := edgeauth.DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.Secret = testSecret
	cfg.Store.Backend = edgeauth.StoreMemory
	cfg.Audit.Enabled = false
	cfg.HTTP.SecureCookies = false
	cfg.Session.UpdateAge = 0
	cfg.Password = edgeauth.PasswordConfig{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
	return cfg
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newEngine(t *testing.T, cfg edgeauth.Config, store tokenstore.Store, u edgeauth.UserProvider) *edgeauth.Engine {
	t.Helper()
	b := edgeauth.New().WithConfig(cfg).WithUserProvider(u).WithLogger(discardLogger())
	if store != nil {
		b = b.WithStore(store)
	}
	e, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(func() { _ = e.Close() })
	return e
}
