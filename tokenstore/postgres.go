package tokenstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/edgeauth/refresh"
	"github.com/MrEthical07/edgeauth/tokenstore/migrations"
	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
)

// Driver names accepted by OpenPostgres.
const (
	DriverPGX = "pgx"
	DriverPQ  = "postgres"
)

// DBTX is the subset of *sql.DB and *sql.Tx the store uses.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PoolConfig tunes the connection pool opened by OpenPostgres.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
}

// PostgresStore persists records in the refresh_tokens table.
type PostgresStore struct {
	db  DBTX
	sql *sql.DB
	now func() time.Time
}

// NewPostgresStore returns a store over db. The schema must already exist
// (see Migrate).
func NewPostgresStore(db DBTX, opts ...Option) *PostgresStore {
	o := buildOptions(opts)
	s := &PostgresStore{db: db, now: o.now}
	if sqlDB, ok := db.(*sql.DB); ok {
		s.sql = sqlDB
	}
	return s
}

// OpenPostgres opens a pool with driver (DriverPGX or DriverPQ), verifies it,
// and applies migrations. Close releases the pool.
func OpenPostgres(ctx context.Context, driver, dsn string, pool PoolConfig, opts ...Option) (*PostgresStore, error) {
	switch driver {
	case "":
		driver = DriverPGX
	case DriverPGX, DriverPQ:
	default:
		return nil, fmt.Errorf("unsupported postgres driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if pool.MaxOpenConns > 0 {
		db.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(pool.ConnMaxIdleTime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}

	return NewPostgresStore(db, opts...), nil
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// Migrate applies the embedded schema migrations.
func Migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return gooseUpContext(ctx, db, ".")
}

const (
	insertTokenSQL = `INSERT INTO refresh_tokens (id, token_key, owner_id, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)`
	findValidSQL = `SELECT owner_id FROM refresh_tokens
		WHERE token_key = $1 AND expires_at > $2`
	consumeSQL = `DELETE FROM refresh_tokens
		WHERE token_key = $1
		RETURNING expires_at`
	consumeAllSQL = `DELETE FROM refresh_tokens WHERE owner_id = $1`
	purgeSQL      = `DELETE FROM refresh_tokens WHERE expires_at <= $1`
)

func (s *PostgresStore) Create(ctx context.Context, ownerID string, ttl time.Duration) (string, error) {
	if err := checkCreate(ownerID, ttl); err != nil {
		return "", err
	}
	token, key, err := refresh.NewToken()
	if err != nil {
		return "", err
	}

	now := s.now().UTC()
	if _, err := s.db.ExecContext(ctx, insertTokenSQL, uuid.NewString(), key, ownerID, now, now.Add(ttl)); err != nil {
		return "", fmt.Errorf("%w: error performing sql request: %v", ErrUnavailable, err)
	}
	return token, nil
}

func (s *PostgresStore) FindValid(ctx context.Context, key string) (string, bool, error) {
	var owner string
	err := s.db.QueryRowContext(ctx, findValidSQL, key, s.now().UTC()).Scan(&owner)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("%w: error performing sql request: %v", ErrUnavailable, err)
	}
	return owner, true, nil
}

// Consume relies on DELETE ... RETURNING so that exactly one concurrent
// caller observes the row.
func (s *PostgresStore) Consume(ctx context.Context, key string) (bool, error) {
	var expiresAt time.Time
	err := s.db.QueryRowContext(ctx, consumeSQL, key).Scan(&expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("%w: error performing sql request: %v", ErrUnavailable, err)
	}
	return expiresAt.After(s.now()), nil
}

func (s *PostgresStore) ConsumeAll(ctx context.Context, ownerID string) (int, error) {
	res, err := s.db.ExecContext(ctx, consumeAllSQL, ownerID)
	if err != nil {
		return 0, fmt.Errorf("%w: error performing sql request: %v", ErrUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return int(n), nil
}

func (s *PostgresStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, purgeSQL, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("%w: error performing sql request: %v", ErrUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	if s.sql == nil {
		return nil
	}
	if err := s.sql.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Close releases the pool when the store was built from a *sql.DB.
func (s *PostgresStore) Close() error {
	if s.sql == nil {
		return nil
	}
	return s.sql.Close()
}
