package tokenstore

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/pressly/goose/v3"
)

func newPostgresStoreWithMock(t *testing.T, opts ...Option) (*PostgresStore, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresStore(db, opts...), mock, db
}

func TestPostgresCreateInsertsDigestNotToken(t *testing.T) {
	store, mock, db := newPostgresStoreWithMock(t)
	defer db.Close()

	q := `(?s)^INSERT\s+INTO\s+refresh_tokens\s+\(id,\s*token_key,\s*owner_id,\s*created_at,\s*expires_at\).*VALUES\s*\(\$1,\s*\$2,\s*\$3,\s*\$4,\s*\$5\)$`
	mock.ExpectExec(q).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "u1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	token, err := store.Create(context.Background(), "u1", time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token == "" {
		t.Fatal("expected a token value")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresCreateDBError(t *testing.T) {
	store, mock, db := newPostgresStoreWithMock(t)
	defer db.Close()

	mock.ExpectExec(`INSERT\s+INTO\s+refresh_tokens`).WillReturnError(errors.New("db down"))

	if _, err := store.Create(context.Background(), "u1", time.Hour); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestPostgresFindValid(t *testing.T) {
	clock := newFakeClock()
	store, mock, db := newPostgresStoreWithMock(t, WithClock(clock.Now))
	defer db.Close()

	q := `(?s)^SELECT\s+owner_id\s+FROM\s+refresh_tokens\s+WHERE\s+token_key\s*=\s*\$1\s+AND\s+expires_at\s*>\s*\$2$`
	mock.ExpectQuery(q).
		WithArgs("k1", clock.Now()).
		WillReturnRows(sqlmock.NewRows([]string{"owner_id"}).AddRow("u1"))
	mock.ExpectQuery(q).
		WithArgs("k2", clock.Now()).
		WillReturnError(sql.ErrNoRows)

	owner, found, err := store.FindValid(context.Background(), "k1")
	if err != nil || !found || owner != "u1" {
		t.Fatalf("find k1 = (%q, %v, %v)", owner, found, err)
	}
	_, found, err = store.FindValid(context.Background(), "k2")
	if err != nil || found {
		t.Fatalf("find k2 = (%v, %v), want not found", found, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresConsume(t *testing.T) {
	clock := newFakeClock()
	store, mock, db := newPostgresStoreWithMock(t, WithClock(clock.Now))
	defer db.Close()

	q := `(?s)^DELETE\s+FROM\s+refresh_tokens\s+WHERE\s+token_key\s*=\s*\$1\s+RETURNING\s+expires_at$`
	mock.ExpectQuery(q).WithArgs("live").
		WillReturnRows(sqlmock.NewRows([]string{"expires_at"}).AddRow(clock.Now().Add(time.Hour)))
	mock.ExpectQuery(q).WithArgs("stale").
		WillReturnRows(sqlmock.NewRows([]string{"expires_at"}).AddRow(clock.Now().Add(-time.Hour)))
	mock.ExpectQuery(q).WithArgs("gone").WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(q).WithArgs("boom").WillReturnError(errors.New("conn reset"))

	tests := []struct {
		key      string
		wantLive bool
		wantErr  error
	}{
		{"live", true, nil},
		{"stale", false, nil},
		{"gone", false, nil},
		{"boom", false, ErrUnavailable},
	}
	for _, tc := range tests {
		live, err := store.Consume(context.Background(), tc.key)
		if live != tc.wantLive || !errors.Is(err, tc.wantErr) {
			t.Fatalf("consume %s = (%v, %v), want (%v, %v)", tc.key, live, err, tc.wantLive, tc.wantErr)
		}
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresConsumeAllAndPurge(t *testing.T) {
	store, mock, db := newPostgresStoreWithMock(t)
	defer db.Close()

	mock.ExpectExec(`(?s)^DELETE\s+FROM\s+refresh_tokens\s+WHERE\s+owner_id\s*=\s*\$1$`).
		WithArgs("u1").
		WillReturnResult(sqlmock.NewResult(0, 3))
	now := time.Now()
	mock.ExpectExec(`(?s)^DELETE\s+FROM\s+refresh_tokens\s+WHERE\s+expires_at\s*<=\s*\$1$`).
		WithArgs(now.UTC()).
		WillReturnResult(sqlmock.NewResult(0, 7))

	n, err := store.ConsumeAll(context.Background(), "u1")
	if err != nil || n != 3 {
		t.Fatalf("consume all = (%d, %v), want 3", n, err)
	}
	purged, err := store.PurgeExpired(context.Background(), now)
	if err != nil || purged != 7 {
		t.Fatalf("purge = (%d, %v), want 7", purged, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestMigrateUsesEmbeddedMigrations(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	defer db.Close()

	orig := gooseUpContext
	defer func() { gooseUpContext = orig }()

	var calledDir string
	gooseUpContext = func(ctx context.Context, got *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		if got != db {
			t.Fatal("unexpected db handle")
		}
		calledDir = dir
		return nil
	}

	if err := Migrate(context.Background(), db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if calledDir != "." {
		t.Fatalf("expected goose to run from embedded root, got %q", calledDir)
	}
}

func TestOpenPostgresRejectsUnknownDriver(t *testing.T) {
	if _, err := OpenPostgres(context.Background(), "mysql", "dsn", PoolConfig{}); err == nil {
		t.Fatal("expected unsupported driver error")
	}
}
