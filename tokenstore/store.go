package tokenstore

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrUnavailable wraps backend connectivity, timeout and query failures.
	ErrUnavailable = errors.New("token store unavailable")
	// ErrCorrupt is returned when a stored record cannot be decoded.
	ErrCorrupt = errors.New("token store record corrupt")
	// ErrInvalidInput is returned for an empty owner or a non-positive TTL.
	ErrInvalidInput = errors.New("token store invalid input")
)

// Record is a persisted refresh token. The token value itself is never
// stored; Key is its digest.
type Record struct {
	ID        string
	Key       string
	OwnerID   string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Live reports whether the record is still usable at now.
func (r Record) Live(now time.Time) bool {
	return r.ExpiresAt.After(now)
}

// Store is implemented by every backend in this package.
type Store interface {
	// Create mints a token for ownerID valid for ttl and returns its value.
	Create(ctx context.Context, ownerID string, ttl time.Duration) (string, error)
	// FindValid returns the owner of key when the record exists and has not expired.
	FindValid(ctx context.Context, key string) (string, bool, error)
	// Consume deletes key and reports whether a live record was removed.
	Consume(ctx context.Context, key string) (bool, error)
	// ConsumeAll deletes every record of ownerID.
	ConsumeAll(ctx context.Context, ownerID string) (int, error)
	// PurgeExpired removes records that expired at or before now.
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
	Ping(ctx context.Context) error
}

// Option configures a backend.
type Option func(*options)

type options struct {
	now    func() time.Time
	prefix string
}

// WithClock overrides the time source used for expiry decisions.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithPrefix sets the Redis key namespace. Other backends ignore it.
func WithPrefix(prefix string) Option {
	return func(o *options) {
		if prefix != "" {
			o.prefix = prefix
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now, prefix: "rt"}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func checkCreate(ownerID string, ttl time.Duration) error {
	if ownerID == "" || ttl <= 0 {
		return ErrInvalidInput
	}
	return nil
}
