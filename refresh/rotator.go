package refresh

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUnavailable marks transient store failures, including operation timeouts.
	ErrUnavailable = errors.New("refresh token store unavailable")
	// ErrRotationFailed is returned when a replacement token cannot be bound to an owner.
	ErrRotationFailed = errors.New("refresh token rotation failed")
	// ErrReuseDetected is returned in strict mode when the presented token was
	// already consumed. It always accompanies ErrRotationFailed.
	ErrReuseDetected = errors.New("refresh token reuse detected")
)

// Store is the persistence contract the rotator needs. Lookups are by key
// (see KeyOf); raw token values are only ever produced by Create.
type Store interface {
	Create(ctx context.Context, ownerID string, ttl time.Duration) (string, error)
	FindValid(ctx context.Context, key string) (ownerID string, found bool, err error)
	Consume(ctx context.Context, key string) (live bool, err error)
	ConsumeAll(ctx context.Context, ownerID string) (int, error)
}

// Options configures a Rotator.
type Options struct {
	TTL time.Duration
	// StrictSingleUse fails rotation when the presented token was already
	// consumed, so that only one of several concurrent rotations succeeds.
	StrictSingleUse  bool
	OperationTimeout time.Duration
}

// Rotator validates presented refresh tokens and replaces them.
type Rotator struct {
	store Store
	opts  Options
}

// NewRotator returns a Rotator over store.
func NewRotator(store Store, opts Options) (*Rotator, error) {
	if store == nil {
		return nil, errors.New("refresh rotator requires a store")
	}
	if opts.TTL <= 0 {
		return nil, errors.New("refresh rotator requires a positive TTL")
	}
	if opts.OperationTimeout < 0 {
		return nil, errors.New("refresh rotator operation timeout must not be negative")
	}
	return &Rotator{store: store, opts: opts}, nil
}

// TTL returns the lifetime given to newly created tokens.
func (r *Rotator) TTL() time.Duration {
	return r.opts.TTL
}

// Issue creates the first refresh token of a sign-in.
func (r *Rotator) Issue(ctx context.Context, ownerID string) (string, error) {
	if ownerID == "" {
		return "", ErrRotationFailed
	}
	ctx, cancel := r.bound(ctx)
	defer cancel()

	token, err := r.store.Create(ctx, ownerID, r.opts.TTL)
	if err != nil {
		return "", unavailable(err)
	}
	return token, nil
}

// Validate resolves token to its owner. An unknown, expired or malformed
// token is reported with ok=false and a nil error; err is set only for store
// failures.
func (r *Rotator) Validate(ctx context.Context, token string) (ownerID string, ok bool, err error) {
	key, err := KeyOf(token)
	if err != nil {
		return "", false, nil
	}
	return r.ValidateKey(ctx, key)
}

// ValidateKey is Validate for an already derived key.
func (r *Rotator) ValidateKey(ctx context.Context, key string) (string, bool, error) {
	if !ValidKey(key) {
		return "", false, nil
	}
	ctx, cancel := r.bound(ctx)
	defer cancel()

	owner, found, err := r.store.FindValid(ctx, key)
	if err != nil {
		return "", false, unavailable(err)
	}
	if !found || owner == "" {
		return "", false, nil
	}
	return owner, true, nil
}

// Rotate consumes old and returns a replacement bound to ownerID with a fresh
// TTL. If old was already consumed by a concurrent call the rotation still
// succeeds unless StrictSingleUse is set.
func (r *Rotator) Rotate(ctx context.Context, old string, ownerID string) (string, error) {
	if ownerID == "" {
		return "", ErrRotationFailed
	}
	key, err := KeyOf(old)
	if err != nil {
		return "", ErrRotationFailed
	}

	ctx, cancel := r.bound(ctx)
	defer cancel()

	live, err := r.store.Consume(ctx, key)
	if err != nil {
		return "", unavailable(err)
	}
	if !live && r.opts.StrictSingleUse {
		return "", fmt.Errorf("%w: %w", ErrRotationFailed, ErrReuseDetected)
	}

	token, err := r.store.Create(ctx, ownerID, r.opts.TTL)
	if err != nil {
		return "", unavailable(err)
	}
	return token, nil
}

// Revoke consumes token. Unknown or malformed tokens are not an error.
func (r *Rotator) Revoke(ctx context.Context, token string) error {
	key, err := KeyOf(token)
	if err != nil {
		return nil
	}
	ctx, cancel := r.bound(ctx)
	defer cancel()

	if _, err := r.store.Consume(ctx, key); err != nil {
		return unavailable(err)
	}
	return nil
}

// RevokeAll consumes every token owned by ownerID and reports how many were removed.
func (r *Rotator) RevokeAll(ctx context.Context, ownerID string) (int, error) {
	if ownerID == "" {
		return 0, nil
	}
	ctx, cancel := r.bound(ctx)
	defer cancel()

	n, err := r.store.ConsumeAll(ctx, ownerID)
	if err != nil {
		return 0, unavailable(err)
	}
	return n, nil
}

func (r *Rotator) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.opts.OperationTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.opts.OperationTimeout)
}

func unavailable(err error) error {
	if errors.Is(err, ErrUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
