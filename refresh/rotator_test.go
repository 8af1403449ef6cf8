package refresh_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/edgeauth/refresh"
	"github.com/MrEthical07/edgeauth/tokenstore"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newRotator(t *testing.T, strict bool) (*refresh.Rotator, *tokenstore.MemoryStore, *clock) {
	t.Helper()
	c := &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	store := tokenstore.NewMemoryStore(tokenstore.WithClock(c.Now))
	r, err := refresh.NewRotator(store, refresh.Options{TTL: 30 * 24 * time.Hour, StrictSingleUse: strict, OperationTimeout: time.Second})
	if err != nil {
		t.Fatalf("new rotator: %v", err)
	}
	return r, store, c
}

func TestRotateInvalidatesOldAndValidatesNew(t *testing.T) {
	r, _, _ := newRotator(t, false)
	ctx := context.Background()

	old, err := r.Issue(ctx, "u1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	next, err := r.Rotate(ctx, old, "u1")
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if next == old {
		t.Fatal("rotation must yield a new value")
	}

	if _, ok, err := r.Validate(ctx, old); err != nil || ok {
		t.Fatalf("old token validate = (%v, %v), want invalid", ok, err)
	}
	owner, ok, err := r.Validate(ctx, next)
	if err != nil || !ok || owner != "u1" {
		t.Fatalf("new token validate = (%q, %v, %v)", owner, ok, err)
	}
}

func TestRepeatedRotationKeepsOwner(t *testing.T) {
	r, store, _ := newRotator(t, false)
	ctx := context.Background()

	token, err := r.Issue(ctx, "u1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	for i := 0; i < 10; i++ {
		owner, ok, err := r.Validate(ctx, token)
		if err != nil || !ok || owner != "u1" {
			t.Fatalf("cycle %d validate = (%q, %v, %v)", i, owner, ok, err)
		}
		token, err = r.Rotate(ctx, token, owner)
		if err != nil {
			t.Fatalf("cycle %d rotate: %v", i, err)
		}
	}
	if store.Len() != 1 {
		t.Fatalf("expected a single live record after rotations, got %d", store.Len())
	}
}

func TestExpiredTokenNeverValidates(t *testing.T) {
	r, _, c := newRotator(t, false)
	ctx := context.Background()

	token, err := r.Issue(ctx, "u1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	c.Advance(r.TTL())
	if _, ok, err := r.Validate(ctx, token); err != nil || ok {
		t.Fatalf("expired token validate = (%v, %v)", ok, err)
	}
}

func TestValidateUnknownAndMalformed(t *testing.T) {
	r, store, _ := newRotator(t, false)
	ctx := context.Background()

	unknown, _, err := refresh.NewToken()
	if err != nil {
		t.Fatalf("new token: %v", err)
	}
	for _, token := range []string{unknown, "", "garbage"} {
		if _, ok, err := r.Validate(ctx, token); err != nil || ok {
			t.Fatalf("validate %q = (%v, %v), want invalid without error", token, ok, err)
		}
	}
	if store.Len() != 0 {
		t.Fatal("validation must not create records")
	}
}

func TestRotateWithoutOwnerFails(t *testing.T) {
	r, _, _ := newRotator(t, false)
	token, err := r.Issue(context.Background(), "u1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := r.Rotate(context.Background(), token, ""); !errors.Is(err, refresh.ErrRotationFailed) {
		t.Fatalf("expected ErrRotationFailed, got %v", err)
	}
}

func TestConcurrentRotationDefaultBothSucceed(t *testing.T) {
	r, store, _ := newRotator(t, false)
	ctx := context.Background()
	token, err := r.Issue(ctx, "u1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	const workers = 8
	var ok atomic.Int32
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, err := r.Rotate(ctx, token, "u1"); err == nil {
				ok.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if ok.Load() != workers {
		t.Fatalf("expected all %d racing rotations to succeed, got %d", workers, ok.Load())
	}
	if store.Len() != workers {
		t.Fatalf("expected %d live replacements, got %d", workers, store.Len())
	}
}

func TestConcurrentRotationStrictSingleWinner(t *testing.T) {
	r, _, _ := newRotator(t, true)
	ctx := context.Background()
	token, err := r.Issue(ctx, "u1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	const workers = 8
	var wins, reuse atomic.Int32
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := r.Rotate(ctx, token, "u1")
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, refresh.ErrReuseDetected) && errors.Is(err, refresh.ErrRotationFailed):
				reuse.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if wins.Load() != 1 || reuse.Load() != workers-1 {
		t.Fatalf("wins=%d reuse=%d, want 1 and %d", wins.Load(), reuse.Load(), workers-1)
	}
}

func TestRotatorMapsStoreFailuresToUnavailable(t *testing.T) {
	r, _, _ := newRotator(t, false)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := r.Issue(ctx, "u1"); !errors.Is(err, refresh.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	token, _, _ := refresh.NewToken()
	if _, _, err := r.Validate(ctx, token); !errors.Is(err, refresh.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable from validate, got %v", err)
	}
}

func TestRevokeAndRevokeAll(t *testing.T) {
	r, _, _ := newRotator(t, false)
	ctx := context.Background()

	a, _ := r.Issue(ctx, "u1")
	b, _ := r.Issue(ctx, "u1")
	c, _ := r.Issue(ctx, "u2")

	if err := r.Revoke(ctx, a); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if err := r.Revoke(ctx, "not-a-token"); err != nil {
		t.Fatalf("revoke malformed should be a no-op: %v", err)
	}
	n, err := r.RevokeAll(ctx, "u1")
	if err != nil || n != 1 {
		t.Fatalf("revoke all = (%d, %v), want 1", n, err)
	}
	for _, tok := range []string{a, b} {
		if _, ok, _ := r.Validate(ctx, tok); ok {
			t.Fatal("revoked token still validates")
		}
	}
	if _, ok, _ := r.Validate(ctx, c); !ok {
		t.Fatal("other owner's token must survive")
	}
}

func TestNewRotatorValidatesOptions(t *testing.T) {
	if _, err := refresh.NewRotator(nil, refresh.Options{TTL: time.Hour}); err == nil {
		t.Fatal("expected nil store to be rejected")
	}
	if _, err := refresh.NewRotator(tokenstore.NewMemoryStore(), refresh.Options{}); err == nil {
		t.Fatal("expected zero TTL to be rejected")
	}
}
