package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T, cfg Config) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb, cfg), mr
}

func TestSignInLockoutAfterMaxFailures(t *testing.T) {
	ctx := context.Background()
	l, mr := newTestLimiter(t, Config{
		EnableSignInThrottle:   true,
		MaxSignInAttempts:      3,
		SignInCooldownDuration: time.Minute,
	})

	for i := 0; i < 3; i++ {
		if err := l.CheckSignIn(ctx, "a@example.com", ""); err != nil {
			t.Fatalf("attempt %d unexpectedly limited: %v", i, err)
		}
		if err := l.RecordSignInFailure(ctx, "a@example.com", ""); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}
	if err := l.CheckSignIn(ctx, "A@example.com ", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected lockout (case-insensitive), got %v", err)
	}
	if n, _ := l.SignInAttempts(ctx, "a@example.com"); n != 3 {
		t.Fatalf("expected 3 attempts, got %d", n)
	}

	mr.FastForward(2 * time.Minute)
	if err := l.CheckSignIn(ctx, "a@example.com", ""); err != nil {
		t.Fatalf("window should have expired: %v", err)
	}
}

func TestSignInResetClearsCounter(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLimiter(t, Config{EnableSignInThrottle: true, MaxSignInAttempts: 1, SignInCooldownDuration: time.Minute})

	_ = l.RecordSignInFailure(ctx, "b@example.com", "")
	if err := l.ResetSignIn(ctx, "b@example.com"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if n, _ := l.SignInAttempts(ctx, "b@example.com"); n != 0 {
		t.Fatalf("expected reset counter, got %d", n)
	}
}

func TestSignInIPThrottle(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLimiter(t, Config{
		EnableSignInThrottle:   true,
		EnableIPThrottle:       true,
		MaxSignInAttempts:      2,
		SignInCooldownDuration: time.Minute,
	})

	_ = l.RecordSignInFailure(ctx, "x@example.com", "203.0.113.9")
	_ = l.RecordSignInFailure(ctx, "y@example.com", "203.0.113.9")
	if err := l.CheckSignIn(ctx, "z@example.com", "203.0.113.9"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected per-IP limit, got %v", err)
	}
}

func TestRefreshThrottle(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLimiter(t, Config{EnableRefreshThrottle: true, MaxRefreshAttempts: 2, RefreshCooldownDuration: time.Minute})

	for i := 0; i < 2; i++ {
		if err := l.CheckRefresh(ctx, "k1"); err != nil {
			t.Fatalf("attempt %d: %v", i, err)
		}
	}
	if err := l.CheckRefresh(ctx, "k1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected refresh limit, got %v", err)
	}
	if err := l.CheckRefresh(ctx, "k2"); err != nil {
		t.Fatalf("other keys are independent: %v", err)
	}
}

func TestDisabledThrottlesNeverTouchRedis(t *testing.T) {
	ctx := context.Background()
	l, mr := newTestLimiter(t, Config{})
	mr.Close()

	if err := l.CheckRefresh(ctx, "k"); err != nil {
		t.Fatalf("disabled refresh throttle: %v", err)
	}
	if err := l.CheckSignIn(ctx, "a", "ip"); err != nil {
		t.Fatalf("disabled sign-in throttle: %v", err)
	}
}

func TestRedisFailureIsWrapped(t *testing.T) {
	ctx := context.Background()
	l, mr := newTestLimiter(t, Config{EnableRefreshThrottle: true, MaxRefreshAttempts: 1, RefreshCooldownDuration: time.Minute})
	mr.Close()

	if err := l.CheckRefresh(ctx, "k"); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}
