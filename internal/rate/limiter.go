package rate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds rate limiter tuning parameters.
type Config struct {
	EnableSignInThrottle    bool
	EnableIPThrottle        bool
	MaxSignInAttempts       int
	SignInCooldownDuration  time.Duration
	EnableRefreshThrottle   bool
	MaxRefreshAttempts      int
	RefreshCooldownDuration time.Duration
}

// Limiter enforces per-identifier and per-IP limits for password sign-in and
// per-token limits for refresh, using Redis counters.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a rate [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

// CheckSignIn checks whether the email+IP pair is within the sign-in attempt
// budget without counting an attempt.
func (l *Limiter) CheckSignIn(ctx context.Context, email, ip string) error {
	if !l.config.EnableSignInThrottle {
		return nil
	}
	if err := l.checkCounter(ctx, signInUserKey(email), l.config.MaxSignInAttempts); err != nil {
		return err
	}

	if l.config.EnableIPThrottle && ip != "" {
		if err := l.checkCounter(ctx, signInIPKey(ip), l.config.MaxSignInAttempts); err != nil {
			return err
		}
	}

	return nil
}

// RecordSignInFailure counts a failed sign-in for the email+IP pair.
func (l *Limiter) RecordSignInFailure(ctx context.Context, email, ip string) error {
	if !l.config.EnableSignInThrottle {
		return nil
	}
	count, err := l.incrementWithTTL(ctx, signInUserKey(email), l.config.SignInCooldownDuration)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxSignInAttempts) {
		return ErrRateLimited
	}

	if l.config.EnableIPThrottle && ip != "" {
		count, err = l.incrementWithTTL(ctx, signInIPKey(ip), l.config.SignInCooldownDuration)
		if err != nil {
			return err
		}
		if count > int64(l.config.MaxSignInAttempts) {
			return ErrRateLimited
		}
	}

	return nil
}

// ResetSignIn clears the per-identifier counter after a successful sign-in.
// The per-IP counter is left to expire.
func (l *Limiter) ResetSignIn(ctx context.Context, email string) error {
	if !l.config.EnableSignInThrottle {
		return nil
	}
	if err := l.redis.Del(ctx, signInUserKey(email)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// CheckRefresh counts one refresh attempt against refreshKey and fails once
// the budget of the current window is spent.
func (l *Limiter) CheckRefresh(ctx context.Context, refreshKey string) error {
	if !l.config.EnableRefreshThrottle {
		return nil
	}

	count, err := l.incrementWithTTL(ctx, refreshAttemptKey(refreshKey), l.config.RefreshCooldownDuration)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxRefreshAttempts) {
		return ErrRateLimited
	}

	return nil
}

// SignInAttempts returns the current failure counter for an identifier.
// Missing keys return zero and do not reveal account existence.
func (l *Limiter) SignInAttempts(ctx context.Context, email string) (int, error) {
	count, err := l.redis.Get(ctx, signInUserKey(email)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

func (l *Limiter) checkCounter(ctx context.Context, key string, maxAttempts int) error {
	count, err := l.redis.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	if count >= int64(maxAttempts) {
		return ErrRateLimited
	}

	return nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}

func signInUserKey(email string) string {
	return "rl:si:" + strings.ToLower(strings.TrimSpace(email))
}

func signInIPKey(ip string) string {
	return "rl:sip:" + ip
}

func refreshAttemptKey(refreshKey string) string {
	return "rl:rf:" + refreshKey
}
