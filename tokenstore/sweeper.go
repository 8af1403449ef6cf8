package tokenstore

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/edgeauth/internal/logging"
)

// Purger removes expired records.
type Purger interface {
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// Sweeper runs PurgeExpired on a fixed interval. Reads never depend on it.
type Sweeper struct {
	purger   Purger
	interval time.Duration
	logger   logging.Logger
	now      func() time.Time
	onSweep  func(purged int64, err error)
}

// SweeperOption configures a Sweeper.
type SweeperOption func(*Sweeper)

// WithSweepLogger sets the logger for sweep results.
func WithSweepLogger(l logging.Logger) SweeperOption {
	return func(s *Sweeper) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithSweepHook registers a callback invoked after every sweep.
func WithSweepHook(fn func(purged int64, err error)) SweeperOption {
	return func(s *Sweeper) { s.onSweep = fn }
}

// WithSweepClock overrides the time passed to PurgeExpired.
func WithSweepClock(now func() time.Time) SweeperOption {
	return func(s *Sweeper) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSweeper returns a sweeper over p.
func NewSweeper(p Purger, interval time.Duration, opts ...SweeperOption) (*Sweeper, error) {
	if p == nil {
		return nil, errors.New("sweeper requires a purger")
	}
	if interval <= 0 {
		return nil, errors.New("sweeper interval must be positive")
	}
	s := &Sweeper{purger: p, interval: interval, logger: logging.Nop(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// SweepOnce runs a single purge.
func (s *Sweeper) SweepOnce(ctx context.Context) (int64, error) {
	n, err := s.purger.PurgeExpired(ctx, s.now())
	if err != nil {
		s.logger.Warn(ctx, "refresh token sweep failed", "error", err)
	} else if n > 0 {
		s.logger.Info(ctx, "refresh token sweep", "purged", n)
	}
	if s.onSweep != nil {
		s.onSweep(n, err)
	}
	return n, err
}

// Run sweeps immediately and then every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	s.SweepOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}
