// Package ratelimit throttles calls to the remote analysis backend: a
// persisted per-minute budget with cooldown, and a single-worker FIFO queue
// that retries rate limited calls with exponential backoff.
package ratelimit

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/bryanwahyu/trapscan/internal/application"
	"github.com/bryanwahyu/trapscan/internal/domain/kv"
)

type Config struct {
	MaxRequestsPerMinute int
	Cooldown             time.Duration
	MaxRetries           int
	RetryDelay           time.Duration
	BackoffMultiplier    float64
	Spacing              time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxRequestsPerMinute: 10,
		Cooldown:             60 * time.Second,
		MaxRetries:           3,
		RetryDelay:           2 * time.Second,
		BackoffMultiplier:    2,
		Spacing:              200 * time.Millisecond,
	}
}

const window = time.Minute

// State is the persisted cooldown. Times are unix milliseconds.
type State struct {
	CooldownUntil int64 `json:"cooldownUntil"`
	HitAt         int64 `json:"hitAt"`
}

type Limiter struct {
	store kv.Store
	clock application.Clock
	cfg   Config
}

func NewLimiter(store kv.Store, clock application.Clock, cfg Config) *Limiter {
	return &Limiter{store: store, clock: clock, cfg: cfg}
}

func (l *Limiter) Config() Config { return l.cfg }

// IsRateLimited reports whether a cooldown is active. An elapsed cooldown
// is cleared on read.
func (l *Limiter) IsRateLimited(ctx context.Context) bool {
	return l.Cooldown(ctx) > 0
}

// Cooldown returns the remaining cooldown, zero when not limited.
func (l *Limiter) Cooldown(ctx context.Context) time.Duration {
	st, ok, err := kv.GetJSON[State](ctx, l.store, kv.KeyRateLimit)
	if err != nil {
		log.Warn().Err(err).Msg("read rate limit state")
		return 0
	}
	if !ok || st.CooldownUntil == 0 {
		return 0
	}
	remaining := time.UnixMilli(st.CooldownUntil).Sub(l.clock.Now())
	if remaining <= 0 {
		if err := l.store.Remove(ctx, kv.KeyRateLimit); err != nil {
			log.Warn().Err(err).Msg("clear rate limit state")
		}
		return 0
	}
	return remaining
}

// SetRateLimited starts a cooldown of retryAfter, or the configured default
// when retryAfter is zero.
func (l *Limiter) SetRateLimited(ctx context.Context, retryAfter time.Duration) {
	if retryAfter <= 0 {
		retryAfter = l.cfg.Cooldown
	}
	now := l.clock.Now()
	st := State{CooldownUntil: now.Add(retryAfter).UnixMilli(), HitAt: now.UnixMilli()}
	if err := kv.SetJSON(ctx, l.store, kv.KeyRateLimit, st); err != nil {
		log.Warn().Err(err).Msg("persist rate limit state")
		return
	}
	log.Warn().Dur("cooldown", retryAfter).Msg("rate limited, cooling down")
}

// TrackRequest records a request. It returns false and starts a cooldown
// when the last minute already holds the full budget.
func (l *Limiter) TrackRequest(ctx context.Context) bool {
	now := l.clock.Now()
	cutoff := now.Add(-window).UnixMilli()
	within := true
	_, err := kv.UpdateJSON(ctx, l.store, kv.KeyRequestHistory, func(hist []int64, _ bool) ([]int64, error) {
		pruned := hist[:0]
		for _, ts := range hist {
			if ts > cutoff {
				pruned = append(pruned, ts)
			}
		}
		if len(pruned) >= l.cfg.MaxRequestsPerMinute {
			within = false
		}
		return append(pruned, now.UnixMilli()), nil
	})
	if err != nil {
		log.Warn().Err(err).Msg("track request")
	}
	if !within {
		l.SetRateLimited(ctx, l.cfg.Cooldown)
	}
	return within
}

// RecentRequests counts requests in the last minute.
func (l *Limiter) RecentRequests(ctx context.Context) int {
	hist, _, err := kv.GetJSON[[]int64](ctx, l.store, kv.KeyRequestHistory)
	if err != nil {
		return 0
	}
	cutoff := l.clock.Now().Add(-window).UnixMilli()
	n := 0
	for _, ts := range hist {
		if ts > cutoff {
			n++
		}
	}
	return n
}

// Reset clears the cooldown and request history.
func (l *Limiter) Reset(ctx context.Context) error {
	if err := l.store.Remove(ctx, kv.KeyRateLimit); err != nil {
		return err
	}
	return l.store.Remove(ctx, kv.KeyRequestHistory)
}
