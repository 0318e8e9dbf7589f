// CLAUDE:SUMMARY Generic bounded exponential-backoff retry wrapper reporting outcomes to the rate governor.
// Package retry wraps fallible operations with bounded exponential backoff.
//
// The delay computation is a pure function of the attempt number and the
// configured bounds, so it is testable without a live limiter. Each attempt's
// outcome is reported to a Reporter (in practice the govern.Governor) which
// owns the stateful rate adaptation.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// ErrExhausted wraps the last error after all attempts failed. Callers must
// treat it as a recoverable-but-failed operation, never as run-fatal.
var ErrExhausted = errors.New("retry: attempts exhausted")

// Reporter receives per-attempt outcomes keyed by source.
type Reporter interface {
	OnSuccess(source string)
	OnFailure(source string)
}

// Config bounds the retry loop.
type Config struct {
	// MaxRetries is the number of retries after the first attempt. Default: 3.
	MaxRetries int
	// BaseDelay seeds the exponential backoff. Default: 1s.
	BaseDelay time.Duration
	// MaxDelay caps the computed delay before jitter. Default: 30s.
	MaxDelay time.Duration
	// Source is the governor key outcomes are reported under.
	Source string
	// Reporter receives outcomes. Nil disables reporting.
	Reporter Reporter

	// Injectable for tests.
	Sleep  func(context.Context, time.Duration) error
	Rand01 func() float64
}

func (c *Config) defaults() {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = time.Second
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.Sleep == nil {
		c.Sleep = sleepCtx
	}
	if c.Rand01 == nil {
		c.Rand01 = rand.Float64
	}
}

// Delay computes the backoff before retry number attempt (0-based):
// min(base * 2^attempt, max) scaled by a jitter factor in [0.5, 1.0).
func Delay(attempt int, base, max time.Duration, rand01 float64) time.Duration {
	d := base << uint(attempt)
	if d <= 0 || d > max {
		d = max
	}
	return time.Duration(float64(d) * (0.5 + rand01*0.5))
}

// Do runs op until it succeeds or retries are exhausted.
// The zero value of T is returned alongside a wrapped ErrExhausted.
func Do[T any](ctx context.Context, cfg Config, op func(context.Context) (T, error)) (T, error) {
	cfg.defaults()

	var zero T
	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			d := Delay(attempt-1, cfg.BaseDelay, cfg.MaxDelay, cfg.Rand01())
			if err := cfg.Sleep(ctx, d); err != nil {
				return zero, fmt.Errorf("retry: backoff: %w", err)
			}
		}

		v, err := op(ctx)
		if err == nil {
			if cfg.Reporter != nil {
				cfg.Reporter.OnSuccess(cfg.Source)
			}
			return v, nil
		}
		lastErr = err
		if cfg.Reporter != nil {
			cfg.Reporter.OnFailure(cfg.Source)
		}
		if ctx.Err() != nil {
			return zero, fmt.Errorf("retry: %w", ctx.Err())
		}
	}
	return zero, fmt.Errorf("%w: %w", ErrExhausted, lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
