// CLAUDE:SUMMARY Per-source token bucket with adaptive backoff multiplier and post-acquire jitter.
// Package govern rate-limits outbound traffic per source.
//
// Each source gets a token bucket refilled continuously at a configured rate.
// Failures inflate a backoff multiplier (up to 10x) that stretches every wait;
// successes decay it geometrically back toward 1. A random jitter sleep after
// every acquire breaks up periodic traffic signatures.
package govern

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"
)

const (
	minMultiplier = 1.0
	maxMultiplier = 10.0
)

// Budget is the per-source rate configuration.
type Budget struct {
	// MaxTokens is the bucket capacity (burst size). Default: 10.
	MaxTokens float64
	// RefillRate is tokens added per second. Default: 0.5 (30 req/min).
	RefillRate float64
}

func (b *Budget) defaults() {
	if b.MaxTokens <= 0 {
		b.MaxTokens = 10
	}
	if b.RefillRate <= 0 {
		b.RefillRate = 0.5
	}
}

// Config configures the Governor.
type Config struct {
	// Budgets maps source keys to their rate budgets. Sources without an
	// entry get the zero Budget defaults.
	Budgets map[string]Budget
	// JitterMin/JitterMax bound the random sleep after each acquire.
	// Defaults: 500ms / 2s. Set both to 0 to disable jitter (tests).
	JitterMin time.Duration
	JitterMax time.Duration

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.JitterMin == 0 && c.JitterMax == 0 {
		c.JitterMin = 500 * time.Millisecond
		c.JitterMax = 2 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// state is the live limiter state for one source. Process-lifetime, not persisted.
type state struct {
	tokens     float64
	maxTokens  float64
	refillRate float64
	multiplier float64
	lastRefill time.Time
}

// Governor gates outbound operations per source key.
type Governor struct {
	cfg    Config
	mu     sync.Mutex
	states map[string]*state

	// Injectable for tests.
	now   func() time.Time
	sleep func(context.Context, time.Duration) error
	rand  func() float64
}

// New creates a Governor.
func New(cfg Config) *Governor {
	cfg.defaults()
	return &Governor{
		cfg:    cfg,
		states: make(map[string]*state),
		now:    time.Now,
		sleep:  sleepCtx,
		rand:   rand.Float64,
	}
}

// Acquire blocks until the source may issue one operation, then consumes one
// token and applies the jitter sleep. It returns early only on ctx cancellation.
func (g *Governor) Acquire(ctx context.Context, source string) error {
	g.mu.Lock()
	st := g.state(source)
	g.refillLocked(st)

	var wait time.Duration
	if st.tokens < 1 {
		deficit := 1 - st.tokens
		wait = time.Duration(deficit / st.refillRate * float64(time.Second) * st.multiplier)
	}
	g.mu.Unlock()

	if wait > 0 {
		g.cfg.Logger.Debug("govern: waiting for token", "source", source, "wait", wait)
		if err := g.sleep(ctx, wait); err != nil {
			return fmt.Errorf("govern: acquire %s: %w", source, err)
		}
	}

	g.mu.Lock()
	g.refillLocked(st)
	st.tokens -= 1
	if st.tokens < 0 {
		st.tokens = 0
	}
	g.mu.Unlock()

	if jitter := g.jitter(); jitter > 0 {
		if err := g.sleep(ctx, jitter); err != nil {
			return fmt.Errorf("govern: jitter %s: %w", source, err)
		}
	}
	return nil
}

// OnSuccess decays the backoff multiplier toward baseline.
func (g *Governor) OnSuccess(source string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	st := g.state(source)
	st.multiplier *= 0.9
	if st.multiplier < minMultiplier {
		st.multiplier = minMultiplier
	}
}

// OnFailure doubles the backoff multiplier (capped) and drains the bucket so
// the next acquire is forced to wait.
func (g *Governor) OnFailure(source string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	st := g.state(source)
	st.multiplier *= 2
	if st.multiplier > maxMultiplier {
		st.multiplier = maxMultiplier
	}
	st.tokens = 0
	g.cfg.Logger.Debug("govern: failure reported", "source", source, "multiplier", st.multiplier)
}

// Multiplier returns the current backoff multiplier for a source.
func (g *Governor) Multiplier(source string) float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state(source).multiplier
}

// Tokens returns the current token count for a source (after refill).
func (g *Governor) Tokens(source string) float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	st := g.state(source)
	g.refillLocked(st)
	return st.tokens
}

// state returns (creating if needed) the limiter state for a source.
// Caller must hold g.mu.
func (g *Governor) state(source string) *state {
	st, ok := g.states[source]
	if !ok {
		b := g.cfg.Budgets[source]
		b.defaults()
		st = &state{
			tokens:     b.MaxTokens,
			maxTokens:  b.MaxTokens,
			refillRate: b.RefillRate,
			multiplier: minMultiplier,
			lastRefill: g.now(),
		}
		g.states[source] = st
	}
	return st
}

// refillLocked adds elapsed*rate tokens, capped at maxTokens.
// Caller must hold g.mu.
func (g *Governor) refillLocked(st *state) {
	now := g.now()
	elapsed := now.Sub(st.lastRefill).Seconds()
	if elapsed > 0 {
		st.tokens += elapsed * st.refillRate
		if st.tokens > st.maxTokens {
			st.tokens = st.maxTokens
		}
	}
	st.lastRefill = now
}

func (g *Governor) jitter() time.Duration {
	if g.cfg.JitterMax <= g.cfg.JitterMin {
		return g.cfg.JitterMin
	}
	span := g.cfg.JitterMax - g.cfg.JitterMin
	return g.cfg.JitterMin + time.Duration(g.rand()*float64(span))
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
