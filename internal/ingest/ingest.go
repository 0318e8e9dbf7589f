// CLAUDE:SUMMARY Per-run ingestion machinery: mode selection, phase isolation, buffered flush, cursor advance.
// Package ingest drives one collection run for one source.
//
// A Run owns the ephemeral state of a single orchestrated pass: the
// wall-clock deadline, the accepted-item buffer, the dedup ledger, and the
// run counters. Sources feed candidate items through Offer; the Run applies
// the watermark gate, relevance filtering, dedup, and sentiment scoring,
// flushing to the store
// whenever the buffer reaches its threshold and unconditionally at phase
// and run boundaries. Phase failures are isolated: a failed phase is logged
// and the run proceeds to the next one.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hazyhaar/mirador/internal/dedup"
	"github.com/hazyhaar/mirador/internal/relevance"
	"github.com/hazyhaar/mirador/internal/sentiment"
	"github.com/hazyhaar/mirador/internal/store"
)

// Mode selects the breadth of a run.
type Mode string

const (
	// ModeFull is the exhaustive sweep used when no cursor exists yet.
	ModeFull Mode = "full"
	// ModeIncremental narrows windows and permutations once a cursor exists.
	ModeIncremental Mode = "incremental"
)

// Stats are the per-run counters, reported in logs and the run log record.
type Stats struct {
	NetworkCalls  int            `json:"network_calls"`
	RateLimitHits int            `json:"rate_limit_hits"`
	FoundByKind   map[string]int `json:"found_by_kind"`
	Duplicates    int            `json:"duplicates"`
	Filtered      int            `json:"filtered"`
	Stale         int            `json:"stale"`
	Saved         int            `json:"saved"`
	NewlySaved    int            `json:"newly_saved"`
}

func (s *Stats) found() int {
	n := 0
	for _, v := range s.FoundByKind {
		n += v
	}
	return n
}

// Config assembles the collaborators for one run.
type Config struct {
	Source string
	Store  *store.Store
	Filter *relevance.Filter

	// FullBudget and IncrBudget are the wall-clock deadlines per mode.
	FullBudget time.Duration
	IncrBudget time.Duration
	// FlushThreshold bounds the in-memory buffer.
	FlushThreshold int
	// SeedLimit caps how many stored external IDs seed the dedup ledger.
	SeedLimit int

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.FullBudget <= 0 {
		c.FullBudget = 20 * time.Minute
	}
	if c.IncrBudget <= 0 {
		c.IncrBudget = 5 * time.Minute
	}
	if c.FlushThreshold <= 0 {
		c.FlushThreshold = 50
	}
	if c.SeedLimit <= 0 {
		c.SeedLimit = 500
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Run is the mutable state of one collection pass. Not safe for concurrent
// use: a run is a single logical sequential task.
type Run struct {
	cfg    Config
	ledger *dedup.Ledger
	log    *slog.Logger

	runID    string
	mode     Mode
	cursor   *store.Cursor
	deadline time.Time

	buffer      []*store.Mention
	acceptedIDs []string
	maxItemDate int64
	stats       Stats
	phaseErrs   []error

	now func() time.Time
}

// Begin loads the source's cursor, seeds the dedup ledger, records the run
// as started, and computes the wall-clock deadline from the selected mode.
func Begin(ctx context.Context, cfg Config) (*Run, error) {
	cfg.defaults()
	r := &Run{
		cfg:   cfg,
		log:   cfg.Logger.With("source", cfg.Source),
		now:   time.Now,
		stats: Stats{FoundByKind: make(map[string]int)},
	}

	cursor, err := cfg.Store.GetCursor(ctx, cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("ingest: load cursor: %w", err)
	}
	r.cursor = cursor

	budget := cfg.FullBudget
	r.mode = ModeFull
	var seed []string
	if cursor != nil {
		r.mode = ModeIncremental
		budget = cfg.IncrBudget
		seed = cursor.RecentItemIDs
	}
	stored, err := cfg.Store.GetRecentExternalIDs(ctx, cfg.Source, cfg.SeedLimit)
	if err != nil {
		return nil, fmt.Errorf("ingest: seed ledger: %w", err)
	}
	r.ledger = dedup.NewLedger(append(seed, stored...))

	r.runID, err = cfg.Store.LogRunStart(ctx, cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("ingest: log run start: %w", err)
	}
	r.deadline = r.now().Add(budget)

	r.log.Info("run started", "run_id", r.runID, "mode", r.mode, "budget", budget)
	return r, nil
}

// Mode reports whether this run is full or incremental.
func (r *Run) Mode() Mode { return r.mode }

// RunID identifies the run-log record.
func (r *Run) RunID() string { return r.runID }

// Stats returns a copy of the current counters.
func (r *Run) Stats() Stats { return r.stats }

// Watermark returns the incremental high-water mark, or nil when the run is
// in full mode or the cursor has never seen an accepted item.
func (r *Run) Watermark() *int64 {
	if r.cursor == nil {
		return nil
	}
	return r.cursor.LastItemDate
}

// Expired reports whether the wall-clock deadline has passed. Checked before
// every network and browser operation and at every phase boundary.
func (r *Run) Expired() bool {
	return !r.now().Before(r.deadline)
}

// NewerThanWatermark reports whether an item timestamp is past the cursor
// watermark. In full mode everything qualifies. A fully-fetched page with
// zero qualifying items should end that query's pagination.
func (r *Run) NewerThanWatermark(itemDate int64) bool {
	w := r.Watermark()
	return w == nil || itemDate > *w
}

// CountCall increments the network-call counter.
func (r *Run) CountCall() { r.stats.NetworkCalls++ }

// CountRateLimitHit increments the rate-limit counter.
func (r *Run) CountRateLimitHit() { r.stats.RateLimitHits++ }

// Phase executes one bounded unit of the collection strategy. A phase is
// skipped when the deadline has passed, and its failure (error or panic) is
// recorded without aborting the run. The buffer flushes at phase end.
func (r *Run) Phase(ctx context.Context, name string, fn func(context.Context) error) {
	if r.Expired() {
		r.log.Info("phase skipped, deadline passed", "phase", name)
		return
	}
	start := r.now()
	err := r.runPhase(ctx, name, fn)
	if err != nil {
		r.phaseErrs = append(r.phaseErrs, fmt.Errorf("%s: %w", name, err))
		r.log.Warn("phase failed", "phase", name, "error", err)
	} else {
		r.log.Debug("phase done", "phase", name, "elapsed", r.now().Sub(start))
	}
	if ferr := r.Flush(ctx); ferr != nil {
		r.phaseErrs = append(r.phaseErrs, fmt.Errorf("%s: flush: %w", name, ferr))
	}
}

func (r *Run) runPhase(ctx context.Context, name string, fn func(context.Context) error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return fn(ctx)
}

// Offer feeds one candidate item through the watermark gate, filtering,
// dedup, and sentiment scoring. It returns true when the item was accepted
// into the buffer. The item's Fingerprint must be set by the source before
// offering.
func (r *Run) Offer(ctx context.Context, m *store.Mention) (bool, error) {
	r.stats.FoundByKind[m.Kind]++

	// Pages can mix new and already-ingested items; an incremental run only
	// accepts items past the watermark. Undated items pass through and rely
	// on the ledger.
	if m.ItemDate > 0 && !r.NewerThanWatermark(m.ItemDate) {
		r.stats.Stale++
		r.log.Debug("item behind watermark", "external_id", m.ExternalID, "item_date", m.ItemDate)
		return false, nil
	}

	if !r.cfg.Filter.AlwaysInclude(m.Community) && !r.cfg.Filter.AlwaysInclude(m.Source) {
		ok, reason := r.cfg.Filter.Match(m.Title + " " + m.Content)
		if !ok {
			r.stats.Filtered++
			r.log.Debug("item filtered", "external_id", m.ExternalID, "reason", reason)
			return false, nil
		}
	}

	if !r.ledger.Admit(m.ExternalID, m.Fingerprint) {
		r.stats.Duplicates++
		return false, nil
	}

	sc := sentiment.Analyze(strings.TrimSpace(m.Title + " " + m.Content))
	m.Sentiment = sc.Value
	m.SentLabel = sc.Label
	m.SentConf = sc.Confidence

	r.buffer = append(r.buffer, m)
	r.acceptedIDs = append(r.acceptedIDs, m.ExternalID)
	if m.ItemDate > r.maxItemDate {
		r.maxItemDate = m.ItemDate
	}

	if len(r.buffer) >= r.cfg.FlushThreshold {
		if err := r.Flush(ctx); err != nil {
			return true, err
		}
	}
	return true, nil
}

// Flush writes the buffered items to the store and empties the buffer.
func (r *Run) Flush(ctx context.Context) error {
	if len(r.buffer) == 0 {
		return nil
	}
	n, err := r.cfg.Store.InsertMany(ctx, r.buffer)
	if err != nil {
		return fmt.Errorf("ingest: flush %d items: %w", len(r.buffer), err)
	}
	r.stats.Saved += len(r.buffer)
	r.stats.NewlySaved += n
	r.log.Debug("buffer flushed", "items", len(r.buffer), "new", n)
	r.buffer = r.buffer[:0]
	return nil
}

// Finish flushes any remaining items, advances the cursor, and finalizes
// the run-log record. fatal carries a run-level failure (typically a
// recovered panic from outside phase isolation); phase errors alone do not
// fail the run. Finish is best-effort throughout so a late store error never
// masks the original failure.
func (r *Run) Finish(ctx context.Context, fatal error) Stats {
	if err := r.Flush(ctx); err != nil {
		r.log.Error("final flush failed", "error", err)
		if fatal == nil {
			fatal = err
		}
	}

	var watermark *int64
	var recent []string
	if len(r.acceptedIDs) > 0 {
		// Never regress: keep the prior watermark if this run's max is older.
		wm := r.maxItemDate
		if prior := r.Watermark(); prior != nil && *prior > wm {
			wm = *prior
		}
		watermark = &wm
		recent = r.acceptedIDs
		if len(recent) > store.MaxRecentIDs {
			recent = recent[len(recent)-store.MaxRecentIDs:]
		}
	}
	if err := r.cfg.Store.UpdateCursor(ctx, r.cfg.Source, watermark, recent); err != nil {
		r.log.Error("cursor update failed", "error", err)
	}

	status := "ok"
	runErr := errors.Join(r.phaseErrs...)
	if fatal != nil {
		status = "failed"
		runErr = errors.Join(fatal, runErr)
	}
	if err := r.cfg.Store.LogRunEnd(ctx, r.runID, status, r.stats.found(), r.stats.NewlySaved, runErr); err != nil {
		r.log.Error("run log update failed", "error", err)
	}

	r.log.Info("run finished",
		"run_id", r.runID, "status", status, "mode", r.mode,
		"found", r.stats.found(), "saved", r.stats.Saved, "new", r.stats.NewlySaved,
		"duplicates", r.stats.Duplicates, "filtered", r.stats.Filtered, "stale", r.stats.Stale,
		"network_calls", r.stats.NetworkCalls, "rate_limit_hits", r.stats.RateLimitHits)
	return r.stats
}
