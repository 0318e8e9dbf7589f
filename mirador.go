// CLAUDE:SUMMARY Main Service orchestrator: source registry, per-source scheduler, run lifecycle with panic containment.
// Package mirador is an adaptive brand-mention ingestion engine. It
// harvests brand-relevant content from rate-limited external sources and
// turns noisy, duplicate-laden results into a clean incremental stream of
// records.
//
// The Service owns the source registry and the scheduler. Each source run
// is a single sequential task driving a multi-phase collection strategy
// under a wall-clock budget; failures are contained at the narrowest scope
// that preserves forward progress, and nothing a run does may terminate
// the host process.
package mirador

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/hazyhaar/mirador/internal/govern"
	"github.com/hazyhaar/mirador/internal/ingest"
	"github.com/hazyhaar/mirador/internal/relevance"
	"github.com/hazyhaar/mirador/internal/sources"
	"github.com/hazyhaar/mirador/internal/sources/forum"
	"github.com/hazyhaar/mirador/internal/sources/regionfeed"
	"github.com/hazyhaar/mirador/internal/sources/storefront"
	"github.com/hazyhaar/mirador/internal/stealth"
	"github.com/hazyhaar/mirador/internal/store"
)

// Service is the mirador orchestrator.
type Service struct {
	cfg      *Config
	store    *store.Store
	filter   *relevance.Filter
	governor *govern.Governor
	browsers *stealth.Manager
	logger   *slog.Logger

	mu      sync.Mutex
	sources map[string]sources.Runner
	running map[string]bool

	wg sync.WaitGroup
}

// ServiceOption customizes Service construction.
type ServiceOption func(*Service)

// WithSource registers (or replaces) a source runner. Used by tests and by
// deployments adding custom collectors.
func WithSource(r sources.Runner) ServiceOption {
	return func(s *Service) { s.sources[r.Name()] = r }
}

// WithBrowserManager injects a pre-built stealth manager.
func WithBrowserManager(m *stealth.Manager) ServiceOption {
	return func(s *Service) { s.browsers = m }
}

// New creates the Service: compiles the relevance filter (startup-fatal on
// bad patterns), builds the governor from the configured budgets, and
// registers every source whose endpoint is configured.
func New(cfg *Config, db *sql.DB, logger *slog.Logger, opts ...ServiceOption) (*Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil config", ErrConfig)
	}
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}

	filter, err := relevance.New(cfg.Relevance)
	if err != nil {
		return nil, err
	}

	budgets := make(map[string]govern.Budget, len(cfg.Budgets))
	for name, b := range cfg.Budgets {
		budgets[name] = b.toGovern()
	}
	governor := govern.New(govern.Config{Budgets: budgets, Logger: logger})

	svc := &Service{
		cfg:      cfg,
		store:    store.NewStore(db),
		filter:   filter,
		governor: governor,
		logger:   logger,
		sources:  make(map[string]sources.Runner),
		running:  make(map[string]bool),
	}

	if !cfg.Browser.Disabled {
		svc.browsers = stealth.NewManager(stealth.Config{
			RemoteURL:  cfg.Browser.RemoteURL,
			Headful:    cfg.Browser.Headful,
			Proxy:      cfg.Browser.Proxy,
			CookieDir:  cfg.DataDir + "/cookies",
			WarmupURLs: cfg.Browser.WarmupURLs,
			Logger:     logger,
		})
	}

	for _, opt := range opts {
		opt(svc)
	}

	svc.registerConfiguredSources()
	if len(svc.sources) == 0 {
		return nil, fmt.Errorf("%w: no sources registered", ErrConfig)
	}
	return svc, nil
}

func (s *Service) registerConfiguredSources() {
	// API requests carry a believable browser UA from the same pool the
	// stealth sessions draw from.
	ua := stealth.PickFingerprint(rand.Intn).UserAgent
	newClient := func(name string) *sources.Client {
		return &sources.Client{
			HTTP:      sources.NewHTTPClient(s.cfg.HTTPTimeout),
			Governor:  s.governor,
			Source:    name,
			UserAgent: ua,
		}
	}

	anchors := s.filter.Anchors()
	searchTerms := append(append([]string{}, anchors.StrongAnchors...), anchors.RequiredTerms...)
	if len(searchTerms) == 0 {
		searchTerms = anchors.GenericTerms
	}

	if c := s.cfg.Sources.Forum; c.BaseURL != "" && s.sources[forum.Name] == nil {
		s.sources[forum.Name] = forum.New(c, newClient(forum.Name), s.browsers, searchTerms, s.logger)
	}
	if c := s.cfg.Sources.Storefront; c.ReviewURL != "" && s.sources[storefront.Name] == nil {
		s.sources[storefront.Name] = storefront.New(c, newClient(storefront.Name), s.browsers, s.logger)
	}
	if c := s.cfg.Sources.Regionfeed; c.FeedURL != "" && s.sources[regionfeed.Name] == nil {
		s.sources[regionfeed.Name] = regionfeed.New(c, newClient(regionfeed.Name), s.logger)
	}
}

// SourceNames lists the registered sources.
func (s *Service) SourceNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.sources))
	for name := range s.sources {
		names = append(names, name)
	}
	return names
}

// Store exposes the persistence layer to the API and MCP surfaces.
func (s *Service) Store() *store.Store { return s.store }

// Start launches one scheduling loop per registered source. Each loop runs
// its source immediately, then on its configured interval, until ctx is
// cancelled. Start returns immediately; use Wait to block on shutdown.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	names := make([]string, 0, len(s.sources))
	for name := range s.sources {
		names = append(names, name)
	}
	s.mu.Unlock()

	for _, name := range names {
		name := name
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.scheduleLoop(ctx, name)
		}()
	}
}

func (s *Service) scheduleLoop(ctx context.Context, name string) {
	interval := s.cfg.Interval(name)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Run once immediately on start.
	s.runScheduled(ctx, name)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runScheduled(ctx, name)
		}
	}
}

func (s *Service) runScheduled(ctx context.Context, name string) {
	if err := s.RunSource(ctx, name); err != nil {
		// The scheduler stays alive whatever a run does.
		s.logger.Warn("scheduled run failed", "source", name, "error", err)
	}
}

// Wait blocks until every scheduling loop has exited.
func (s *Service) Wait() { s.wg.Wait() }

// Close releases shared resources (the browser).
func (s *Service) Close() error {
	if s.browsers != nil {
		return s.browsers.Close()
	}
	return nil
}

// Trigger starts a detached run for a source after validating that it
// exists and is idle. Runs can take minutes, so the caller gets an answer
// immediately; the outcome lands in the run log.
func (s *Service) Trigger(name string) error {
	s.mu.Lock()
	_, ok := s.sources[name]
	busy := s.running[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSource, name)
	}
	if busy {
		return fmt.Errorf("%w: %s", ErrRunInProgress, name)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		// RunSource re-checks the run mutex; a lost race degrades to a skip.
		if err := s.RunSource(context.Background(), name); err != nil {
			s.logger.Warn("triggered run failed", "source", name, "error", err)
		}
	}()
	return nil
}

// RunSource executes one collection run for a named source. A source with a
// run already underway is skipped (ErrRunInProgress), never queued. Panics
// anywhere inside the run are recovered into a failed run with a best-effort
// flush; they never escape to the caller.
func (s *Service) RunSource(ctx context.Context, name string) error {
	s.mu.Lock()
	src, ok := s.sources[name]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownSource, name)
	}
	if s.running[name] {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrRunInProgress, name)
	}
	s.running[name] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running[name] = false
		s.mu.Unlock()
	}()

	run, err := ingest.Begin(ctx, ingest.Config{
		Source:         name,
		Store:          s.store,
		Filter:         s.filter,
		FullBudget:     s.cfg.Run.FullBudget,
		IncrBudget:     s.cfg.Run.IncrementalBudget,
		FlushThreshold: s.cfg.Run.FlushThreshold,
		Logger:         s.logger,
	})
	if err != nil {
		return err
	}

	var fatal error
	func() {
		defer func() {
			if p := recover(); p != nil {
				fatal = fmt.Errorf("mirador: run panic: %v", p)
			}
		}()
		fatal = src.Collect(ctx, run)
	}()

	run.Finish(ctx, fatal)
	return nil
}
