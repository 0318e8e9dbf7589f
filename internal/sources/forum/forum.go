// CLAUDE:SUMMARY Discussion-site collector: six-phase strategy over a token-paginated JSON API plus a stealth browser pass.
// Package forum collects brand mentions from a discussion site exposing
// token-paginated JSON listing and search endpoints.
//
// The collection strategy runs six ordered phases: a priority sweep of
// first-party communities, an exhaustive keyword search grid, a targeted
// pass over curated related communities, a comment search, a historical
// archive sweep (full mode only), and a stealth-browser verification pass
// that extracts what the rendered site shows a human.
package forum

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/hazyhaar/mirador/internal/dedup"
	"github.com/hazyhaar/mirador/internal/ingest"
	"github.com/hazyhaar/mirador/internal/sources"
	"github.com/hazyhaar/mirador/internal/stealth"
	"github.com/hazyhaar/mirador/internal/store"
)

// Name is the source key used for cursors, budgets, and run logs.
const Name = "forum"

// Config declares the site endpoints and the search vocabulary.
type Config struct {
	// BaseURL of the JSON API, without trailing slash.
	BaseURL string `yaml:"base_url"`
	// PriorityCommunities are swept exhaustively and bypass relevance
	// filtering (they should also appear in always_include_sources).
	PriorityCommunities []string `yaml:"priority_communities"`
	// AllowCommunities are related communities queried once each.
	AllowCommunities []string `yaml:"allow_communities"`
	// DenyCommunities are known false-positive factories, never queried.
	DenyCommunities []string `yaml:"deny_communities"`
	// Keywords are the search-grid terms; the filter's derived anchors are
	// added automatically.
	Keywords []string `yaml:"keywords"`
	// SortOrders for the search grid. Default: new, top, relevance.
	SortOrders []string `yaml:"sort_orders"`
	// TimeWindows for the search grid. Default: day, week, month, year, all.
	TimeWindows []string `yaml:"time_windows"`
	// PageSize per request. Default 100.
	PageSize int `yaml:"page_size"`
	// MaxPages caps pagination per query. Default 10.
	MaxPages int `yaml:"max_pages"`
	// ArchiveURL is an optional historical archive endpoint, swept in full
	// mode only.
	ArchiveURL string `yaml:"archive_url"`
	// VerifyURL is the rendered page checked by the browser pass. Empty
	// disables phase six.
	VerifyURL string `yaml:"verify_url"`
}

func (c *Config) defaults() {
	if len(c.SortOrders) == 0 {
		c.SortOrders = []string{"new", "top", "relevance"}
	}
	if len(c.TimeWindows) == 0 {
		c.TimeWindows = []string{"day", "week", "month", "year", "all"}
	}
	if c.PageSize <= 0 {
		c.PageSize = 100
	}
	if c.MaxPages <= 0 {
		c.MaxPages = 10
	}
}

// Source implements sources.Runner for the discussion site.
type Source struct {
	cfg      Config
	client   *sources.Client
	browsers *stealth.Manager
	anchors  []string
	log      *slog.Logger
}

// New builds the forum source. browsers may be nil to disable the
// verification phase.
func New(cfg Config, client *sources.Client, browsers *stealth.Manager, anchors []string, logger *slog.Logger) *Source {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{
		cfg:      cfg,
		client:   client,
		browsers: browsers,
		anchors:  anchors,
		log:      logger.With("source", Name),
	}
}

func (s *Source) Name() string { return Name }

// Collect runs the six-phase strategy. Phase failures are isolated by the
// run; Collect itself only returns an error for setup-level problems.
func (s *Source) Collect(ctx context.Context, run *ingest.Run) error {
	run.Phase(ctx, "priority-sweep", func(ctx context.Context) error {
		return s.prioritySweep(ctx, run)
	})
	run.Phase(ctx, "search-grid", func(ctx context.Context) error {
		return s.searchGrid(ctx, run)
	})
	run.Phase(ctx, "targeted-communities", func(ctx context.Context) error {
		return s.targetedCommunities(ctx, run)
	})
	run.Phase(ctx, "comment-search", func(ctx context.Context) error {
		return s.commentSearch(ctx, run)
	})
	if run.Mode() == ingest.ModeFull && s.cfg.ArchiveURL != "" {
		run.Phase(ctx, "archive-sweep", func(ctx context.Context) error {
			return s.archiveSweep(ctx, run)
		})
	}
	if s.cfg.VerifyURL != "" && s.browsers != nil {
		run.Phase(ctx, "browser-verify", func(ctx context.Context) error {
			return s.browserVerify(ctx, run)
		})
	}
	return nil
}

// --- Wire format ---

type listing struct {
	After string     `json:"after"`
	Items []wireItem `json:"items"`
}

type wireItem struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"` // post | comment
	Title     string `json:"title"`
	Author    string `json:"author"`
	Body      string `json:"body"`
	URL       string `json:"url"`
	Community string `json:"community"`
	CreatedAt int64  `json:"created_at"` // unix ms
}

func (s *Source) mention(w wireItem) *store.Mention {
	kind := w.Kind
	if kind == "" {
		kind = "post"
	}
	fp := dedup.Fingerprint(w.Title, w.Author)
	if kind == "comment" {
		fp = dedup.Fingerprint(w.Author, w.Body)
	}
	payload, _ := json.Marshal(w)
	return &store.Mention{
		Source:      Name,
		ExternalID:  w.ID,
		Kind:        kind,
		Title:       w.Title,
		Author:      w.Author,
		Content:     w.Body,
		URL:         w.URL,
		Community:   w.Community,
		ItemDate:    w.CreatedAt,
		Fingerprint: fp,
		PayloadJSON: string(payload),
	}
}

// paginate walks one query's `after`-token chain, offering every item. It
// stops at token exhaustion, the page cap, the run deadline, or (the early
// termination rule) a full page with zero items newer than the watermark.
func (s *Source) paginate(ctx context.Context, run *ingest.Run, buildURL func(after string) string) error {
	after := ""
	for page := 0; page < s.cfg.MaxPages; page++ {
		if run.Expired() {
			return nil
		}
		var l listing
		if err := s.client.GetJSON(ctx, run, buildURL(after), &l); err != nil {
			return err
		}
		if len(l.Items) == 0 {
			return nil
		}

		anyNewer := false
		for _, w := range l.Items {
			if run.NewerThanWatermark(w.CreatedAt) {
				anyNewer = true
			}
			if _, err := run.Offer(ctx, s.mention(w)); err != nil {
				return err
			}
		}
		if !anyNewer {
			// Everything on this page is at or behind the watermark; the
			// rest of the chain is assumed already known.
			return nil
		}
		if l.After == "" {
			return nil
		}
		after = l.After
	}
	return nil
}

// --- Phases ---

func (s *Source) prioritySweep(ctx context.Context, run *ingest.Run) error {
	for _, community := range s.cfg.PriorityCommunities {
		c := community
		err := s.paginate(ctx, run, func(after string) string {
			return fmt.Sprintf("%s/c/%s/new.json?limit=%d&after=%s",
				s.cfg.BaseURL, url.PathEscape(c), s.cfg.PageSize, url.QueryEscape(after))
		})
		if err != nil {
			return fmt.Errorf("community %s: %w", c, err)
		}
	}
	return nil
}

// searchGrid runs the keyword × sort × window cartesian product. Incremental
// mode trims it hard: one sort order, the two narrowest windows.
func (s *Source) searchGrid(ctx context.Context, run *ingest.Run) error {
	keywords := append(append([]string{}, s.cfg.Keywords...), s.anchors...)
	sorts := s.cfg.SortOrders
	windows := s.cfg.TimeWindows
	if run.Mode() == ingest.ModeIncremental {
		sorts = sorts[:1]
		if len(windows) > 2 {
			windows = windows[:2]
		}
	}

	for _, kw := range keywords {
		for _, sort := range sorts {
			for _, window := range windows {
				if run.Expired() {
					return nil
				}
				kw, sort, window := kw, sort, window
				err := s.paginate(ctx, run, func(after string) string {
					return fmt.Sprintf("%s/search.json?q=%s&sort=%s&t=%s&limit=%d&after=%s",
						s.cfg.BaseURL, url.QueryEscape(kw), sort, window, s.cfg.PageSize, url.QueryEscape(after))
				})
				if err != nil {
					return fmt.Errorf("search %q/%s/%s: %w", kw, sort, window, err)
				}
			}
		}
	}
	return nil
}

func (s *Source) targetedCommunities(ctx context.Context, run *ingest.Run) error {
	denied := make(map[string]bool, len(s.cfg.DenyCommunities))
	for _, d := range s.cfg.DenyCommunities {
		denied[strings.ToLower(d)] = true
	}
	for _, community := range s.cfg.AllowCommunities {
		if denied[strings.ToLower(community)] {
			continue
		}
		if run.Expired() {
			return nil
		}
		c := community
		err := s.paginate(ctx, run, func(after string) string {
			return fmt.Sprintf("%s/c/%s/new.json?limit=%d&after=%s",
				s.cfg.BaseURL, url.PathEscape(c), s.cfg.PageSize, url.QueryEscape(after))
		})
		if err != nil {
			return fmt.Errorf("community %s: %w", c, err)
		}
	}
	return nil
}

func (s *Source) commentSearch(ctx context.Context, run *ingest.Run) error {
	keywords := append(append([]string{}, s.cfg.Keywords...), s.anchors...)
	for _, kw := range keywords {
		if run.Expired() {
			return nil
		}
		kw := kw
		err := s.paginate(ctx, run, func(after string) string {
			return fmt.Sprintf("%s/comments/search.json?q=%s&limit=%d&after=%s",
				s.cfg.BaseURL, url.QueryEscape(kw), s.cfg.PageSize, url.QueryEscape(after))
		})
		if err != nil {
			return fmt.Errorf("comment search %q: %w", kw, err)
		}
	}
	return nil
}

// archiveSweep walks the historical archive endpoint, full mode only. The
// archive paginates by the same token scheme.
func (s *Source) archiveSweep(ctx context.Context, run *ingest.Run) error {
	keywords := append(append([]string{}, s.cfg.Keywords...), s.anchors...)
	for _, kw := range keywords {
		if run.Expired() {
			return nil
		}
		kw := kw
		err := s.paginate(ctx, run, func(after string) string {
			return fmt.Sprintf("%s?q=%s&limit=%d&after=%s",
				s.cfg.ArchiveURL, url.QueryEscape(kw), s.cfg.PageSize, url.QueryEscape(after))
		})
		if err != nil {
			return fmt.Errorf("archive %q: %w", kw, err)
		}
	}
	return nil
}

// extractScript pulls post summaries out of the rendered page as a typed
// JSON contract rather than ad-hoc selector poking.
const extractScript = `() => {
	const posts = [];
	document.querySelectorAll('[data-post-id]').forEach(el => {
		posts.push({
			id: el.getAttribute('data-post-id') || '',
			title: (el.querySelector('h3, .post-title')?.textContent || '').trim(),
			author: (el.querySelector('.author')?.textContent || '').trim(),
			url: el.querySelector('a')?.href || '',
			created_at: Number(el.getAttribute('data-created-ms') || 0),
		});
	});
	return JSON.stringify(posts);
}`

type domPost struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Author    string `json:"author"`
	URL       string `json:"url"`
	CreatedAt int64  `json:"created_at"`
}

// browserVerify loads the rendered site through a stealth session, scrolls
// like a reader, and offers whatever the DOM shows. This catches items the
// JSON surface hides from non-browser clients.
func (s *Source) browserVerify(ctx context.Context, run *ingest.Run) error {
	session, err := s.browsers.NewContext(ctx, Name)
	if err != nil {
		return err
	}
	defer session.Close()

	if err := session.WarmUp(ctx); err != nil {
		s.log.Debug("warmup failed, continuing", "error", err)
	}
	if err := session.Navigate(ctx, s.cfg.VerifyURL); err != nil {
		return err
	}
	run.CountCall()
	if err := session.Human.ScrollHuman(session.Page, 2000); err != nil {
		return err
	}

	res, err := session.Page.Eval(extractScript)
	if err != nil {
		return fmt.Errorf("extract posts: %w", err)
	}
	var posts []domPost
	if err := json.Unmarshal([]byte(res.Value.Str()), &posts); err != nil {
		return fmt.Errorf("decode extracted posts: %w", err)
	}

	for _, p := range posts {
		if p.ID == "" {
			continue
		}
		w := wireItem{
			ID:        p.ID,
			Kind:      "post",
			Title:     p.Title,
			Author:    p.Author,
			URL:       p.URL,
			CreatedAt: p.CreatedAt,
		}
		if _, err := run.Offer(ctx, s.mention(w)); err != nil {
			return err
		}
	}
	return nil
}
