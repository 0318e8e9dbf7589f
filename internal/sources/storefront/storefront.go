// CLAUDE:SUMMARY Marketplace review collector: token-paginated review API plus a stealth browser coverage pass.
// Package storefront collects product reviews from a software marketplace.
//
// The strategy is two-phase: structured review retrieval across the
// configured sort orders (the primary surface, richest metadata), then a
// stealth-browser pass over the rendered product page for coverage. On an
// identifier collision the primary item wins: it ran first, so the dedup
// ledger rejects the secondary copy.
package storefront

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/hazyhaar/mirador/internal/dedup"
	"github.com/hazyhaar/mirador/internal/ingest"
	"github.com/hazyhaar/mirador/internal/sources"
	"github.com/hazyhaar/mirador/internal/stealth"
	"github.com/hazyhaar/mirador/internal/store"
)

// Name is the source key used for cursors, budgets, and run logs.
const Name = "storefront"

// Config declares the marketplace endpoints.
type Config struct {
	// ReviewURL is the structured review endpoint.
	ReviewURL string `yaml:"review_url"`
	// ProductURL is the rendered product page for the browser pass. Empty
	// disables phase two.
	ProductURL string `yaml:"product_url"`
	// SortOrders walked by phase one. Default: newest, rating, helpfulness.
	SortOrders []string `yaml:"sort_orders"`
	// PageSize per request. Default 50.
	PageSize int `yaml:"page_size"`
	// MaxPages caps pagination per sort order. Default 20.
	MaxPages int `yaml:"max_pages"`
}

func (c *Config) defaults() {
	if len(c.SortOrders) == 0 {
		c.SortOrders = []string{"newest", "rating", "helpfulness"}
	}
	if c.PageSize <= 0 {
		c.PageSize = 50
	}
	if c.MaxPages <= 0 {
		c.MaxPages = 20
	}
}

// Source implements sources.Runner for the marketplace.
type Source struct {
	cfg      Config
	client   *sources.Client
	browsers *stealth.Manager
	log      *slog.Logger
}

// New builds the storefront source. browsers may be nil to disable the
// browser pass.
func New(cfg Config, client *sources.Client, browsers *stealth.Manager, logger *slog.Logger) *Source {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{cfg: cfg, client: client, browsers: browsers, log: logger.With("source", Name)}
}

func (s *Source) Name() string { return Name }

// Collect runs the two-phase strategy.
func (s *Source) Collect(ctx context.Context, run *ingest.Run) error {
	run.Phase(ctx, "review-api", func(ctx context.Context) error {
		return s.reviewAPI(ctx, run)
	})
	if s.cfg.ProductURL != "" && s.browsers != nil {
		run.Phase(ctx, "browser-coverage", func(ctx context.Context) error {
			return s.browserCoverage(ctx, run)
		})
	}
	return nil
}

// --- Wire format ---

type reviewPage struct {
	NextPageToken string       `json:"next_page_token"`
	Reviews       []wireReview `json:"reviews"`
}

type wireReview struct {
	ID        string `json:"id"`
	Author    string `json:"author"`
	Title     string `json:"title"`
	Body      string `json:"body"` // may carry HTML
	Rating    int    `json:"rating"`
	UpdatedAt int64  `json:"updated_at"` // unix ms
	URL       string `json:"url"`
}

// mention normalizes a review. The fingerprint binds author, content, date,
// and rating: marketplaces recycle review IDs across regions, so identity
// needs the content dimensions too.
func (s *Source) mention(w wireReview) *store.Mention {
	content := sources.ToMarkdown(w.Body, s.cfg.ReviewURL)
	stripped := sources.StripHTML(w.Body)
	payload, _ := json.Marshal(w)
	return &store.Mention{
		Source:      Name,
		ExternalID:  w.ID,
		Kind:        "review",
		Title:       w.Title,
		Author:      w.Author,
		Content:     content,
		URL:         w.URL,
		Rating:      w.Rating,
		ItemDate:    w.UpdatedAt,
		Fingerprint: dedup.Fingerprint(w.Author, stripped, strconv.FormatInt(w.UpdatedAt, 10), strconv.Itoa(w.Rating)),
		PayloadJSON: string(payload),
	}
}

// reviewAPI walks each sort order's token chain until exhaustion, the page
// cap, the deadline, or early termination at the watermark.
func (s *Source) reviewAPI(ctx context.Context, run *ingest.Run) error {
	for _, sort := range s.cfg.SortOrders {
		token := ""
		for page := 0; page < s.cfg.MaxPages; page++ {
			if run.Expired() {
				return nil
			}
			u := fmt.Sprintf("%s?sort=%s&page_size=%d&page_token=%s",
				s.cfg.ReviewURL, url.QueryEscape(sort), s.cfg.PageSize, url.QueryEscape(token))
			var rp reviewPage
			if err := s.client.GetJSON(ctx, run, u, &rp); err != nil {
				return fmt.Errorf("sort %s: %w", sort, err)
			}
			if len(rp.Reviews) == 0 {
				break
			}

			anyNewer := false
			for _, w := range rp.Reviews {
				if run.NewerThanWatermark(w.UpdatedAt) {
					anyNewer = true
				}
				if _, err := run.Offer(ctx, s.mention(w)); err != nil {
					return err
				}
			}
			if !anyNewer || rp.NextPageToken == "" {
				break
			}
			token = rp.NextPageToken
		}
	}
	return nil
}

// extractReviews pulls rendered reviews as a typed JSON contract.
const extractReviews = `() => {
	const reviews = [];
	document.querySelectorAll('[data-review-id]').forEach(el => {
		reviews.push({
			id: el.getAttribute('data-review-id') || '',
			author: (el.querySelector('.review-author')?.textContent || '').trim(),
			title: (el.querySelector('.review-title')?.textContent || '').trim(),
			body: el.querySelector('.review-body')?.innerHTML || '',
			rating: Number(el.getAttribute('data-rating') || 0),
			updated_at: Number(el.getAttribute('data-updated-ms') || 0),
		});
	});
	return JSON.stringify(reviews);
}`

// browserCoverage loads the product page through a stealth session and
// offers whatever reviews the DOM shows. Items already seen via the API are
// rejected by the ledger, which is exactly the primary-wins merge.
func (s *Source) browserCoverage(ctx context.Context, run *ingest.Run) error {
	session, err := s.browsers.NewContext(ctx, Name)
	if err != nil {
		return err
	}
	defer session.Close()

	if err := session.WarmUp(ctx); err != nil {
		s.log.Debug("warmup failed, continuing", "error", err)
	}
	if err := session.Navigate(ctx, s.cfg.ProductURL); err != nil {
		return err
	}
	run.CountCall()
	if err := session.Human.ScrollHuman(session.Page, 3000); err != nil {
		return err
	}

	res, err := session.Page.Eval(extractReviews)
	if err != nil {
		return fmt.Errorf("extract reviews: %w", err)
	}
	var reviews []wireReview
	if err := json.Unmarshal([]byte(res.Value.Str()), &reviews); err != nil {
		return fmt.Errorf("decode extracted reviews: %w", err)
	}

	for _, w := range reviews {
		if w.ID == "" {
			continue
		}
		if _, err := run.Offer(ctx, s.mention(w)); err != nil {
			return err
		}
	}
	return nil
}
