// CLAUDE:SUMMARY Source contract plus the governed, retried HTTP client shared by all collectors.
// Package sources defines the collector contract and the shared HTTP
// plumbing. Every network call a collector makes goes through the rate
// governor and the retry executor, one request at a time, so the aggregate
// request rate stays observable and controllable.
package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hazyhaar/mirador/internal/govern"
	"github.com/hazyhaar/mirador/internal/ingest"
	"github.com/hazyhaar/mirador/internal/retry"
)

// maxBodyBytes caps response reads; external sources are not trusted to be
// well behaved.
const maxBodyBytes = 10 * 1024 * 1024

// Runner is one collectable source. Collect drives the multi-phase
// strategy against the given run and must route every item through
// run.Offer and every phase through run.Phase.
type Runner interface {
	Name() string
	Collect(ctx context.Context, run *ingest.Run) error
}

// NewHTTPClient builds the shared HTTP client: bounded timeout and a
// redirect cap so a misbehaving endpoint cannot loop us.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return fmt.Errorf("sources: too many redirects")
			}
			return nil
		},
	}
}

// StatusError is a non-2xx response. Rate-limit statuses are surfaced
// distinctly so callers can count them.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("sources: http %d from %s", e.Code, e.URL)
}

// RateLimited reports whether the status indicates throttling or blocking.
func (e *StatusError) RateLimited() bool {
	return e.Code == http.StatusTooManyRequests || e.Code == http.StatusForbidden
}

// Client issues governed, retried requests for one source.
type Client struct {
	HTTP      *http.Client
	Governor  *govern.Governor
	Source    string
	UserAgent string
	// MaxRetries per request. Default 3.
	MaxRetries int
}

// Fetch performs one GET with rate governance and retries, returning the
// response body. Each attempt acquires a token first, so retries after a
// backoff-inflating failure wait proportionally longer.
func (c *Client) Fetch(ctx context.Context, run *ingest.Run, url string, accept string) ([]byte, error) {
	op := func(ctx context.Context) ([]byte, error) {
		if err := c.Governor.Acquire(ctx, c.Source); err != nil {
			return nil, err
		}
		run.CountCall()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("sources: new request: %w", err)
		}
		if c.UserAgent != "" {
			req.Header.Set("User-Agent", c.UserAgent)
		}
		if accept != "" {
			req.Header.Set("Accept", accept)
		}

		resp, err := c.HTTP.Do(req)
		if err != nil {
			return nil, fmt.Errorf("sources: http: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			serr := &StatusError{Code: resp.StatusCode, URL: url}
			if serr.RateLimited() {
				run.CountRateLimitHit()
			}
			return nil, serr
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return nil, fmt.Errorf("sources: read body: %w", err)
		}
		return body, nil
	}

	return retry.Do(ctx, retry.Config{
		MaxRetries: c.MaxRetries,
		Source:     c.Source,
		Reporter:   c.Governor,
	}, op)
}

// GetJSON fetches a URL and decodes its JSON body into out.
func (c *Client) GetJSON(ctx context.Context, run *ingest.Run, url string, out any) error {
	body, err := c.Fetch(ctx, run, url, "application/json")
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("sources: json decode %s: %w", url, err)
	}
	return nil
}
