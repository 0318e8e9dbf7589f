// CLAUDE:SUMMARY Shared stealth browser lifecycle: lazy launch, liveness relaunch, per-run incognito sessions.
// Package stealth manages the shared headless browser and hands out
// per-run browsing sessions hardened against automation fingerprinting.
//
// One rod browser is shared across all sources, launched lazily on first
// use and relaunched transparently when the connection is found dead. Each
// run gets an exclusive incognito session carrying a randomized but
// internally consistent fingerprint, the stealth evasion bundle, and the
// source's persisted cookies.
package stealth

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	rodstealth "github.com/go-rod/stealth"
)

// Config configures the session manager.
type Config struct {
	// RemoteURL is the WebSocket URL of an external Chrome. Empty = launch
	// a local one via launcher.
	RemoteURL string

	// Headful disables headless mode (debugging).
	Headful bool

	// Proxy is an optional proxy URL applied at launch.
	Proxy string

	// CookieDir holds the per-source cookie jars.
	CookieDir string

	// WarmupURLs are neutral pages visited before real work so a fresh
	// session does not land on the target with an empty history.
	WarmupURLs []string

	// NavTimeout bounds each navigation. Default: 45s.
	NavTimeout time.Duration

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.NavTimeout <= 0 {
		c.NavTimeout = 45 * time.Second
	}
	if c.CookieDir == "" {
		c.CookieDir = "data/cookies"
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Manager owns the shared browser. Safe for concurrent use.
type Manager struct {
	cfg Config

	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	closed  bool

	rnd   *rand.Rand // guarded by mu; sessions draw derived generators
	sleep func(d time.Duration)
}

// NewManager creates a Manager. The browser launches lazily on the first
// NewContext call.
func NewManager(cfg Config) *Manager {
	cfg.defaults()
	return &Manager{
		cfg:   cfg,
		rnd:   rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep: time.Sleep,
	}
}

// acquire returns a live browser, launching or relaunching as needed.
func (m *Manager) acquire(ctx context.Context) (*rod.Browser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, fmt.Errorf("stealth: manager is closed")
	}
	if m.browser != nil {
		// Liveness probe: a dead connection fails fast here instead of
		// mid-run.
		if _, err := m.browser.Version(); err == nil {
			return m.browser, nil
		}
		m.cfg.Logger.Warn("stealth: browser connection dead, relaunching")
		m.cleanupLocked()
	}

	b, err := m.launch(ctx)
	if err != nil {
		return nil, err
	}
	m.browser = b
	return b, nil
}

func (m *Manager) launch(ctx context.Context) (*rod.Browser, error) {
	log := m.cfg.Logger

	var wsURL string
	if m.cfg.RemoteURL != "" {
		wsURL = m.cfg.RemoteURL
		log.Info("stealth: connecting to remote browser", "url", wsURL)
	} else {
		l := launcher.New().Headless(!m.cfg.Headful)

		// Anti-detection flags.
		l = l.Set("disable-blink-features", "AutomationControlled")

		if m.cfg.Proxy != "" {
			l = l.Proxy(m.cfg.Proxy)
		}

		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("stealth: launch: %w", err)
		}
		wsURL = u
		m.lnch = l
		log.Info("stealth: launched local chrome", "headful", m.cfg.Headful)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("stealth: connect: %w", err)
	}
	if err := b.IgnoreCertErrors(true); err != nil {
		log.Warn("stealth: ignore cert errors failed", "error", err)
	}
	return b, nil
}

// Close shuts the shared browser down. Idempotent.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.cleanupLocked()
	return nil
}

func (m *Manager) cleanupLocked() {
	if m.browser != nil {
		m.browser.Close()
		m.browser = nil
	}
	if m.lnch != nil {
		m.lnch.Cleanup()
		m.lnch = nil
	}
}

// newSessionRand derives an independent generator for one session. Runs for
// different sources can overlap, and *rand.Rand is not safe for concurrent
// use, so the manager's generator is only touched under the lock and each
// session gets its own.
func (m *Manager) newSessionRand() *rand.Rand {
	m.mu.Lock()
	seed := m.rnd.Int63()
	m.mu.Unlock()
	return rand.New(rand.NewSource(seed))
}

// Session is an exclusive browsing context for one run. Always Close it at
// run end, success or failure, to prevent state leaking between runs.
type Session struct {
	Page  *rod.Page
	Human *Humanizer

	m      *Manager
	inc    *rod.Browser
	fp     Fingerprint
	rnd    *rand.Rand
	source string
}

// NewContext creates a hardened incognito session for a source: random
// fingerprint from the pools, stealth bundle plus navigator overrides on
// every new document, and the source's persisted cookies.
func (m *Manager) NewContext(ctx context.Context, source string) (*Session, error) {
	b, err := m.acquire(ctx)
	if err != nil {
		return nil, err
	}

	inc, err := b.Incognito()
	if err != nil {
		return nil, fmt.Errorf("stealth: incognito context: %w", err)
	}

	if cookies, err := LoadCookies(m.cfg.CookieDir, source); err != nil {
		m.cfg.Logger.Warn("stealth: cookie load failed", "source", source, "error", err)
	} else if len(cookies) > 0 {
		if err := inc.SetCookies(cookies); err != nil {
			m.cfg.Logger.Warn("stealth: cookie restore failed", "source", source, "error", err)
		}
	}

	page, err := rodstealth.Page(inc)
	if err != nil {
		return nil, fmt.Errorf("stealth: create page: %w", err)
	}

	rnd := m.newSessionRand()
	fp := PickFingerprint(rnd.Intn)
	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent:      fp.UserAgent,
		AcceptLanguage: "en-US,en;q=0.9",
		Platform:       fp.Platform,
	}); err != nil {
		page.Close()
		return nil, fmt.Errorf("stealth: set user agent: %w", err)
	}
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             fp.ViewportW,
		Height:            fp.ViewportH,
		DeviceScaleFactor: 1,
	}); err != nil {
		page.Close()
		return nil, fmt.Errorf("stealth: set viewport: %w", err)
	}
	if _, err := page.EvalOnNewDocument(fp.InitScript()); err != nil {
		page.Close()
		return nil, fmt.Errorf("stealth: init script: %w", err)
	}

	return &Session{
		Page: page,
		Human: &Humanizer{
			Rand01: rnd.Float64,
			Sleep:  m.sleep,
		},
		m:      m,
		inc:    inc,
		fp:     fp,
		rnd:    rnd,
		source: source,
	}, nil
}

// Navigate loads a URL with the configured navigation timeout and waits for
// the load event.
func (s *Session) Navigate(ctx context.Context, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, s.m.cfg.NavTimeout)
	defer cancel()
	page := s.Page.Context(navCtx)
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("stealth: navigate %s: %w", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("stealth: wait load %s: %w", url, err)
	}
	return nil
}

// WarmUp visits one or two neutral seed URLs with a short human-like scroll
// so the session acquires history and timing noise before the target.
func (s *Session) WarmUp(ctx context.Context) error {
	urls := s.m.cfg.WarmupURLs
	if len(urls) == 0 {
		return nil
	}
	n := 1
	if len(urls) > 1 && s.Human.rand01() < 0.5 {
		n = 2
	}
	for i := 0; i < n; i++ {
		u := urls[s.rnd.Intn(len(urls))]
		if err := s.Navigate(ctx, u); err != nil {
			return err
		}
		if err := s.Human.ScrollHuman(s.Page, 400+s.Human.rand01()*600); err != nil {
			return err
		}
	}
	return nil
}

// SaveCookies persists the session's cookie jar for the source.
func (s *Session) SaveCookies() error {
	cookies, err := s.inc.GetCookies()
	if err != nil {
		return fmt.Errorf("stealth: get cookies: %w", err)
	}
	return SaveCookies(s.m.cfg.CookieDir, s.source, cookies)
}

// Close saves cookies best-effort and tears down the browsing context.
func (s *Session) Close() {
	if err := s.SaveCookies(); err != nil {
		s.m.cfg.Logger.Debug("stealth: cookie save on close failed", "source", s.source, "error", err)
	}
	s.Page.Close()
	// Dispose the incognito context so nothing leaks into the next run.
	_ = proto.TargetDisposeBrowserContext{BrowserContextID: s.inc.BrowserContextID}.Call(s.inc)
}
