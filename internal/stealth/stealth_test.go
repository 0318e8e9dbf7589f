package stealth

import (
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/proto"
)

func TestPickFingerprint_PlatformMatchesUserAgent(t *testing.T) {
	// WHAT: For every UA in the pool, the derived platform agrees with the
	// OS named in the UA string.
	// WHY: A Windows UA reporting navigator.platform "Linux x86_64" is a
	// textbook automation tell.
	for i := range uaPool {
		idx := i
		fp := PickFingerprint(func(n int) int { return idx % n })
		switch {
		case strings.Contains(fp.UserAgent, "Windows") && fp.Platform != "Win32":
			t.Errorf("ua %q got platform %q", fp.UserAgent, fp.Platform)
		case strings.Contains(fp.UserAgent, "Macintosh") && fp.Platform != "MacIntel":
			t.Errorf("ua %q got platform %q", fp.UserAgent, fp.Platform)
		case strings.Contains(fp.UserAgent, "X11") && fp.Platform != "Linux x86_64":
			t.Errorf("ua %q got platform %q", fp.UserAgent, fp.Platform)
		}
	}
}

func TestInitScript_CarriesIdentityOverrides(t *testing.T) {
	// WHAT: The init script pins webdriver, platform, concurrency, and memory
	// to the chosen identity.
	// WHY: The overrides must reflect the picked fingerprint, not defaults.
	fp := Fingerprint{
		Platform:            "MacIntel",
		HardwareConcurrency: 8,
		DeviceMemory:        4,
		Languages:           []string{"en-US", "en"},
	}
	js := fp.InitScript()
	for _, want := range []string{
		"'webdriver'",
		"'MacIntel'",
		"hardwareConcurrency', { get: () => 8",
		"deviceMemory', { get: () => 4",
		`"en-US", "en"`,
		"permissions.query",
	} {
		if !strings.Contains(js, want) {
			t.Errorf("init script missing %q", want)
		}
	}
}

func TestBezierPoint_EndpointsAndMidpoint(t *testing.T) {
	// WHAT: The curve starts at p0, ends at p2, and at t=0.5 sits between
	// the endpoints, pulled toward the control point.
	// WHY: Broken path math would make the pointer jump, which is worse
	// than a straight line.
	p0 := proto.Point{X: 0, Y: 0}
	p1 := proto.Point{X: 50, Y: 100}
	p2 := proto.Point{X: 100, Y: 0}

	if got := bezierPoint(p0, p1, p2, 0); got != p0 {
		t.Errorf("t=0: got %+v, want %+v", got, p0)
	}
	if got := bezierPoint(p0, p1, p2, 1); got != p2 {
		t.Errorf("t=1: got %+v, want %+v", got, p2)
	}
	mid := bezierPoint(p0, p1, p2, 0.5)
	if mid.X != 50 || mid.Y != 50 {
		t.Errorf("t=0.5: got %+v, want {50 50}", mid)
	}
}

func TestBezierPoint_XMonotonicAcrossSteps(t *testing.T) {
	// WHAT: With a control point between the endpoints, x advances
	// monotonically as t grows.
	// WHY: The pointer should always progress toward the target.
	p0 := proto.Point{X: 10, Y: 10}
	p2 := proto.Point{X: 400, Y: 300}
	ctrl := bezierControl(p0, p2, 0.7)

	prev := p0.X - 1
	for i := 0; i <= 20; i++ {
		p := bezierPoint(p0, ctrl, p2, float64(i)/20)
		if p.X < prev {
			t.Fatalf("x regressed at step %d: %v < %v", i, p.X, prev)
		}
		prev = p.X
	}
}

func TestCookies_RoundTripThroughFile(t *testing.T) {
	// WHAT: Cookies saved for a source load back with the same fields;
	// a source without a jar loads nil without error.
	// WHY: Cookie files are the only cross-run session state.
	dir := t.TempDir()

	got, err := LoadCookies(dir, "forum")
	if err != nil {
		t.Fatalf("load missing jar: %v", err)
	}
	if got != nil {
		t.Fatalf("missing jar returned %v, want nil", got)
	}

	in := []*proto.NetworkCookie{
		{Name: "session", Value: "abc123", Domain: ".example.com", Path: "/", Secure: true, HTTPOnly: true},
		{Name: "pref", Value: "dark", Domain: ".example.com", Path: "/"},
	}
	if err := SaveCookies(dir, "forum", in); err != nil {
		t.Fatalf("SaveCookies: %v", err)
	}

	got, err = LoadCookies(dir, "forum")
	if err != nil {
		t.Fatalf("LoadCookies: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("loaded %d cookies, want 2", len(got))
	}
	if got[0].Name != "session" || got[0].Value != "abc123" || !got[0].Secure {
		t.Errorf("cookie[0] = %+v", got[0])
	}

	// Jars are per source.
	other, err := LoadCookies(dir, "storefront")
	if err != nil || other != nil {
		t.Errorf("other source jar = %v, %v; want nil, nil", other, err)
	}
}

func TestNewSessionRand_IndependentAcrossConcurrentSessions(t *testing.T) {
	// WHAT: Generators handed to concurrent sessions can be driven in
	// parallel without touching shared rand state.
	// WHY: Sources run as concurrent tasks and a *rand.Rand is not safe for
	// concurrent use; sessions must never share one.
	m := NewManager(Config{Logger: slog.New(slog.DiscardHandler)})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rnd := m.newSessionRand()
			for j := 0; j < 1000; j++ {
				rnd.Float64()
				rnd.Intn(10)
			}
		}()
	}
	wg.Wait()
}

func TestHumanizer_PauseBounds(t *testing.T) {
	// WHAT: pause sleeps within [min, max] for any injected randomness.
	// WHY: Out-of-range delays would either stall runs or defeat the
	// human-timing camouflage.
	for _, r := range []float64{0, 0.25, 0.999} {
		var slept time.Duration
		h := &Humanizer{
			Rand01: func() float64 { return r },
			Sleep:  func(d time.Duration) { slept = d },
		}
		lo, hi := 40*time.Millisecond, 180*time.Millisecond
		h.pause(lo, hi)
		if slept < lo || slept > hi {
			t.Errorf("rand=%v slept %v, want within [%v, %v]", r, slept, lo, hi)
		}
	}
}
