// CLAUDE:SUMMARY Browser fingerprint pools and the navigator-override init script.
package stealth

import (
	"fmt"
	"strings"
)

// Fingerprint is one coherent browser identity: the user agent, viewport,
// and the navigator properties derived from them. Derived fields must stay
// consistent with the UA or the mismatch itself becomes a detection signal.
type Fingerprint struct {
	UserAgent           string
	ViewportW           int
	ViewportH           int
	Platform            string
	HardwareConcurrency int
	DeviceMemory        int
	Languages           []string
}

// Fixed pools of realistic desktop identities. Kept small and current-ish:
// a rare UA string is more suspicious than a common one.
var uaPool = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
}

var viewportPool = [][2]int{
	{1920, 1080},
	{1536, 864},
	{1440, 900},
	{1366, 768},
	{2560, 1440},
}

var concurrencyPool = []int{4, 8, 12, 16}
var memoryPool = []int{4, 8}

// PickFingerprint assembles a random identity from the pools. rnd(n) must
// return a value in [0, n).
func PickFingerprint(rnd func(n int) int) Fingerprint {
	ua := uaPool[rnd(len(uaPool))]
	vp := viewportPool[rnd(len(viewportPool))]
	return Fingerprint{
		UserAgent:           ua,
		ViewportW:           vp[0],
		ViewportH:           vp[1],
		Platform:            platformFor(ua),
		HardwareConcurrency: concurrencyPool[rnd(len(concurrencyPool))],
		DeviceMemory:        memoryPool[rnd(len(memoryPool))],
		Languages:           []string{"en-US", "en"},
	}
}

// platformFor derives navigator.platform from the UA string so the two
// never disagree.
func platformFor(ua string) string {
	switch {
	case strings.Contains(ua, "Windows"):
		return "Win32"
	case strings.Contains(ua, "Macintosh"):
		return "MacIntel"
	default:
		return "Linux x86_64"
	}
}

// InitScript returns the navigator-override script evaluated on every new
// document, layered on top of the stealth bundle. It masks the webdriver
// flag, fakes a plugin list, pins languages and hardware properties to the
// chosen identity, and patches the permissions probe that headless Chrome
// answers inconsistently.
func (f Fingerprint) InitScript() string {
	langs := `"` + strings.Join(f.Languages, `", "`) + `"`
	return fmt.Sprintf(`
Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
Object.defineProperty(navigator, 'plugins', { get: () => [1, 2, 3, 4, 5] });
Object.defineProperty(navigator, 'languages', { get: () => [%s] });
Object.defineProperty(navigator, 'platform', { get: () => '%s' });
Object.defineProperty(navigator, 'hardwareConcurrency', { get: () => %d });
Object.defineProperty(navigator, 'deviceMemory', { get: () => %d });
const origQuery = window.navigator.permissions.query;
window.navigator.permissions.query = (parameters) => (
	parameters.name === 'notifications'
		? Promise.resolve({ state: Notification.permission })
		: origQuery(parameters)
);
`, langs, f.Platform, f.HardwareConcurrency, f.DeviceMemory)
}
