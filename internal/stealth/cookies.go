// CLAUDE:SUMMARY Per-source cookie persistence as JSON files, loaded at context creation and saved at teardown.
package stealth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-rod/rod/lib/proto"
)

// cookieFile maps a source name to its cookie jar path.
func cookieFile(dir, source string) string {
	return filepath.Join(dir, source+".cookies.json")
}

// LoadCookies reads the stored cookie jar for a source. A missing file is
// not an error: the source simply starts with no session.
func LoadCookies(dir, source string) ([]*proto.NetworkCookieParam, error) {
	data, err := os.ReadFile(cookieFile(dir, source))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stealth: read cookies %s: %w", source, err)
	}
	var cookies []*proto.NetworkCookieParam
	if err := json.Unmarshal(data, &cookies); err != nil {
		return nil, fmt.Errorf("stealth: parse cookies %s: %w", source, err)
	}
	return cookies, nil
}

// SaveCookies writes a source's cookie jar. Single writer per source is
// assumed; there is no cross-process locking.
func SaveCookies(dir, source string, cookies []*proto.NetworkCookie) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("stealth: cookie dir: %w", err)
	}
	params := make([]*proto.NetworkCookieParam, 0, len(cookies))
	for _, c := range cookies {
		params = append(params, &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: c.SameSite,
		})
	}
	data, err := json.MarshalIndent(params, "", "  ")
	if err != nil {
		return fmt.Errorf("stealth: marshal cookies %s: %w", source, err)
	}
	if err := os.WriteFile(cookieFile(dir, source), data, 0o600); err != nil {
		return fmt.Errorf("stealth: write cookies %s: %w", source, err)
	}
	return nil
}
