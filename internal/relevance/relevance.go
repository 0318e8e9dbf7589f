// CLAUDE:SUMMARY Brand-relevance classifier: anchor derivation, strict/balanced modes, exclusion vetoes.
// Package relevance classifies raw text as brand-relevant.
//
// Strict mode trusts only strong anchors (domain-, path-, or app-id-shaped
// strings) with term fallbacks when none are configured. Balanced mode
// additionally accepts the bare brand keyword when a context keyword
// co-occurs, subject to exclusion-pattern vetoes. Strict matches are never
// vetoed: an anchor hit is unambiguous.
package relevance

import (
	"fmt"
	"regexp"
	"strings"
)

// Mode selects the matching policy.
type Mode string

const (
	ModeStrict   Mode = "strict"
	ModeBalanced Mode = "balanced"
)

// Config declares the brand vocabulary.
type Config struct {
	// Brand is the bare brand keyword (balanced mode requirement).
	Brand string `yaml:"brand"`
	// Terms are exact required terms (anchors and plain names mixed).
	Terms []string `yaml:"terms"`
	// GenericTerms are last-resort search terms, used only when no anchor
	// and no plain term is configured.
	GenericTerms []string `yaml:"generic_terms"`
	// ContextKeywords qualify a bare brand keyword in balanced mode.
	ContextKeywords []string `yaml:"context_keywords"`
	// ExcludePatterns are regexps vetoing balanced accepts (homonyms,
	// unrelated communities, slang).
	ExcludePatterns []string `yaml:"exclude_patterns"`
	// AlwaysIncludeSources bypass filtering entirely (first-party communities).
	AlwaysIncludeSources []string `yaml:"always_include_sources"`
	// Mode is "strict" or "balanced". Default: balanced.
	Mode Mode `yaml:"mode"`
}

func (c *Config) defaults() {
	if c.Mode == "" {
		c.Mode = ModeBalanced
	}
}

// AnchorSet is the derived brand vocabulary, computed once per run.
type AnchorSet struct {
	RequiredTerms []string
	StrongAnchors []string
	GenericTerms  []string
}

var (
	// domain.tld, domain.tld/path, reverse-DNS app ids, marketplace numeric ids.
	domainShape = regexp.MustCompile(`^[a-z0-9-]+(\.[a-z0-9-]+)+(/\S*)?$`)
	appIDShape  = regexp.MustCompile(`^id\d{4,}$`)
)

// DeriveAnchors splits configured terms into strong anchors and plain terms.
func DeriveAnchors(cfg Config) AnchorSet {
	set := AnchorSet{GenericTerms: cfg.GenericTerms}
	for _, t := range cfg.Terms {
		lt := strings.ToLower(strings.TrimSpace(t))
		if lt == "" {
			continue
		}
		if domainShape.MatchString(lt) || appIDShape.MatchString(lt) || strings.Contains(lt, "/") {
			set.StrongAnchors = append(set.StrongAnchors, lt)
		} else {
			set.RequiredTerms = append(set.RequiredTerms, lt)
		}
	}
	return set
}

// Filter is an immutable classifier for one run.
type Filter struct {
	cfg      Config
	anchors  AnchorSet
	excludes []*regexp.Regexp
	always   map[string]bool
}

// New compiles a Filter. Invalid exclusion patterns fail construction;
// configuration errors are startup-fatal by policy.
func New(cfg Config) (*Filter, error) {
	cfg.defaults()
	f := &Filter{
		cfg:     cfg,
		anchors: DeriveAnchors(cfg),
		always:  make(map[string]bool, len(cfg.AlwaysIncludeSources)),
	}
	for _, p := range cfg.ExcludePatterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("relevance: exclude pattern %q: %w", p, err)
		}
		f.excludes = append(f.excludes, re)
	}
	for _, s := range cfg.AlwaysIncludeSources {
		f.always[strings.ToLower(s)] = true
	}
	return f, nil
}

// Anchors exposes the derived anchor set (for building search grids).
func (f *Filter) Anchors() AnchorSet {
	return f.anchors
}

// AlwaysInclude reports whether a community/source bypasses filtering.
func (f *Filter) AlwaysInclude(community string) bool {
	return f.always[strings.ToLower(community)]
}

// Match classifies text. The reason string names the accepting or rejecting
// rule for stats and debug logging.
func (f *Filter) Match(text string) (bool, string) {
	lower := strings.ToLower(text)

	// Strict matching runs first in both modes; its accepts are final.
	if ok, reason := f.matchStrict(lower); ok {
		return true, reason
	}
	if f.cfg.Mode == ModeStrict {
		return false, "no-anchor"
	}

	// Balanced: bare brand keyword AND at least one context keyword.
	brand := strings.ToLower(f.cfg.Brand)
	if brand == "" || !strings.Contains(lower, brand) {
		return false, "no-brand-keyword"
	}
	hasContext := false
	for _, kw := range f.cfg.ContextKeywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			hasContext = true
			break
		}
	}
	if !hasContext {
		return false, "no-context-keyword"
	}

	// Exclusions veto balanced accepts only.
	for _, re := range f.excludes {
		if re.MatchString(text) {
			return false, "excluded:" + re.String()
		}
	}
	return true, "balanced"
}

// matchStrict applies the anchor → required-term → generic-term fallback chain.
// Each tier is consulted only when the preceding tier has nothing configured.
func (f *Filter) matchStrict(lower string) (bool, string) {
	if len(f.anchors.StrongAnchors) > 0 {
		for _, a := range f.anchors.StrongAnchors {
			if strings.Contains(lower, a) {
				return true, "anchor"
			}
		}
		return false, ""
	}
	if len(f.anchors.RequiredTerms) > 0 {
		for _, t := range f.anchors.RequiredTerms {
			if containsWord(lower, t) {
				return true, "term"
			}
		}
		return false, ""
	}
	for _, t := range f.anchors.GenericTerms {
		if strings.Contains(lower, strings.ToLower(t)) {
			return true, "generic"
		}
	}
	return false, ""
}

// containsWord is a substring check with word-ish boundaries, so the term
// "brand" does not match "branding".
func containsWord(haystack, needle string) bool {
	idx := 0
	for {
		i := strings.Index(haystack[idx:], needle)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(needle)
		beforeOK := start == 0 || !isWordByte(haystack[start-1])
		afterOK := end == len(haystack) || !isWordByte(haystack[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9' || b == '_'
}
