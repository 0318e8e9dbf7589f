package relevance

import "testing"

func mustFilter(t *testing.T, cfg Config) *Filter {
	t.Helper()
	f, err := New(cfg)
	if err != nil {
		t.Fatalf("new filter: %v", err)
	}
	return f
}

func TestDeriveAnchors_SplitsShapes(t *testing.T) {
	// WHAT: Domain-, path- and app-id-shaped terms become strong anchors; plain words stay terms.
	// WHY: Anchor-shaped strings are low-ambiguity and get matching priority.
	set := DeriveAnchors(Config{
		Terms:        []string{"brand.co", "brand.co/app", "id1234567", "com.brand.app", "brand"},
		GenericTerms: []string{"brand app review"},
	})
	if len(set.StrongAnchors) != 4 {
		t.Errorf("strong anchors = %v, want 4 entries", set.StrongAnchors)
	}
	if len(set.RequiredTerms) != 1 || set.RequiredTerms[0] != "brand" {
		t.Errorf("required terms = %v, want [brand]", set.RequiredTerms)
	}
	if len(set.GenericTerms) != 1 {
		t.Errorf("generic terms = %v", set.GenericTerms)
	}
}

func TestMatch_Strict_AnchorSubstring(t *testing.T) {
	// WHAT: Strict mode accepts text containing an anchor and rejects near-miss words.
	// WHY: "check brand.co/id123 out" must match while "I love branding" must not.
	f := mustFilter(t, Config{
		Brand: "brand",
		Terms: []string{"brand.co/id123"},
		Mode:  ModeStrict,
	})
	if ok, _ := f.Match("check brand.co/id123 out"); !ok {
		t.Error("anchor substring should match")
	}
	if ok, reason := f.Match("I love branding"); ok {
		t.Errorf("near-miss word matched (%s)", reason)
	}
}

func TestMatch_Strict_FallbackToTermsWhenNoAnchors(t *testing.T) {
	// WHAT: Without anchors, strict mode falls back to whole-word required terms.
	// WHY: The fallback chain is anchors, then terms, then generic terms.
	f := mustFilter(t, Config{Terms: []string{"brand"}, Mode: ModeStrict})
	if ok, _ := f.Match("the brand app crashed"); !ok {
		t.Error("required term should match as a word")
	}
	if ok, _ := f.Match("rebranding discussion"); ok {
		t.Error("term must not match inside another word")
	}
}

func TestMatch_Strict_AnchorsSuppressTermFallback(t *testing.T) {
	// WHAT: When anchors exist, a plain-term hit alone is not enough in strict mode.
	// WHY: Configured anchors define the high-confidence contract; terms only
	// apply when no anchor is available.
	f := mustFilter(t, Config{
		Terms: []string{"brand.co", "brand"},
		Mode:  ModeStrict,
	})
	if ok, _ := f.Match("I use brand daily"); ok {
		t.Error("plain term should not match while anchors are configured")
	}
	if ok, _ := f.Match("see brand.co for details"); !ok {
		t.Error("anchor should match")
	}
}

func TestMatch_Balanced_RequiresContextKeyword(t *testing.T) {
	// WHAT: Balanced mode accepts brand+context, rejects bare brand without context.
	// WHY: A bare keyword with no anchor and no qualifier is a false-positive risk.
	f := mustFilter(t, Config{
		Brand:           "brand",
		Terms:           []string{"brand.co/id123"},
		ContextKeywords: []string{"app", "tracker"},
		Mode:            ModeBalanced,
	})
	if ok, _ := f.Match("brand is everywhere these days"); ok {
		t.Error("bare keyword without context should be rejected")
	}
	if ok, _ := f.Match("the brand app is great"); !ok {
		t.Error("keyword plus context keyword should be accepted")
	}
}

func TestMatch_Balanced_StrictHitBypassesExclusion(t *testing.T) {
	// WHAT: Exclusion patterns veto balanced accepts but never anchor accepts.
	// WHY: An anchor hit is unambiguous; vetoing it would drop true positives.
	f := mustFilter(t, Config{
		Brand:           "brand",
		Terms:           []string{"brand.co"},
		ContextKeywords: []string{"app"},
		ExcludePatterns: []string{`vintage\s+brand`},
		Mode:            ModeBalanced,
	})
	if ok, reason := f.Match("vintage brand app collectors"); ok {
		t.Errorf("excluded balanced match accepted (%s)", reason)
	}
	if ok, _ := f.Match("vintage brand app at brand.co"); !ok {
		t.Error("anchor hit must survive exclusion patterns")
	}
}

func TestNew_InvalidExcludePattern_Fails(t *testing.T) {
	// WHAT: A malformed exclusion regexp fails Filter construction.
	// WHY: Configuration validation failures are startup-fatal by policy.
	if _, err := New(Config{ExcludePatterns: []string{"("}}); err == nil {
		t.Error("expected error for invalid pattern")
	}
}

func TestAlwaysInclude_CaseInsensitive(t *testing.T) {
	// WHAT: Always-include source lookup ignores case.
	// WHY: Community names arrive in mixed case from different endpoints.
	f := mustFilter(t, Config{AlwaysIncludeSources: []string{"BrandCommunity"}})
	if !f.AlwaysInclude("brandcommunity") {
		t.Error("expected case-insensitive always-include")
	}
	if f.AlwaysInclude("othercommunity") {
		t.Error("unlisted community should not bypass filtering")
	}
}
