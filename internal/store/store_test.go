package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/hazyhaar/mirador/internal/dbopen"

	_ "modernc.org/sqlite"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db := dbopen.OpenMemory(t)
	if err := ApplySchema(db); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	s := NewStore(db)
	var seq int
	s.newID = func() string { seq++; return fmt.Sprintf("id-%04d", seq) }
	return s
}

func mention(source, extID string, itemDate int64) *Mention {
	return &Mention{
		Source:     source,
		ExternalID: extID,
		Kind:       "post",
		Title:      "title " + extID,
		Content:    "content " + extID,
		ItemDate:   itemDate,
	}
}

func TestGetCursor_Missing_ReturnsNil(t *testing.T) {
	// WHAT: A source with no cursor row returns nil, nil.
	// WHY: Absence of a cursor selects full-collection mode; it is not an error.
	s := newTestStore(t)
	c, err := s.GetCursor(context.Background(), "forum")
	if err != nil {
		t.Fatalf("GetCursor: %v", err)
	}
	if c != nil {
		t.Fatalf("expected nil cursor, got %+v", c)
	}
}

func TestUpdateCursor_FirstWrite_RoundTrips(t *testing.T) {
	// WHAT: A first cursor write creates the row; a read returns the same values.
	// WHY: Sources rely on the cursor surviving between runs.
	s := newTestStore(t)
	ctx := context.Background()
	watermark := int64(1700000000000)
	if err := s.UpdateCursor(ctx, "forum", &watermark, []string{"a", "b"}); err != nil {
		t.Fatalf("UpdateCursor: %v", err)
	}

	c, err := s.GetCursor(ctx, "forum")
	if err != nil {
		t.Fatalf("GetCursor: %v", err)
	}
	if c == nil {
		t.Fatal("expected cursor, got nil")
	}
	if c.LastItemDate == nil || *c.LastItemDate != watermark {
		t.Errorf("LastItemDate = %v, want %d", c.LastItemDate, watermark)
	}
	if len(c.RecentItemIDs) != 2 || c.RecentItemIDs[0] != "a" {
		t.Errorf("RecentItemIDs = %v, want [a b]", c.RecentItemIDs)
	}
	if c.LastScrapedAt == 0 {
		t.Error("LastScrapedAt not set")
	}
}

func TestUpdateCursor_NilWatermark_PreservesExisting(t *testing.T) {
	// WHAT: Updating with a nil watermark bumps last_scraped_at but keeps the
	// previous last_item_date and recent IDs.
	// WHY: A run that accepts nothing must not regress the watermark, yet the
	// scrape timestamp must still advance to record the attempt.
	s := newTestStore(t)
	ctx := context.Background()
	watermark := int64(1700000000000)
	if err := s.UpdateCursor(ctx, "forum", &watermark, []string{"a"}); err != nil {
		t.Fatalf("first update: %v", err)
	}
	first, _ := s.GetCursor(ctx, "forum")

	s.now = func() time.Time { return time.UnixMilli(first.LastScrapedAt + 60000) }
	if err := s.UpdateCursor(ctx, "forum", nil, nil); err != nil {
		t.Fatalf("second update: %v", err)
	}

	c, _ := s.GetCursor(ctx, "forum")
	if c.LastItemDate == nil || *c.LastItemDate != watermark {
		t.Errorf("watermark regressed: %v, want %d", c.LastItemDate, watermark)
	}
	if len(c.RecentItemIDs) != 1 || c.RecentItemIDs[0] != "a" {
		t.Errorf("recent IDs changed: %v, want [a]", c.RecentItemIDs)
	}
	if c.LastScrapedAt <= first.LastScrapedAt {
		t.Errorf("LastScrapedAt did not advance: %d <= %d", c.LastScrapedAt, first.LastScrapedAt)
	}
}

func TestUpdateCursor_RecentIDs_Capped(t *testing.T) {
	// WHAT: Storing more than MaxRecentIDs keeps only the newest entries.
	// WHY: The recent-ID set is a bounded cache, not an archive.
	s := newTestStore(t)
	ctx := context.Background()
	ids := make([]string, MaxRecentIDs+10)
	for i := range ids {
		ids[i] = fmt.Sprintf("x-%d", i)
	}
	if err := s.UpdateCursor(ctx, "forum", nil, ids); err != nil {
		t.Fatalf("UpdateCursor: %v", err)
	}
	c, _ := s.GetCursor(ctx, "forum")
	if len(c.RecentItemIDs) != MaxRecentIDs {
		t.Fatalf("kept %d ids, want %d", len(c.RecentItemIDs), MaxRecentIDs)
	}
	if c.RecentItemIDs[0] != "x-10" {
		t.Errorf("oldest kept id = %s, want x-10", c.RecentItemIDs[0])
	}
}

func TestInsertMany_CountsOnlyNewRows(t *testing.T) {
	// WHAT: Re-inserting the same (source, external_id) updates in place and
	// does not count as newly inserted.
	// WHY: items_new in the run log must reflect genuinely new mentions.
	s := newTestStore(t)
	ctx := context.Background()

	n, err := s.InsertMany(ctx, []*Mention{
		mention("forum", "p1", 100),
		mention("forum", "p2", 200),
	})
	if err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if n != 2 {
		t.Fatalf("first insert counted %d, want 2", n)
	}

	updated := mention("forum", "p1", 100)
	updated.Content = "edited"
	n, err = s.InsertMany(ctx, []*Mention{updated, mention("forum", "p3", 300)})
	if err != nil {
		t.Fatalf("second insert: %v", err)
	}
	if n != 1 {
		t.Fatalf("second insert counted %d, want 1", n)
	}

	got, err := s.ListMentions(ctx, "forum", 10)
	if err != nil {
		t.Fatalf("ListMentions: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("stored %d mentions, want 3", len(got))
	}
	// Newest first.
	if got[0].ExternalID != "p3" {
		t.Errorf("newest mention = %s, want p3", got[0].ExternalID)
	}
	for _, m := range got {
		if m.ExternalID == "p1" && m.Content != "edited" {
			t.Errorf("upsert did not update content: %q", m.Content)
		}
	}
}

func TestGetRecentExternalIDs_NewestFirst(t *testing.T) {
	// WHAT: Recent external IDs come back newest-first, bounded by limit,
	// scoped to the requested source.
	// WHY: These IDs seed the cross-run dedup cache; order and scope matter.
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.InsertMany(ctx, []*Mention{
		mention("forum", "old", 100),
		mention("forum", "mid", 200),
		mention("forum", "new", 300),
		mention("storefront", "other", 400),
	})
	if err != nil {
		t.Fatalf("InsertMany: %v", err)
	}

	ids, err := s.GetRecentExternalIDs(ctx, "forum", 2)
	if err != nil {
		t.Fatalf("GetRecentExternalIDs: %v", err)
	}
	if len(ids) != 2 || ids[0] != "new" || ids[1] != "mid" {
		t.Errorf("ids = %v, want [new mid]", ids)
	}
}

func TestRunLog_StartAndEnd(t *testing.T) {
	// WHAT: A run transitions running -> failed with counters and error text.
	// WHY: The run log is the crash-visibility surface for operators.
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.LogRunStart(ctx, "forum")
	if err != nil {
		t.Fatalf("LogRunStart: %v", err)
	}
	runs, _ := s.ListRuns(ctx, "forum", 10)
	if len(runs) != 1 || runs[0].Status != "running" {
		t.Fatalf("after start: %+v", runs)
	}

	if err := s.LogRunEnd(ctx, id, "failed", 12, 3, fmt.Errorf("phase blew up")); err != nil {
		t.Fatalf("LogRunEnd: %v", err)
	}
	runs, _ = s.ListRuns(ctx, "forum", 10)
	r := runs[0]
	if r.Status != "failed" || r.ItemsFound != 12 || r.ItemsNew != 3 {
		t.Errorf("run = %+v", r)
	}
	if r.Error != "phase blew up" {
		t.Errorf("error = %q", r.Error)
	}
	if r.FinishedAt == 0 {
		t.Error("FinishedAt not set")
	}
}

func TestStats_Aggregates(t *testing.T) {
	// WHAT: Stats reports totals, per-source counts, and run failure counts.
	// WHY: The stats surface backs both the HTTP API and the MCP tool.
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.InsertMany(ctx, []*Mention{
		mention("forum", "p1", 100),
		mention("forum", "p2", 200),
		mention("storefront", "r1", 300),
	})
	if err != nil {
		t.Fatalf("InsertMany: %v", err)
	}
	id, _ := s.LogRunStart(ctx, "forum")
	s.LogRunEnd(ctx, id, "ok", 2, 2, nil)
	id, _ = s.LogRunStart(ctx, "storefront")
	s.LogRunEnd(ctx, id, "failed", 0, 0, fmt.Errorf("timeout"))

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.Mentions != 3 || st.MentionsBySrc["forum"] != 2 || st.MentionsBySrc["storefront"] != 1 {
		t.Errorf("mention counts: %+v", st)
	}
	if st.Runs != 2 || st.FailedRuns != 1 {
		t.Errorf("run counts: %+v", st)
	}
	if st.OldestMention != 100 || st.NewestMention != 300 {
		t.Errorf("date range: %d..%d", st.OldestMention, st.NewestMention)
	}
}
