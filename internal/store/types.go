// CLAUDE:SUMMARY Row types for the mirador store: Mention, Cursor, RunLogEntry, Stats.
package store

// Mention is the canonical normalized record for one harvested item.
// Source-specific payload fields travel in PayloadJSON untouched.
type Mention struct {
	ID          string  `json:"id"`
	Source      string  `json:"source"`
	ExternalID  string  `json:"external_id"`
	Kind        string  `json:"kind"` // post | comment | review
	Title       string  `json:"title"`
	Author      string  `json:"author"`
	Content     string  `json:"content"`
	URL         string  `json:"url"`
	Community   string  `json:"community"`
	Rating      int     `json:"rating"` // 0 when the source has no ratings
	Region      string  `json:"region"`
	ItemDate    int64   `json:"item_date"` // unix ms
	Fingerprint string  `json:"fingerprint"`
	Sentiment   float64 `json:"sentiment"`
	SentLabel   string  `json:"sentiment_label"`
	SentConf    float64 `json:"sentiment_confidence"`
	PayloadJSON string  `json:"payload_json"`
	InsertedAt  int64   `json:"inserted_at"`
}

// Cursor is the persisted per-source incremental watermark.
type Cursor struct {
	Source        string   `json:"source"`
	LastScrapedAt int64    `json:"last_scraped_at"` // unix ms
	LastItemDate  *int64   `json:"last_item_date"`  // unix ms; nil until first accepted item
	RecentItemIDs []string `json:"recent_item_ids"`
}

// RunLogEntry is one orchestrated collection run.
type RunLogEntry struct {
	ID         string `json:"id"`
	Source     string `json:"source"`
	Status     string `json:"status"` // running | ok | failed
	ItemsFound int    `json:"items_found"`
	ItemsNew   int    `json:"items_new"`
	Error      string `json:"error"`
	StartedAt  int64  `json:"started_at"`
	FinishedAt int64  `json:"finished_at"`
}

// Stats aggregates store counters for the API and MCP surfaces.
type Stats struct {
	Mentions      int64            `json:"mentions"`
	MentionsBySrc map[string]int64 `json:"mentions_by_source"`
	Runs          int64            `json:"runs"`
	FailedRuns    int64            `json:"failed_runs"`
	LastRunAt     int64            `json:"last_run_at"`
	OldestMention int64            `json:"oldest_mention"`
	NewestMention int64            `json:"newest_mention"`
}
