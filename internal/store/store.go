// CLAUDE:SUMMARY SQLite-backed persistence collaborator: cursor protocol, mention upsert, run log.
// Package store implements the persistence contract consumed by the
// ingestion engine: per-source cursors, mention upserts keyed by
// (source, external_id), recent-identifier queries, and the run log.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MaxRecentIDs bounds the recent-identifier set kept on a cursor.
const MaxRecentIDs = 1000

// Store wraps the mirador database.
type Store struct {
	DB *sql.DB

	// Injectable for tests.
	now   func() time.Time
	newID func() string
}

// NewStore creates a Store from an already-opened database connection.
func NewStore(db *sql.DB) *Store {
	return &Store{
		DB:    db,
		now:   time.Now,
		newID: func() string { return uuid.NewString() },
	}
}

// --- Cursors ---

// GetCursor returns the cursor for a source, or nil if none exists yet
// (nil selects full-collection mode).
func (s *Store) GetCursor(ctx context.Context, source string) (*Cursor, error) {
	var c Cursor
	var lastItemDate sql.NullInt64
	var recentJSON string
	err := s.DB.QueryRowContext(ctx,
		`SELECT source, last_scraped_at, last_item_date, recent_ids FROM cursors WHERE source = ?`,
		source).Scan(&c.Source, &c.LastScrapedAt, &lastItemDate, &recentJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get cursor %s: %w", source, err)
	}
	if lastItemDate.Valid {
		c.LastItemDate = &lastItemDate.Int64
	}
	if err := json.Unmarshal([]byte(recentJSON), &c.RecentItemIDs); err != nil {
		// A corrupt recent-ids blob only weakens cross-run dedup; keep going.
		c.RecentItemIDs = nil
	}
	return &c, nil
}

// UpdateCursor advances a source's cursor. last_scraped_at always moves to
// now. lastItemDate and recentIDs are applied only when non-nil, so a
// zero-accept run never regresses the watermark.
func (s *Store) UpdateCursor(ctx context.Context, source string, lastItemDate *int64, recentIDs []string) error {
	now := s.now().UnixMilli()

	if len(recentIDs) > MaxRecentIDs {
		recentIDs = recentIDs[len(recentIDs)-MaxRecentIDs:]
	}

	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO cursors (source, last_scraped_at, last_item_date, recent_ids)
		VALUES (?, ?, ?, '[]')
		ON CONFLICT(source) DO UPDATE SET last_scraped_at = excluded.last_scraped_at`,
		source, now, lastItemDate)
	if err != nil {
		return fmt.Errorf("store: update cursor %s: %w", source, err)
	}

	if lastItemDate != nil {
		if _, err := s.DB.ExecContext(ctx,
			`UPDATE cursors SET last_item_date = ? WHERE source = ?`, *lastItemDate, source); err != nil {
			return fmt.Errorf("store: update cursor watermark %s: %w", source, err)
		}
	}
	if recentIDs != nil {
		blob, err := json.Marshal(recentIDs)
		if err != nil {
			return fmt.Errorf("store: marshal recent ids: %w", err)
		}
		if _, err := s.DB.ExecContext(ctx,
			`UPDATE cursors SET recent_ids = ? WHERE source = ?`, string(blob), source); err != nil {
			return fmt.Errorf("store: update cursor recent ids %s: %w", source, err)
		}
	}
	return nil
}

// GetRecentExternalIDs returns the newest external IDs stored for a source,
// used to seed the cross-run dedup cache.
func (s *Store) GetRecentExternalIDs(ctx context.Context, source string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = MaxRecentIDs
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT external_id FROM mentions WHERE source = ? ORDER BY item_date DESC LIMIT ?`,
		source, limit)
	if err != nil {
		return nil, fmt.Errorf("store: recent external ids %s: %w", source, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// --- Mentions ---

// InsertMany upserts a batch of mentions and returns the count of rows that
// were newly inserted (conflicts update the existing row and do not count).
func (s *Store) InsertMany(ctx context.Context, items []*Mention) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("store: begin insert: %w", err)
	}
	defer tx.Rollback()

	var before int64
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM mentions`).Scan(&before); err != nil {
		return 0, fmt.Errorf("store: count before insert: %w", err)
	}

	now := s.now().UnixMilli()
	for _, m := range items {
		if m.ID == "" {
			m.ID = s.newID()
		}
		if m.PayloadJSON == "" {
			m.PayloadJSON = "{}"
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO mentions (id, source, external_id, kind, title, author, content, url,
				community, rating, region, item_date, fingerprint, sentiment, sent_label, sent_conf,
				payload_json, inserted_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(source, external_id) DO UPDATE SET
				title = excluded.title, author = excluded.author, content = excluded.content,
				url = excluded.url, community = excluded.community, rating = excluded.rating,
				region = excluded.region, item_date = excluded.item_date,
				fingerprint = excluded.fingerprint, sentiment = excluded.sentiment,
				sent_label = excluded.sent_label, sent_conf = excluded.sent_conf,
				payload_json = excluded.payload_json`,
			m.ID, m.Source, m.ExternalID, m.Kind, m.Title, m.Author, m.Content, m.URL,
			m.Community, m.Rating, m.Region, m.ItemDate, m.Fingerprint,
			m.Sentiment, m.SentLabel, m.SentConf, m.PayloadJSON, now)
		if err != nil {
			return 0, fmt.Errorf("store: insert mention %s/%s: %w", m.Source, m.ExternalID, err)
		}
	}

	var after int64
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM mentions`).Scan(&after); err != nil {
		return 0, fmt.Errorf("store: count after insert: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("store: commit insert: %w", err)
	}
	return int(after - before), nil
}

// ListMentions returns the newest mentions, optionally filtered by source.
func (s *Store) ListMentions(ctx context.Context, source string, limit int) ([]*Mention, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, source, external_id, kind, title, author, content, url, community,
		rating, region, item_date, fingerprint, sentiment, sent_label, sent_conf, payload_json, inserted_at
		FROM mentions`
	args := []any{}
	if source != "" {
		query += ` WHERE source = ?`
		args = append(args, source)
	}
	query += ` ORDER BY item_date DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list mentions: %w", err)
	}
	defer rows.Close()

	var result []*Mention
	for rows.Next() {
		var m Mention
		if err := rows.Scan(&m.ID, &m.Source, &m.ExternalID, &m.Kind, &m.Title, &m.Author,
			&m.Content, &m.URL, &m.Community, &m.Rating, &m.Region, &m.ItemDate,
			&m.Fingerprint, &m.Sentiment, &m.SentLabel, &m.SentConf, &m.PayloadJSON, &m.InsertedAt); err != nil {
			return nil, err
		}
		result = append(result, &m)
	}
	return result, rows.Err()
}

// --- Run log ---

// LogRunStart records a run in status "running" and returns its ID.
func (s *Store) LogRunStart(ctx context.Context, source string) (string, error) {
	id := s.newID()
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO runs (id, source, status, started_at) VALUES (?, ?, 'running', ?)`,
		id, source, s.now().UnixMilli())
	if err != nil {
		return "", fmt.Errorf("store: log run start %s: %w", source, err)
	}
	return id, nil
}

// LogRunEnd finalizes a run with its status and counters.
func (s *Store) LogRunEnd(ctx context.Context, runID, status string, itemsFound, itemsNew int, runErr error) error {
	errMsg := ""
	if runErr != nil {
		errMsg = runErr.Error()
	}
	_, err := s.DB.ExecContext(ctx,
		`UPDATE runs SET status = ?, items_found = ?, items_new = ?, error = ?, finished_at = ? WHERE id = ?`,
		status, itemsFound, itemsNew, errMsg, s.now().UnixMilli(), runID)
	if err != nil {
		return fmt.Errorf("store: log run end %s: %w", runID, err)
	}
	return nil
}

// ListRuns returns the newest run-log entries, optionally filtered by source.
func (s *Store) ListRuns(ctx context.Context, source string, limit int) ([]*RunLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, source, status, items_found, items_new, error, started_at, finished_at FROM runs`
	args := []any{}
	if source != "" {
		query += ` WHERE source = ?`
		args = append(args, source)
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list runs: %w", err)
	}
	defer rows.Close()

	var result []*RunLogEntry
	for rows.Next() {
		var r RunLogEntry
		if err := rows.Scan(&r.ID, &r.Source, &r.Status, &r.ItemsFound, &r.ItemsNew,
			&r.Error, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, err
		}
		result = append(result, &r)
	}
	return result, rows.Err()
}

// Stats returns aggregate counters.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{MentionsBySrc: make(map[string]int64)}

	if err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(MIN(item_date), 0), COALESCE(MAX(item_date), 0) FROM mentions`).
		Scan(&st.Mentions, &st.OldestMention, &st.NewestMention); err != nil {
		return nil, fmt.Errorf("store: stats mentions: %w", err)
	}

	rows, err := s.DB.QueryContext(ctx, `SELECT source, COUNT(*) FROM mentions GROUP BY source`)
	if err != nil {
		return nil, fmt.Errorf("store: stats by source: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var src string
		var n int64
		if err := rows.Scan(&src, &n); err != nil {
			return nil, err
		}
		st.MentionsBySrc[src] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0),
			COALESCE(MAX(started_at), 0)
		FROM runs`).Scan(&st.Runs, &st.FailedRuns, &st.LastRunAt); err != nil {
		return nil, fmt.Errorf("store: stats runs: %w", err)
	}
	return st, nil
}
