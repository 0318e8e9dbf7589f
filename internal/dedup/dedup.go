// CLAUDE:SUMMARY In-run dedup ledger keyed by native ID and normalized content fingerprint.
// Package dedup rejects items already seen in the current run or in the
// cross-run recent-identifier cache.
//
// Two independent keys cover the two duplicate shapes: the source's native ID
// catches exact re-fetches, the content fingerprint catches the same content
// re-indexed under a different native ID.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Ledger tracks identifiers and fingerprints seen during one run.
// Not safe for concurrent use; a run is a single sequential task.
type Ledger struct {
	seenIDs          map[string]bool
	seenFingerprints map[string]bool
	duplicates       int
}

// NewLedger creates a Ledger seeded with cross-run recent identifiers
// (from the cursor and/or persistence).
func NewLedger(recentIDs []string) *Ledger {
	l := &Ledger{
		seenIDs:          make(map[string]bool, len(recentIDs)),
		seenFingerprints: make(map[string]bool),
	}
	for _, id := range recentIDs {
		if id != "" {
			l.seenIDs[id] = true
		}
	}
	return l
}

// Seen reports whether either key was already recorded. Empty keys never match.
func (l *Ledger) Seen(nativeID, fingerprint string) bool {
	if nativeID != "" && l.seenIDs[nativeID] {
		return true
	}
	if fingerprint != "" && l.seenFingerprints[fingerprint] {
		return true
	}
	return false
}

// Record marks both keys as seen. Call on acceptance only.
func (l *Ledger) Record(nativeID, fingerprint string) {
	if nativeID != "" {
		l.seenIDs[nativeID] = true
	}
	if fingerprint != "" {
		l.seenFingerprints[fingerprint] = true
	}
}

// Admit combines Seen and Record: it returns false (and counts a duplicate)
// if either key is known, otherwise records both and returns true.
func (l *Ledger) Admit(nativeID, fingerprint string) bool {
	if l.Seen(nativeID, fingerprint) {
		l.duplicates++
		return false
	}
	l.Record(nativeID, fingerprint)
	return true
}

// Duplicates returns the number of rejected candidates so far.
func (l *Ledger) Duplicates() int {
	return l.duplicates
}

// Fingerprint hashes the normalized concatenation of salient fields.
// Normalization lowercases and collapses internal whitespace so trivial
// formatting differences do not defeat dedup.
func Fingerprint(fields ...string) string {
	var b strings.Builder
	for i, f := range fields {
		if i > 0 {
			b.WriteByte('|')
		}
		b.WriteString(normalize(f))
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
