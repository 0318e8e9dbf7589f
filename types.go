// CLAUDE:SUMMARY Re-exports of the store row types for API consumers.
package mirador

import "github.com/hazyhaar/mirador/internal/store"

// Re-exported so API and MCP consumers never import internal packages.
type (
	Mention     = store.Mention
	Cursor      = store.Cursor
	RunLogEntry = store.RunLogEntry
	Stats       = store.Stats
)
