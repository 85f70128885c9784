package schemas

import (
	"context"
	"time"
)

// -- Archive Interface --

// SessionArchive is a persistent store for finished session histories. The
// abstraction keeps commands and the trace layer independent of the concrete
// database implementation (PostgreSQL in production, a mock in tests).
type SessionArchive interface {
	// ArchiveSession persists every entry of one recorded session under the
	// given session ID, replacing any previous archive of the same session.
	ArchiveSession(ctx context.Context, sessionID string, entries []*HistoryEntry) error
	// LoadSession retrieves a session's entries in recorded step order.
	LoadSession(ctx context.Context, sessionID string) ([]*HistoryEntry, error)
	// ListSessions returns the most recently archived sessions, newest first.
	// A limit of 0 means no limit.
	ListSessions(ctx context.Context, limit int) ([]SessionSummary, error)
}

// SessionSummary is one row of an archive listing.
type SessionSummary struct {
	ID         string    `json:"id"`
	Steps      int       `json:"steps"`
	ArchivedAt time.Time `json:"archived_at"`
}
