package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/xkilldash9x/statetrace/api/schemas"
	"go.uber.org/zap"
)

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// Store provides a PostgreSQL implementation of the schemas.SessionArchive interface.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

var _ schemas.SessionArchive = (*Store)(nil)

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// Archive tables, applied with IF NOT EXISTS so EnsureSchema can run against
// an already provisioned database.
var schemaStatements = []string{
	`
        CREATE TABLE IF NOT EXISTS sessions (
            id TEXT PRIMARY KEY,
            steps INTEGER NOT NULL,
            archived_at TIMESTAMPTZ NOT NULL
        );
    `,
	`
        CREATE TABLE IF NOT EXISTS session_steps (
            session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
            step INTEGER NOT NULL,
            url TEXT NOT NULL,
            title TEXT NOT NULL,
            tabs JSONB NOT NULL,
            interacted_element JSONB NOT NULL,
            screenshot_path TEXT,
            PRIMARY KEY (session_id, step)
        );
    `,
}

// EnsureSchema creates the archive tables when they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply archive schema: %w", err)
		}
	}
	return nil
}

// ArchiveSession persists every step of a session inside a single transaction.
// Archiving a session that was archived before replaces its previous rows.
func (s *Store) ArchiveSession(ctx context.Context, sessionID string, entries []*schemas.HistoryEntry) error {
	if sessionID == "" {
		return errors.New("session id must not be empty")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		// Rollback after a successful commit returns pgx.ErrTxClosed, which is
		// the normal path rather than a failure worth logging.
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	sqlUpsertSession := `
        INSERT INTO sessions (id, steps, archived_at)
        VALUES ($1, $2, $3)
        ON CONFLICT (id) DO UPDATE SET
            steps = EXCLUDED.steps,
            archived_at = EXCLUDED.archived_at;
    `
	if _, err := tx.Exec(ctx, sqlUpsertSession, sessionID, len(entries), time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to upsert session %s: %w", sessionID, err)
	}

	sqlDeleteSteps := `
        DELETE FROM session_steps WHERE session_id = $1;
    `
	if _, err := tx.Exec(ctx, sqlDeleteSteps, sessionID); err != nil {
		return fmt.Errorf("failed to clear previous steps for session %s: %w", sessionID, err)
	}

	if len(entries) > 0 {
		if err := s.copySteps(ctx, tx, sessionID, entries); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *Store) copySteps(ctx context.Context, tx pgx.Tx, sessionID string, entries []*schemas.HistoryEntry) error {
	rows := make([][]interface{}, len(entries))
	for i, entry := range entries {
		if entry == nil {
			return fmt.Errorf("history entry at step %d is nil", i+1)
		}

		tabs, err := json.Marshal(entry.Tabs)
		if err != nil {
			return fmt.Errorf("failed to encode tabs for step %d: %w", i+1, err)
		}
		if len(tabs) == 0 || string(tabs) == "null" {
			tabs = json.RawMessage("[]")
		}

		interacted, err := json.Marshal(entry.InteractedElements)
		if err != nil {
			return fmt.Errorf("failed to encode interactions for step %d: %w", i+1, err)
		}
		if len(interacted) == 0 || string(interacted) == "null" {
			interacted = json.RawMessage("[]")
		}

		rows[i] = []interface{}{
			sessionID, i + 1,
			entry.URL, entry.Title,
			tabs, interacted,
			entry.ScreenshotPath,
		}
	}

	copyCount, err := tx.CopyFrom(
		ctx,
		pgx.Identifier{"session_steps"},
		[]string{"session_id", "step", "url", "title", "tabs", "interacted_element", "screenshot_path"},
		pgx.CopyFromRows(rows),
	)

	if err != nil {
		return fmt.Errorf("failed to copy session steps: %w", err)
	}
	if int(copyCount) != len(entries) {
		return fmt.Errorf("mismatch in copied step count: expected %d, got %d", len(entries), copyCount)
	}

	return nil
}

// LoadSession returns the archived steps of a session ordered by step number.
// An unknown session yields an empty result, not an error.
func (s *Store) LoadSession(ctx context.Context, sessionID string) ([]*schemas.HistoryEntry, error) {
	query := `
        SELECT step, url, title, tabs, interacted_element, screenshot_path
        FROM session_steps
        WHERE session_id = $1
        ORDER BY step ASC;
    `
	rows, err := s.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query session steps: %w", err)
	}
	defer rows.Close()

	var entries []*schemas.HistoryEntry
	for rows.Next() {
		var (
			step           int
			url, title     string
			tabsRaw        []byte
			interactedRaw  []byte
			screenshotPath *string
		)
		if err := rows.Scan(&step, &url, &title, &tabsRaw, &interactedRaw, &screenshotPath); err != nil {
			return nil, fmt.Errorf("failed to scan session step row: %w", err)
		}

		var tabs []schemas.TabInfo
		if len(tabsRaw) > 0 {
			if err := json.Unmarshal(tabsRaw, &tabs); err != nil {
				return nil, fmt.Errorf("failed to decode tabs for step %d: %w", step, err)
			}
		}

		var interacted []schemas.ElementSlot
		if len(interactedRaw) > 0 {
			if err := json.Unmarshal(interactedRaw, &interacted); err != nil {
				return nil, fmt.Errorf("failed to decode interactions for step %d: %w", step, err)
			}
		}

		entries = append(entries, &schemas.HistoryEntry{
			URL:                url,
			Title:              title,
			Tabs:               tabs,
			InteractedElements: interacted,
			ScreenshotPath:     screenshotPath,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	return entries, nil
}

// ListSessions returns archived session summaries, most recent first. A limit
// of zero or less returns every session.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]schemas.SessionSummary, error) {
	query := `
        SELECT id, steps, archived_at
        FROM sessions
        ORDER BY archived_at DESC;
    `
	args := []interface{}{}
	if limit > 0 {
		query = `
        SELECT id, steps, archived_at
        FROM sessions
        ORDER BY archived_at DESC
        LIMIT $1;
    `
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var summaries []schemas.SessionSummary
	for rows.Next() {
		var sum schemas.SessionSummary
		if err := rows.Scan(&sum.ID, &sum.Steps, &sum.ArchivedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		summaries = append(summaries, sum)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	return summaries, nil
}
