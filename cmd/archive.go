// File: cmd/archive.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/statetrace/api/schemas"
	"github.com/xkilldash9x/statetrace/internal/config"
	"github.com/xkilldash9x/statetrace/internal/observability"
	"github.com/xkilldash9x/statetrace/internal/store"
	"github.com/xkilldash9x/statetrace/internal/trace"
)

// storeProvider defines an interface for components that can create a session
// archive (schemas.SessionArchive). This abstraction is crucial for testing,
// as it allows for the injection of a mock archive instead of a live database
// connection.
type storeProvider interface {
	// Create initializes and returns a schemas.SessionArchive, a cleanup
	// function to release resources, and an error if the creation fails.
	Create(ctx context.Context, cfg *config.Config) (schemas.SessionArchive, func(), error)
}

// defaultStoreProvider is the concrete implementation of storeProvider used in
// production. It establishes a real connection to the PostgreSQL database.
type defaultStoreProvider struct{}

// NewStoreProvider is a factory function that creates a new defaultStoreProvider.
func NewStoreProvider() storeProvider {
	return &defaultStoreProvider{}
}

// Create connects to the PostgreSQL database using the provided configuration,
// prepares the archive schema, and returns the store along with a cleanup
// function to close the database connection pool.
func (p *defaultStoreProvider) Create(ctx context.Context, cfg *config.Config) (schemas.SessionArchive, func(), error) {
	logger := observability.GetLogger()
	if cfg.Database.URL == "" {
		return nil, nil, fmt.Errorf("database URL is not configured (STATETRACE_DATABASE_URL)")
	}

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	archive, err := store.New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to initialize session archive: %w", err)
	}

	if err := archive.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to prepare archive schema: %w", err)
	}

	cleanup := func() {
		pool.Close()
		logger.Debug("Database connection pool closed.")
	}
	return archive, cleanup, nil
}

// newArchiveCmd creates and configures the `archive` command.
func newArchiveCmd(provider storeProvider) *cobra.Command {
	var all bool
	var limit int

	archiveCmd := &cobra.Command{
		Use:   "archive [session-id...]",
		Short: "Push recorded sessions to the archive database",
		Long: `Archive copies recorded sessions into the PostgreSQL archive for
centralized retention. With no arguments it lists what the archive already
holds.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}

			// Delegate to the testable core logic function.
			return runArchive(ctx, cmd.OutOrStdout(), logger, cfg, args, all, limit, provider)
		},
	}

	archiveCmd.Flags().BoolVar(&all, "all", false, "Archive every recorded session")
	archiveCmd.Flags().IntVar(&limit, "limit", 20, "Number of archived sessions to list when no session is given")

	return archiveCmd
}

// runArchive contains the core, testable logic for the archive command.
func runArchive(
	ctx context.Context,
	out io.Writer,
	logger *zap.Logger,
	cfg *config.Config,
	sessionIDs []string,
	all bool,
	limit int,
	provider storeProvider,
) error {
	archive, cleanup, err := provider.Create(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize archive: %w", err)
	}
	// Cleanup can be nil for mocks that hold no resources.
	if cleanup != nil {
		defer cleanup()
	}

	if len(sessionIDs) == 0 && !all {
		summaries, err := archive.ListSessions(ctx, limit)
		if err != nil {
			return fmt.Errorf("failed to list archived sessions: %w", err)
		}
		if len(summaries) == 0 {
			fmt.Fprintln(out, "archive is empty")
			return nil
		}
		for _, s := range summaries {
			fmt.Fprintf(out, "%s  %d steps  archived %s\n", s.ID, s.Steps, s.ArchivedAt.Format(time.RFC3339))
		}
		return nil
	}

	root, err := cfg.Storage.ExpandedRoot()
	if err != nil {
		return err
	}

	if all {
		sessionIDs, err = trace.ListSessions(root)
		if err != nil {
			return fmt.Errorf("failed to list recorded sessions: %w", err)
		}
		if len(sessionIDs) == 0 {
			return fmt.Errorf("no recorded sessions under %s", root)
		}
	}

	reader := trace.NewReader(logger)
	for _, sessionID := range sessionIDs {
		entries, err := reader.Load(root, sessionID)
		if err != nil {
			return fmt.Errorf("failed to load session %q: %w", sessionID, err)
		}
		if err := archive.ArchiveSession(ctx, sessionID, entries); err != nil {
			return fmt.Errorf("failed to archive session %q: %w", sessionID, err)
		}
		logger.Info("Archived session", zap.String("session_id", sessionID), zap.Int("steps", len(entries)))
		fmt.Fprintf(out, "archived %s (%d steps)\n", sessionID, len(entries))
	}
	return nil
}
