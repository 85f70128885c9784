// File: cmd/prune.go
package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/statetrace/internal/observability"
	"github.com/xkilldash9x/statetrace/internal/screenshots"
)

// newPruneCmd creates and configures the `prune` command.
func newPruneCmd() *cobra.Command {
	var keepLast int
	var maxAge time.Duration

	pruneCmd := &cobra.Command{
		Use:   "prune [session-id]",
		Short: "Apply the retention policy to stored screenshots",
		Long: `Prune deletes screenshots per the retention policy: with a session ID it
keeps only the newest --keep-last captures of that session, without one it
removes captures older than --max-age across all sessions. Trace files are
never touched, and history reads treat a deleted screenshot as absence.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := observability.GetLogger()

			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}

			if !cmd.Flags().Changed("keep-last") {
				keepLast = cfg.Retention.KeepLast
			}
			if !cmd.Flags().Changed("max-age") {
				maxAge = cfg.Retention.MaxAge
			}

			root, err := cfg.Storage.ExpandedRoot()
			if err != nil {
				return err
			}

			shots := screenshots.NewStore(root, logger)

			if len(args) == 1 {
				if keepLast <= 0 {
					return fmt.Errorf("pruning a single session requires --keep-last greater than zero")
				}
				removed, err := shots.Prune(args[0], keepLast)
				if err != nil {
					return fmt.Errorf("failed to prune session %q: %w", args[0], err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %d screenshots from session %s\n", removed, args[0])
				return nil
			}

			if maxAge <= 0 {
				return fmt.Errorf("pruning across sessions requires --max-age greater than zero")
			}
			removed, err := shots.PruneOlderThan(maxAge)
			if err != nil {
				return fmt.Errorf("failed to prune screenshots: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d screenshots older than %s\n", removed, maxAge)
			return nil
		},
	}

	pruneCmd.Flags().IntVar(&keepLast, "keep-last", 0, "Keep only the newest N screenshots of the session")
	pruneCmd.Flags().DurationVar(&maxAge, "max-age", 0, "Remove screenshots older than this across all sessions")

	return pruneCmd
}
