// File: cmd/tail.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/statetrace/internal/observability"
	"github.com/xkilldash9x/statetrace/internal/trace"
)

// newTailCmd creates and configures the `tail` command.
func newTailCmd() *cobra.Command {
	var fromStart bool
	var asJSON bool

	tailCmd := &cobra.Command{
		Use:   "tail <session-id>",
		Short: "Follow a live session as entries are recorded",
		Long: `Tail watches a session's trace file and prints each entry as the recorder
appends it. It runs until interrupted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			sessionID := args[0]

			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}

			root, err := cfg.Storage.ExpandedRoot()
			if err != nil {
				return err
			}

			tracePath := trace.SessionPath(root, sessionID)
			entriesCh, err := trace.NewFollower(logger).Follow(ctx, tracePath, fromStart)
			if err != nil {
				return fmt.Errorf("failed to follow session %q: %w", sessionID, err)
			}

			step := 0
			for entry := range entriesCh {
				step++
				if asJSON {
					line, err := trace.EncodeEntry(entry)
					if err != nil {
						logger.Warn("Skipping entry that failed to encode", zap.Int("step", step), zap.Error(err))
						continue
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s\n", line)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "step %d  %s  %q\n", step, entry.URL, entry.Title)
			}
			// The channel closes when the context is cancelled (interrupt)
			// or the follower stops; both are normal ends of a tail.
			return nil
		},
	}

	tailCmd.Flags().BoolVar(&fromStart, "from-start", false, "Print existing entries before following new ones")
	tailCmd.Flags().BoolVar(&asJSON, "json", false, "Print raw trace lines instead of summaries")

	return tailCmd
}
