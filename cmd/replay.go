// File: cmd/replay.go
package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/statetrace/api/schemas"
	"github.com/xkilldash9x/statetrace/internal/observability"
	"github.com/xkilldash9x/statetrace/internal/trace"
)

// newReplayCmd creates and configures the `replay` command.
func newReplayCmd() *cobra.Command {
	var stepsPerSecond float64

	replayCmd := &cobra.Command{
		Use:   "replay <session-id>",
		Short: "Re-emit a recorded session at a paced rate",
		Long: `Replay prints one trace line per recorded step, paced at --rate steps per
second, so downstream consumers can observe the session as if it were live.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			sessionID := args[0]

			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}

			if !cmd.Flags().Changed("rate") {
				stepsPerSecond = cfg.Replay.Rate
			}
			if stepsPerSecond <= 0 {
				return fmt.Errorf("replay rate must be positive, got %v", stepsPerSecond)
			}

			root, err := cfg.Storage.ExpandedRoot()
			if err != nil {
				return err
			}

			entries, err := trace.NewReader(logger).Load(root, sessionID)
			if err != nil {
				return fmt.Errorf("failed to load session %q: %w", sessionID, err)
			}

			return replayEntries(ctx, cmd.OutOrStdout(), entries, stepsPerSecond)
		},
	}

	replayCmd.Flags().Float64Var(&stepsPerSecond, "rate", 1.0, "Replay speed in steps per second")

	return replayCmd
}

// replayEntries paces the emission of entries onto w. The token bucket
// starts full, so the first step prints immediately and the rest follow at
// the configured rate.
func replayEntries(ctx context.Context, w io.Writer, entries []*schemas.HistoryEntry, stepsPerSecond float64) error {
	limiter := rate.NewLimiter(rate.Limit(stepsPerSecond), 1)

	for i, entry := range entries {
		if err := limiter.Wait(ctx); err != nil {
			return fmt.Errorf("replay interrupted at step %d: %w", i+1, err)
		}

		line, err := trace.EncodeEntry(entry)
		if err != nil {
			return fmt.Errorf("failed to encode step %d: %w", i+1, err)
		}
		if _, err := fmt.Fprintf(w, "%s\n", line); err != nil {
			return fmt.Errorf("failed to write step %d: %w", i+1, err)
		}
	}
	return nil
}
