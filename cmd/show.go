// File: cmd/show.go
package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/statetrace/api/schemas"
	"github.com/xkilldash9x/statetrace/internal/observability"
	"github.com/xkilldash9x/statetrace/internal/trace"
)

// newShowCmd creates and configures the `show` command.
func newShowCmd(provider storeProvider) *cobra.Command {
	var asJSON bool
	var archived bool

	showCmd := &cobra.Command{
		Use:   "show <session-id>",
		Short: "Print the recorded steps of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			sessionID := args[0]

			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}

			var entries []*schemas.HistoryEntry
			if archived {
				archive, cleanup, err := provider.Create(ctx, cfg)
				if err != nil {
					return fmt.Errorf("failed to initialize archive: %w", err)
				}
				if cleanup != nil {
					defer cleanup()
				}
				entries, err = archive.LoadSession(ctx, sessionID)
				if err != nil {
					return fmt.Errorf("failed to load archived session %q: %w", sessionID, err)
				}
			} else {
				root, err := cfg.Storage.ExpandedRoot()
				if err != nil {
					return err
				}
				entries, err = trace.NewReader(logger).Load(root, sessionID)
				if err != nil {
					return fmt.Errorf("failed to load session %q: %w", sessionID, err)
				}
			}

			return renderEntries(cmd.OutOrStdout(), sessionID, entries, asJSON)
		},
	}

	showCmd.Flags().BoolVar(&asJSON, "json", false, "Print the session as a JSON array of steps")
	showCmd.Flags().BoolVar(&archived, "archived", false, "Load the session from the archive database instead of disk")

	return showCmd
}

// renderEntries prints a loaded session, one line per step or as one JSON
// document with --json.
func renderEntries(out io.Writer, sessionID string, entries []*schemas.HistoryEntry, asJSON bool) error {
	if asJSON {
		docs := make([]map[string]any, 0, len(entries))
		for _, entry := range entries {
			docs = append(docs, entry.ToDict())
		}
		data, err := json.MarshalIndent(docs, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to serialize session to JSON: %w", err)
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	fmt.Fprintf(out, "session %s: %d steps\n", sessionID, len(entries))
	for i, entry := range entries {
		resolved := 0
		for _, slot := range entry.InteractedElements {
			if _, ok := slot.Element(); ok {
				resolved++
			}
		}

		screenshot := "-"
		if entry.ScreenshotPath != nil && *entry.ScreenshotPath != "" {
			screenshot = *entry.ScreenshotPath
		}

		fmt.Fprintf(out, "step %d  %s  %q  tabs=%d actions=%d/%d screenshot=%s\n",
			i+1, entry.URL, entry.Title, len(entry.Tabs), resolved, len(entry.InteractedElements), screenshot)
	}
	return nil
}
