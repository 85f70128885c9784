// File: cmd/export.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/statetrace/internal/observability"
	"github.com/xkilldash9x/statetrace/internal/trace"
)

// newExportCmd creates and configures the `export` command.
func newExportCmd() *cobra.Command {
	var format string
	var compress bool
	var all bool
	var outDir string

	exportCmd := &cobra.Command{
		Use:   "export [session-id...]",
		Short: "Export recorded sessions as JSON, JSONL or XML",
		Long: `Export renders recorded sessions into consumable documents: a single JSON
array of steps, a JSONL copy of the trace, or an XML report. Exports can be
brotli-compressed. Flags default to the values in the export config section.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}

			// Unset flags fall back to the configured defaults.
			if !cmd.Flags().Changed("format") {
				format = cfg.Export.Format
			}
			if !cmd.Flags().Changed("compress") {
				compress = cfg.Export.Compress
			}
			if !cmd.Flags().Changed("output") {
				outDir = cfg.Export.OutputDir
			}

			f, err := trace.ParseFormat(format)
			if err != nil {
				return err
			}

			root, err := cfg.Storage.ExpandedRoot()
			if err != nil {
				return err
			}

			exporter := trace.NewExporter(logger)

			if all {
				paths, err := exporter.ExportAll(ctx, root, outDir, f, compress, cfg.Export.Concurrency)
				if err != nil {
					return fmt.Errorf("failed to export sessions: %w", err)
				}
				for _, p := range paths {
					fmt.Fprintln(cmd.OutOrStdout(), p)
				}
				return nil
			}

			if len(args) == 0 {
				return fmt.Errorf("no sessions specified; pass session IDs or --all")
			}

			for _, sessionID := range args {
				path, err := exporter.ExportSession(root, sessionID, outDir, f, compress)
				if err != nil {
					return fmt.Errorf("failed to export session %q: %w", sessionID, err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), path)
			}
			return nil
		},
	}

	exportCmd.Flags().StringVarP(&format, "format", "f", "json", "Export format: json, jsonl or xml")
	exportCmd.Flags().BoolVar(&compress, "compress", false, "Compress exports with brotli")
	exportCmd.Flags().BoolVar(&all, "all", false, "Export every recorded session")
	exportCmd.Flags().StringVarP(&outDir, "output", "o", "exports", "Directory to write exports into")

	return exportCmd
}
