package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"herald/internal/cleanup"
	"herald/internal/queueaccess"
)

func newCleanupCommand(ctx *commandContext) *cobra.Command {
	var olderThan time.Duration
	var dryRun bool
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove renditions no pending or approved post still needs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return ctx.withQueue(cmd, func(access queueaccess.Access) error {
				posts, err := access.List(cmd.Context())
				if err != nil {
					return err
				}
				logger, err := cliLogger(cfg)
				if err != nil {
					return err
				}
				result := cleanup.Renditions(cmd.Context(), cfg.Paths.AdaptedDir, cleanup.Referenced(posts),
					cleanup.Options{MinAge: olderThan, DryRun: dryRun}, logger)

				if jsonOutput {
					return writeJSON(cmd, result)
				}
				out := cmd.OutOrStdout()
				verb := "Removed"
				if dryRun {
					verb = "Would remove"
				}
				for _, path := range result.Removed {
					fmt.Fprintf(out, "%s %s\n", verb, path)
				}
				fmt.Fprintf(out, "%s %d file(s), %s\n", verb, len(result.Removed), humanBytes(result.FreedBytes))
				for _, e := range result.Errors {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", e.Path, e.Err)
				}
				if len(result.Errors) > 0 {
					return fmt.Errorf("%d rendition(s) could not be removed", len(result.Errors))
				}
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 24*time.Hour, "Only remove files last modified before this age")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "List what would be removed")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.AddCommand(newCleanupUsageCommand(ctx))
	return cmd
}

func newCleanupUsageCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "usage",
		Short: "Show disk usage of the rendition directory by format",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			usage, err := cleanup.ListUsage(cfg.Paths.AdaptedDir)
			if err != nil {
				return err
			}
			if len(usage) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No renditions")
				return nil
			}
			rows := make([][]string, 0, len(usage))
			for _, u := range usage {
				rows = append(rows, []string{u.Name, fmt.Sprint(u.Files), humanBytes(u.Size), formatTime(u.ModTime)})
			}
			fmt.Fprint(cmd.OutOrStdout(), renderTable(
				[]string{"Directory", "Files", "Size", "Modified"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignRight, alignLeft},
			))
			return nil
		},
	}
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
