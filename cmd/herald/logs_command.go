package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"herald/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var lines int
	var follow bool
	var postID string
	var grep []string

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the daemon log",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if lines < 0 {
				return errors.New("--lines must be zero or more")
			}
			path := filepath.Join(cfg.Paths.LogDir, "herald.log")

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			opts := logs.Options{Lines: lines, Follow: follow, Match: grep}
			if postID != "" {
				opts.Match = append(opts.Match, postID)
			}
			out := cmd.OutOrStdout()
			return logs.Tail(runCtx, path, opts, func(line string) error {
				_, err := fmt.Fprintln(out, line)
				return err
			})
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of recent lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines")
	cmd.Flags().StringVar(&postID, "post", "", "Only show lines mentioning this post id")
	cmd.Flags().StringArrayVar(&grep, "grep", nil, "Only show lines containing this text (repeatable)")
	return cmd
}
