package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"herald/internal/daemonrun"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var logLevel string
	var development bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the publishing daemon in the foreground",
		Long: "Run the queue processor and the admin API until interrupted.\n" +
			"An in-flight cycle finishes before the process exits.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:    logLevel,
				Development: development,
			})
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level for this run")
	cmd.Flags().BoolVar(&development, "dev", false, "Include source locations in log output")
	return cmd
}

func newStopCommand(ctx *commandContext) *cobra.Command {
	var wait time.Duration

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Signal a running daemon to shut down",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			pid := daemonrun.ReadPID(ctx.configValue())
			if pid <= 0 || !processAlive(pid) {
				fmt.Fprintln(out, "Daemon is not running")
				return nil
			}
			if err := unix.Kill(pid, unix.SIGTERM); err != nil {
				return fmt.Errorf("signal daemon (pid %d): %w", pid, err)
			}
			fmt.Fprintf(out, "Stopping daemon (pid %d)...\n", pid)

			deadline := time.Now().Add(wait)
			for time.Now().Before(deadline) {
				if !processAlive(pid) {
					fmt.Fprintln(out, "Daemon stopped")
					return nil
				}
				time.Sleep(100 * time.Millisecond)
			}
			if wait > 0 {
				return fmt.Errorf("daemon (pid %d) still running after %s; a publish may be in flight", pid, wait)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", 30*time.Second, "How long to wait for the daemon to exit (0 to return immediately)")
	return cmd
}

func processAlive(pid int) bool {
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}
