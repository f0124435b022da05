package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"herald/internal/api"
	"herald/internal/daemonrun"
	"herald/internal/queue"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, processor, and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			client, dialErr := ctx.dialDaemon(cmd.Context())
			if dialErr != nil {
				if jsonOutput {
					return writeJSON(cmd, api.StatusResponse{Running: false})
				}
				cfg := ctx.configValue()
				message := "Not running"
				if pid := daemonrun.ReadPID(cfg); pid > 0 && processAlive(pid) {
					message = fmt.Sprintf("pid %d alive but API at %s unreachable", pid, cfg.Paths.APIBind)
				}
				v := newStatusView(colorize)
				v.add("Daemon", levelError, message)
				return v.writeTo(out)
			}

			status, err := client.Status(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, status)
			}
			return statusReport(status, colorize).writeTo(out)
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func statusReport(status api.StatusResponse, colorize bool) *statusView {
	v := newStatusView(colorize)
	v.section("Daemon")
	daemonMsg := fmt.Sprintf("Running (pid %d)", status.PID)
	if status.StartedAt != nil {
		daemonMsg += ", up " + time.Since(*status.StartedAt).Round(time.Second).String()
	}
	v.add("Daemon", levelOK, daemonMsg)
	if status.Processor.Running {
		v.add("Processor", levelOK, "Polling")
	} else {
		v.add("Processor", levelWarn, "Stopped")
	}
	if status.Processor.LastError != "" {
		v.add("Last error", levelError, status.Processor.LastError)
	}
	if cycle := status.Processor.LastCycle; cycle != nil {
		v.add("Last cycle", levelInfo, fmt.Sprintf("%d due, %d posted, %d retried, %d failed at %s",
			cycle.Due, cycle.Posted, cycle.Retried, cycle.Failed, formatTime(cycle.FinishedAt)))
	}
	v.add("Platforms", levelInfo, joinPlatforms(status.Platforms))
	v.add("Queue file", levelInfo, status.QueueFile)
	if status.HistoryPath != "" {
		v.add("History", levelInfo, status.HistoryPath)
	}

	v.section("Queue")
	stats := status.Processor.QueueStats
	v.add("Total", levelInfo, strconv.Itoa(stats.Total))
	v.add("Awaiting approval", levelInfo, strconv.Itoa(stats.Pending))
	v.add("Approved", levelInfo, strconv.Itoa(stats.Approved))
	v.add("Posted", levelOK, strconv.Itoa(stats.Posted))
	failed := levelOK
	if stats.Failed > 0 {
		failed = levelWarn
	}
	v.add("Failed", failed, strconv.Itoa(stats.Failed))

	if len(status.Preflight) > 0 {
		v.section("Preflight")
		v.checks(status.Preflight)
	}
	return v
}

func joinPlatforms(platforms []queue.Platform) string {
	if len(platforms) == 0 {
		return "none enabled"
	}
	names := make([]string, len(platforms))
	for i, p := range platforms {
		names[i] = string(p)
	}
	return strings.Join(names, ", ")
}
