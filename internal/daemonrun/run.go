package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"herald/internal/config"
	"herald/internal/daemon"
	"herald/internal/logging"
	"herald/internal/queue"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the herald daemon and blocks until SIGINT/SIGTERM or until
// cmdCtx ends. An in-flight poll cycle finishes before Run returns.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("herald-%s.log", runID))

	level := opts.LogLevel
	if strings.TrimSpace(level) == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", logPath},
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update herald.log link: %v\n", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "herald-*.log", Exclude: []string{logPath}},
	)

	rt, err := NewRuntime(cfg, logger)
	if err != nil {
		logger.Error("initialize runtime", logging.Error(err))
		return err
	}
	defer rt.Close()

	logDependencySnapshot(logger, cfg, rt.Publisher.Platforms())

	daemonOpts := []daemon.Option{daemon.WithPlatforms(rt.Publisher.Platforms()...)}
	if rt.History != nil {
		daemonOpts = append(daemonOpts, daemon.WithHistory(rt.History))
	}
	if rt.Metrics != nil {
		daemonOpts = append(daemonOpts, daemon.WithMetrics(rt.Metrics))
	}
	d, err := daemon.New(cfg, rt.Processor, logger, daemonOpts...)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "run herald doctor and check for another running instance"),
			logging.String(logging.FieldImpact, "no posts will be published"),
		)
		return err
	}

	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	<-signalCtx.Done()
	logger.Info("herald daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	return nil
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "herald.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

// ReadPID returns the pid recorded by a running daemon, or 0.
func ReadPID(cfg *config.Config) int {
	data, err := os.ReadFile(cfg.PIDPath())
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return pid
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config, platforms []queue.Platform) {
	if logger == nil || cfg == nil {
		return
	}
	names := make([]string, 0, len(platforms))
	for _, p := range platforms {
		names = append(names, string(p))
	}
	logger.Info("dependency snapshot",
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.String("platforms", strings.Join(names, ",")),
		logging.Bool("ffmpeg_available", binaryAvailable(cfg.Adaptation.FFmpegBinary)),
		logging.String("ffmpeg_binary", cfg.Adaptation.FFmpegBinary),
		logging.Bool("ffprobe_available", binaryAvailable(cfg.Adaptation.FFprobeBinary)),
		logging.String("ffprobe_binary", cfg.Adaptation.FFprobeBinary),
		logging.Bool("twitter_token_present", strings.TrimSpace(cfg.Twitter.AccessToken) != ""),
		logging.Bool("instagram_media_base_set", strings.TrimSpace(cfg.Instagram.MediaBaseURL) != ""),
		logging.Bool("ntfy_configured", strings.TrimSpace(cfg.Notifications.NtfyTopic) != ""),
		logging.Bool("history_enabled", cfg.History.Enabled),
		logging.Bool("metrics_enabled", cfg.Metrics.Enabled),
		logging.Bool("api_token_set", strings.TrimSpace(cfg.Paths.APIToken) != ""),
	)
}

func binaryAvailable(name string) bool {
	if strings.TrimSpace(name) == "" {
		return false
	}
	_, err := exec.LookPath(name)
	return err == nil
}
