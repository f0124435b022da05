package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"herald/internal/config"
	"herald/internal/history"
	"herald/internal/logging"
	"herald/internal/metrics"
	"herald/internal/preflight"
	"herald/internal/queue"
	"herald/internal/workflow"
)

// HistoryReader exposes ledger queries to the API.
type HistoryReader interface {
	ForPost(ctx context.Context, postID string) ([]history.Attempt, error)
	Path() string
}

// Daemon owns the processor lifecycle and the admin API.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	processor *workflow.Processor
	history   HistoryReader
	metrics   *metrics.Metrics
	platforms []queue.Platform
	preflight func(context.Context, *config.Config) []preflight.Result
	api       *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc

	stateMu   sync.Mutex
	startedAt time.Time
	checks    []preflight.Result
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	StartedAt    time.Time
	QueueFile    string
	LockFilePath string
	HistoryPath  string
	Platforms    []queue.Platform
	Processor    workflow.StatusSummary
	Preflight    []preflight.Result
}

// Option configures optional collaborators.
type Option func(*Daemon)

// WithHistory exposes the ledger through GET /api/history/{id}.
func WithHistory(reader HistoryReader) Option {
	return func(d *Daemon) {
		d.history = reader
	}
}

// WithMetrics serves the registry on the configured metrics path.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Daemon) {
		d.metrics = m
	}
}

// WithPlatforms records the platforms that have a binding, for status output.
func WithPlatforms(platforms ...queue.Platform) Option {
	return func(d *Daemon) {
		d.platforms = append([]queue.Platform(nil), platforms...)
	}
}

// WithPreflight replaces the startup checks.
func WithPreflight(check func(context.Context, *config.Config) []preflight.Result) Option {
	return func(d *Daemon) {
		if check != nil {
			d.preflight = check
		}
	}
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, processor *workflow.Processor, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil || processor == nil {
		return nil, errors.New("daemon requires config and processor")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "daemon"),
		processor: processor,
		preflight: preflight.RunAll,
		lockPath:  lockPath,
		lock:      flock.New(lockPath),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock, runs preflight checks, starts the
// processor, and begins serving the API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another herald daemon instance is already running")
	}

	checks := d.preflight(ctx, d.cfg)
	d.logPreflight(checks)
	if failed, found := preflight.FirstCritical(checks); found {
		_ = d.lock.Unlock()
		return failed.Err()
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.processor.Start(d.ctx); err != nil {
		d.release()
		return fmt.Errorf("start processor: %w", err)
	}
	if err := d.api.start(d.ctx); err != nil {
		d.processor.Stop()
		d.release()
		return err
	}

	d.stateMu.Lock()
	d.startedAt = time.Now().UTC()
	d.checks = checks
	d.stateMu.Unlock()

	d.running.Store(true)
	d.logger.Info("herald daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lockPath),
		logging.String("api", d.api.address()),
	)
	return nil
}

// Stop stops background processing, waits for an in-flight cycle, and
// releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.api.stop()
	d.processor.Stop()
	d.release()
	d.running.Store(false)
	d.logger.Info("herald daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	return nil
}

func (d *Daemon) release() {
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.ctx = nil
	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "lock_release_failed",
			logging.String("lock", d.lockPath),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove the lock file if no herald process is running"),
		)
	}
}

func (d *Daemon) logPreflight(checks []preflight.Result) {
	for _, check := range preflight.Failed(checks) {
		impact := "affected features may fail at publish time"
		if check.Critical {
			impact = "daemon will not start"
		}
		logging.WarnWithContext(d.logger, "preflight check failed", "preflight_failed",
			logging.String("check", check.Name),
			logging.String("detail", check.Detail),
			logging.String(logging.FieldErrorHint, "run herald doctor for details"),
			logging.String(logging.FieldImpact, impact),
		)
	}
}

// APIAddress returns the address the API listens on, or "" when disabled.
func (d *Daemon) APIAddress() string {
	return d.api.address()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	d.stateMu.Lock()
	started := d.startedAt
	checks := append([]preflight.Result(nil), d.checks...)
	d.stateMu.Unlock()

	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		StartedAt:    started,
		QueueFile:    d.cfg.Paths.QueueFile,
		LockFilePath: d.lockPath,
		Platforms:    d.platforms,
		Processor:    d.processor.Status(ctx),
		Preflight:    checks,
	}
	if d.history != nil {
		status.HistoryPath = d.history.Path()
	}
	return status
}
