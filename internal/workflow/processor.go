package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"herald/internal/adaptation"
	"herald/internal/config"
	"herald/internal/history"
	"herald/internal/logging"
	"herald/internal/metrics"
	"herald/internal/notifications"
	"herald/internal/publish"
	"herald/internal/queue"
)

// Store is the whole-collection persistence the processor needs.
type Store interface {
	Load(ctx context.Context) ([]queue.Post, error)
	Save(ctx context.Context, posts []queue.Post) error
}

// Adapter renders a source asset for a platform format.
type Adapter interface {
	Adapt(ctx context.Context, source string, format adaptation.Format, outputDir string) (adaptation.Rendition, error)
}

// Publisher performs the platform call for one post.
type Publisher interface {
	PostToPlatform(ctx context.Context, platform queue.Platform, content queue.Content, postType queue.PostType, mediaPaths []string) publish.Result
}

// HistoryRecorder receives one row per adaptation or publish attempt.
type HistoryRecorder interface {
	Record(ctx context.Context, attempt history.Attempt) (int64, error)
}

// Processor is the scheduler and state machine for approved posts.
type Processor struct {
	store     Store
	adapter   Adapter
	publisher Publisher
	history   HistoryRecorder
	notifier  notifications.Service
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time

	assetDir     string
	adaptedDir   string
	pollInterval time.Duration
	policy       queue.RetryPolicy
	savePerPost  bool

	// mu serializes cycles and admin operations against the store.
	mu sync.Mutex

	stateMu    sync.Mutex
	running    bool
	stop       chan struct{}
	wg         sync.WaitGroup
	lastErr    error
	lastReport *CycleReport
}

// Option configures optional collaborators.
type Option func(*Processor)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Processor) {
		if now != nil {
			p.now = now
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Processor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithHistory records every attempt in the ledger.
func WithHistory(recorder HistoryRecorder) Option {
	return func(p *Processor) {
		p.history = recorder
	}
}

func WithNotifier(notifier notifications.Service) Option {
	return func(p *Processor) {
		if notifier != nil {
			p.notifier = notifier
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Processor) {
		p.metrics = m
	}
}

// NewProcessor wires a processor from configuration and its collaborators.
func NewProcessor(cfg *config.Config, store Store, adapter Adapter, publisher Publisher, opts ...Option) *Processor {
	p := &Processor{
		store:        store,
		adapter:      adapter,
		publisher:    publisher,
		notifier:     notifications.NewService(cfg),
		logger:       logging.NewNop(),
		now:          time.Now,
		assetDir:     cfg.Paths.AssetDir,
		adaptedDir:   cfg.Paths.AdaptedDir,
		pollInterval: cfg.PollInterval(),
		savePerPost:  cfg.Workflow.SavePerPost,
		policy: queue.RetryPolicy{
			MaxRetries: cfg.Workflow.MaxRetries,
			Delay:      cfg.RetryDelay(),
			FailFast:   cfg.Workflow.FailFastPermanent,
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = logging.NewComponentLogger(p.logger, "processor")
	if p.pollInterval <= 0 {
		p.pollInterval = time.Minute
	}
	return p
}

// Start runs a cycle immediately and then one per poll interval until Stop
// is called or ctx ends. Cycles never overlap.
func (p *Processor) Start(ctx context.Context) error {
	p.stateMu.Lock()
	if p.running {
		p.stateMu.Unlock()
		return errors.New("processor already running")
	}
	stop := make(chan struct{})
	p.stop = stop
	p.running = true
	p.wg.Add(1)
	p.stateMu.Unlock()

	go p.loop(ctx, stop)
	p.logger.Info("processor started", logging.Duration("poll_interval", p.pollInterval))
	return nil
}

// Stop prevents further cycles and waits for an in-flight cycle to finish.
// A cycle already running is not interrupted.
func (p *Processor) Stop() {
	p.stateMu.Lock()
	if !p.running {
		p.stateMu.Unlock()
		return
	}
	close(p.stop)
	p.running = false
	p.stop = nil
	p.stateMu.Unlock()

	p.wg.Wait()
	p.logger.Info("processor stopped")
}

// release clears the running state when the loop ends on its own because
// ctx was cancelled. After Stop it is a no-op.
func (p *Processor) release(stop chan struct{}) {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	if p.stop == stop {
		p.running = false
		p.stop = nil
	}
}

// Running reports whether the poll loop is active.
func (p *Processor) Running() bool {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	return p.running
}

func (p *Processor) loop(ctx context.Context, stop chan struct{}) {
	defer p.wg.Done()
	defer p.release(stop)
	// Cycles outlive cancellation of ctx; platform calls are irrevocable once issued.
	cycleCtx := context.WithoutCancel(ctx)
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		default:
		}

		if _, err := p.RunCycle(cycleCtx); err != nil {
			logging.ErrorWithContext(p.logger, "poll cycle aborted", "cycle_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check queue file permissions and disk space"),
				logging.String(logging.FieldImpact, "due posts wait for the next cycle"),
			)
		}

		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// StatusSummary is a snapshot of processor state for status surfaces.
type StatusSummary struct {
	Running    bool         `json:"running"`
	LastError  string       `json:"lastError,omitempty"`
	LastCycle  *CycleReport `json:"lastCycle,omitempty"`
	QueueStats queue.Stats  `json:"queueStats"`
}

// Status returns the latest processor information with fresh queue counts.
func (p *Processor) Status(ctx context.Context) StatusSummary {
	p.stateMu.Lock()
	summary := StatusSummary{Running: p.running}
	if p.lastErr != nil {
		summary.LastError = p.lastErr.Error()
	}
	if p.lastReport != nil {
		report := *p.lastReport
		summary.LastCycle = &report
	}
	p.stateMu.Unlock()

	stats, err := p.GetStats(ctx)
	if err != nil {
		p.logger.Warn("failed to read queue stats", logging.Error(err))
	}
	summary.QueueStats = stats
	return summary
}

func (p *Processor) setCycleResult(report CycleReport, err error) {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	p.lastErr = err
	p.lastReport = &report
}
