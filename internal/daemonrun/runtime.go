package daemonrun

import (
	"errors"
	"fmt"
	"log/slog"

	"herald/internal/adaptation"
	"herald/internal/config"
	"herald/internal/history"
	"herald/internal/metrics"
	"herald/internal/notifications"
	"herald/internal/publish"
	"herald/internal/queue"
	"herald/internal/workflow"
)

// Runtime bundles the collaborators shared by the daemon and by CLI commands
// that operate on the queue file directly.
type Runtime struct {
	Store     *queue.Store
	Engine    *adaptation.Engine
	Publisher *publish.Manager
	Processor *workflow.Processor
	// History is nil when the ledger is disabled.
	History *history.Store
	// Metrics is nil when the endpoint is disabled.
	Metrics *metrics.Metrics
}

// NewRuntime opens the queue store and wires a processor from cfg.
func NewRuntime(cfg *config.Config, logger *slog.Logger) (*Runtime, error) {
	store, err := queue.Open(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open queue store: %w", err)
	}

	rt := &Runtime{
		Store:     store,
		Engine:    adaptation.NewEngine(adaptation.OptionsFromConfig(cfg), adaptation.WithLogger(logger)),
		Publisher: publish.NewManager(cfg, logger),
	}

	opts := []workflow.Option{
		workflow.WithLogger(logger),
		workflow.WithNotifier(notifications.NewService(cfg)),
	}
	if cfg.History.Enabled {
		ledger, err := history.Open(cfg.History.Path)
		if err != nil {
			return nil, fmt.Errorf("open history ledger: %w", err)
		}
		rt.History = ledger
		opts = append(opts, workflow.WithHistory(ledger))
	}
	if cfg.Metrics.Enabled {
		rt.Metrics = metrics.New()
		opts = append(opts, workflow.WithMetrics(rt.Metrics))
	}

	rt.Processor = workflow.NewProcessor(cfg, store, rt.Engine, rt.Publisher, opts...)
	return rt, nil
}

// Close releases the ledger. The queue store holds no open handles.
func (r *Runtime) Close() error {
	if r == nil {
		return nil
	}
	var errs []error
	if r.History != nil {
		errs = append(errs, r.History.Close())
	}
	return errors.Join(errs...)
}
