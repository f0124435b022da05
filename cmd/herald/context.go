package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"herald/internal/api"
	"herald/internal/config"
	"herald/internal/daemonrun"
	"herald/internal/logging"
	"herald/internal/queueaccess"
)

const dialTimeout = 2 * time.Second

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configSeen bool
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, path, exists, err := config.Load(c.configFlagValue())
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = path
		c.configSeen = exists
	})
	return c.config, c.configErr
}

func (c *commandContext) configFlagValue() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

// dialDaemon returns a client only when the daemon answers its health check.
func (c *commandContext) dialDaemon(ctx context.Context) (*api.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.Paths.APIBind) == "" {
		return nil, api.ErrUnavailable
	}
	client, err := api.NewClient(cfg.APIBaseURL(), cfg.Paths.APIToken)
	if err != nil {
		return nil, fmt.Errorf("daemon api address: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	if err := client.Health(pingCtx); err != nil {
		return nil, err
	}
	return client, nil
}

func (c *commandContext) openQueue(cmd *cobra.Command) (queueaccess.Session, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return queueaccess.Session{}, err
	}
	return queueaccess.OpenWithFallback(
		func() (*api.Client, error) { return c.dialDaemon(cmd.Context()) },
		cfg.LockPath(),
		func() (queueaccess.Local, error) { return openLocalQueue(cfg) },
	)
}

func (c *commandContext) withQueue(cmd *cobra.Command, fn func(queueaccess.Access) error) error {
	session, err := c.openQueue(cmd)
	if err != nil {
		if errors.Is(err, queueaccess.ErrDaemonBusy) {
			return fmt.Errorf("%w (lock %s)", err, c.configValue().LockPath())
		}
		return err
	}
	defer session.Close()
	return fn(session.Access)
}

func openLocalQueue(cfg *config.Config) (queueaccess.Local, error) {
	logger, err := cliLogger(cfg)
	if err != nil {
		return queueaccess.Local{}, err
	}
	rt, err := daemonrun.NewRuntime(cfg, logger)
	if err != nil {
		return queueaccess.Local{}, err
	}
	var reader queueaccess.HistoryReader
	if rt.History != nil {
		reader = rt.History
	}
	return queueaccess.Local{
		Access: queueaccess.NewLocalAccess(rt.Processor, reader),
		Close:  rt.Close,
	}, nil
}

// cliLogger keeps processor output off stdout so tables and JSON stay clean.
func cliLogger(cfg *config.Config) (*slog.Logger, error) {
	return logging.New(logging.Options{
		Level:       "warn",
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stderr"},
	})
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
