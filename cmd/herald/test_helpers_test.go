package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"herald/internal/config"
	"herald/internal/daemon"
	"herald/internal/daemonrun"
	"herald/internal/logging"
	"herald/internal/preflight"
	"herald/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	baseDir    string
}

// setupCLITestEnv writes a config whose API bind never answers, so queue
// commands fall back to the queue file.
func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)

	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	cfg.Workflow.PollIntervalSeconds = 3600
	cfg.Paths.APIBind = "127.0.0.1:0"
	cfg.Metrics.Enabled = false

	env := &cliTestEnv{
		cfg:        cfg,
		configPath: filepath.Join(homeDir, ".config", "herald", "config.toml"),
		baseDir:    base,
	}
	env.writeConfig(t)
	return env
}

func (e *cliTestEnv) writeConfig(t *testing.T) {
	t.Helper()
	data, err := toml.Marshal(e.cfg)
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(e.configPath), 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	if err := os.WriteFile(e.configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

// startDaemon runs a daemon in this process and points the config at its API.
func (e *cliTestEnv) startDaemon(t *testing.T) *daemon.Daemon {
	t.Helper()
	rt, err := daemonrun.NewRuntime(e.cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("NewRuntime: %v", err)
	}
	opts := []daemon.Option{
		daemon.WithPreflight(func(context.Context, *config.Config) []preflight.Result { return nil }),
	}
	if rt.History != nil {
		opts = append(opts, daemon.WithHistory(rt.History))
	}
	d, err := daemon.New(e.cfg, rt.Processor, nil, opts...)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	if err := d.Start(ctx); err != nil {
		cancel()
		t.Fatalf("daemon Start: %v", err)
	}
	t.Cleanup(func() {
		cancel()
		_ = d.Close()
		_ = rt.Close()
	})

	e.cfg.Paths.APIBind = d.APIAddress()
	e.writeConfig(t)
	return d
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func lastQueuedID(t *testing.T, out string) string {
	t.Helper()
	for _, line := range strings.Split(out, "\n") {
		if id, ok := strings.CutPrefix(line, "Queued post "); ok {
			return strings.TrimSpace(id)
		}
	}
	t.Fatalf("no queued id in %q", out)
	return ""
}
