package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"herald/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Every platform is disabled so tests opt in to the bindings they exercise.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.QueueFile = filepath.Join(base, "queue.json")
	cfgVal.Paths.AssetDir = filepath.Join(base, "assets")
	cfgVal.Paths.AdaptedDir = filepath.Join(base, "adapted")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.History.Path = filepath.Join(base, "state", "history.db")
	cfgVal.TikTok.Enabled = false

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithTwitter enables the twitter binding against baseURL.
func WithTwitter(baseURL string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Twitter.Enabled = true
		b.cfg.Twitter.AccessToken = "twitter-test-token"
		b.cfg.Twitter.BaseURL = baseURL
	}
}

// WithGraph enables the instagram and facebook bindings against baseURL.
func WithGraph(baseURL string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Instagram.Enabled = true
		b.cfg.Instagram.AccessToken = "graph-test-token"
		b.cfg.Instagram.AccountID = "17841400000000000"
		b.cfg.Instagram.GraphBaseURL = baseURL
		b.cfg.Instagram.MediaBaseURL = "https://cdn.example.test/adapted"
		b.cfg.Instagram.ContainerPollIntervalSeconds = 0
		b.cfg.Instagram.ContainerPollAttempts = 3
		b.cfg.Facebook.Enabled = true
		b.cfg.Facebook.AccessToken = "graph-test-token"
		b.cfg.Facebook.PageID = "100200300"
		b.cfg.Facebook.GraphBaseURL = baseURL
	}
}

// WithRetryPolicy overrides the workflow retry settings.
func WithRetryPolicy(maxRetries, delayMinutes int, failFast bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Workflow.MaxRetries = maxRetries
		b.cfg.Workflow.RetryDelayMinutes = delayMinutes
		b.cfg.Workflow.FailFastPermanent = failFast
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, ffmpeg and ffprobe are stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"ffmpeg", "ffprobe"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.QueueFile)
}
