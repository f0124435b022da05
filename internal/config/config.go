package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains file, directory, and bind address configuration.
type Paths struct {
	QueueFile  string `toml:"queue_file"`
	AssetDir   string `toml:"asset_dir"`
	AdaptedDir string `toml:"adapted_dir"`
	StateDir   string `toml:"state_dir"`
	LogDir     string `toml:"log_dir"`
	APIBind    string `toml:"api_bind"`
	APIToken   string `toml:"api_token"`
}

// Workflow contains configuration for the queue processor.
type Workflow struct {
	PollIntervalSeconds int  `toml:"poll_interval_seconds"`
	MaxRetries          int  `toml:"max_retries"`
	RetryDelayMinutes   int  `toml:"retry_delay_minutes"`
	SavePerPost         bool `toml:"save_per_post"`
	FailFastPermanent   bool `toml:"fail_fast_permanent"`
}

// Adaptation contains configuration for rendition generation.
type Adaptation struct {
	FFmpegBinary    string `toml:"ffmpeg_binary"`
	FFprobeBinary   string `toml:"ffprobe_binary"`
	VideoCRF        int    `toml:"video_crf"`
	VideoPreset     string `toml:"video_preset"`
	AudioBitrate    string `toml:"audio_bitrate"`
	MinImageQuality int    `toml:"min_image_quality"`
	TimeoutSeconds  int    `toml:"timeout_seconds"`
}

// Twitter contains OAuth2 user-context credentials for the X/Twitter API v2.
type Twitter struct {
	Enabled        bool   `toml:"enabled"`
	ClientID       string `toml:"client_id"`
	ClientSecret   string `toml:"client_secret"`
	AccessToken    string `toml:"access_token"`
	RefreshToken   string `toml:"refresh_token"`
	BaseURL        string `toml:"base_url"`
	TokenURL       string `toml:"token_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Instagram contains Graph API credentials for an Instagram business account.
type Instagram struct {
	Enabled                      bool   `toml:"enabled"`
	AccessToken                  string `toml:"access_token"`
	AccountID                    string `toml:"account_id"`
	GraphBaseURL                 string `toml:"graph_base_url"`
	MediaBaseURL                 string `toml:"media_base_url"`
	ContainerPollIntervalSeconds int    `toml:"container_poll_interval_seconds"`
	ContainerPollAttempts        int    `toml:"container_poll_attempts"`
	TimeoutSeconds               int    `toml:"timeout_seconds"`
}

// Facebook contains Graph API credentials for a Facebook page.
type Facebook struct {
	Enabled        bool   `toml:"enabled"`
	AccessToken    string `toml:"access_token"`
	PageID         string `toml:"page_id"`
	GraphBaseURL   string `toml:"graph_base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// TikTok toggles the manual-posting binding.
type TikTok struct {
	Enabled bool `toml:"enabled"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Posted         bool   `toml:"posted"`
	Failed         bool   `toml:"failed"`
	Retry          bool   `toml:"retry"`
	CycleSummary   bool   `toml:"cycle_summary"`
}

// History contains configuration for the publish attempt ledger.
type History struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Metrics toggles the Prometheus endpoint on the API server.
type Metrics struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for Herald.
//
// Configuration sections by subsystem:
//   - Paths: queue file, asset and rendition roots, state/log dirs, API bind
//   - Workflow: poll interval and retry policy
//   - Adaptation: ffmpeg/ffprobe binaries and encoder settings
//   - Twitter, Instagram, Facebook, TikTok: platform bindings
//   - Notifications: ntfy push notification settings
//   - History: sqlite publish attempt ledger
//   - Metrics: Prometheus endpoint
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Workflow      Workflow      `toml:"workflow"`
	Adaptation    Adaptation    `toml:"adaptation"`
	Twitter       Twitter       `toml:"twitter"`
	Instagram     Instagram     `toml:"instagram"`
	Facebook      Facebook      `toml:"facebook"`
	TikTok        TikTok        `toml:"tiktok"`
	Notifications Notifications `toml:"notifications"`
	History       History       `toml:"history"`
	Metrics       Metrics       `toml:"metrics"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("herald.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		filepath.Dir(c.Paths.QueueFile),
		c.Paths.AdaptedDir,
		c.Paths.StateDir,
		c.Paths.LogDir,
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	// The asset store is owned by the producer; create it best-effort so a
	// fresh install can start without one.
	if strings.TrimSpace(c.Paths.AssetDir) != "" {
		_ = os.MkdirAll(c.Paths.AssetDir, 0o755)
	}
	return nil
}

// PollInterval returns the processor tick interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Workflow.PollIntervalSeconds) * time.Second
}

// RetryDelay returns how far a failed post is pushed into the future.
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.Workflow.RetryDelayMinutes) * time.Minute
}

// LockPath returns the single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "herald.lock")
}

// PIDPath returns the daemon pid file location.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.StateDir, "herald.pid")
}

// APIBaseURL returns the http base URL for the configured bind address.
func (c *Config) APIBaseURL() string {
	bind := strings.TrimSpace(c.Paths.APIBind)
	if strings.HasPrefix(bind, ":") {
		bind = "127.0.0.1" + bind
	}
	return "http://" + bind
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// Redact masks a credential for display, keeping the first four characters.
func Redact(secret string) string {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return ""
	}
	if len(secret) <= 4 {
		return "****"
	}
	return secret[:4] + "****"
}

// SampleConfig returns the embedded sample configuration.
func SampleConfig() string {
	return sampleConfig
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
