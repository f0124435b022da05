package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeAdaptation()
	c.normalizeTwitter()
	c.normalizeInstagram()
	c.normalizeFacebook()
	c.normalizeNotifications()
	if err := c.normalizeHistory(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.QueueFile, err = expandPath(strings.TrimSpace(c.Paths.QueueFile)); err != nil {
		return fmt.Errorf("paths.queue_file: %w", err)
	}
	if c.Paths.AssetDir, err = expandPath(strings.TrimSpace(c.Paths.AssetDir)); err != nil {
		return fmt.Errorf("paths.asset_dir: %w", err)
	}
	if c.Paths.AdaptedDir, err = expandPath(strings.TrimSpace(c.Paths.AdaptedDir)); err != nil {
		return fmt.Errorf("paths.adapted_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = filepath.Join(c.Paths.StateDir, "logs")
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("HERALD_API_TOKEN"); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeAdaptation() {
	c.Adaptation.FFmpegBinary = strings.TrimSpace(c.Adaptation.FFmpegBinary)
	if c.Adaptation.FFmpegBinary == "" {
		c.Adaptation.FFmpegBinary = defaultFFmpegBinary
	}
	c.Adaptation.FFprobeBinary = strings.TrimSpace(c.Adaptation.FFprobeBinary)
	if c.Adaptation.FFprobeBinary == "" {
		c.Adaptation.FFprobeBinary = defaultFFprobeBinary
	}
	c.Adaptation.VideoPreset = strings.ToLower(strings.TrimSpace(c.Adaptation.VideoPreset))
	if c.Adaptation.VideoPreset == "" {
		c.Adaptation.VideoPreset = defaultVideoPreset
	}
	c.Adaptation.AudioBitrate = strings.TrimSpace(c.Adaptation.AudioBitrate)
	if c.Adaptation.AudioBitrate == "" {
		c.Adaptation.AudioBitrate = defaultAudioBitrate
	}
	if c.Adaptation.TimeoutSeconds <= 0 {
		c.Adaptation.TimeoutSeconds = defaultAdaptationTimeout
	}
}

func (c *Config) normalizeTwitter() {
	c.Twitter.ClientID = envFallback(c.Twitter.ClientID, "TWITTER_CLIENT_ID")
	c.Twitter.ClientSecret = envFallback(c.Twitter.ClientSecret, "TWITTER_CLIENT_SECRET")
	c.Twitter.AccessToken = envFallback(c.Twitter.AccessToken, "TWITTER_ACCESS_TOKEN")
	c.Twitter.RefreshToken = envFallback(c.Twitter.RefreshToken, "TWITTER_REFRESH_TOKEN")
	c.Twitter.BaseURL = strings.TrimRight(strings.TrimSpace(c.Twitter.BaseURL), "/")
	if c.Twitter.BaseURL == "" {
		c.Twitter.BaseURL = defaultTwitterBaseURL
	}
	c.Twitter.TokenURL = strings.TrimSpace(c.Twitter.TokenURL)
	if c.Twitter.TokenURL == "" {
		c.Twitter.TokenURL = defaultTwitterTokenURL
	}
	if c.Twitter.TimeoutSeconds <= 0 {
		c.Twitter.TimeoutSeconds = defaultPlatformTimeout
	}
}

func (c *Config) normalizeInstagram() {
	c.Instagram.AccessToken = envFallback(c.Instagram.AccessToken, "INSTAGRAM_ACCESS_TOKEN")
	c.Instagram.AccountID = envFallback(c.Instagram.AccountID, "INSTAGRAM_ACCOUNT_ID")
	c.Instagram.GraphBaseURL = strings.TrimRight(strings.TrimSpace(c.Instagram.GraphBaseURL), "/")
	if c.Instagram.GraphBaseURL == "" {
		c.Instagram.GraphBaseURL = defaultGraphBaseURL
	}
	c.Instagram.MediaBaseURL = strings.TrimRight(strings.TrimSpace(c.Instagram.MediaBaseURL), "/")
	if c.Instagram.ContainerPollIntervalSeconds <= 0 {
		c.Instagram.ContainerPollIntervalSeconds = defaultContainerPollInterval
	}
	if c.Instagram.ContainerPollAttempts <= 0 {
		c.Instagram.ContainerPollAttempts = defaultContainerPollAttempts
	}
	if c.Instagram.TimeoutSeconds <= 0 {
		c.Instagram.TimeoutSeconds = defaultPlatformTimeout
	}
}

func (c *Config) normalizeFacebook() {
	c.Facebook.AccessToken = envFallback(c.Facebook.AccessToken, "FACEBOOK_ACCESS_TOKEN")
	c.Facebook.PageID = envFallback(c.Facebook.PageID, "FACEBOOK_PAGE_ID")
	c.Facebook.GraphBaseURL = strings.TrimRight(strings.TrimSpace(c.Facebook.GraphBaseURL), "/")
	if c.Facebook.GraphBaseURL == "" {
		c.Facebook.GraphBaseURL = defaultGraphBaseURL
	}
	if c.Facebook.TimeoutSeconds <= 0 {
		c.Facebook.TimeoutSeconds = defaultPlatformTimeout
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = envFallback(c.Notifications.NtfyTopic, "NTFY_TOPIC")
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyTimeout
	}
}

func (c *Config) normalizeHistory() error {
	if strings.TrimSpace(c.History.Path) == "" {
		c.History.Path = filepath.Join(c.Paths.StateDir, defaultHistoryFile)
	}
	var err error
	if c.History.Path, err = expandPath(strings.TrimSpace(c.History.Path)); err != nil {
		return fmt.Errorf("history.path: %w", err)
	}
	c.Metrics.Path = strings.TrimSpace(c.Metrics.Path)
	if c.Metrics.Path == "" {
		c.Metrics.Path = defaultMetricsPath
	}
	if !strings.HasPrefix(c.Metrics.Path, "/") {
		c.Metrics.Path = "/" + c.Metrics.Path
	}
	return nil
}

func (c *Config) normalizeLogging() {
	format := strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch format {
	case "", "console", "text", "pretty":
		c.Logging.Format = "console"
	default:
		c.Logging.Format = format
	}
	level := strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if level == "" {
		level = defaultLogLevel
	}
	c.Logging.Level = level
}

func envFallback(value, key string) string {
	value = strings.TrimSpace(value)
	if value != "" {
		return value
	}
	if env, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(env)
	}
	return ""
}
