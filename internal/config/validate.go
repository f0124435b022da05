package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateAdaptation(); err != nil {
		return err
	}
	if err := c.validatePlatforms(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.QueueFile) == "" {
		return errors.New("paths.queue_file must be set")
	}
	if strings.TrimSpace(c.Paths.AdaptedDir) == "" {
		return errors.New("paths.adapted_dir must be set")
	}
	if strings.TrimSpace(c.Paths.AssetDir) == "" {
		return errors.New("paths.asset_dir must be set")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.PollIntervalSeconds <= 0 {
		return errors.New("workflow.poll_interval_seconds must be positive")
	}
	if c.Workflow.MaxRetries <= 0 {
		return errors.New("workflow.max_retries must be positive")
	}
	if c.Workflow.RetryDelayMinutes <= 0 {
		return errors.New("workflow.retry_delay_minutes must be positive")
	}
	return nil
}

func (c *Config) validateAdaptation() error {
	if c.Adaptation.VideoCRF < 0 || c.Adaptation.VideoCRF > 51 {
		return errors.New("adaptation.video_crf must be between 0 and 51")
	}
	if c.Adaptation.MinImageQuality < 1 || c.Adaptation.MinImageQuality > 100 {
		return errors.New("adaptation.min_image_quality must be between 1 and 100")
	}
	switch c.Adaptation.VideoPreset {
	case "ultrafast", "superfast", "veryfast", "faster", "fast", "medium", "slow", "slower", "veryslow":
	default:
		return fmt.Errorf("adaptation.video_preset: unsupported value %q", c.Adaptation.VideoPreset)
	}
	return nil
}

func (c *Config) validatePlatforms() error {
	if c.Twitter.Enabled {
		if c.Twitter.AccessToken == "" {
			return errors.New("twitter.access_token is required when twitter.enabled is true (or set TWITTER_ACCESS_TOKEN)")
		}
		if c.Twitter.RefreshToken != "" && c.Twitter.ClientID == "" {
			return errors.New("twitter.client_id is required to refresh tokens")
		}
		if err := validateURL("twitter.base_url", c.Twitter.BaseURL); err != nil {
			return err
		}
	}
	if c.Instagram.Enabled {
		if c.Instagram.AccessToken == "" {
			return errors.New("instagram.access_token is required when instagram.enabled is true (or set INSTAGRAM_ACCESS_TOKEN)")
		}
		if c.Instagram.AccountID == "" {
			return errors.New("instagram.account_id is required when instagram.enabled is true (or set INSTAGRAM_ACCOUNT_ID)")
		}
		if err := validateURL("instagram.graph_base_url", c.Instagram.GraphBaseURL); err != nil {
			return err
		}
		if c.Instagram.MediaBaseURL != "" {
			if err := validateURL("instagram.media_base_url", c.Instagram.MediaBaseURL); err != nil {
				return err
			}
		}
	}
	if c.Facebook.Enabled {
		if c.Facebook.AccessToken == "" {
			return errors.New("facebook.access_token is required when facebook.enabled is true (or set FACEBOOK_ACCESS_TOKEN)")
		}
		if c.Facebook.PageID == "" {
			return errors.New("facebook.page_id is required when facebook.enabled is true (or set FACEBOOK_PAGE_ID)")
		}
		if err := validateURL("facebook.graph_base_url", c.Facebook.GraphBaseURL); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must be zero or positive")
	}
	return nil
}

func validateURL(field, value string) error {
	parsed, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%s must be an http(s) URL", field)
	}
	return nil
}
