package config

const (
	defaultConfigPath            = "~/.config/herald/config.toml"
	defaultQueueFile             = "~/.local/share/herald/queue.json"
	defaultAssetDir              = "~/.local/share/herald/assets"
	defaultAdaptedDir            = "~/.local/share/herald/adapted"
	defaultStateDir              = "~/.local/share/herald"
	defaultLogDir                = "~/.local/share/herald/logs"
	defaultHistoryFile           = "history.db"
	defaultAPIBind               = "127.0.0.1:7488"
	defaultPollIntervalSeconds   = 60
	defaultMaxRetries            = 3
	defaultRetryDelayMinutes     = 15
	defaultFFmpegBinary          = "ffmpeg"
	defaultFFprobeBinary         = "ffprobe"
	defaultVideoCRF              = 23
	defaultVideoPreset           = "fast"
	defaultAudioBitrate          = "128k"
	defaultMinImageQuality       = 40
	defaultAdaptationTimeout     = 900
	defaultTwitterBaseURL        = "https://api.twitter.com"
	defaultTwitterTokenURL       = "https://api.twitter.com/2/oauth2/token"
	defaultGraphBaseURL          = "https://graph.facebook.com/v18.0"
	defaultPlatformTimeout       = 60
	defaultContainerPollInterval = 2
	defaultContainerPollAttempts = 60
	defaultNotifyTimeout         = 10
	defaultMetricsPath           = "/metrics"
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
	defaultLogRetentionDays      = 30
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			QueueFile:  defaultQueueFile,
			AssetDir:   defaultAssetDir,
			AdaptedDir: defaultAdaptedDir,
			StateDir:   defaultStateDir,
			LogDir:     defaultLogDir,
			APIBind:    defaultAPIBind,
		},
		Workflow: Workflow{
			PollIntervalSeconds: defaultPollIntervalSeconds,
			MaxRetries:          defaultMaxRetries,
			RetryDelayMinutes:   defaultRetryDelayMinutes,
			FailFastPermanent:   true,
		},
		Adaptation: Adaptation{
			FFmpegBinary:    defaultFFmpegBinary,
			FFprobeBinary:   defaultFFprobeBinary,
			VideoCRF:        defaultVideoCRF,
			VideoPreset:     defaultVideoPreset,
			AudioBitrate:    defaultAudioBitrate,
			MinImageQuality: defaultMinImageQuality,
			TimeoutSeconds:  defaultAdaptationTimeout,
		},
		Twitter: Twitter{
			BaseURL:        defaultTwitterBaseURL,
			TokenURL:       defaultTwitterTokenURL,
			TimeoutSeconds: defaultPlatformTimeout,
		},
		Instagram: Instagram{
			GraphBaseURL:                 defaultGraphBaseURL,
			ContainerPollIntervalSeconds: defaultContainerPollInterval,
			ContainerPollAttempts:        defaultContainerPollAttempts,
			TimeoutSeconds:               defaultPlatformTimeout,
		},
		Facebook: Facebook{
			GraphBaseURL:   defaultGraphBaseURL,
			TimeoutSeconds: defaultPlatformTimeout,
		},
		TikTok: TikTok{
			Enabled: true,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			Posted:         true,
			Failed:         true,
			Retry:          false,
			CycleSummary:   false,
		},
		History: History{
			Enabled: true,
		},
		Metrics: Metrics{
			Enabled: true,
			Path:    defaultMetricsPath,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
