package publish

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"herald/internal/config"
	"herald/internal/logging"
	"herald/internal/queue"
)

// Manager routes posts to the binding for their platform.
type Manager struct {
	publishers map[queue.Platform]Publisher
	logger     *slog.Logger
}

// NewManager builds bindings for every enabled platform in cfg.
func NewManager(cfg *config.Config, logger *slog.Logger) *Manager {
	var publishers []Publisher
	if cfg.Twitter.Enabled {
		publishers = append(publishers, NewTwitter(cfg.Twitter, logger))
	}
	if cfg.Instagram.Enabled {
		publishers = append(publishers, NewInstagram(cfg, logger))
	}
	if cfg.Facebook.Enabled {
		publishers = append(publishers, NewFacebook(cfg.Facebook, logger))
	}
	if cfg.TikTok.Enabled {
		publishers = append(publishers, TikTok{})
	}
	return NewManagerWith(logger, publishers...)
}

// NewManagerWith builds a manager from explicit bindings.
func NewManagerWith(logger *slog.Logger, publishers ...Publisher) *Manager {
	m := &Manager{
		publishers: make(map[queue.Platform]Publisher, len(publishers)),
		logger:     logging.NewComponentLogger(logger, "publish"),
	}
	for _, p := range publishers {
		m.publishers[p.Platform()] = p
	}
	return m
}

// Platforms lists platforms with a binding, in canonical order.
func (m *Manager) Platforms() []queue.Platform {
	var out []queue.Platform
	for _, p := range queue.Platforms() {
		if _, ok := m.publishers[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

// PostToPlatform publishes content and always returns a Result. Platforms
// without a binding produce a non-retryable failure.
func (m *Manager) PostToPlatform(ctx context.Context, platform queue.Platform, content queue.Content, postType queue.PostType, mediaPaths []string) Result {
	publisher, ok := m.publishers[platform]
	if !ok {
		return Result{
			Platform: platform,
			Error:    fmt.Sprintf("%s is not configured", platform),
		}
	}

	started := time.Now()
	result := publisher.Publish(ctx, Request{
		Content:    content,
		PostType:   postType,
		MediaPaths: mediaPaths,
	})
	result.Platform = platform

	attrs := []logging.Attr{
		logging.String(logging.FieldPlatform, string(platform)),
		logging.String("post_type", string(postType)),
		logging.Int("media", len(mediaPaths)),
		logging.Duration("elapsed", time.Since(started)),
	}
	attrs = append(attrs, logging.ContextFields(ctx)...)
	if result.Success {
		attrs = append(attrs, logging.String("remote_id", result.PostID), logging.String("url", result.URL))
		m.logger.Info("platform accepted post", logging.Args(attrs...)...)
	} else {
		attrs = append(attrs, logging.String("error", result.Error), logging.Bool("retryable", result.Retryable))
		m.logger.Info("platform rejected post", logging.Args(attrs...)...)
	}
	return result
}
