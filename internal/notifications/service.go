package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"herald/internal/config"
)

const userAgent = "Herald-Go/0.1.0"

// Event names a publishing milestone.
type Event string

const (
	EventPostPublished Event = "post_published"
	EventPostFailed    Event = "post_failed"
	EventPostRetry     Event = "post_retry"
	EventCycleSummary  Event = "cycle_summary"
	EventTest          Event = "test"
)

// Payload carries event fields. Keys are documented per event in format.
type Payload map[string]any

// Service defines the notification surface exposed to workflow components.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		enabled: map[Event]bool{
			EventPostPublished: cfg.Notifications.Posted,
			EventPostFailed:    cfg.Notifications.Failed,
			EventPostRetry:     cfg.Notifications.Retry,
			EventCycleSummary:  cfg.Notifications.CycleSummary,
			EventTest:          true,
		},
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	enabled  map[Event]bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	if n == nil || !n.enabled[event] {
		return nil
	}
	msg, ok := format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func format(event Event, payload Payload) (message, bool) {
	platform := text(payload, "platform")
	postID := text(payload, "postId")
	switch event {
	case EventPostPublished:
		body := fmt.Sprintf("Posted %s to %s", postID, platform)
		if url := text(payload, "url"); url != "" {
			body += "\n" + url
		}
		return message{
			title: "Herald - Posted",
			body:  body,
			tags:  []string{"herald", platform, "posted"},
		}, true
	case EventPostFailed:
		return message{
			title:    "Herald - Post Failed",
			body:     fmt.Sprintf("Gave up on %s (%s) after %s attempts: %s", postID, platform, text(payload, "attempts"), text(payload, "error")),
			tags:     []string{"herald", platform, "failed"},
			priority: "high",
		}, true
	case EventPostRetry:
		return message{
			title: "Herald - Retry Scheduled",
			body:  fmt.Sprintf("%s (%s) failed: %s\nNext attempt at %s", postID, platform, text(payload, "error"), text(payload, "nextAttempt")),
			tags:  []string{"herald", platform, "retry"},
		}, true
	case EventCycleSummary:
		return message{
			title: "Herald - Cycle Summary",
			body: fmt.Sprintf("Processed %s: %s posted, %s rescheduled, %s failed",
				text(payload, "processed"), text(payload, "posted"), text(payload, "retried"), text(payload, "failed")),
			tags:     []string{"herald", "cycle"},
			priority: "low",
		}, true
	case EventTest:
		body := text(payload, "message")
		if body == "" {
			body = "Notification system test"
		}
		return message{
			title:    "Herald - Test",
			body:     body,
			tags:     []string{"herald", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func text(payload Payload, key string) string {
	value, ok := payload[key]
	if !ok || value == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(value))
}

func (n *ntfyService) send(ctx context.Context, data message) error {
	if n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if tags := compact(data.tags); len(tags) > 0 {
		req.Header.Set("Tags", strings.Join(tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func compact(values []string) []string {
	out := values[:0:0]
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
