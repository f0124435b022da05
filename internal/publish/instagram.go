package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	"herald/internal/adaptation"
	"herald/internal/config"
	"herald/internal/logging"
	"herald/internal/queue"
	"herald/internal/services"
)

const maxCarouselItems = 10

// Container status codes reported by the Graph API.
const (
	containerFinished   = "FINISHED"
	containerInProgress = "IN_PROGRESS"
	containerError      = "ERROR"
	containerExpired    = "EXPIRED"
	containerPublished  = "PUBLISHED"
)

// Instagram publishes through the Instagram Graph API. Instagram fetches
// media by URL, so local renditions must be served under media_base_url.
type Instagram struct {
	api          *apiClient
	accountID    string
	mediaBaseURL string
	adaptedRoot  string
	pollInterval time.Duration
	pollAttempts int
	logger       *slog.Logger
}

// NewInstagram builds the binding.
func NewInstagram(cfg *config.Config, logger *slog.Logger) *Instagram {
	ig := cfg.Instagram
	attempts := ig.ContainerPollAttempts
	if attempts <= 0 {
		attempts = 1
	}
	return &Instagram{
		api:          newGraphClient(string(queue.PlatformInstagram), ig.GraphBaseURL, ig.AccessToken, time.Duration(ig.TimeoutSeconds)*time.Second),
		accountID:    ig.AccountID,
		mediaBaseURL: strings.TrimRight(ig.MediaBaseURL, "/"),
		adaptedRoot:  cfg.Paths.AdaptedDir,
		pollInterval: time.Duration(ig.ContainerPollIntervalSeconds) * time.Second,
		pollAttempts: attempts,
		logger:       logging.NewComponentLogger(logger, "instagram"),
	}
}

func (ig *Instagram) Platform() queue.Platform { return queue.PlatformInstagram }

// Publish creates a media container, waits for it to finish processing, and
// publishes it.
func (ig *Instagram) Publish(ctx context.Context, req Request) Result {
	if len(req.MediaPaths) == 0 {
		return invalid(queue.PlatformInstagram, "instagram posts require media")
	}
	if len(req.MediaPaths) > maxCarouselItems {
		return invalid(queue.PlatformInstagram, "at most %d carousel items, got %d", maxCarouselItems, len(req.MediaPaths))
	}
	urls := make([]string, 0, len(req.MediaPaths))
	for _, path := range req.MediaPaths {
		u, err := ig.publicURL(path)
		if err != nil {
			return failure(queue.PlatformInstagram, err)
		}
		urls = append(urls, u)
	}
	caption := BuildCaption(req.Content)

	var (
		creationID string
		reel       bool
		err        error
	)
	switch {
	case req.PostType == queue.PostTypeReel:
		if !adaptation.IsVideo(req.MediaPaths[0]) {
			return invalid(queue.PlatformInstagram, "reels require a video")
		}
		creationID, err = ig.createContainer(ctx, reelValues(urls[0], caption))
		reel = true
	case req.PostType == queue.PostTypeStory:
		values := url.Values{"media_type": {"STORIES"}}
		setMediaURL(values, req.MediaPaths[0], urls[0])
		creationID, err = ig.createContainer(ctx, values)
	case len(urls) == 1 && adaptation.IsVideo(req.MediaPaths[0]):
		// Feed video is published as a reel shared to the feed.
		creationID, err = ig.createContainer(ctx, reelValues(urls[0], caption))
		reel = true
	case len(urls) == 1:
		creationID, err = ig.createContainer(ctx, url.Values{"image_url": {urls[0]}, "caption": {caption}})
	default:
		creationID, err = ig.createCarousel(ctx, req.MediaPaths, urls, caption)
	}
	if err != nil {
		return failure(queue.PlatformInstagram, err)
	}
	if err := ig.waitReady(ctx, creationID); err != nil {
		return failure(queue.PlatformInstagram, err)
	}

	var published graphID
	endpoint := ig.accountID + "/media_publish"
	err = ig.api.postForm(ctx, endpoint, url.Values{"creation_id": {creationID}}, &published)
	if err := confirmCreated(endpoint, err, published.ID); err != nil {
		return failure(queue.PlatformInstagram, err)
	}
	return success(queue.PlatformInstagram, published.ID, ig.permalink(ctx, published.ID, reel))
}

func reelValues(videoURL, caption string) url.Values {
	return url.Values{
		"media_type":    {"REELS"},
		"video_url":     {videoURL},
		"caption":       {caption},
		"share_to_feed": {"true"},
	}
}

func setMediaURL(values url.Values, path, publicURL string) {
	if adaptation.IsVideo(path) {
		values.Set("video_url", publicURL)
		return
	}
	values.Set("image_url", publicURL)
}

func (ig *Instagram) createContainer(ctx context.Context, values url.Values) (string, error) {
	var created graphID
	if err := ig.api.postForm(ctx, ig.accountID+"/media", values, &created); err != nil {
		return "", err
	}
	if created.ID == "" {
		return "", errors.New("media container response missing id")
	}
	return created.ID, nil
}

func (ig *Instagram) createCarousel(ctx context.Context, paths, urls []string, caption string) (string, error) {
	children := make([]string, 0, len(urls))
	for i, u := range urls {
		values := url.Values{"is_carousel_item": {"true"}}
		if adaptation.IsVideo(paths[i]) {
			values.Set("media_type", "VIDEO")
		}
		setMediaURL(values, paths[i], u)
		id, err := ig.createContainer(ctx, values)
		if err != nil {
			return "", fmt.Errorf("carousel item %d: %w", i+1, err)
		}
		if err := ig.waitReady(ctx, id); err != nil {
			return "", fmt.Errorf("carousel item %d: %w", i+1, err)
		}
		children = append(children, id)
	}
	return ig.createContainer(ctx, url.Values{
		"media_type": {"CAROUSEL"},
		"children":   {strings.Join(children, ",")},
		"caption":    {caption},
	})
}

// waitReady polls the container status until it is FINISHED, fails, or the
// configured number of checks runs out.
func (ig *Instagram) waitReady(ctx context.Context, containerID string) error {
	policy := retrypolicy.NewBuilder[string]().
		HandleIf(func(status string, err error) bool {
			if err != nil {
				var apiErr *APIError
				return errors.As(err, &apiErr) && apiErr.Retryable
			}
			return status == containerInProgress || status == ""
		}).
		WithDelay(ig.pollInterval).
		WithMaxRetries(ig.pollAttempts - 1).
		ReturnLastFailure().
		Build()

	checks := 0
	status, err := failsafe.With(policy).WithContext(ctx).Get(func() (string, error) {
		checks++
		var resp struct {
			StatusCode string `json:"status_code"`
		}
		if err := ig.api.get(ctx, containerID, url.Values{"fields": {"status_code"}}, &resp); err != nil {
			return "", err
		}
		return resp.StatusCode, nil
	})

	switch status {
	case containerFinished, containerPublished:
		ig.logger.Debug("container ready", logging.String("container_id", containerID), logging.Int("checks", checks))
		return nil
	case containerError, containerExpired:
		return &APIError{
			Platform: string(queue.PlatformInstagram),
			Status:   200,
			Message:  fmt.Sprintf("media container %s finished with status %s", containerID, status),
		}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	if err != nil && status != containerInProgress {
		return fmt.Errorf("media container %s: %w", containerID, err)
	}
	return fmt.Errorf("media container %s not ready after %d checks (last status %q)", containerID, checks, status)
}

func (ig *Instagram) permalink(ctx context.Context, mediaID string, reel bool) string {
	var resp struct {
		Permalink string `json:"permalink"`
	}
	if err := ig.api.get(ctx, mediaID, url.Values{"fields": {"permalink"}}, &resp); err == nil && resp.Permalink != "" {
		return resp.Permalink
	}
	if reel {
		return "https://instagram.com/reel/" + mediaID
	}
	return "https://instagram.com/p/" + mediaID
}

// publicURL maps a rendition under the adapted directory onto media_base_url.
func (ig *Instagram) publicURL(path string) (string, error) {
	if strings.HasPrefix(path, "https://") || strings.HasPrefix(path, "http://") {
		return path, nil
	}
	if ig.mediaBaseURL == "" {
		return "", services.Wrap(services.ErrConfiguration, "instagram", "media url",
			"instagram.media_base_url is not set; instagram fetches media by url", nil)
	}
	rel, err := filepath.Rel(ig.adaptedRoot, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", services.Wrap(services.ErrConfiguration, "instagram", "media url",
			fmt.Sprintf("%s is outside paths.adapted_dir", path), nil)
	}
	segments := strings.Split(filepath.ToSlash(rel), "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return ig.mediaBaseURL + "/" + strings.Join(segments, "/"), nil
}
