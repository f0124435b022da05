package publish

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"herald/internal/adaptation"
	"herald/internal/config"
	"herald/internal/logging"
	"herald/internal/queue"
	"herald/internal/services"
)

// Facebook publishes to a page through the Graph API.
type Facebook struct {
	api    *apiClient
	pageID string
	logger *slog.Logger
}

// NewFacebook builds the binding.
func NewFacebook(cfg config.Facebook, logger *slog.Logger) *Facebook {
	return &Facebook{
		api:    newGraphClient(string(queue.PlatformFacebook), cfg.GraphBaseURL, cfg.AccessToken, time.Duration(cfg.TimeoutSeconds)*time.Second),
		pageID: cfg.PageID,
		logger: logging.NewComponentLogger(logger, "facebook"),
	}
}

func (fb *Facebook) Platform() queue.Platform { return queue.PlatformFacebook }

// Publish posts a text/link update, a photo, a multi-photo post, or a video.
func (fb *Facebook) Publish(ctx context.Context, req Request) Result {
	link := strings.TrimSpace(req.Content.Link)
	message := buildCaption(req.Content.Text, req.Content, false)

	var (
		created  graphID
		endpoint string
		err      error
	)
	switch {
	case len(req.MediaPaths) == 0:
		if message == "" && link == "" {
			return invalid(queue.PlatformFacebook, "post has no text, link, or media")
		}
		values := url.Values{"message": {message}}
		if link != "" {
			values.Set("link", link)
		}
		endpoint = fb.pageID + "/feed"
		err = fb.api.postForm(ctx, endpoint, values, &created)
	case adaptation.IsVideo(req.MediaPaths[0]):
		if len(req.MediaPaths) > 1 {
			return invalid(queue.PlatformFacebook, "video posts take exactly one file")
		}
		endpoint = fb.pageID + "/videos"
		err = fb.api.postMultipart(ctx, endpoint, map[string]string{"description": withLink(message, link)}, "source", req.MediaPaths[0], &created)
	case len(req.MediaPaths) == 1:
		endpoint = fb.pageID + "/photos"
		err = fb.api.postMultipart(ctx, endpoint, map[string]string{"message": withLink(message, link)}, "source", req.MediaPaths[0], &created)
	default:
		created, err = fb.publishAlbum(ctx, req.MediaPaths, withLink(message, link))
	}
	if endpoint != "" {
		err = confirmCreated(endpoint, err, created.objectID())
	}
	if err != nil {
		return failure(queue.PlatformFacebook, err)
	}

	id := created.objectID()
	return success(queue.PlatformFacebook, id, "https://facebook.com/"+id)
}

// publishAlbum uploads each photo unpublished, then attaches them to one feed post.
func (fb *Facebook) publishAlbum(ctx context.Context, paths []string, message string) (graphID, error) {
	values := url.Values{"message": {message}}
	for i, path := range paths {
		if adaptation.IsVideo(path) {
			return graphID{}, services.Wrap(services.ErrValidation, "facebook", "album", "multi-photo posts cannot include video", nil)
		}
		var photo graphID
		if err := fb.api.postMultipart(ctx, fb.pageID+"/photos", map[string]string{"published": "false"}, "source", path, &photo); err != nil {
			return graphID{}, fmt.Errorf("upload photo %d: %w", i+1, err)
		}
		values.Set(fmt.Sprintf("attached_media[%d]", i), fmt.Sprintf(`{"media_fbid":"%s"}`, photo.ID))
	}
	var created graphID
	endpoint := fb.pageID + "/feed"
	err := fb.api.postForm(ctx, endpoint, values, &created)
	if err := confirmCreated(endpoint, err, created.objectID()); err != nil {
		return graphID{}, err
	}
	return created, nil
}

func withLink(message, link string) string {
	if link == "" {
		return message
	}
	if message == "" {
		return link
	}
	return message + "\n\n" + link
}
