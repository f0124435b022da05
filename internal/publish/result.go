package publish

import (
	"context"
	"errors"
	"fmt"

	"herald/internal/queue"
	"herald/internal/services"
)

// Result is the normalized outcome of one publish call.
type Result struct {
	Success   bool           `json:"success"`
	Platform  queue.Platform `json:"platform"`
	PostID    string         `json:"postId,omitempty"`
	URL       string         `json:"url,omitempty"`
	Error     string         `json:"error,omitempty"`
	Retryable bool           `json:"retryable"`
}

// Request is what a binding needs to publish one post.
type Request struct {
	Content    queue.Content
	PostType   queue.PostType
	MediaPaths []string
}

// Publisher is one platform binding.
type Publisher interface {
	Platform() queue.Platform
	Publish(ctx context.Context, req Request) Result
}

func success(platform queue.Platform, id, url string) Result {
	return Result{Success: true, Platform: platform, PostID: id, URL: url}
}

// failure folds err into a Result. API errors carry their own retryability
// and unconfirmed publishes are never retried. Everything else defers to the
// services classification, which treats unmarked errors as transient.
func failure(platform queue.Platform, err error) Result {
	if err == nil {
		err = errors.New("unknown error")
	}
	retryable := services.Retryable(err)
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		retryable = apiErr.Retryable
	}
	if errors.Is(err, ErrUnconfirmed) {
		retryable = false
	}
	return Result{
		Platform:  platform,
		Error:     err.Error(),
		Retryable: retryable,
	}
}

func invalid(platform queue.Platform, format string, args ...any) Result {
	return failure(platform, services.Wrap(services.ErrValidation, string(platform), "publish", fmt.Sprintf(format, args...), nil))
}
