package publish

import (
	"context"

	"herald/internal/queue"
)

// TikTok has no publishing integration; posts must be uploaded by hand.
type TikTok struct{}

func (TikTok) Platform() queue.Platform { return queue.PlatformTikTok }

func (TikTok) Publish(context.Context, Request) Result {
	return Result{
		Platform:  queue.PlatformTikTok,
		Error:     "tiktok requires manual posting",
		Retryable: false,
	}
}
