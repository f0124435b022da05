package workflow

import (
	"context"
	"fmt"
	"time"

	"herald/internal/adaptation"
	"herald/internal/fileutil"
	"herald/internal/logging"
	"herald/internal/queue"
	"herald/internal/services"
)

// AddToQueue validates draft and appends it as a pending post. Assets must
// exist under the asset directory and have a supported media extension.
func (p *Processor) AddToQueue(ctx context.Context, draft queue.Draft) (string, error) {
	if err := draft.Validate(); err != nil {
		return "", err
	}
	for _, assetID := range draft.AssetIDs {
		source := p.assetPath(assetID)
		if adaptation.KindOf(source) == adaptation.KindUnknown {
			return "", fmt.Errorf("%w: asset %s has an unsupported media type", queue.ErrInvalidInput, assetID)
		}
		if !fileutil.FileExists(source) {
			return "", fmt.Errorf("%w: asset %s not found at %s", queue.ErrInvalidInput, assetID, source)
		}
	}

	var id string
	err := p.mutate(ctx, func(posts []queue.Post) ([]queue.Post, error) {
		post := queue.NewPost(draft, p.now())
		id = post.ID
		return append(posts, post), nil
	})
	if err != nil {
		return "", err
	}
	logging.WithContext(services.WithPostID(ctx, id), p.logger).Info("post queued",
		logging.String(logging.FieldEventType, "post_queued"),
		logging.String(logging.FieldPlatform, string(draft.Platform)),
		logging.String("post_type", string(draft.PostType)),
		logging.Int("assets", len(draft.AssetIDs)),
	)
	return id, nil
}

// ApprovePost moves a pending post to approved. It returns false with
// queue.ErrNotFound or queue.ErrInvalidTransition when nothing changed.
func (p *Processor) ApprovePost(ctx context.Context, id string) (bool, error) {
	err := p.mutateOne(ctx, id, func(post *queue.Post) error {
		return post.Approve(p.now())
	})
	return err == nil, err
}

// RejectPost removes a pending or approved post. Posted and failed posts are
// kept so their outcome stays inspectable.
func (p *Processor) RejectPost(ctx context.Context, id string) (bool, error) {
	err := p.mutate(ctx, func(posts []queue.Post) ([]queue.Post, error) {
		idx := queue.Find(posts, id)
		if idx < 0 {
			return nil, fmt.Errorf("%w: %s", queue.ErrNotFound, id)
		}
		if !posts[idx].Rejectable() {
			return nil, fmt.Errorf("%w: reject %s post %s", queue.ErrInvalidTransition, posts[idx].Status, id)
		}
		return append(posts[:idx], posts[idx+1:]...), nil
	})
	if err != nil {
		return false, err
	}
	logging.WithContext(services.WithPostID(ctx, id), p.logger).Info("post rejected",
		logging.String(logging.FieldEventType, "post_rejected"),
	)
	return true, nil
}

// SchedulePost sets a new scheduled time on a pending or approved post.
func (p *Processor) SchedulePost(ctx context.Context, id string, at time.Time) (bool, error) {
	if at.IsZero() {
		return false, fmt.Errorf("%w: scheduled time is required", queue.ErrInvalidInput)
	}
	err := p.mutateOne(ctx, id, func(post *queue.Post) error {
		return post.Reschedule(at, p.now())
	})
	return err == nil, err
}

// GetStats returns post counts by status.
func (p *Processor) GetStats(ctx context.Context) (queue.Stats, error) {
	posts, err := p.read(ctx)
	if err != nil {
		return queue.Stats{}, err
	}
	return queue.CountByStatus(posts), nil
}

// List returns posts in queue order, optionally filtered by status.
func (p *Processor) List(ctx context.Context, statuses ...queue.Status) ([]queue.Post, error) {
	posts, err := p.read(ctx)
	if err != nil {
		return nil, err
	}
	return queue.Filter(posts, statuses...), nil
}

// Get returns one post.
func (p *Processor) Get(ctx context.Context, id string) (queue.Post, error) {
	posts, err := p.read(ctx)
	if err != nil {
		return queue.Post{}, err
	}
	idx := queue.Find(posts, id)
	if idx < 0 {
		return queue.Post{}, fmt.Errorf("%w: %s", queue.ErrNotFound, id)
	}
	return posts[idx], nil
}

// PublishNow runs an approved post through adapt and publish immediately,
// ignoring its scheduled time, and saves the result.
func (p *Processor) PublishNow(ctx context.Context, id string) (queue.Post, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	posts, err := p.store.Load(ctx)
	if err != nil {
		return queue.Post{}, fmt.Errorf("load queue: %w", err)
	}
	idx := queue.Find(posts, id)
	if idx < 0 {
		return queue.Post{}, fmt.Errorf("%w: %s", queue.ErrNotFound, id)
	}
	if posts[idx].Status != queue.StatusApproved {
		return queue.Post{}, fmt.Errorf("%w: publish %s post %s", queue.ErrInvalidTransition, posts[idx].Status, id)
	}

	// The caller may go away mid-publish; the outcome must still be saved.
	ctx = services.WithCycleID(context.WithoutCancel(ctx), "manual-"+newCycleID())
	outcome := p.process(ctx, &posts[idx])
	if err := p.save(ctx, posts); err != nil {
		return queue.Post{}, err
	}
	p.notifyOutcome(ctx, outcome)
	return posts[idx], nil
}

func (p *Processor) read(ctx context.Context) ([]queue.Post, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	posts, err := p.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load queue: %w", err)
	}
	return posts, nil
}

// mutate performs one serialized load-modify-save. fn's error leaves the
// store untouched.
func (p *Processor) mutate(ctx context.Context, fn func([]queue.Post) ([]queue.Post, error)) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	posts, err := p.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load queue: %w", err)
	}
	updated, err := fn(posts)
	if err != nil {
		return err
	}
	return p.save(ctx, updated)
}

func (p *Processor) mutateOne(ctx context.Context, id string, fn func(*queue.Post) error) error {
	return p.mutate(ctx, func(posts []queue.Post) ([]queue.Post, error) {
		idx := queue.Find(posts, id)
		if idx < 0 {
			return nil, fmt.Errorf("%w: %s", queue.ErrNotFound, id)
		}
		if err := fn(&posts[idx]); err != nil {
			return nil, err
		}
		return posts, nil
	})
}
