package workflow

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"herald/internal/adaptation"
	"herald/internal/history"
	"herald/internal/logging"
	"herald/internal/metrics"
	"herald/internal/queue"
	"herald/internal/services"
)

// Outcome is what happened to one post during a cycle.
type Outcome struct {
	PostID      string         `json:"postId"`
	Platform    queue.Platform `json:"platform"`
	Status      queue.Status   `json:"status"`
	Attempt     int            `json:"attempt"`
	URL         string         `json:"url,omitempty"`
	Error       string         `json:"error,omitempty"`
	Retryable   bool           `json:"retryable"`
	NextAttempt *time.Time     `json:"nextAttempt,omitempty"`
}

// CycleReport summarizes one poll cycle.
type CycleReport struct {
	CycleID    string    `json:"cycleId"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	Due        int       `json:"due"`
	Posted     int       `json:"posted"`
	Retried    int       `json:"retried"`
	Failed     int       `json:"failed"`
	Outcomes   []Outcome `json:"outcomes,omitempty"`
}

func (r *CycleReport) add(o Outcome) {
	r.Outcomes = append(r.Outcomes, o)
	switch {
	case o.Status == queue.StatusPosted:
		r.Posted++
	case o.Status == queue.StatusFailed:
		r.Failed++
	default:
		r.Retried++
	}
}

// RunCycle processes every due post once. Store errors abort the cycle and
// are returned; per-post failures are recorded on the posts themselves.
func (p *Processor) RunCycle(ctx context.Context) (CycleReport, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	wallStart := time.Now()
	report := CycleReport{
		CycleID:   newCycleID(),
		StartedAt: p.now().UTC(),
	}
	ctx = services.WithCycleID(ctx, report.CycleID)

	err := p.runCycle(ctx, &report)
	report.FinishedAt = p.now().UTC()
	p.metrics.ObserveCycle(time.Since(wallStart), err)
	p.setCycleResult(report, err)
	if err != nil {
		return report, err
	}

	if report.Due > 0 {
		logging.WithContext(ctx, p.logger).Info("poll cycle complete",
			logging.String(logging.FieldEventType, "cycle_complete"),
			logging.Int("due", report.Due),
			logging.Int("posted", report.Posted),
			logging.Int("retried", report.Retried),
			logging.Int("failed", report.Failed),
			logging.Duration("elapsed", time.Since(wallStart)),
		)
		p.notifySummary(ctx, report)
	}
	return report, nil
}

func (p *Processor) runCycle(ctx context.Context, report *CycleReport) error {
	posts, err := p.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load queue: %w", err)
	}

	now := p.now()
	var due []int
	for i := range posts {
		if posts[i].Due(now) {
			due = append(due, i)
		}
	}
	report.Due = len(due)
	if len(due) == 0 {
		p.metrics.SetQueueStats(queue.CountByStatus(posts))
		return nil
	}

	// Notifications go out only once the outcome they describe is saved.
	var unsaved []Outcome
	for _, idx := range due {
		outcome := p.process(ctx, &posts[idx])
		report.add(outcome)
		unsaved = append(unsaved, outcome)
		if p.savePerPost {
			if err := p.save(ctx, posts); err != nil {
				return err
			}
			p.notifyOutcomes(ctx, unsaved)
			unsaved = unsaved[:0]
		}
	}
	if !p.savePerPost {
		if err := p.save(ctx, posts); err != nil {
			return err
		}
		p.notifyOutcomes(ctx, unsaved)
	}
	return nil
}

// process runs adapt and publish for one approved post and applies the
// result to it in memory.
func (p *Processor) process(ctx context.Context, post *queue.Post) Outcome {
	ctx = services.WithPostID(ctx, post.ID)
	ctx = services.WithPlatform(ctx, string(post.Platform))
	logger := logging.WithContext(ctx, p.logger)
	attempt := post.RetryCount + 1

	media, err := p.renditions(ctx, post, attempt)
	if err != nil {
		return p.fail(ctx, post, err.Error(), services.Retryable(err))
	}

	started := p.now()
	wallStart := time.Now()
	result := p.publisher.PostToPlatform(ctx, post.Platform, post.Content, post.PostType, media)
	elapsed := time.Since(wallStart)
	finished := p.now()

	message := result.Error
	if !result.Success && message == "" {
		message = "publish failed without an error message"
	}
	p.record(ctx, history.Attempt{
		PostID:     post.ID,
		Platform:   post.Platform,
		PostType:   post.PostType,
		Attempt:    attempt,
		Stage:      history.StagePublish,
		Success:    result.Success,
		Retryable:  result.Retryable,
		RemoteID:   result.PostID,
		URL:        result.URL,
		Error:      message,
		StartedAt:  started,
		FinishedAt: finished,
	})

	if !result.Success {
		outcome := p.fail(ctx, post, message, result.Retryable)
		label := metrics.OutcomeRetry
		if outcome.Status == queue.StatusFailed {
			label = metrics.OutcomeFailed
		}
		p.metrics.ObservePublish(post.Platform, label, elapsed)
		return outcome
	}

	if err := post.MarkPosted(finished, result.PostID, result.URL); err != nil {
		// Only approved posts reach this point.
		logging.ErrorWithContext(logger, "could not mark post as posted", "post_state_invalid", logging.Error(err))
	}
	p.metrics.ObservePublish(post.Platform, metrics.OutcomePosted, elapsed)
	logger.Info("post published",
		logging.String(logging.FieldEventType, "post_published"),
		logging.String("remote_id", result.PostID),
		logging.String("url", result.URL),
		logging.Int("attempt", attempt),
	)
	return Outcome{
		PostID:   post.ID,
		Platform: post.Platform,
		Status:   post.Status,
		Attempt:  attempt,
		URL:      result.URL,
	}
}

func (p *Processor) fail(ctx context.Context, post *queue.Post, message string, retryable bool) Outcome {
	logger := logging.WithContext(ctx, p.logger)
	terminal := post.RecordFailure(p.now(), message, retryable, p.policy)
	outcome := Outcome{
		PostID:    post.ID,
		Platform:  post.Platform,
		Status:    post.Status,
		Attempt:   post.RetryCount,
		Error:     message,
		Retryable: retryable,
	}
	if terminal {
		logging.WarnWithContext(logger, "post failed; giving up", "post_failed",
			logging.String("error", message),
			logging.Bool("retryable", retryable),
			logging.Int("retry_count", post.RetryCount),
			logging.String(logging.FieldErrorHint, "inspect the post error and re-queue it once fixed"),
			logging.String(logging.FieldImpact, "post will not be published"),
		)
		return outcome
	}
	next := post.ScheduledTime
	outcome.NextAttempt = &next
	logger.Info("post rescheduled after failure",
		logging.String(logging.FieldEventType, "post_retry"),
		logging.String("error", message),
		logging.Int("retry_count", post.RetryCount),
		logging.Time("next_attempt", next),
	)
	return outcome
}

// renditions returns media paths for the post, adapting any asset that has
// no cached rendition for the post's platform. Renditions produced before a
// later asset fails stay cached on the post.
func (p *Processor) renditions(ctx context.Context, post *queue.Post, attempt int) ([]string, error) {
	if cached, ok := post.CachedRenditions(); ok {
		return cached, nil
	}
	if p.adapter == nil {
		return nil, services.Wrap(services.ErrConfiguration, "workflow", "adapt", "no adaptation engine configured", nil)
	}

	paths := make([]string, 0, len(post.AssetIDs))
	for i, assetID := range post.AssetIDs {
		key := queue.RenditionKey(post.Platform, i)
		if cached := post.AdaptedAssets[key]; cached != "" {
			paths = append(paths, cached)
			continue
		}
		if err := queue.ValidateAssetID(assetID); err != nil {
			return nil, fmt.Errorf("adapt %s: %w", assetID, err)
		}
		source := p.assetPath(assetID)
		format := adaptation.FormatFor(post.Platform, post.PostType, adaptation.IsVideo(source))

		started := p.now()
		rendition, err := p.adapter.Adapt(ctx, source, format, filepath.Join(p.adaptedDir, string(format)))
		p.metrics.ObserveRendition(string(format), err)
		entry := history.Attempt{
			PostID:     post.ID,
			Platform:   post.Platform,
			PostType:   post.PostType,
			Attempt:    attempt,
			Stage:      history.StageAdapt,
			Success:    err == nil,
			StartedAt:  started,
			FinishedAt: p.now(),
		}
		if err != nil {
			entry.Error = err.Error()
			entry.Retryable = services.Retryable(err)
			p.record(ctx, entry)
			return nil, fmt.Errorf("adapt %s for %s: %w", assetID, format, err)
		}
		entry.URL = rendition.Path
		p.record(ctx, entry)

		post.RecordRendition(key, rendition.Path)
		paths = append(paths, rendition.Path)
	}
	return paths, nil
}

// assetPath resolves a validated asset id against the asset directory.
func (p *Processor) assetPath(assetID string) string {
	return filepath.Join(p.assetDir, filepath.FromSlash(assetID))
}

func (p *Processor) save(ctx context.Context, posts []queue.Post) error {
	if err := p.store.Save(ctx, posts); err != nil {
		return fmt.Errorf("save queue: %w", err)
	}
	p.metrics.SetQueueStats(queue.CountByStatus(posts))
	return nil
}

func newCycleID() string {
	return uuid.NewString()[:8]
}
