package workflow

import (
	"context"
	"errors"

	"herald/internal/history"
	"herald/internal/logging"
	"herald/internal/notifications"
	"herald/internal/queue"
)

func (p *Processor) notifyOutcomes(ctx context.Context, outcomes []Outcome) {
	for _, o := range outcomes {
		p.notifyOutcome(ctx, o)
	}
}

func (p *Processor) notifyOutcome(ctx context.Context, o Outcome) {
	payload := notifications.Payload{
		"postId":   o.PostID,
		"platform": string(o.Platform),
	}
	var event notifications.Event
	switch {
	case o.Status == queue.StatusPosted:
		event = notifications.EventPostPublished
		payload["url"] = o.URL
	case o.Status == queue.StatusFailed:
		event = notifications.EventPostFailed
		payload["attempts"] = o.Attempt
		payload["error"] = o.Error
	default:
		event = notifications.EventPostRetry
		payload["attempts"] = o.Attempt
		payload["error"] = o.Error
		if o.NextAttempt != nil {
			payload["nextAttempt"] = o.NextAttempt.Format("2006-01-02 15:04 MST")
		}
	}
	p.publishNotification(ctx, event, payload)
}

func (p *Processor) notifySummary(ctx context.Context, report CycleReport) {
	p.publishNotification(ctx, notifications.EventCycleSummary, notifications.Payload{
		"processed": report.Due,
		"posted":    report.Posted,
		"retried":   report.Retried,
		"failed":    report.Failed,
	})
}

func (p *Processor) publishNotification(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	if p.notifier == nil {
		return
	}
	if err := p.notifier.Publish(ctx, event, payload); err != nil {
		logger := logging.WithContext(ctx, p.logger)
		if errors.Is(err, context.Canceled) {
			logger.Debug("shutting down, notification not sent", logging.String("event", string(event)))
			return
		}
		logger.Debug("notification failed", logging.String("event", string(event)), logging.Error(err))
	}
}

// record appends to the history ledger. Ledger failures never affect the post.
func (p *Processor) record(ctx context.Context, attempt history.Attempt) {
	if p.history == nil {
		return
	}
	if _, err := p.history.Record(ctx, attempt); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, p.logger), "history ledger write failed", "history_write_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check history.path permissions"),
			logging.String(logging.FieldImpact, "attempt missing from history"),
		)
	}
}
