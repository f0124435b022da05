package queue

import (
	"fmt"
	"time"
)

// RetryPolicy bounds how often a failed post is rescheduled.
type RetryPolicy struct {
	MaxRetries int
	Delay      time.Duration
	// FailFast sends non-retryable failures straight to failed instead of
	// spending the remaining retry budget on them.
	FailFast bool
}

// Approve moves a pending post to approved.
func (p *Post) Approve(now time.Time) error {
	if p.Status != StatusPending {
		return fmt.Errorf("%w: approve %s post %s", ErrInvalidTransition, p.Status, p.ID)
	}
	p.Status = StatusApproved
	p.UpdatedAt = now.UTC()
	return nil
}

// Reschedule changes the scheduled time of a post that has not been handed to
// the processor's terminal path yet.
func (p *Post) Reschedule(at, now time.Time) error {
	if p.Status != StatusPending && p.Status != StatusApproved {
		return fmt.Errorf("%w: reschedule %s post %s", ErrInvalidTransition, p.Status, p.ID)
	}
	p.ScheduledTime = at.UTC()
	p.UpdatedAt = now.UTC()
	return nil
}

// Rejectable reports whether the post may be removed from the queue.
// Terminal posts stay for audit.
func (p Post) Rejectable() bool {
	return p.Status == StatusPending || p.Status == StatusApproved
}

// MarkPosted records a successful publish.
func (p *Post) MarkPosted(now time.Time, remoteID, url string) error {
	if p.Status != StatusApproved {
		return fmt.Errorf("%w: mark %s post %s as posted", ErrInvalidTransition, p.Status, p.ID)
	}
	at := now.UTC()
	p.Status = StatusPosted
	p.PostedAt = &at
	p.PostID = remoteID
	p.PostURL = url
	p.UpdatedAt = at
	return nil
}

// RecordFailure counts a failed attempt and either pushes the post into the
// future or marks it failed. It reports whether the post is now terminal.
func (p *Post) RecordFailure(now time.Time, message string, retryable bool, policy RetryPolicy) bool {
	if p.Status.IsTerminal() {
		return true
	}
	p.RetryCount++
	p.Error = message
	p.UpdatedAt = now.UTC()

	if p.RetryCount >= policy.MaxRetries || (!retryable && policy.FailFast) {
		p.Status = StatusFailed
		return true
	}
	p.ScheduledTime = now.Add(policy.Delay).UTC()
	return false
}

// RecordRendition caches a rendition path. Existing entries are kept.
func (p *Post) RecordRendition(key, path string) {
	if p.AdaptedAssets == nil {
		p.AdaptedAssets = make(map[string]string)
	}
	if _, ok := p.AdaptedAssets[key]; ok {
		return
	}
	p.AdaptedAssets[key] = path
}
