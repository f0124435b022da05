package workflow_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"herald/internal/adaptation"
	"herald/internal/history"
	"herald/internal/notifications"
	"herald/internal/publish"
	"herald/internal/queue"
	"herald/internal/services"
	"herald/internal/testsupport"
	"herald/internal/workflow"
)

func TestCyclePublishesDuePost(t *testing.T) {
	h := newHarness(t, succeedingPublisher())
	h.seed(t, testsupport.ApprovedPost("post-a", queue.PlatformTwitter, baseTime.Add(-time.Minute)))

	report := h.cycle(t)
	if report.Due != 1 || report.Posted != 1 {
		t.Fatalf("unexpected report %+v", report)
	}

	post := testsupport.FindPost(t, h.posts(t), "post-a")
	if post.Status != queue.StatusPosted {
		t.Fatalf("status = %s, want posted", post.Status)
	}
	if post.PostedAt == nil || !post.PostedAt.Equal(baseTime) {
		t.Fatalf("postedAt = %v, want %v", post.PostedAt, baseTime)
	}
	if post.RetryCount != 0 || post.PostID != "remote-1" || post.PostURL != "https://example.test/remote-1" {
		t.Fatalf("unexpected post %+v", post)
	}
	if h.store.Saves() != 1 {
		t.Fatalf("saves = %d, want 1", h.store.Saves())
	}
	calls := h.publisher.Calls()
	if len(calls) != 1 || calls[0].Content.Text != "hello from post-a" || len(calls[0].Media) != 0 {
		t.Fatalf("unexpected publish calls %+v", calls)
	}
	want := []notifications.Event{notifications.EventPostPublished, notifications.EventCycleSummary}
	if got := h.notifier.Events(); !reflect.DeepEqual(got, want) {
		t.Fatalf("notifications = %v, want %v", got, want)
	}
	if len(h.history.attempts) != 1 || !h.history.attempts[0].Success || h.history.attempts[0].Stage != history.StagePublish {
		t.Fatalf("unexpected history %+v", h.history.attempts)
	}
}

func TestAlwaysFailingPublisherExhaustsRetries(t *testing.T) {
	h := newHarness(t, failingPublisher("twitter api returned 503: unavailable", true))
	h.seed(t, testsupport.ApprovedPost("post-a", queue.PlatformTwitter, baseTime.Add(-time.Minute)))
	delay := h.cfg.RetryDelay()

	lastRetry := 0
	for cycle := 1; cycle <= 3; cycle++ {
		h.cycle(t)
		post := testsupport.FindPost(t, h.posts(t), "post-a")
		if post.RetryCount != cycle || post.RetryCount < lastRetry {
			t.Fatalf("cycle %d: retryCount = %d", cycle, post.RetryCount)
		}
		lastRetry = post.RetryCount
		if post.Error == "" {
			t.Fatalf("cycle %d: error not recorded", cycle)
		}
		if cycle < 3 {
			if post.Status != queue.StatusApproved {
				t.Fatalf("cycle %d: status = %s, want approved", cycle, post.Status)
			}
			if want := h.clock.Now().Add(delay); !post.ScheduledTime.Equal(want) {
				t.Fatalf("cycle %d: scheduledTime = %v, want %v", cycle, post.ScheduledTime, want)
			}
			// Not due again until the delay passes.
			if report := h.cycle(t); report.Due != 0 {
				t.Fatalf("cycle %d: post selected before its retry time", cycle)
			}
			h.clock.Advance(delay)
		}
	}

	post := testsupport.FindPost(t, h.posts(t), "post-a")
	if post.Status != queue.StatusFailed || post.RetryCount != 3 {
		t.Fatalf("final post %+v", post)
	}
	if len(h.publisher.Calls()) != 3 {
		t.Fatalf("publish calls = %d, want 3", len(h.publisher.Calls()))
	}

	// Terminal posts are never picked up again.
	h.clock.Advance(24 * time.Hour)
	h.cycle(t)
	if len(h.publisher.Calls()) != 3 {
		t.Fatal("failed post was published again")
	}
}

func TestNonRetryableFailureFailsFast(t *testing.T) {
	h := newHarness(t, failingPublisher("tiktok requires manual posting", false))
	h.seed(t, testsupport.ApprovedPost("post-a", queue.PlatformTikTok, baseTime))

	report := h.cycle(t)
	if report.Failed != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	post := testsupport.FindPost(t, h.posts(t), "post-a")
	if post.Status != queue.StatusFailed || post.RetryCount != 1 || post.Error != "tiktok requires manual posting" {
		t.Fatalf("unexpected post %+v", post)
	}
	events := h.notifier.Events()
	if len(events) == 0 || events[0] != notifications.EventPostFailed {
		t.Fatalf("expected post_failed notification, got %v", events)
	}
}

func TestNonRetryableFailureUsesCounterWithoutFailFast(t *testing.T) {
	h := newHarness(t, failingPublisher("tiktok requires manual posting", false), testsupport.WithRetryPolicy(3, 15, false))
	h.seed(t, testsupport.ApprovedPost("post-a", queue.PlatformTikTok, baseTime))

	h.cycle(t)
	post := testsupport.FindPost(t, h.posts(t), "post-a")
	if post.Status != queue.StatusApproved || post.RetryCount != 1 {
		t.Fatalf("unexpected post %+v", post)
	}
}

func TestFuturePostSelectedOnlyOnceDue(t *testing.T) {
	h := newHarness(t, succeedingPublisher())
	h.seed(t, testsupport.ApprovedPost("post-a", queue.PlatformTwitter, baseTime.Add(10*time.Minute)))

	if report := h.cycle(t); report.Due != 0 {
		t.Fatalf("future post selected: %+v", report)
	}
	if len(h.publisher.Calls()) != 0 {
		t.Fatal("future post published")
	}
	if h.store.Saves() != 0 {
		t.Fatal("idle cycle should not rewrite the queue")
	}

	h.clock.Advance(10 * time.Minute)
	if report := h.cycle(t); report.Posted != 1 {
		t.Fatalf("post not published once due: %+v", report)
	}
}

func TestOnlyApprovedPostsAreSelected(t *testing.T) {
	h := newHarness(t, succeedingPublisher())
	pending := testsupport.ApprovedPost("pending", queue.PlatformTwitter, baseTime)
	pending.Status = queue.StatusPending
	scheduled := testsupport.ApprovedPost("scheduled", queue.PlatformTwitter, baseTime)
	scheduled.Status = queue.StatusScheduled
	postedAt := baseTime.Add(-time.Hour)
	posted := testsupport.ApprovedPost("posted", queue.PlatformTwitter, baseTime.Add(-2*time.Hour))
	posted.Status = queue.StatusPosted
	posted.PostedAt = &postedAt
	posted.PostID = "old"
	h.seed(t, pending, scheduled, posted)
	before := h.posts(t)

	h.cycle(t)
	if len(h.publisher.Calls()) != 0 {
		t.Fatalf("unexpected publish calls %+v", h.publisher.Calls())
	}
	if after := h.posts(t); !reflect.DeepEqual(before, after) {
		t.Fatalf("queue changed:\nbefore %+v\nafter  %+v", before, after)
	}
}

func TestTwoPlatformsDueInOneCycleSaveOnce(t *testing.T) {
	publisher := &fakePublisher{respond: func(call publishCall) publish.Result {
		if call.Platform == queue.PlatformTwitter {
			return publish.Result{Success: true, Platform: call.Platform, PostID: "t1"}
		}
		return publish.Result{Platform: call.Platform, Error: "facebook api returned 500: oops", Retryable: true}
	}}
	h := newHarness(t, publisher)
	h.seed(t,
		testsupport.ApprovedPost("tw", queue.PlatformTwitter, baseTime.Add(-time.Minute)),
		testsupport.ApprovedPost("fb", queue.PlatformFacebook, baseTime.Add(-time.Minute)),
	)

	report := h.cycle(t)
	if report.Due != 2 || report.Posted != 1 || report.Retried != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	if h.store.Saves() != 1 {
		t.Fatalf("saves = %d, want 1", h.store.Saves())
	}
	calls := h.publisher.Calls()
	if calls[0].Platform != queue.PlatformTwitter || calls[1].Platform != queue.PlatformFacebook {
		t.Fatalf("posts not processed in queue order: %+v", calls)
	}
	posts := h.posts(t)
	if testsupport.FindPost(t, posts, "tw").Status != queue.StatusPosted {
		t.Fatal("twitter post not posted")
	}
	fb := testsupport.FindPost(t, posts, "fb")
	if fb.Status != queue.StatusApproved || fb.RetryCount != 1 || !fb.ScheduledTime.After(baseTime) {
		t.Fatalf("facebook post not rescheduled: %+v", fb)
	}
}

func TestSavePerPost(t *testing.T) {
	h := newHarness(t, succeedingPublisher())
	h.cfg.Workflow.SavePerPost = true
	h.processor = h.build()
	h.seed(t,
		testsupport.ApprovedPost("a", queue.PlatformTwitter, baseTime),
		testsupport.ApprovedPost("b", queue.PlatformFacebook, baseTime),
	)

	h.cycle(t)
	if h.store.Saves() != 2 {
		t.Fatalf("saves = %d, want 2", h.store.Saves())
	}
}

func TestAdaptationIsCachedAcrossAttempts(t *testing.T) {
	attempts := 0
	publisher := &fakePublisher{respond: func(call publishCall) publish.Result {
		attempts++
		if attempts == 1 {
			return publish.Result{Platform: call.Platform, Error: "instagram api returned 500", Retryable: true}
		}
		return publish.Result{Success: true, Platform: call.Platform, PostID: "ig1"}
	}}
	h := newHarness(t, publisher)
	post := testsupport.ApprovedPost("post-a", queue.PlatformInstagram, baseTime)
	post.AssetIDs = []string{"beach.jpg", "clips/wave.mp4"}
	h.seed(t, post)

	h.cycle(t)
	stored := testsupport.FindPost(t, h.posts(t), "post-a")
	imageKey := queue.RenditionKey(queue.PlatformInstagram, 0)
	videoKey := queue.RenditionKey(queue.PlatformInstagram, 1)
	if stored.AdaptedAssets[imageKey] == "" || stored.AdaptedAssets[videoKey] == "" {
		t.Fatalf("renditions not cached: %v", stored.AdaptedAssets)
	}

	h.clock.Advance(h.cfg.RetryDelay())
	h.cycle(t)

	calls := h.adapter.Calls()
	if len(calls) != 2 {
		t.Fatalf("adapter calls = %d, want 2 (one per asset, first attempt only)", len(calls))
	}
	if calls[0].Source != filepath.Join(h.cfg.Paths.AssetDir, "beach.jpg") || calls[0].Format != adaptation.FormatInstagramFeed {
		t.Fatalf("unexpected image adaptation %+v", calls[0])
	}
	if calls[1].Format != adaptation.FormatInstagramReel || calls[1].OutputDir != filepath.Join(h.cfg.Paths.AdaptedDir, string(adaptation.FormatInstagramReel)) {
		t.Fatalf("unexpected video adaptation %+v", calls[1])
	}
	published := h.publisher.Calls()
	if !reflect.DeepEqual(published[0].Media, published[1].Media) || len(published[1].Media) != 2 {
		t.Fatalf("retry did not reuse renditions: %+v", published)
	}
	final := testsupport.FindPost(t, h.posts(t), "post-a")
	if final.Status != queue.StatusPosted || final.AdaptedAssets[imageKey] != stored.AdaptedAssets[imageKey] {
		t.Fatalf("unexpected final post %+v", final)
	}
}

func TestAdaptationInputErrorFailsWithoutPublishing(t *testing.T) {
	h := newHarness(t, succeedingPublisher())
	h.adapter.err = fmt.Errorf("%w: %q", adaptation.ErrUnsupportedFormat, ".gif")
	post := testsupport.ApprovedPost("post-a", queue.PlatformTwitter, baseTime)
	post.AssetIDs = []string{"anim.png"}
	h.seed(t, post)

	h.cycle(t)
	stored := testsupport.FindPost(t, h.posts(t), "post-a")
	if stored.Status != queue.StatusFailed || stored.RetryCount != 1 {
		t.Fatalf("unexpected post %+v", stored)
	}
	if len(h.publisher.Calls()) != 0 {
		t.Fatal("publisher called after adaptation failure")
	}
	if len(h.history.attempts) != 1 || h.history.attempts[0].Stage != history.StageAdapt || h.history.attempts[0].Retryable {
		t.Fatalf("unexpected history %+v", h.history.attempts)
	}
}

func TestStoredAssetOutsideAssetDirFailsWithoutAdapting(t *testing.T) {
	h := newHarness(t, succeedingPublisher())
	post := testsupport.ApprovedPost("post-a", queue.PlatformTwitter, baseTime)
	post.AssetIDs = []string{"../../secret.jpg"}
	h.seed(t, post)

	h.cycle(t)
	stored := testsupport.FindPost(t, h.posts(t), "post-a")
	if stored.Status != queue.StatusFailed {
		t.Fatalf("status = %s, want failed", stored.Status)
	}
	if len(h.adapter.Calls()) != 0 || len(h.publisher.Calls()) != 0 {
		t.Fatal("escaping asset id reached the adapter or publisher")
	}
}

func TestAdaptationToolFailureIsRetried(t *testing.T) {
	h := newHarness(t, succeedingPublisher())
	h.adapter.err = services.Wrap(services.ErrExternalTool, "adaptation", "ffmpeg", "exit status 1", nil)
	post := testsupport.ApprovedPost("post-a", queue.PlatformFacebook, baseTime)
	post.AssetIDs = []string{"clip.mp4"}
	h.seed(t, post)

	h.cycle(t)
	stored := testsupport.FindPost(t, h.posts(t), "post-a")
	if stored.Status != queue.StatusApproved || stored.RetryCount != 1 {
		t.Fatalf("unexpected post %+v", stored)
	}
}

// A crash after the platform accepted a post but before the queue was saved
// leaves the post approved, so it is published again: delivery is
// at-least-once.
func TestSaveFailureAfterPublishCausesDuplicate(t *testing.T) {
	h := newHarness(t, succeedingPublisher())
	h.seed(t, testsupport.ApprovedPost("post-a", queue.PlatformTwitter, baseTime))

	h.store.failSave = true
	_, err := h.processor.RunCycle(context.Background())
	if !errors.Is(err, errDiskFull) {
		t.Fatalf("RunCycle error = %v, want disk full", err)
	}
	if got := testsupport.FindPost(t, h.posts(t), "post-a"); got.Status != queue.StatusApproved {
		t.Fatalf("status after failed save = %s, want approved", got.Status)
	}
	if events := h.notifier.Events(); len(events) != 0 {
		t.Fatalf("notifications sent for unsaved outcome: %v", events)
	}

	// Restart with a fresh processor and a working store.
	h.store.failSave = false
	h.processor = h.build()
	h.cycle(t)

	if calls := h.publisher.Calls(); len(calls) != 2 {
		t.Fatalf("publish calls = %d, want 2 (duplicate after crash)", len(calls))
	}
	if got := testsupport.FindPost(t, h.posts(t), "post-a"); got.Status != queue.StatusPosted {
		t.Fatalf("status = %s, want posted", got.Status)
	}
}

func TestLoadErrorAbortsCycle(t *testing.T) {
	h := newHarness(t, succeedingPublisher())
	h.store.inner = queue.NewStore(t.TempDir(), nil)
	h.processor = h.build()

	_, err := h.processor.RunCycle(context.Background())
	if !errors.Is(err, services.ErrStore) {
		t.Fatalf("RunCycle error = %v, want ErrStore", err)
	}
	if status := h.processor.Status(context.Background()); status.LastError == "" {
		t.Fatal("last error not recorded")
	}
}

func TestStartRunsImmediatelyAndRejectsSecondStart(t *testing.T) {
	h := newHarness(t, succeedingPublisher())
	h.seed(t, testsupport.ApprovedPost("post-a", queue.PlatformTwitter, baseTime))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := h.processor.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := h.processor.Start(ctx); err == nil {
		t.Fatal("second Start should fail")
	}
	waitFor(t, func() bool { return len(h.publisher.Calls()) == 1 })

	h.processor.Stop()
	if h.processor.Running() {
		t.Fatal("processor still running after Stop")
	}
	if got := testsupport.FindPost(t, h.posts(t), "post-a"); got.Status != queue.StatusPosted {
		t.Fatalf("status = %s, want posted", got.Status)
	}
	h.processor.Stop()
}

func TestCancelledStartContextClearsRunning(t *testing.T) {
	h := newHarness(t, succeedingPublisher())

	ctx, cancel := context.WithCancel(context.Background())
	if err := h.processor.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	cancel()
	waitFor(t, func() bool { return !h.processor.Running() })

	if err := h.processor.Start(context.Background()); err != nil {
		t.Fatalf("restart after cancelled context: %v", err)
	}
	if !h.processor.Running() {
		t.Fatal("processor not running after restart")
	}
	h.processor.Stop()
}

func TestStopWaitsForInFlightCycle(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	publisher := &fakePublisher{respond: func(call publishCall) publish.Result {
		close(started)
		<-release
		return publish.Result{Success: true, Platform: call.Platform, PostID: "slow"}
	}}
	h := newHarness(t, publisher)
	h.seed(t, testsupport.ApprovedPost("post-a", queue.PlatformTwitter, baseTime))

	ctx, cancel := context.WithCancel(context.Background())
	if err := h.processor.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	<-started
	// Cancelling the parent context must not interrupt the publish either.
	cancel()

	stopped := make(chan struct{})
	go func() {
		h.processor.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
		t.Fatal("Stop returned while a cycle was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return after the cycle finished")
	}
	if got := testsupport.FindPost(t, h.posts(t), "post-a"); got.Status != queue.StatusPosted {
		t.Fatalf("in-flight publish not saved: status %s", got.Status)
	}
}

func TestNewProcessorWithoutAdapterFailsAssetPosts(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	post := testsupport.ApprovedPost("post-a", queue.PlatformTwitter, baseTime)
	post.AssetIDs = []string{"a.jpg"}
	testsupport.SeedPosts(t, store, post)

	clock := newClock()
	processor := workflow.NewProcessor(cfg, store, nil, succeedingPublisher(), workflow.WithClock(clock.Now))
	if _, err := processor.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	got := testsupport.FindPost(t, testsupport.LoadPosts(t, store), "post-a")
	if got.Status != queue.StatusFailed {
		t.Fatalf("status = %s, want failed (configuration errors are permanent)", got.Status)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
