package publish_test

import (
	"context"
	"reflect"
	"testing"

	"herald/internal/publish"
	"herald/internal/queue"
	"herald/internal/testsupport"
)

type stubPublisher struct {
	platform queue.Platform
	result   publish.Result
	requests []publish.Request
}

func (s *stubPublisher) Platform() queue.Platform { return s.platform }

func (s *stubPublisher) Publish(_ context.Context, req publish.Request) publish.Result {
	s.requests = append(s.requests, req)
	return s.result
}

func TestManagerRoutesToBinding(t *testing.T) {
	stub := &stubPublisher{platform: queue.PlatformFacebook, result: publish.Result{Success: true, PostID: "1", URL: "https://facebook.com/1"}}
	manager := publish.NewManagerWith(nil, stub)

	result := manager.PostToPlatform(context.Background(), queue.PlatformFacebook, queue.Content{Text: "hi"}, queue.PostTypeFeed, []string{"/a.jpg"})
	if !result.Success || result.Platform != queue.PlatformFacebook {
		t.Fatalf("unexpected result %+v", result)
	}
	if len(stub.requests) != 1 || stub.requests[0].MediaPaths[0] != "/a.jpg" {
		t.Fatalf("unexpected requests %+v", stub.requests)
	}
}

func TestManagerUnconfiguredPlatform(t *testing.T) {
	manager := publish.NewManagerWith(nil)
	result := manager.PostToPlatform(context.Background(), queue.PlatformTwitter, queue.Content{Text: "hi"}, queue.PostTypeFeed, nil)
	if result.Success || result.Retryable {
		t.Fatalf("expected non-retryable failure, got %+v", result)
	}
	if result.Error != "twitter is not configured" {
		t.Fatalf("unexpected error %q", result.Error)
	}
}

func TestTikTokRequiresManualPosting(t *testing.T) {
	result := publish.TikTok{}.Publish(context.Background(), publish.Request{})
	if result.Success || result.Retryable || result.Platform != queue.PlatformTikTok {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestNewManagerBuildsEnabledBindings(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithTwitter("http://127.0.0.1:1"), testsupport.WithGraph("http://127.0.0.1:1"))
	cfg.TikTok.Enabled = true
	got := publish.NewManager(cfg, nil).Platforms()
	want := []queue.Platform{queue.PlatformTwitter, queue.PlatformInstagram, queue.PlatformFacebook, queue.PlatformTikTok}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Platforms() = %v, want %v", got, want)
	}
}
