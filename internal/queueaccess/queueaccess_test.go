package queueaccess_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"herald/internal/api"
	"herald/internal/config"
	"herald/internal/history"
	"herald/internal/publish"
	"herald/internal/queue"
	"herald/internal/queueaccess"
	"herald/internal/testsupport"
	"herald/internal/workflow"
)

type okPublisher struct{}

func (okPublisher) Platform() queue.Platform { return queue.PlatformFacebook }

func (okPublisher) Publish(context.Context, publish.Request) publish.Result {
	return publish.Result{Success: true, PostID: "100_1", URL: "https://facebook.com/100_1"}
}

func localOpener(t *testing.T, cfg *config.Config, closed *bool) func() (queueaccess.Local, error) {
	return func() (queueaccess.Local, error) {
		store, err := queue.Open(cfg, nil)
		if err != nil {
			return queueaccess.Local{}, err
		}
		processor := workflow.NewProcessor(cfg, store, nil, publish.NewManagerWith(nil, okPublisher{}))
		return queueaccess.Local{
			Access: queueaccess.NewLocalAccess(processor, nil),
			Close: func() error {
				*closed = true
				return nil
			},
		}, nil
	}
}

func unreachable() (*api.Client, error) {
	return nil, errors.New("connection refused")
}

func TestFallbackUsesLocalStore(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	closed := false
	session, err := queueaccess.OpenWithFallback(unreachable, cfg.LockPath(), localOpener(t, cfg, &closed))
	if err != nil {
		t.Fatalf("OpenWithFallback: %v", err)
	}
	if session.Remote {
		t.Fatal("expected local session")
	}
	ctx := context.Background()

	id, err := session.Access.Add(ctx, queue.Draft{Platform: queue.PlatformFacebook, Content: queue.Content{Text: "hello"}})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if ok, err := session.Access.Approve(ctx, id); !ok || err != nil {
		t.Fatalf("Approve = %v, %v", ok, err)
	}
	post, err := session.Access.PublishNow(ctx, id)
	if err != nil {
		t.Fatalf("PublishNow: %v", err)
	}
	if post.Status != queue.StatusPosted {
		t.Fatalf("expected posted, got %s", post.Status)
	}
	stats, err := session.Access.Stats(ctx)
	if err != nil || stats.Posted != 1 {
		t.Fatalf("Stats = %#v, %v", stats, err)
	}
	if _, err := session.Access.History(ctx, id); !errors.Is(err, queueaccess.ErrHistoryDisabled) {
		t.Fatalf("expected disabled history, got %v", err)
	}

	if err := session.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !closed {
		t.Fatal("expected local close to run")
	}

	lock := flock.New(cfg.LockPath())
	ok, err := lock.TryLock()
	if err != nil || !ok {
		t.Fatalf("lock not released: %v %v", ok, err)
	}
	_ = lock.Unlock()
}

func TestFallbackRefusesWhenDaemonHoldsLock(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	lock := flock.New(cfg.LockPath())
	if ok, err := lock.TryLock(); err != nil || !ok {
		t.Fatalf("TryLock: %v %v", ok, err)
	}
	defer lock.Unlock()

	closed := false
	_, err := queueaccess.OpenWithFallback(unreachable, cfg.LockPath(), localOpener(t, cfg, &closed))
	if !errors.Is(err, queueaccess.ErrDaemonBusy) {
		t.Fatalf("expected ErrDaemonBusy, got %v", err)
	}
}

func TestFallbackPrefersAPI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/stats" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(queue.Stats{Total: 4, Approved: 4})
	}))
	defer srv.Close()

	dial := func() (*api.Client, error) {
		return api.NewClient(srv.URL, "")
	}
	session, err := queueaccess.OpenWithFallback(dial, "", nil)
	if err != nil {
		t.Fatalf("OpenWithFallback: %v", err)
	}
	defer session.Close()
	if !session.Remote {
		t.Fatal("expected remote session")
	}
	stats, err := session.Access.Stats(context.Background())
	if err != nil || stats.Approved != 4 {
		t.Fatalf("Stats = %#v, %v", stats, err)
	}
}

func TestLocalAccessReadsHistory(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store, err := queue.Open(cfg, nil)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	ledger, err := history.Open(cfg.History.Path)
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}
	defer ledger.Close()
	started := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
	if _, err := ledger.Record(context.Background(), history.Attempt{
		PostID: "p1", Platform: queue.PlatformFacebook, Attempt: 1, Stage: history.StagePublish,
		StartedAt: started, FinishedAt: started,
	}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	access := queueaccess.NewLocalAccess(workflow.NewProcessor(cfg, store, nil, publish.NewManagerWith(nil)), ledger)
	attempts, err := access.History(context.Background(), "p1")
	if err != nil || len(attempts) != 1 {
		t.Fatalf("History = %#v, %v", attempts, err)
	}
}
