package daemon_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"herald/internal/config"
	"herald/internal/daemon"
	"herald/internal/preflight"
	"herald/internal/publish"
	"herald/internal/queue"
	"herald/internal/testsupport"
	"herald/internal/workflow"
)

type stubPublisher struct {
	platform queue.Platform
}

func (s stubPublisher) Platform() queue.Platform { return s.platform }

func (s stubPublisher) Publish(context.Context, publish.Request) publish.Result {
	return publish.Result{Success: true, PostID: "remote-1", URL: "https://example.test/p/remote-1"}
}

func passingPreflight(context.Context, *config.Config) []preflight.Result {
	return []preflight.Result{{Name: "State directory", Passed: true, Critical: true}}
}

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.PollIntervalSeconds = 3600
	return cfg
}

func newDaemon(t *testing.T, cfg *config.Config, opts ...daemon.Option) *daemon.Daemon {
	t.Helper()
	store, err := queue.Open(cfg, nil)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	publisher := publish.NewManagerWith(nil, stubPublisher{platform: queue.PlatformTwitter})
	processor := workflow.NewProcessor(cfg, store, nil, publisher)
	opts = append([]daemon.Option{daemon.WithPreflight(passingPreflight)}, opts...)
	d, err := daemon.New(cfg, processor, nil, opts...)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		_ = d.Close()
	})
	return d
}

func doJSON(t *testing.T, handler http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var payload bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&payload).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &payload)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
}
