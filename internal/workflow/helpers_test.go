package workflow_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"herald/internal/adaptation"
	"herald/internal/config"
	"herald/internal/history"
	"herald/internal/notifications"
	"herald/internal/publish"
	"herald/internal/queue"
	"herald/internal/testsupport"
	"herald/internal/workflow"
)

var baseTime = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *fakeClock { return &fakeClock{now: baseTime} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type publishCall struct {
	Platform queue.Platform
	Content  queue.Content
	PostType queue.PostType
	Media    []string
}

type fakePublisher struct {
	mu      sync.Mutex
	calls   []publishCall
	respond func(call publishCall) publish.Result
}

func succeedingPublisher() *fakePublisher {
	return &fakePublisher{respond: func(call publishCall) publish.Result {
		return publish.Result{Success: true, Platform: call.Platform, PostID: "remote-1", URL: "https://example.test/remote-1"}
	}}
}

func failingPublisher(message string, retryable bool) *fakePublisher {
	return &fakePublisher{respond: func(call publishCall) publish.Result {
		return publish.Result{Platform: call.Platform, Error: message, Retryable: retryable}
	}}
}

func (f *fakePublisher) PostToPlatform(_ context.Context, platform queue.Platform, content queue.Content, postType queue.PostType, media []string) publish.Result {
	call := publishCall{Platform: platform, Content: content, PostType: postType, Media: append([]string(nil), media...)}
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
	return f.respond(call)
}

func (f *fakePublisher) Calls() []publishCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]publishCall(nil), f.calls...)
}

type adaptCall struct {
	Source    string
	Format    adaptation.Format
	OutputDir string
}

type fakeAdapter struct {
	mu    sync.Mutex
	calls []adaptCall
	err   error
}

func (f *fakeAdapter) Adapt(_ context.Context, source string, format adaptation.Format, outputDir string) (adaptation.Rendition, error) {
	f.mu.Lock()
	f.calls = append(f.calls, adaptCall{Source: source, Format: format, OutputDir: outputDir})
	f.mu.Unlock()
	if f.err != nil {
		return adaptation.Rendition{}, f.err
	}
	return adaptation.Rendition{
		Source: source,
		Path:   filepath.Join(outputDir, filepath.Base(source)+"-"+string(format)),
		Format: format,
	}, nil
}

func (f *fakeAdapter) Calls() []adaptCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]adaptCall(nil), f.calls...)
}

type sentNotification struct {
	Event   notifications.Event
	Payload notifications.Payload
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (n *recordingNotifier) Publish(_ context.Context, event notifications.Event, payload notifications.Payload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{Event: event, Payload: payload})
	return nil
}

func (n *recordingNotifier) Events() []notifications.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	events := make([]notifications.Event, 0, len(n.sent))
	for _, s := range n.sent {
		events = append(events, s.Event)
	}
	return events
}

type memoryHistory struct {
	mu       sync.Mutex
	attempts []history.Attempt
}

func (m *memoryHistory) Record(_ context.Context, a history.Attempt) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts = append(m.attempts, a)
	return int64(len(m.attempts)), nil
}

// countingStore wraps the real store, counting saves and optionally failing them.
type countingStore struct {
	inner    *queue.Store
	mu       sync.Mutex
	saves    int
	failSave bool
}

var errDiskFull = errors.New("disk full")

func (s *countingStore) Load(ctx context.Context) ([]queue.Post, error) {
	return s.inner.Load(ctx)
}

func (s *countingStore) Save(ctx context.Context, posts []queue.Post) error {
	s.mu.Lock()
	s.saves++
	fail := s.failSave
	s.mu.Unlock()
	if fail {
		return errDiskFull
	}
	return s.inner.Save(ctx, posts)
}

func (s *countingStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

type harness struct {
	cfg       *config.Config
	store     *countingStore
	clock     *fakeClock
	publisher *fakePublisher
	adapter   *fakeAdapter
	notifier  *recordingNotifier
	history   *memoryHistory
	processor *workflow.Processor
}

func newHarness(t *testing.T, publisher *fakePublisher, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	h := &harness{
		cfg:       cfg,
		store:     &countingStore{inner: testsupport.MustOpenStore(t, cfg)},
		clock:     newClock(),
		publisher: publisher,
		adapter:   &fakeAdapter{},
		notifier:  &recordingNotifier{},
		history:   &memoryHistory{},
	}
	h.processor = h.build()
	return h
}

func (h *harness) build() *workflow.Processor {
	return workflow.NewProcessor(h.cfg, h.store, h.adapter, h.publisher,
		workflow.WithClock(h.clock.Now),
		workflow.WithNotifier(h.notifier),
		workflow.WithHistory(h.history),
	)
}

func (h *harness) seed(t *testing.T, posts ...queue.Post) {
	t.Helper()
	testsupport.SeedPosts(t, h.store.inner, posts...)
}

func (h *harness) posts(t *testing.T) []queue.Post {
	t.Helper()
	return testsupport.LoadPosts(t, h.store.inner)
}

func (h *harness) cycle(t *testing.T) workflow.CycleReport {
	t.Helper()
	report, err := h.processor.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	return report
}
