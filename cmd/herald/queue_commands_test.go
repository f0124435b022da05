package main

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"herald/internal/queue"
	"herald/internal/testsupport"
)

func TestQueueAddListApproveLocal(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"queue", "add", "--platform", "twitter", "--text", "Launch day", "--hashtag", "launch", "--at", "+2h"}, env.configPath)
	if err != nil {
		t.Fatalf("queue add: %v", err)
	}
	id := lastQueuedID(t, out)

	out, _, err = runCLI(t, []string{"queue", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("queue list: %v", err)
	}
	requireContains(t, out, id)
	requireContains(t, out, "pending")
	requireContains(t, out, "Launch day")

	out, _, err = runCLI(t, []string{"queue", "approve", id}, env.configPath)
	if err != nil {
		t.Fatalf("queue approve: %v", err)
	}
	requireContains(t, out, "Approved post "+id)

	out, _, err = runCLI(t, []string{"queue", "list", "--status", "approved", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("queue list json: %v", err)
	}
	var posts []queue.Post
	if err := json.Unmarshal([]byte(out), &posts); err != nil {
		t.Fatalf("decode list: %v\n%s", err, out)
	}
	if len(posts) != 1 || posts[0].ID != id || posts[0].Status != queue.StatusApproved {
		t.Fatalf("unexpected approved posts %+v", posts)
	}
	if posts[0].ScheduledTime.Before(time.Now().Add(time.Hour)) {
		t.Fatalf("scheduled time %s not pushed out by --at", posts[0].ScheduledTime)
	}

	// Approving twice is an invalid transition.
	if _, _, err := runCLI(t, []string{"queue", "approve", id}, env.configPath); !errors.Is(err, queue.ErrInvalidTransition) {
		t.Fatalf("second approve err = %v, want invalid transition", err)
	}
}

func TestQueueAddValidatesDraft(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, _, err := runCLI(t, []string{"queue", "add", "--text", "no platform"}, env.configPath); err == nil {
		t.Fatal("expected missing platform to fail")
	}
	_, _, err := runCLI(t, []string{"queue", "add", "--platform", "instagram", "--text", "caption only"}, env.configPath)
	if !errors.Is(err, queue.ErrInvalidInput) {
		t.Fatalf("instagram without media err = %v, want invalid input", err)
	}
}

func TestQueueAddFromDraftFile(t *testing.T) {
	env := setupCLITestEnv(t)

	draft := `{"platform":"twitter","postType":"poll","content":{"text":"Which?","pollOptions":["a","b"],"pollDurationMinutes":60}}`
	path := filepath.Join(env.baseDir, "draft.json")
	if err := os.WriteFile(path, []byte(draft), 0o644); err != nil {
		t.Fatal(err)
	}
	out, _, err := runCLI(t, []string{"queue", "add", "--file", path, "--approve"}, env.configPath)
	if err != nil {
		t.Fatalf("queue add --file: %v", err)
	}
	id := lastQueuedID(t, out)
	requireContains(t, out, "Approved for publishing")

	out, _, err = runCLI(t, []string{"queue", "show", id}, env.configPath)
	if err != nil {
		t.Fatalf("queue show: %v", err)
	}
	requireContains(t, out, "poll")
	requireContains(t, out, "a / b (60 min)")
	requireContains(t, out, "approved")
}

func TestQueueRejectScheduleAndStats(t *testing.T) {
	env := setupCLITestEnv(t)

	first := lastQueuedID(t, mustRun(t, env, "queue", "add", "-p", "facebook", "--text", "one"))
	second := lastQueuedID(t, mustRun(t, env, "queue", "add", "-p", "facebook", "--text", "two"))

	out := mustRun(t, env, "queue", "schedule", first, "2030-01-02T15:04:05Z")
	requireContains(t, out, "scheduled for")

	out = mustRun(t, env, "queue", "reject", second)
	requireContains(t, out, "Rejected post "+second)

	out = mustRun(t, env, "queue", "stats")
	requireContains(t, out, "Pending")
	requireContains(t, out, "Total")

	out = mustRun(t, env, "queue", "stats", "--json")
	var stats queue.Stats
	if err := json.Unmarshal([]byte(out), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.Total != 1 || stats.Pending != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	out = mustRun(t, env, "queue", "show", first, "--json")
	var post queue.Post
	if err := json.Unmarshal([]byte(out), &post); err != nil {
		t.Fatalf("decode post: %v", err)
	}
	if want := time.Date(2030, 1, 2, 15, 4, 5, 0, time.UTC); !post.ScheduledTime.Equal(want) {
		t.Fatalf("scheduled = %s, want %s", post.ScheduledTime, want)
	}
}

func TestQueueUnknownIDIsNotFound(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, []string{"queue", "show", "post-missing"}, env.configPath)
	if !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("show err = %v, want not found", err)
	}
	_, stderr, err := runCLI(t, []string{"queue", "reject", "post-missing"}, env.configPath)
	if !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("reject err = %v, want not found", err)
	}
	requireContains(t, stderr, "post-missing")
}

func TestQueueHistoryWithoutAttempts(t *testing.T) {
	env := setupCLITestEnv(t)

	id := lastQueuedID(t, mustRun(t, env, "queue", "add", "-p", "twitter", "--text", "hello"))
	out := mustRun(t, env, "queue", "history", id)
	requireContains(t, out, "No attempts recorded for "+id)
}

func TestQueueCommandsUseDaemonAPI(t *testing.T) {
	env := setupCLITestEnv(t)
	env.cfg.Paths.APIToken = "cli-test-token"
	env.startDaemon(t)

	id := lastQueuedID(t, mustRun(t, env, "queue", "add", "-p", "twitter", "--text", "via api"))
	out := mustRun(t, env, "queue", "list")
	requireContains(t, out, id)

	out = mustRun(t, env, "queue", "approve", id)
	requireContains(t, out, "Approved post "+id)

	out = mustRun(t, env, "status")
	requireContains(t, out, "Running")
	requireContains(t, out, "Approved")

	_, _, err := runCLI(t, []string{"queue", "reject", "post-missing"}, env.configPath)
	if !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("remote reject err = %v, want not found", err)
	}
}

func TestQueueRefusesWhenLockHeldWithoutAPI(t *testing.T) {
	env := setupCLITestEnv(t)

	if err := os.MkdirAll(env.cfg.Paths.StateDir, 0o755); err != nil {
		t.Fatal(err)
	}
	lock := flock.New(env.cfg.LockPath())
	ok, err := lock.TryLock()
	if err != nil || !ok {
		t.Fatalf("take lock: ok=%v err=%v", ok, err)
	}
	defer lock.Unlock()

	_, _, err = runCLI(t, []string{"queue", "list"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "holds the queue lock") {
		t.Fatalf("expected busy error, got %v", err)
	}
}

func TestParseWhen(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	cases := map[string]time.Time{
		"now":                  now,
		"+90m":                 now.Add(90 * time.Minute),
		"2026-03-02T08:00:00Z": time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC),
		"2026-03-02 08:00":     time.Date(2026, 3, 2, 8, 0, 0, 0, time.Local),
	}
	for input, want := range cases {
		got, err := parseWhen(input, now)
		if err != nil {
			t.Fatalf("parseWhen(%q): %v", input, err)
		}
		if !got.Equal(want) {
			t.Fatalf("parseWhen(%q) = %s, want %s", input, got, want)
		}
	}
	for _, bad := range []string{"", "tomorrow", "+soon"} {
		if _, err := parseWhen(bad, now); err == nil {
			t.Fatalf("parseWhen(%q) should fail", bad)
		}
	}
}

func mustRun(t *testing.T, env *cliTestEnv, args ...string) string {
	t.Helper()
	out, stderr, err := runCLI(t, args, env.configPath)
	if err != nil {
		t.Fatalf("%s: %v\nstderr: %s", strings.Join(args, " "), err, stderr)
	}
	return out
}

func TestCleanupRemovesUnreferencedRenditions(t *testing.T) {
	env := setupCLITestEnv(t)

	stale := filepath.Join(env.cfg.Paths.AdaptedDir, "twitter", "old-twitter.jpg")
	testsupport.WriteRendition(t, stale, 2048, 72*time.Hour)

	out := mustRun(t, env, "cleanup", "--dry-run")
	requireContains(t, out, "Would remove 1 file(s)")
	if _, err := os.Stat(stale); err != nil {
		t.Fatalf("dry run removed rendition: %v", err)
	}

	out = mustRun(t, env, "cleanup")
	requireContains(t, out, "Removed 1 file(s), 2.0 KiB")
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatalf("rendition still present: %v", err)
	}
}
