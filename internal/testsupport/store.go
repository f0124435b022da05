package testsupport

import (
	"context"
	"testing"
	"time"

	"herald/internal/config"
	"herald/internal/queue"
)

// MustOpenStore opens a queue.Store for tests.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg, nil)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	return store
}

// SeedPosts writes posts to the store, failing the test on error.
func SeedPosts(t testing.TB, store *queue.Store, posts ...queue.Post) {
	t.Helper()

	if err := store.Save(context.Background(), posts); err != nil {
		t.Fatalf("store.Save: %v", err)
	}
}

// LoadPosts reads the store, failing the test on error.
func LoadPosts(t testing.TB, store *queue.Store) []queue.Post {
	t.Helper()

	posts, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("store.Load: %v", err)
	}
	return posts
}

// ApprovedPost builds an approved text post due at scheduled.
func ApprovedPost(id string, platform queue.Platform, scheduled time.Time) queue.Post {
	return queue.Post{
		ID:            id,
		Platform:      platform,
		PostType:      platform.DefaultPostType(),
		Status:        queue.StatusApproved,
		ScheduledTime: scheduled.UTC(),
		Content:       queue.Content{Text: "hello from " + id},
		CreatedAt:     scheduled.UTC(),
		UpdatedAt:     scheduled.UTC(),
	}
}

// FindPost returns the post with id, failing the test when absent.
func FindPost(t testing.TB, posts []queue.Post, id string) queue.Post {
	t.Helper()

	idx := queue.Find(posts, id)
	if idx < 0 {
		t.Fatalf("post %s not found", id)
	}
	return posts[idx]
}
