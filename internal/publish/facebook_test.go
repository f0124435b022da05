package publish_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"herald/internal/config"
	"herald/internal/publish"
	"herald/internal/queue"
)

const fbPage = "100200300"

type facebookCall struct {
	path   string
	fields map[string]string
	file   string
}

func newFacebook(t *testing.T) (*publish.Facebook, *[]facebookCall) {
	t.Helper()
	var (
		mu    sync.Mutex
		calls []facebookCall
	)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		call := facebookCall{path: r.URL.Path, fields: map[string]string{}}
		if r.Header.Get("Authorization") != "Bearer page-token" {
			t.Errorf("unexpected authorization %q", r.Header.Get("Authorization"))
		}
		if err := r.ParseMultipartForm(1 << 20); err == nil {
			if file, _, err := r.FormFile("source"); err == nil {
				data, _ := io.ReadAll(file)
				call.file = string(data)
			}
		}
		for key := range r.Form {
			call.fields[key] = r.Form.Get(key)
		}
		mu.Lock()
		calls = append(calls, call)
		n := len(calls)
		mu.Unlock()

		switch r.URL.Path {
		case "/" + fbPage + "/feed":
			_, _ = w.Write([]byte(`{"id":"100200300_555"}`))
		case "/" + fbPage + "/photos":
			if r.FormValue("published") == "false" {
				_, _ = w.Write([]byte(`{"id":"photo` + string(rune('0'+n)) + `"}`))
				return
			}
			_, _ = w.Write([]byte(`{"id":"photo1","post_id":"100200300_777"}`))
		case "/" + fbPage + "/videos":
			_, _ = w.Write([]byte(`{"id":"vid1"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"message":"Unknown path","code":803}}`))
		}
	})
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	fb := publish.NewFacebook(config.Facebook{
		Enabled:        true,
		AccessToken:    "page-token",
		PageID:         fbPage,
		GraphBaseURL:   server.URL,
		TimeoutSeconds: 5,
	}, nil)
	return fb, &calls
}

func writeMedia(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFacebookTextPostWithLink(t *testing.T) {
	fb, calls := newFacebook(t)
	result := fb.Publish(context.Background(), publish.Request{
		Content: queue.Content{Text: "Read the notes", Link: "https://example.com/notes"},
	})
	if !result.Success || result.URL != "https://facebook.com/100200300_555" {
		t.Fatalf("unexpected result %+v", result)
	}
	call := (*calls)[0]
	if call.path != "/"+fbPage+"/feed" || call.fields["message"] != "Read the notes" || call.fields["link"] != "https://example.com/notes" {
		t.Fatalf("unexpected call %+v", call)
	}
}

func TestFacebookPhotoUsesPostID(t *testing.T) {
	fb, calls := newFacebook(t)
	photo := writeMedia(t, "p-facebook.jpg", "jpeg-bytes")
	result := fb.Publish(context.Background(), publish.Request{
		Content:    queue.Content{Text: "Photo"},
		MediaPaths: []string{photo},
	})
	if !result.Success || result.PostID != "100200300_777" {
		t.Fatalf("unexpected result %+v", result)
	}
	call := (*calls)[0]
	if call.path != "/"+fbPage+"/photos" || call.file != "jpeg-bytes" || call.fields["message"] != "Photo" {
		t.Fatalf("unexpected call %+v", call)
	}
}

func TestFacebookVideo(t *testing.T) {
	fb, calls := newFacebook(t)
	video := writeMedia(t, "clip-facebook.mp4", "mp4-bytes")
	result := fb.Publish(context.Background(), publish.Request{
		Content:    queue.Content{Text: "Clip", Link: "https://example.com"},
		MediaPaths: []string{video},
	})
	if !result.Success || result.PostID != "vid1" {
		t.Fatalf("unexpected result %+v", result)
	}
	call := (*calls)[0]
	if call.path != "/"+fbPage+"/videos" || call.fields["description"] != "Clip\n\nhttps://example.com" {
		t.Fatalf("unexpected call %+v", call)
	}
}

func TestFacebookMultiPhotoPost(t *testing.T) {
	fb, calls := newFacebook(t)
	first := writeMedia(t, "a.jpg", "a")
	second := writeMedia(t, "b.jpg", "b")
	result := fb.Publish(context.Background(), publish.Request{
		Content:    queue.Content{Text: "Album"},
		MediaPaths: []string{first, second},
	})
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if len(*calls) != 3 {
		t.Fatalf("expected 2 uploads and a feed post, got %d calls", len(*calls))
	}
	feed := (*calls)[2]
	if feed.fields["attached_media[0]"] != `{"media_fbid":"photo1"}` || feed.fields["attached_media[1]"] != `{"media_fbid":"photo2"}` {
		t.Fatalf("unexpected attachments %v", feed.fields)
	}
}

func TestFacebookRejectsEmptyPost(t *testing.T) {
	fb, calls := newFacebook(t)
	result := fb.Publish(context.Background(), publish.Request{})
	if result.Success || result.Retryable {
		t.Fatalf("expected validation failure, got %+v", result)
	}
	if len(*calls) != 0 {
		t.Fatal("no call expected")
	}
}

func TestFacebookMissingMediaFileFails(t *testing.T) {
	fb, _ := newFacebook(t)
	result := fb.Publish(context.Background(), publish.Request{
		MediaPaths: []string{filepath.Join(t.TempDir(), "gone.jpg")},
	})
	if result.Success {
		t.Fatal("expected failure")
	}
}

func TestFacebookUnreadableCreateIsNotRetried(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"100200300_5`))
	}))
	t.Cleanup(server.Close)
	fb := publish.NewFacebook(config.Facebook{
		Enabled:        true,
		AccessToken:    "page-token",
		PageID:         fbPage,
		GraphBaseURL:   server.URL,
		TimeoutSeconds: 5,
	}, nil)

	result := fb.Publish(context.Background(), publish.Request{Content: queue.Content{Text: "hello"}})
	if result.Success || result.Retryable {
		t.Fatalf("expected non-retryable failure, got %+v", result)
	}
	if !strings.Contains(result.Error, "verify manually") {
		t.Fatalf("unexpected error %q", result.Error)
	}
}

func TestFacebookUnreadableAlbumUploadIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Unpublished photo uploads are not live, so a bad body is safe to retry.
		_, _ = w.Write([]byte(`{"id":`))
	}))
	t.Cleanup(server.Close)
	fb := publish.NewFacebook(config.Facebook{
		Enabled:        true,
		AccessToken:    "page-token",
		PageID:         fbPage,
		GraphBaseURL:   server.URL,
		TimeoutSeconds: 5,
	}, nil)

	result := fb.Publish(context.Background(), publish.Request{
		MediaPaths: []string{writeMedia(t, "a.jpg", "one"), writeMedia(t, "b.jpg", "two")},
	})
	if result.Success || !result.Retryable {
		t.Fatalf("expected retryable failure, got %+v", result)
	}
}
