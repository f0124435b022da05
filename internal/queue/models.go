package queue

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status represents the lifecycle of a queued post.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	// StatusScheduled is written by external approval tooling. The processor
	// never selects or produces it; it is counted in stats only.
	StatusScheduled Status = "scheduled"
	StatusPosted    Status = "posted"
	StatusFailed    Status = "failed"
)

var allStatuses = []Status{
	StatusPending,
	StatusApproved,
	StatusScheduled,
	StatusPosted,
	StatusFailed,
}

// AllStatuses returns every known status in display order.
func AllStatuses() []Status {
	return append([]Status(nil), allStatuses...)
}

// ParseStatus validates a status string.
func ParseStatus(value string) (Status, error) {
	status := Status(strings.ToLower(strings.TrimSpace(value)))
	for _, known := range allStatuses {
		if status == known {
			return status, nil
		}
	}
	return "", fmt.Errorf("%w: unknown status %q", ErrInvalidInput, value)
}

// IsTerminal reports whether no further transitions may occur.
func (s Status) IsTerminal() bool {
	return s == StatusPosted || s == StatusFailed
}

// Platform is a destination social network.
type Platform string

const (
	PlatformTwitter   Platform = "twitter"
	PlatformInstagram Platform = "instagram"
	PlatformFacebook  Platform = "facebook"
	PlatformTikTok    Platform = "tiktok"
)

// PostType selects a destination-specific rendering mode.
type PostType string

const (
	PostTypeFeed   PostType = "feed"
	PostTypeReel   PostType = "reel"
	PostTypeStory  PostType = "story"
	PostTypeThread PostType = "thread"
	PostTypePoll   PostType = "poll"
)

var platformPostTypes = map[Platform][]PostType{
	PlatformTwitter:   {PostTypeFeed, PostTypeThread, PostTypePoll},
	PlatformInstagram: {PostTypeFeed, PostTypeReel, PostTypeStory},
	PlatformFacebook:  {PostTypeFeed},
	PlatformTikTok:    {PostTypeReel},
}

// Platforms returns the closed set of supported platforms.
func Platforms() []Platform {
	return []Platform{PlatformTwitter, PlatformInstagram, PlatformFacebook, PlatformTikTok}
}

// ParsePlatform validates a platform string.
func ParsePlatform(value string) (Platform, error) {
	platform := Platform(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := platformPostTypes[platform]; !ok {
		return "", fmt.Errorf("%w: unknown platform %q", ErrInvalidInput, value)
	}
	return platform, nil
}

// Supports reports whether the platform accepts the post type.
func (p Platform) Supports(postType PostType) bool {
	for _, candidate := range platformPostTypes[p] {
		if candidate == postType {
			return true
		}
	}
	return false
}

// DefaultPostType returns the post type used when a draft leaves it blank.
func (p Platform) DefaultPostType() PostType {
	types := platformPostTypes[p]
	if len(types) == 0 {
		return PostTypeFeed
	}
	return types[0]
}

// Content is the text payload of a post.
type Content struct {
	Text                string   `json:"text"`
	Hashtags            []string `json:"hashtags,omitempty"`
	Mentions            []string `json:"mentions,omitempty"`
	Link                string   `json:"link,omitempty"`
	PollOptions         []string `json:"pollOptions,omitempty"`
	PollDurationMinutes int      `json:"pollDurationMinutes,omitempty"`
}

// Post is one unit of publishing work.
type Post struct {
	ID            string            `json:"id"`
	Platform      Platform          `json:"platform"`
	PostType      PostType          `json:"postType"`
	Status        Status            `json:"status"`
	ScheduledTime time.Time         `json:"scheduledTime"`
	Content       Content           `json:"content"`
	AssetIDs      []string          `json:"assetIds,omitempty"`
	AdaptedAssets map[string]string `json:"adaptedAssets,omitempty"`
	PostedAt      *time.Time        `json:"postedAt,omitempty"`
	PostID        string            `json:"postId,omitempty"`
	PostURL       string            `json:"postUrl,omitempty"`
	Error         string            `json:"error,omitempty"`
	RetryCount    int               `json:"retryCount"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}

// Due reports whether the processor should pick the post up at now.
func (p Post) Due(now time.Time) bool {
	return p.Status == StatusApproved && !p.ScheduledTime.After(now)
}

// RenditionKey names the adaptedAssets entry for the asset at index.
func RenditionKey(platform Platform, index int) string {
	if index == 0 {
		return string(platform)
	}
	return fmt.Sprintf("%s#%d", platform, index)
}

// CachedRenditions returns rendition paths in asset order when every asset
// already has one for the post's platform.
func (p Post) CachedRenditions() ([]string, bool) {
	if len(p.AssetIDs) == 0 {
		return nil, true
	}
	paths := make([]string, 0, len(p.AssetIDs))
	for i := range p.AssetIDs {
		path, ok := p.AdaptedAssets[RenditionKey(p.Platform, i)]
		if !ok || path == "" {
			return nil, false
		}
		paths = append(paths, path)
	}
	return paths, true
}

// Draft carries the caller-supplied fields for a new post.
type Draft struct {
	Platform      Platform  `json:"platform"`
	PostType      PostType  `json:"postType,omitempty"`
	ScheduledTime time.Time `json:"scheduledTime"`
	Content       Content   `json:"content"`
	AssetIDs      []string  `json:"assetIds,omitempty"`
}

// Validate checks closed-set fields and content requirements.
func (d *Draft) Validate() error {
	platform, err := ParsePlatform(string(d.Platform))
	if err != nil {
		return err
	}
	d.Platform = platform
	if strings.TrimSpace(string(d.PostType)) == "" {
		d.PostType = platform.DefaultPostType()
	}
	d.PostType = PostType(strings.ToLower(strings.TrimSpace(string(d.PostType))))
	if !platform.Supports(d.PostType) {
		return fmt.Errorf("%w: %s does not support %s posts", ErrInvalidInput, platform, d.PostType)
	}
	if strings.TrimSpace(d.Content.Text) == "" && len(d.AssetIDs) == 0 {
		return fmt.Errorf("%w: post needs text or at least one asset", ErrInvalidInput)
	}
	if platform == PlatformInstagram && len(d.AssetIDs) == 0 {
		return fmt.Errorf("%w: instagram posts require media", ErrInvalidInput)
	}
	if d.PostType == PostTypePoll {
		if n := len(d.Content.PollOptions); n < 2 || n > 4 {
			return fmt.Errorf("%w: polls need 2 to 4 options, got %d", ErrInvalidInput, n)
		}
	}
	for _, id := range d.AssetIDs {
		if err := ValidateAssetID(id); err != nil {
			return err
		}
	}
	return nil
}

// ValidateAssetID checks that id names a file inside the asset directory:
// relative, without ".." segments that climb out of it.
func ValidateAssetID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: empty asset id", ErrInvalidInput)
	}
	if !filepath.IsLocal(filepath.FromSlash(id)) {
		return fmt.Errorf("%w: asset id %q must be a relative path inside the asset directory", ErrInvalidInput, id)
	}
	return nil
}

// NewPost materializes a validated draft as a pending post.
func NewPost(d Draft, now time.Time) Post {
	scheduled := d.ScheduledTime
	if scheduled.IsZero() {
		scheduled = now
	}
	return Post{
		ID:            NewID(now),
		Platform:      d.Platform,
		PostType:      d.PostType,
		Status:        StatusPending,
		ScheduledTime: scheduled.UTC(),
		Content:       d.Content,
		AssetIDs:      append([]string(nil), d.AssetIDs...),
		RetryCount:    0,
		CreatedAt:     now.UTC(),
		UpdatedAt:     now.UTC(),
	}
}

// NewID returns an identifier that sorts roughly by creation time.
func NewID(now time.Time) string {
	return fmt.Sprintf("post-%d-%s", now.UnixMilli(), uuid.NewString()[:8])
}

// Stats aggregates post counts by status.
type Stats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Approved  int `json:"approved"`
	Scheduled int `json:"scheduled"`
	Posted    int `json:"posted"`
	Failed    int `json:"failed"`
}

// CountByStatus computes Stats for a collection.
func CountByStatus(posts []Post) Stats {
	stats := Stats{Total: len(posts)}
	for _, p := range posts {
		switch p.Status {
		case StatusPending:
			stats.Pending++
		case StatusApproved:
			stats.Approved++
		case StatusScheduled:
			stats.Scheduled++
		case StatusPosted:
			stats.Posted++
		case StatusFailed:
			stats.Failed++
		}
	}
	return stats
}

// Find returns the index of the post with id, or -1.
func Find(posts []Post, id string) int {
	for i := range posts {
		if posts[i].ID == id {
			return i
		}
	}
	return -1
}

// Filter returns posts whose status is in statuses; all posts when empty.
func Filter(posts []Post, statuses ...Status) []Post {
	if len(statuses) == 0 {
		return append([]Post(nil), posts...)
	}
	out := make([]Post, 0, len(posts))
	for _, p := range posts {
		for _, s := range statuses {
			if p.Status == s {
				out = append(out, p)
				break
			}
		}
	}
	return out
}
