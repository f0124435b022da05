package adaptation

import (
	"fmt"
	"path/filepath"
	"strings"

	"herald/internal/queue"
)

// Format names one entry of the static format table.
type Format string

const (
	FormatInstagramReel  Format = "instagram-reel"
	FormatInstagramStory Format = "instagram-story"
	FormatInstagramFeed  Format = "instagram-feed"
	FormatTwitter        Format = "twitter"
	FormatFacebook       Format = "facebook"
	FormatTikTok         Format = "tiktok"
)

// Output containers.
const (
	ContainerJPG = "jpg"
	ContainerMP4 = "mp4"
)

// Spec describes what a rendition must look like for one format.
type Spec struct {
	Width       int
	Height      int
	AspectRatio string
	MaxSizeMB   int
	Container   string
	Quality     int
}

// MaxBytes returns the size ceiling in bytes.
func (s Spec) MaxBytes() int64 {
	return int64(s.MaxSizeMB) * 1024 * 1024
}

var formatOrder = []Format{
	FormatInstagramReel,
	FormatInstagramStory,
	FormatInstagramFeed,
	FormatTwitter,
	FormatFacebook,
	FormatTikTok,
}

var specs = map[Format]Spec{
	FormatInstagramReel:  {Width: 1080, Height: 1920, AspectRatio: "9:16", MaxSizeMB: 100, Container: ContainerMP4, Quality: 80},
	FormatInstagramStory: {Width: 1080, Height: 1920, AspectRatio: "9:16", MaxSizeMB: 30, Container: ContainerMP4, Quality: 80},
	FormatInstagramFeed:  {Width: 1080, Height: 1080, AspectRatio: "1:1", MaxSizeMB: 30, Container: ContainerJPG, Quality: 85},
	FormatTwitter:        {Width: 1200, Height: 675, AspectRatio: "16:9", MaxSizeMB: 15, Container: ContainerJPG, Quality: 85},
	FormatFacebook:       {Width: 1200, Height: 630, AspectRatio: "1.91:1", MaxSizeMB: 25, Container: ContainerJPG, Quality: 85},
	FormatTikTok:         {Width: 1080, Height: 1920, AspectRatio: "9:16", MaxSizeMB: 100, Container: ContainerMP4, Quality: 80},
}

// SpecFor returns the spec for a format.
func SpecFor(format Format) (Spec, bool) {
	spec, ok := specs[format]
	return spec, ok
}

// Formats returns every format in table order.
func Formats() []Format {
	return append([]Format(nil), formatOrder...)
}

// ParseFormat validates a format name.
func ParseFormat(value string) (Format, error) {
	format := Format(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := specs[format]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, value)
	}
	return format, nil
}

// BestFormat picks the format for a platform given the asset kind.
func BestFormat(platform queue.Platform, isVideo bool) Format {
	switch platform {
	case queue.PlatformInstagram:
		if isVideo {
			return FormatInstagramReel
		}
		return FormatInstagramFeed
	case queue.PlatformFacebook:
		return FormatFacebook
	case queue.PlatformTikTok:
		return FormatTikTok
	default:
		return FormatTwitter
	}
}

// FormatFor is BestFormat with the post type taken into account. Instagram
// stories get the story format whatever the asset kind.
func FormatFor(platform queue.Platform, postType queue.PostType, isVideo bool) Format {
	if platform == queue.PlatformInstagram {
		switch postType {
		case queue.PostTypeStory:
			return FormatInstagramStory
		case queue.PostTypeReel:
			return FormatInstagramReel
		}
	}
	return BestFormat(platform, isVideo)
}

// Kind is the media family of a source file.
type Kind int

const (
	KindUnknown Kind = iota
	KindImage
	KindVideo
)

func (k Kind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindVideo:
		return "video"
	default:
		return "unknown"
	}
}

var imageExtensions = map[string]struct{}{".jpg": {}, ".jpeg": {}, ".png": {}, ".webp": {}}

var videoExtensions = map[string]struct{}{".mp4": {}, ".mov": {}, ".avi": {}, ".mkv": {}}

// KindOf sniffs the media kind from the file extension.
func KindOf(path string) Kind {
	ext := strings.ToLower(filepath.Ext(path))
	if _, ok := imageExtensions[ext]; ok {
		return KindImage
	}
	if _, ok := videoExtensions[ext]; ok {
		return KindVideo
	}
	return KindUnknown
}

// IsImage reports whether path has a supported still-image extension.
func IsImage(path string) bool { return KindOf(path) == KindImage }

// IsVideo reports whether path has a supported video extension.
func IsVideo(path string) bool { return KindOf(path) == KindVideo }

// outputContainer returns the container a rendition of kind is written in.
// It equals the spec container when the kinds line up. A still image aimed at
// a video format is delivered as a jpg at the spec's size, and a video aimed
// at an image format as an mp4.
func outputContainer(kind Kind) string {
	if kind == KindVideo {
		return ContainerMP4
	}
	return ContainerJPG
}

func containerMatches(container, path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	switch container {
	case ContainerJPG:
		return ext == ".jpg" || ext == ".jpeg"
	case ContainerMP4:
		return ext == ".mp4"
	default:
		return false
	}
}
