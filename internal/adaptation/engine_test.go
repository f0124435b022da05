package adaptation_test

import (
	"context"
	"errors"
	"image/color"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/disintegration/imaging"

	"herald/internal/adaptation"
	"herald/internal/queue"
	"herald/internal/services"
)

func writeImage(t *testing.T, path string, width, height int) {
	t.Helper()
	img := imaging.New(width, height, color.NRGBA{R: 200, G: 80, B: 20, A: 255})
	if err := imaging.Save(img, path); err != nil {
		t.Fatalf("save image: %v", err)
	}
}

type fakeRunner struct {
	calls    [][]string
	ffmpeg   func(args []string) error
	probeOut string
	probeErr error
}

func (f *fakeRunner) run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	switch name {
	case "ffmpeg":
		if f.ffmpeg != nil {
			if err := f.ffmpeg(args); err != nil {
				return nil, err
			}
		}
		output := args[len(args)-1]
		return nil, os.WriteFile(output, []byte("fake mp4 payload"), 0o644)
	case "ffprobe":
		if f.probeErr != nil {
			return nil, f.probeErr
		}
		return []byte(f.probeOut), nil
	}
	return nil, errors.New("unexpected binary " + name)
}

func newEngine(runner *fakeRunner) *adaptation.Engine {
	opts := adaptation.Options{FFmpegBinary: "ffmpeg", FFprobeBinary: "ffprobe"}
	if runner == nil {
		return adaptation.NewEngine(opts)
	}
	return adaptation.NewEngine(opts, adaptation.WithCommandRunner(runner.run))
}

func TestAdaptImageCoverFitsToFormat(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "photo.png")
	writeImage(t, source, 400, 300)

	engine := newEngine(nil)
	rendition, err := engine.Adapt(context.Background(), source, adaptation.FormatTwitter, filepath.Join(dir, "out"))
	if err != nil {
		t.Fatalf("Adapt: %v", err)
	}
	if filepath.Base(rendition.Path) != "photo-twitter.jpg" {
		t.Fatalf("unexpected output name %q", rendition.Path)
	}
	img, err := imaging.Open(rendition.Path)
	if err != nil {
		t.Fatalf("open rendition: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 1200 || b.Dy() != 675 {
		t.Fatalf("rendition is %dx%d, want 1200x675", b.Dx(), b.Dy())
	}
	if rendition.Width != 1200 || rendition.Height != 675 || rendition.SizeBytes <= 0 {
		t.Fatalf("unexpected descriptor: %+v", rendition)
	}
	if rendition.Format != adaptation.FormatTwitter || rendition.Container != "jpg" {
		t.Fatalf("unexpected format fields: %+v", rendition)
	}
}

func TestAdaptRejectsUnsupportedExtensionBeforeWork(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "anim.gif")
	if err := os.WriteFile(source, []byte("GIF89a"), 0o644); err != nil {
		t.Fatal(err)
	}
	runner := &fakeRunner{}
	_, err := newEngine(runner).Adapt(context.Background(), source, adaptation.FormatTwitter, dir)
	if !errors.Is(err, adaptation.ErrUnsupportedFormat) {
		t.Fatalf("expected unsupported format, got %v", err)
	}
	if services.Retryable(err) {
		t.Fatal("unsupported format must not be retryable")
	}
	if len(runner.calls) != 0 {
		t.Fatalf("no tool should run, got %v", runner.calls)
	}
	if !strings.Contains(err.Error(), ".gif") {
		t.Fatalf("error should name the extension: %v", err)
	}
}

func TestAdaptMissingSource(t *testing.T) {
	dir := t.TempDir()
	_, err := newEngine(nil).Adapt(context.Background(), filepath.Join(dir, "nope.jpg"), adaptation.FormatFacebook, dir)
	if !errors.Is(err, adaptation.ErrSourceMissing) {
		t.Fatalf("expected missing source, got %v", err)
	}
	if services.Retryable(err) {
		t.Fatal("missing source must not be retryable")
	}
}

func TestAdaptUnknownFormat(t *testing.T) {
	_, err := newEngine(nil).Adapt(context.Background(), "x.jpg", adaptation.Format("myspace"), t.TempDir())
	if !errors.Is(err, adaptation.ErrUnknownFormat) {
		t.Fatalf("expected unknown format, got %v", err)
	}
}

func TestAdaptVideoInvokesFFmpegAndInspectsOutput(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "clip.mov")
	if err := os.WriteFile(source, []byte("mov"), 0o644); err != nil {
		t.Fatal(err)
	}
	runner := &fakeRunner{
		probeOut: `{"streams":[{"codec_type":"video","codec_name":"h264","width":1080,"height":1920},{"codec_type":"audio","codec_name":"aac"}],"format":{"duration":"14.2"}}`,
	}

	rendition, err := newEngine(runner).Adapt(context.Background(), source, adaptation.FormatInstagramReel, filepath.Join(dir, "out"))
	if err != nil {
		t.Fatalf("Adapt: %v", err)
	}
	if filepath.Base(rendition.Path) != "clip-instagram-reel.mp4" {
		t.Fatalf("unexpected output %q", rendition.Path)
	}
	if rendition.Width != 1080 || rendition.Height != 1920 || rendition.Container != "mp4" {
		t.Fatalf("unexpected descriptor %+v", rendition)
	}
	if rendition.Codec != "h264" || rendition.DurationSeconds != 14.2 || rendition.AudioStreams != 1 {
		t.Fatalf("probe details not recorded: %+v", rendition)
	}
	if len(runner.calls) != 2 || runner.calls[0][0] != "ffmpeg" || runner.calls[1][0] != "ffprobe" {
		t.Fatalf("unexpected calls %v", runner.calls)
	}
	ffmpeg := runner.calls[0]
	want := "scale=1080:1920:force_original_aspect_ratio=decrease,pad=1080:1920:(ow-iw)/2:(oh-ih)/2"
	if !slices.Contains(ffmpeg, want) {
		t.Fatalf("missing filter %q in %v", want, ffmpeg)
	}
	for _, arg := range []string{"libx264", "aac", "+faststart", "23", "fast", "128k"} {
		if !slices.Contains(ffmpeg, arg) {
			t.Fatalf("missing %q in %v", arg, ffmpeg)
		}
	}
}

func TestAdaptVideoInspectFailureFallsBackToFormat(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "clip.mp4")
	if err := os.WriteFile(source, []byte("mp4"), 0o644); err != nil {
		t.Fatal(err)
	}
	runner := &fakeRunner{probeErr: errors.New("ffprobe missing")}

	rendition, err := newEngine(runner).Adapt(context.Background(), source, adaptation.FormatTikTok, dir)
	if err != nil {
		t.Fatalf("Adapt: %v", err)
	}
	if rendition.Width != 1080 || rendition.Height != 1920 {
		t.Fatalf("expected spec dimensions, got %dx%d", rendition.Width, rendition.Height)
	}
}

func TestAdaptVideoRejectsNonH264Output(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "clip.mp4")
	if err := os.WriteFile(source, []byte("mp4"), 0o644); err != nil {
		t.Fatal(err)
	}
	runner := &fakeRunner{
		probeOut: `{"streams":[{"codec_type":"video","codec_name":"hevc","width":1080,"height":1920}],"format":{}}`,
	}

	_, err := newEngine(runner).Adapt(context.Background(), source, adaptation.FormatTikTok, dir)
	if !errors.Is(err, services.ErrExternalTool) || !strings.Contains(err.Error(), "hevc") {
		t.Fatalf("expected codec error, got %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(dir, "clip-tiktok.mp4")); !os.IsNotExist(statErr) {
		t.Fatal("rendition with the wrong codec should be removed")
	}
}

func TestAdaptVideoToolFailureIsRetryable(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "clip.mkv")
	if err := os.WriteFile(source, []byte("mkv"), 0o644); err != nil {
		t.Fatal(err)
	}
	runner := &fakeRunner{ffmpeg: func([]string) error { return errors.New("exit status 1: moov atom not found") }}

	_, err := newEngine(runner).Adapt(context.Background(), source, adaptation.FormatTikTok, dir)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if !services.Retryable(err) {
		t.Fatal("tool failures count against the retry budget")
	}
	if _, statErr := os.Stat(filepath.Join(dir, "clip-tiktok.mp4")); !os.IsNotExist(statErr) {
		t.Fatal("partial output should be removed")
	}
}

func TestNeedsAdaptation(t *testing.T) {
	dir := t.TempDir()
	exact := filepath.Join(dir, "exact.jpg")
	writeImage(t, exact, 1200, 675)
	wrongSize := filepath.Join(dir, "small.jpg")
	writeImage(t, wrongSize, 100, 100)
	png := filepath.Join(dir, "exact.png")
	writeImage(t, png, 1200, 675)
	video := filepath.Join(dir, "clip.mp4")
	if err := os.WriteFile(video, []byte("mp4"), 0o644); err != nil {
		t.Fatal(err)
	}
	engine := newEngine(nil)

	cases := []struct {
		name   string
		path   string
		format adaptation.Format
		want   bool
	}{
		{"exact jpg", exact, adaptation.FormatTwitter, false},
		{"wrong size", wrongSize, adaptation.FormatTwitter, true},
		{"wrong container", png, adaptation.FormatTwitter, true},
		{"video always", video, adaptation.FormatTikTok, true},
		{"image for video format", exact, adaptation.FormatInstagramReel, true},
		{"unreadable", filepath.Join(dir, "missing.jpg"), adaptation.FormatTwitter, true},
		{"unknown format", exact, adaptation.Format("nope"), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := engine.NeedsAdaptation(tc.path, tc.format); got != tc.want {
				t.Fatalf("NeedsAdaptation = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestAdaptForAllPlatformsWritesOneDirectoryPerFormat(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "hero.jpg")
	writeImage(t, source, 640, 480)
	root := filepath.Join(dir, "all")

	results, err := newEngine(nil).AdaptForAllPlatforms(context.Background(), source, root)
	if err != nil {
		t.Fatalf("AdaptForAllPlatforms: %v", err)
	}
	if len(results) != len(adaptation.Formats()) {
		t.Fatalf("expected %d renditions, got %d", len(adaptation.Formats()), len(results))
	}
	for _, format := range adaptation.Formats() {
		rendition, ok := results[format]
		if !ok {
			t.Fatalf("missing rendition for %s", format)
		}
		if filepath.Dir(rendition.Path) != filepath.Join(root, string(format)) {
			t.Fatalf("%s written to %s", format, rendition.Path)
		}
	}
}

func TestAdaptForAllPlatformsAbortsOnFirstFailure(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "clip.mp4")
	if err := os.WriteFile(source, []byte("mp4"), 0o644); err != nil {
		t.Fatal(err)
	}
	runner := &fakeRunner{ffmpeg: func([]string) error { return errors.New("crash") }}

	results, err := newEngine(runner).AdaptForAllPlatforms(context.Background(), source, dir)
	if err == nil {
		t.Fatal("expected fan-out to fail")
	}
	if results != nil {
		t.Fatalf("expected no partial results, got %v", results)
	}
	if len(runner.calls) != 1 {
		t.Fatalf("fan-out should stop after the first failure, got %d calls", len(runner.calls))
	}
}

func TestFormatSelection(t *testing.T) {
	cases := []struct {
		platform queue.Platform
		postType queue.PostType
		video    bool
		want     adaptation.Format
	}{
		{queue.PlatformInstagram, queue.PostTypeFeed, false, adaptation.FormatInstagramFeed},
		{queue.PlatformInstagram, queue.PostTypeFeed, true, adaptation.FormatInstagramReel},
		{queue.PlatformInstagram, queue.PostTypeStory, false, adaptation.FormatInstagramStory},
		{queue.PlatformInstagram, queue.PostTypeReel, true, adaptation.FormatInstagramReel},
		{queue.PlatformTwitter, queue.PostTypeThread, true, adaptation.FormatTwitter},
		{queue.PlatformFacebook, queue.PostTypeFeed, false, adaptation.FormatFacebook},
		{queue.PlatformTikTok, queue.PostTypeReel, true, adaptation.FormatTikTok},
	}
	for _, tc := range cases {
		if got := adaptation.FormatFor(tc.platform, tc.postType, tc.video); got != tc.want {
			t.Fatalf("FormatFor(%s, %s, %v) = %s, want %s", tc.platform, tc.postType, tc.video, got, tc.want)
		}
	}
}

func TestFormatTable(t *testing.T) {
	spec, ok := adaptation.SpecFor(adaptation.FormatFacebook)
	if !ok || spec.Width != 1200 || spec.Height != 630 || spec.AspectRatio != "1.91:1" || spec.MaxSizeMB != 25 {
		t.Fatalf("unexpected facebook spec %+v", spec)
	}
	if _, err := adaptation.ParseFormat("INSTAGRAM-STORY"); err != nil {
		t.Fatalf("ParseFormat: %v", err)
	}
	if !adaptation.IsVideo("a.MOV") || adaptation.IsVideo("a.jpg") || !adaptation.IsImage("a.webp") {
		t.Fatal("extension sniffing mismatch")
	}
}
