package adaptation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"herald/internal/logging"
	"herald/internal/media/ffprobe"
	"herald/internal/services"
)

// adaptVideo scales the source to fit the spec box, pads to exact size, and
// re-encodes as H.264/AAC mp4.
func (e *Engine) adaptVideo(ctx context.Context, source, output string, spec Spec) (Rendition, error) {
	if e.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
	}

	if _, err := e.run(ctx, e.opts.FFmpegBinary, ffmpegArgs(source, output, spec, e.opts)...); err != nil {
		_ = os.Remove(output)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Rendition{}, services.Wrap(services.ErrTimeout, "adaptation", "ffmpeg", filepath.Base(source), err)
		}
		return Rendition{}, services.Wrap(services.ErrExternalTool, "adaptation", "ffmpeg", filepath.Base(source), err)
	}

	info, err := os.Stat(output)
	if err != nil {
		return Rendition{}, services.Wrap(services.ErrExternalTool, "adaptation", "ffmpeg", "no output produced", err)
	}
	if info.Size() > spec.MaxBytes() {
		_ = os.Remove(output)
		return Rendition{}, fmt.Errorf("%w: %d bytes, limit %d MB", ErrRenditionTooLarge, info.Size(), spec.MaxSizeMB)
	}

	rendition := Rendition{
		Path:      output,
		Width:     spec.Width,
		Height:    spec.Height,
		SizeBytes: info.Size(),
	}
	probe, err := e.probe(ctx, output)
	if err != nil {
		logging.WarnWithContext(e.logger, "ffprobe failed; assuming spec dimensions", "ffprobe_failed",
			logging.String("path", output),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check adaptation.ffprobe_binary"),
			logging.String(logging.FieldImpact, "rendition dimensions are not verified"),
		)
		return rendition, nil
	}

	rendition.Width, rendition.Height, _ = probe.Dimensions()
	rendition.Codec = probe.VideoCodec()
	if !strings.EqualFold(rendition.Codec, "h264") {
		_ = os.Remove(output)
		return Rendition{}, services.Wrap(services.ErrExternalTool, "adaptation", "ffmpeg", filepath.Base(source),
			fmt.Errorf("rendition codec is %q, platforms need h264", rendition.Codec))
	}
	if d := probe.DurationSeconds(); d > 0 && !math.IsNaN(d) {
		rendition.DurationSeconds = d
	}
	rendition.AudioStreams = probe.AudioStreamCount()
	if rendition.AudioStreams == 0 {
		e.logger.Debug("rendition has no audio track", logging.String("path", output))
	}
	return rendition, nil
}

func (e *Engine) probe(ctx context.Context, path string) (ffprobe.Result, error) {
	out, err := e.run(ctx, e.opts.FFprobeBinary, ffprobe.Args(path)...)
	if err != nil {
		return ffprobe.Result{}, err
	}
	result, err := ffprobe.Parse(out)
	if err != nil {
		return ffprobe.Result{}, err
	}
	if _, _, ok := result.Dimensions(); !ok {
		return ffprobe.Result{}, errors.New("no video stream")
	}
	return result, nil
}

func ffmpegArgs(source, output string, spec Spec, opts Options) []string {
	filter := fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2",
		spec.Width, spec.Height, spec.Width, spec.Height)
	return []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-i", source,
		"-vf", filter,
		"-c:v", "libx264",
		"-crf", strconv.Itoa(opts.VideoCRF),
		"-preset", opts.VideoPreset,
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-b:a", opts.AudioBitrate,
		"-movflags", "+faststart",
		output,
	}
}
