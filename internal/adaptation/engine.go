package adaptation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"herald/internal/config"
	"herald/internal/logging"
	"herald/internal/services"
)

// CommandRunner executes an external binary and returns its stdout.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// Options carries encoder settings.
type Options struct {
	FFmpegBinary    string
	FFprobeBinary   string
	VideoCRF        int
	VideoPreset     string
	AudioBitrate    string
	MinImageQuality int
	Timeout         time.Duration
}

// OptionsFromConfig maps the adaptation config section onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		FFmpegBinary:    cfg.Adaptation.FFmpegBinary,
		FFprobeBinary:   cfg.Adaptation.FFprobeBinary,
		VideoCRF:        cfg.Adaptation.VideoCRF,
		VideoPreset:     cfg.Adaptation.VideoPreset,
		AudioBitrate:    cfg.Adaptation.AudioBitrate,
		MinImageQuality: cfg.Adaptation.MinImageQuality,
		Timeout:         time.Duration(cfg.Adaptation.TimeoutSeconds) * time.Second,
	}
}

func (o *Options) applyDefaults() {
	if strings.TrimSpace(o.FFmpegBinary) == "" {
		o.FFmpegBinary = "ffmpeg"
	}
	if strings.TrimSpace(o.FFprobeBinary) == "" {
		o.FFprobeBinary = "ffprobe"
	}
	if o.VideoCRF <= 0 {
		o.VideoCRF = 23
	}
	if strings.TrimSpace(o.VideoPreset) == "" {
		o.VideoPreset = "fast"
	}
	if strings.TrimSpace(o.AudioBitrate) == "" {
		o.AudioBitrate = "128k"
	}
	if o.MinImageQuality <= 0 {
		o.MinImageQuality = 40
	}
}

// Rendition describes one adapted output file.
type Rendition struct {
	Source    string `json:"source"`
	Path      string `json:"path"`
	Format    Format `json:"format"`
	Container string `json:"container"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	SizeBytes int64  `json:"size_bytes"`
	Quality   int    `json:"quality,omitempty"`
	// Video only, from probing the output.
	Codec           string  `json:"codec,omitempty"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
	AudioStreams    int     `json:"audio_streams,omitempty"`
}

// Engine adapts media according to the format table.
type Engine struct {
	opts   Options
	run    CommandRunner
	logger *slog.Logger
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithCommandRunner injects a custom command runner (primarily for tests).
func WithCommandRunner(r CommandRunner) EngineOption {
	return func(e *Engine) {
		if r != nil {
			e.run = r
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine constructs an Engine.
func NewEngine(opts Options, engineOpts ...EngineOption) *Engine {
	opts.applyDefaults()
	e := &Engine{
		opts:   opts,
		run:    defaultCommandRunner,
		logger: logging.NewNop(),
	}
	for _, opt := range engineOpts {
		opt(e)
	}
	e.logger = logging.NewComponentLogger(e.logger, "adaptation")
	return e
}

// Adapt renders source into outputDir according to format's spec.
//
// The output is named <stem>-<format>.<container>. Unsupported extensions and
// missing sources fail before any decoding or transcoding starts.
func (e *Engine) Adapt(ctx context.Context, source string, format Format, outputDir string) (Rendition, error) {
	spec, ok := SpecFor(format)
	if !ok {
		return Rendition{}, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	kind := KindOf(source)
	if kind == KindUnknown {
		return Rendition{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(source))
	}
	if _, err := os.Stat(source); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Rendition{}, fmt.Errorf("%w: %s", ErrSourceMissing, source)
		}
		return Rendition{}, services.Wrap(services.ErrTransient, "adaptation", "stat source", source, err)
	}
	if err := ctx.Err(); err != nil {
		return Rendition{}, err
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return Rendition{}, services.Wrap(services.ErrTransient, "adaptation", "create output dir", outputDir, err)
	}

	container := outputContainer(kind)
	stem := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	output := filepath.Join(outputDir, fmt.Sprintf("%s-%s.%s", stem, format, container))

	started := time.Now()
	var (
		rendition Rendition
		err       error
	)
	switch kind {
	case KindImage:
		rendition, err = e.adaptImage(ctx, source, output, spec)
	case KindVideo:
		rendition, err = e.adaptVideo(ctx, source, output, spec)
	}
	if err != nil {
		return Rendition{}, err
	}
	rendition.Source = source
	rendition.Format = format
	rendition.Container = container

	e.logger.Debug("rendition written",
		logging.String(logging.FieldFormat, string(format)),
		logging.String("kind", kind.String()),
		logging.String("path", rendition.Path),
		logging.Int64("size_bytes", rendition.SizeBytes),
		logging.Duration("elapsed", time.Since(started)),
	)
	return rendition, nil
}

// NeedsAdaptation reports whether path must be adapted before it satisfies
// format. Video always needs adaptation since its dimensions are not probed
// here. Any error while checking also answers true.
func (e *Engine) NeedsAdaptation(path string, format Format) bool {
	spec, ok := SpecFor(format)
	if !ok {
		return true
	}
	if !containerMatches(spec.Container, path) {
		return true
	}
	switch KindOf(path) {
	case KindImage:
		width, height, err := imageDimensions(path)
		if err != nil {
			return true
		}
		return width != spec.Width || height != spec.Height
	default:
		return true
	}
}

// AdaptForAllPlatforms renders source once per format, each into its own
// subdirectory of outputRoot. The first failure aborts the fan-out.
func (e *Engine) AdaptForAllPlatforms(ctx context.Context, source, outputRoot string) (map[Format]Rendition, error) {
	results := make(map[Format]Rendition, len(formatOrder))
	for _, format := range formatOrder {
		rendition, err := e.Adapt(ctx, source, format, filepath.Join(outputRoot, string(format)))
		if err != nil {
			return nil, fmt.Errorf("adapt %s: %w", format, err)
		}
		results[format] = rendition
	}
	return results, nil
}

func defaultCommandRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return stdout.Bytes(), fmt.Errorf("%w: %s", err, tail(stderr.String(), 512))
	}
	return stdout.Bytes(), nil
}

func tail(s string, limit int) string {
	s = strings.TrimSpace(s)
	if len(s) <= limit {
		return s
	}
	return "..." + s[len(s)-limit:]
}
