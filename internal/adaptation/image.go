package adaptation

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // registers the webp decoder

	"herald/internal/fileutil"
	"herald/internal/services"
)

// adaptImage cover-fits the source to the spec box and encodes it as JPEG,
// lowering quality in steps of 10 until the size ceiling is met.
func (e *Engine) adaptImage(ctx context.Context, source, output string, spec Spec) (Rendition, error) {
	img, err := imaging.Open(source, imaging.AutoOrientation(true))
	if err != nil {
		return Rendition{}, services.Wrap(services.ErrValidation, "adaptation", "decode image", source, err)
	}
	filled := imaging.Fill(img, spec.Width, spec.Height, imaging.Center, imaging.Lanczos)

	minQuality := e.opts.MinImageQuality
	if minQuality > spec.Quality {
		minQuality = spec.Quality
	}
	quality := spec.Quality
	var buf bytes.Buffer
	for {
		if err := ctx.Err(); err != nil {
			return Rendition{}, err
		}
		buf.Reset()
		if err := imaging.Encode(&buf, filled, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
			return Rendition{}, services.Wrap(services.ErrTransient, "adaptation", "encode image", source, err)
		}
		if int64(buf.Len()) <= spec.MaxBytes() {
			break
		}
		if quality <= minQuality {
			return Rendition{}, fmt.Errorf("%w: %d bytes at quality %d, limit %d MB", ErrRenditionTooLarge, buf.Len(), quality, spec.MaxSizeMB)
		}
		quality = max(quality-10, minQuality)
	}

	if err := fileutil.WriteFileAtomic(output, buf.Bytes(), 0o644); err != nil {
		return Rendition{}, services.Wrap(services.ErrTransient, "adaptation", "write rendition", output, err)
	}
	return Rendition{
		Path:      output,
		Width:     spec.Width,
		Height:    spec.Height,
		SizeBytes: int64(buf.Len()),
		Quality:   quality,
	}, nil
}

func imageDimensions(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}
