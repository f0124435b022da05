package adaptation

import (
	"fmt"

	"herald/internal/services"
)

var (
	// ErrUnsupportedFormat is returned for source extensions the engine cannot read.
	ErrUnsupportedFormat = fmt.Errorf("%w: unsupported source format", services.ErrValidation)
	// ErrUnknownFormat is returned for format names missing from the format table.
	ErrUnknownFormat = fmt.Errorf("%w: unknown platform format", services.ErrValidation)
	// ErrSourceMissing is returned when the source file does not exist.
	ErrSourceMissing = fmt.Errorf("%w: source media", services.ErrNotFound)
	// ErrRenditionTooLarge is returned when no encoding fits the size ceiling.
	ErrRenditionTooLarge = fmt.Errorf("%w: rendition exceeds size limit", services.ErrValidation)
)
