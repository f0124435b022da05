// Package adaptation renders source media into platform-ready renditions.
//
// Each Format maps to one immutable Spec (pixel size, aspect label, size
// ceiling, container, quality). Still images are cover-fit and re-encoded in
// process with imaging; video is scaled, letterboxed, and re-encoded through
// ffmpeg. Callers pick the path only by file extension, via Adapt.
//
// The engine never retries. Input problems (unsupported extension, missing
// source, a rendition that cannot fit the size ceiling) are tagged as
// validation or not-found errors; tool crashes are tagged as external tool
// errors so the workflow can decide whether another attempt is worthwhile.
package adaptation
