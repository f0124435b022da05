// Package cleanup reclaims disk space under the rendition directory.
//
// Renditions are cached per post so a retry does not re-encode. Once a post
// is posted, failed, or rejected its files are no longer needed; Renditions
// removes every file that no live post references and that is older than a
// grace period, so a rendition being written by a running cycle is never
// touched.
package cleanup

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"herald/internal/logging"
)

// Result lists what a cleanup pass removed and what it could not.
type Result struct {
	Removed    []string `json:"removed"`
	FreedBytes int64    `json:"freedBytes"`
	Errors     []Error  `json:"errors,omitempty"`
}

// Error pairs a path with its cleanup error.
type Error struct {
	Path string `json:"path"`
	Err  string `json:"error"`
}

// Options tunes a cleanup pass.
type Options struct {
	// MinAge protects files modified more recently than this.
	MinAge time.Duration
	// DryRun reports what would be removed without removing it.
	DryRun bool
	Now    func() time.Time
}

// Renditions walks root and removes unreferenced files older than
// opts.MinAge. keep holds absolute rendition paths still in use. Empty
// format directories left behind are removed too.
func Renditions(ctx context.Context, root string, keep map[string]struct{}, opts Options, logger *slog.Logger) Result {
	var result Result
	root = strings.TrimSpace(root)
	if root == "" {
		return result
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	cutoff := now().Add(-opts.MinAge)

	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if path != root {
				result.Errors = append(result.Errors, Error{Path: path, Err: err.Error()})
			}
			return nil
		}
		if entry.IsDir() {
			return nil
		}
		if _, ok := keep[filepath.Clean(path)]; ok {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			result.Errors = append(result.Errors, Error{Path: path, Err: err.Error()})
			return nil
		}
		if info.ModTime().After(cutoff) {
			return nil
		}
		if !opts.DryRun {
			if err := os.Remove(path); err != nil {
				result.Errors = append(result.Errors, Error{Path: path, Err: err.Error()})
				logging.WarnWithContext(logger, "failed to remove rendition", "rendition_cleanup_failed",
					logging.String("path", path),
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check paths.adapted_dir permissions"),
					logging.String(logging.FieldImpact, "disk space not reclaimed"),
				)
				return nil
			}
		}
		result.Removed = append(result.Removed, path)
		result.FreedBytes += info.Size()
		return nil
	})
	if err != nil && ctx.Err() == nil {
		result.Errors = append(result.Errors, Error{Path: root, Err: err.Error()})
	}

	if !opts.DryRun {
		removeEmptyDirs(root)
	}
	if len(result.Removed) > 0 {
		logger.Info("renditions cleaned",
			logging.String(logging.FieldEventType, "rendition_cleanup"),
			logging.Int("files", len(result.Removed)),
			logging.Int64("freed_bytes", result.FreedBytes),
			logging.Bool("dry_run", opts.DryRun),
		)
	}
	return result
}

// removeEmptyDirs drops empty direct subdirectories of root.
func removeEmptyDirs(root string) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(root, entry.Name())
		if children, err := os.ReadDir(dir); err == nil && len(children) == 0 {
			_ = os.Remove(dir)
		}
	}
}

// Usage describes one format directory under the rendition root.
type Usage struct {
	Name    string    `json:"name"`
	Path    string    `json:"path"`
	Files   int       `json:"files"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"modTime"`
}

// ListUsage returns per-directory file counts and sizes under root.
func ListUsage(root string) ([]Usage, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var usage []Usage
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		dir := filepath.Join(root, entry.Name())
		files, size := dirSize(dir)
		usage = append(usage, Usage{
			Name:    entry.Name(),
			Path:    dir,
			Files:   files,
			Size:    size,
			ModTime: info.ModTime(),
		})
	}
	return usage, nil
}

func dirSize(path string) (int, int64) {
	var files int
	var size int64
	_ = filepath.WalkDir(path, func(_ string, entry fs.DirEntry, err error) error {
		if err != nil || entry.IsDir() {
			return nil
		}
		if info, err := entry.Info(); err == nil {
			files++
			size += info.Size()
		}
		return nil
	})
	return files, size
}
