package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"herald/internal/config"
	"herald/internal/fileutil"
	"herald/internal/logging"
	"herald/internal/services"
)

// Store persists the whole post collection as one JSON document.
//
// Load and Save always move the full collection. Callers serialize access;
// the Store itself holds no cached state.
type Store struct {
	path   string
	logger *slog.Logger
	now    func() time.Time
}

// Open prepares the directories in cfg and returns a store for the queue file.
func Open(cfg *config.Config, logger *slog.Logger) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return NewStore(cfg.Paths.QueueFile, logger), nil
}

// NewStore returns a store backed by the JSON file at path.
func NewStore(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Store{
		path:   path,
		logger: logger.With(logging.String(logging.FieldComponent, "queue")),
		now:    time.Now,
	}
}

// Path returns the queue file location.
func (s *Store) Path() string {
	return s.path
}

// Load reads the collection. A missing or empty file yields an empty queue.
// An unparseable file is moved aside and also yields an empty queue so the
// processor keeps running; the quarantined copy is kept for inspection.
// Read errors other than absence are returned tagged with services.ErrStore.
func (s *Store) Load(ctx context.Context) ([]Post, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []Post{}, nil
		}
		return nil, services.Wrap(services.ErrStore, "queue", "load", s.path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return []Post{}, nil
	}

	var posts []Post
	if err := json.Unmarshal(data, &posts); err != nil {
		quarantined, qerr := s.quarantine()
		if qerr != nil {
			return nil, services.Wrap(services.ErrStore, "queue", "quarantine", s.path, qerr)
		}
		logging.WarnWithContext(s.logger, "queue file unreadable; starting from empty queue", "queue_quarantined",
			logging.String("path", s.path),
			logging.String("quarantined_to", quarantined),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "inspect the quarantined file and restore posts manually"),
			logging.String(logging.FieldImpact, "queued posts are not visible until restored"),
		)
		return []Post{}, nil
	}
	if posts == nil {
		posts = []Post{}
	}
	return posts, nil
}

// Save replaces the file with the given collection atomically.
func (s *Store) Save(ctx context.Context, posts []Post) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if posts == nil {
		posts = []Post{}
	}
	data, err := json.MarshalIndent(posts, "", "  ")
	if err != nil {
		return services.Wrap(services.ErrStore, "queue", "encode", "", err)
	}
	data = append(data, '\n')
	if err := fileutil.WriteFileAtomic(s.path, data, 0o644); err != nil {
		return services.Wrap(services.ErrStore, "queue", "save", s.path, err)
	}
	return nil
}

func (s *Store) quarantine() (string, error) {
	target := fmt.Sprintf("%s.corrupt-%s", s.path, s.now().UTC().Format("20060102T150405Z"))
	if err := os.Rename(s.path, target); err != nil {
		return "", err
	}
	return target, nil
}
