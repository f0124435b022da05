package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	"herald/internal/queue"
	"herald/internal/services"
)

// Stage names the pipeline step an attempt covers.
type Stage string

const (
	StageAdapt   Stage = "adapt"
	StagePublish Stage = "publish"
)

// Attempt is one row of the ledger.
type Attempt struct {
	ID         int64          `json:"id"`
	PostID     string         `json:"postId"`
	Platform   queue.Platform `json:"platform"`
	PostType   queue.PostType `json:"postType,omitempty"`
	Attempt    int            `json:"attempt"`
	Stage      Stage          `json:"stage"`
	Success    bool           `json:"success"`
	Retryable  bool           `json:"retryable"`
	RemoteID   string         `json:"remoteId,omitempty"`
	URL        string         `json:"url,omitempty"`
	Error      string         `json:"error,omitempty"`
	StartedAt  time.Time      `json:"startedAt"`
	FinishedAt time.Time      `json:"finishedAt"`
}

const attemptsTable = "publish_attempts"

var attemptColumns = []string{
	"id", "post_id", "platform", "post_type", "attempt", "stage", "success",
	"retryable", "remote_id", "url", "error", "started_at", "finished_at",
}

// Store is the SQLite-backed ledger.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates or opens the ledger database at path and applies migrations.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, services.Wrap(services.ErrStore, "history", "open", path, err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, services.Wrap(services.ErrStore, "history", "open", path, err)
	}
	// Serialize writers; the processor is the only one anyway.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, services.Wrap(services.ErrStore, "history", "open", fmt.Sprintf("apply %q", pragma), execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, services.Wrap(services.ErrStore, "history", "migrate", path, err)
	}
	return store, nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record appends an attempt and returns its row id.
func (s *Store) Record(ctx context.Context, a Attempt) (int64, error) {
	if a.FinishedAt.IsZero() {
		a.FinishedAt = time.Now()
	}
	if a.StartedAt.IsZero() {
		a.StartedAt = a.FinishedAt
	}
	query, args, err := sq.Insert(attemptsTable).
		Columns(attemptColumns[1:]...).
		Values(
			a.PostID,
			string(a.Platform),
			string(a.PostType),
			a.Attempt,
			string(a.Stage),
			a.Success,
			a.Retryable,
			nullableString(a.RemoteID),
			nullableString(a.URL),
			nullableString(a.Error),
			a.StartedAt.UTC().Format(time.RFC3339Nano),
			a.FinishedAt.UTC().Format(time.RFC3339Nano),
		).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build insert: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, services.Wrap(services.ErrStore, "history", "record", a.PostID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

// ForPost returns every attempt for postID, oldest first.
func (s *Store) ForPost(ctx context.Context, postID string) ([]Attempt, error) {
	return s.query(ctx, sq.Select(attemptColumns...).
		From(attemptsTable).
		Where(sq.Eq{"post_id": postID}).
		OrderBy("id ASC"))
}

// Recent returns up to limit attempts, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Attempt, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.query(ctx, sq.Select(attemptColumns...).
		From(attemptsTable).
		OrderBy("id DESC").
		Limit(uint64(limit)))
}

func (s *Store) query(ctx context.Context, builder sq.SelectBuilder) ([]Attempt, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, services.Wrap(services.ErrStore, "history", "query", "", err)
	}
	defer rows.Close()

	var attempts []Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, services.Wrap(services.ErrStore, "history", "query", "", err)
	}
	return attempts, nil
}

func scanAttempt(rows *sql.Rows) (Attempt, error) {
	var (
		a                      Attempt
		platform, postType     string
		stage                  string
		remoteID, url, errText sql.NullString
		startedAt, finishedAt  string
	)
	if err := rows.Scan(
		&a.ID, &a.PostID, &platform, &postType, &a.Attempt, &stage, &a.Success,
		&a.Retryable, &remoteID, &url, &errText, &startedAt, &finishedAt,
	); err != nil {
		return Attempt{}, fmt.Errorf("scan attempt: %w", err)
	}
	a.Platform = queue.Platform(platform)
	a.PostType = queue.PostType(postType)
	a.Stage = Stage(stage)
	a.RemoteID = remoteID.String
	a.URL = url.String
	a.Error = errText.String
	a.StartedAt = parseTime(startedAt)
	a.FinishedAt = parseTime(finishedAt)
	return a, nil
}

func parseTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
