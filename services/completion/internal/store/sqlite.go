package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/example/bunnyvideo/internal/platform/db"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed migrations/sqlite/*.sql
var sqliteMigrations embed.FS

// SQLiteStore is a single-node Store for small installations and tests.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and applies the
// embedded migrations.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	dsn := "file:" + path + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := migrateSQLite(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}
	return &SQLiteStore{db: conn}, nil
}

func migrateSQLite(ctx context.Context, conn *sql.DB) error {
	if _, err := conn.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
  filename      TEXT PRIMARY KEY,
  applied_at_ms INTEGER NOT NULL
)`); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}
	sub, err := fs.Sub(sqliteMigrations, "migrations/sqlite")
	if err != nil {
		return err
	}
	names, err := db.MigrationFiles(sub)
	if err != nil {
		return err
	}
	for _, name := range names {
		body, err := fs.ReadFile(sub, name)
		if err != nil {
			return err
		}
		if err := applySQLite(ctx, conn, name, string(body)); err != nil {
			return fmt.Errorf("migration %s: %w", name, err)
		}
	}
	return nil
}

func applySQLite(ctx context.Context, conn *sql.DB, name, body string) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (filename, applied_at_ms) VALUES (?, ?) ON CONFLICT DO NOTHING`,
		name, time.Now().UnixMilli())
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil
	}
	for _, stmt := range strings.Split(body, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetVideo(ctx context.Context, id string) (Video, error) {
	v := Video{ID: id}
	var ms int64
	err := s.db.QueryRowContext(ctx,
		`SELECT title, threshold_percent, tracking_enabled, updated_at_ms FROM videos WHERE id = ?`, id,
	).Scan(&v.Title, &v.ThresholdPercent, &v.TrackingEnabled, &ms)
	if errors.Is(err, sql.ErrNoRows) {
		return Video{}, ErrNotFound
	}
	if err != nil {
		return Video{}, fmt.Errorf("get video: %w", err)
	}
	v.UpdatedAt = fromMillis(ms)
	return v, nil
}

func (s *SQLiteStore) UpsertVideo(ctx context.Context, v Video) (Video, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Video{}, false, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	prev := Video{ID: v.ID}
	existed := true
	var ms int64
	err = tx.QueryRowContext(ctx,
		`SELECT title, threshold_percent, tracking_enabled, updated_at_ms FROM videos WHERE id = ?`, v.ID,
	).Scan(&prev.Title, &prev.ThresholdPercent, &prev.TrackingEnabled, &ms)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		prev, existed = Video{}, false
	case err != nil:
		return Video{}, false, fmt.Errorf("read video: %w", err)
	default:
		prev.UpdatedAt = fromMillis(ms)
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO videos (id, title, threshold_percent, tracking_enabled, updated_at_ms)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
  title             = excluded.title,
  threshold_percent = excluded.threshold_percent,
  tracking_enabled  = excluded.tracking_enabled,
  updated_at_ms     = excluded.updated_at_ms`,
		v.ID, v.Title, v.ThresholdPercent, v.TrackingEnabled, v.UpdatedAt.UnixMilli(),
	); err != nil {
		return Video{}, false, fmt.Errorf("upsert video: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Video{}, false, fmt.Errorf("commit: %w", err)
	}
	return prev, existed, nil
}

func (s *SQLiteStore) DeleteVideo(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM videos WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete video: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) ListVideos(ctx context.Context) ([]Video, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, threshold_percent, tracking_enabled, updated_at_ms FROM videos ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}
	defer rows.Close()

	var out []Video
	for rows.Next() {
		var v Video
		var ms int64
		if err := rows.Scan(&v.ID, &v.Title, &v.ThresholdPercent, &v.TrackingEnabled, &ms); err != nil {
			return nil, fmt.Errorf("scan video: %w", err)
		}
		v.UpdatedAt = fromMillis(ms)
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetRecord(ctx context.Context, videoID, userID string) (CompletionRecord, error) {
	return getRecord(ctx, s.db, videoID, userID)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getRecord(ctx context.Context, q queryer, videoID, userID string) (CompletionRecord, error) {
	rec := CompletionRecord{VideoID: videoID, UserID: userID}
	var ms int64
	err := q.QueryRowContext(ctx,
		`SELECT satisfied, source, last_modified_ms FROM completion_records WHERE video_id = ? AND user_id = ?`,
		videoID, userID,
	).Scan(&rec.Satisfied, &rec.Source, &ms)
	if errors.Is(err, sql.ErrNoRows) {
		return CompletionRecord{}, ErrNotFound
	}
	if err != nil {
		return CompletionRecord{}, fmt.Errorf("get record: %w", err)
	}
	rec.LastModified = fromMillis(ms)
	return rec, nil
}

func (s *SQLiteStore) MarkSatisfied(ctx context.Context, videoID, userID string, threshold int, at time.Time) (CompletionRecord, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return CompletionRecord{}, false, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// The single connection serializes this transaction against UpsertVideo.
	var current int
	err = tx.QueryRowContext(ctx, `SELECT threshold_percent FROM videos WHERE id = ?`, videoID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return CompletionRecord{}, false, ErrNotFound
	}
	if err != nil {
		return CompletionRecord{}, false, fmt.Errorf("read video: %w", err)
	}
	if current != threshold {
		return CompletionRecord{}, false, ErrThresholdChanged
	}

	q := `
INSERT INTO completion_records (video_id, user_id, satisfied, source, last_modified_ms)
VALUES (?, ?, 1, ?, ?)
ON CONFLICT (video_id, user_id)
DO UPDATE SET
  satisfied        = 1,
  source           = excluded.source,
  last_modified_ms = excluded.last_modified_ms
WHERE NOT completion_records.satisfied
RETURNING satisfied, source, last_modified_ms`

	rec := CompletionRecord{VideoID: videoID, UserID: userID}
	var ms int64
	err = tx.QueryRowContext(ctx, q, videoID, userID, SourceWatch, at.UnixMilli()).
		Scan(&rec.Satisfied, &rec.Source, &ms)
	already := false
	switch {
	case errors.Is(err, sql.ErrNoRows):
		already = true
		if rec, err = getRecord(ctx, tx, videoID, userID); err != nil {
			return CompletionRecord{}, false, err
		}
	case err != nil:
		return CompletionRecord{}, false, fmt.Errorf("mark satisfied: %w", err)
	default:
		rec.LastModified = fromMillis(ms)
	}
	if err := tx.Commit(); err != nil {
		return CompletionRecord{}, false, fmt.Errorf("commit: %w", err)
	}
	return rec, already, nil
}

func (s *SQLiteStore) ApplyOverride(ctx context.Context, o CompletionOverride) (CompletionRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return CompletionRecord{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	at := o.CreatedAt.UnixMilli()
	if _, err := tx.ExecContext(ctx, `
INSERT INTO completion_records (video_id, user_id, satisfied, source, last_modified_ms)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (video_id, user_id)
DO UPDATE SET
  satisfied        = excluded.satisfied,
  source           = excluded.source,
  last_modified_ms = excluded.last_modified_ms`,
		o.VideoID, o.UserID, o.Satisfied, SourceOverride, at,
	); err != nil {
		return CompletionRecord{}, fmt.Errorf("override record: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO completion_overrides (id, video_id, user_id, satisfied, acting_user, reason, created_at_ms)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		o.ID.String(), o.VideoID, o.UserID, o.Satisfied, o.ActingUser, o.Reason, at,
	); err != nil {
		return CompletionRecord{}, fmt.Errorf("audit override: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return CompletionRecord{}, fmt.Errorf("commit: %w", err)
	}
	return CompletionRecord{
		VideoID:      o.VideoID,
		UserID:       o.UserID,
		Satisfied:    o.Satisfied,
		Source:       SourceOverride,
		LastModified: fromMillis(at),
	}, nil
}

func (s *SQLiteStore) ResetVideo(ctx context.Context, videoID string, at time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
UPDATE completion_records SET satisfied = 0, source = ?, last_modified_ms = ?
WHERE video_id = ? AND satisfied`, SourceReset, at.UnixMilli(), videoID)
	if err != nil {
		return 0, fmt.Errorf("reset video: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *SQLiteStore) ListOverrides(ctx context.Context, videoID, userID string, limit int) ([]CompletionOverride, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, user_id, satisfied, acting_user, reason, created_at_ms
FROM completion_overrides
WHERE video_id = ? AND (? = '' OR user_id = ?)
ORDER BY created_at_ms DESC, rowid DESC
LIMIT ?`, videoID, userID, userID, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list overrides: %w", err)
	}
	defer rows.Close()

	var out []CompletionOverride
	for rows.Next() {
		o := CompletionOverride{VideoID: videoID}
		var id string
		var ms int64
		if err := rows.Scan(&id, &o.UserID, &o.Satisfied, &o.ActingUser, &o.Reason, &ms); err != nil {
			return nil, fmt.Errorf("scan override: %w", err)
		}
		if o.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("override id: %w", err)
		}
		o.CreatedAt = fromMillis(ms)
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ListHostComplete(ctx context.Context, after Key, limit int) ([]HostCompletion, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT video_id, user_id, updated_at_ms FROM host_completions
WHERE video_id > ? OR (video_id = ? AND user_id > ?)
ORDER BY video_id, user_id
LIMIT ?`, after.VideoID, after.VideoID, after.UserID, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list host completions: %w", err)
	}
	defer rows.Close()

	var out []HostCompletion
	for rows.Next() {
		var h HostCompletion
		var ms int64
		if err := rows.Scan(&h.VideoID, &h.UserID, &ms); err != nil {
			return nil, fmt.Errorf("scan host completion: %w", err)
		}
		h.UpdatedAt = fromMillis(ms)
		out = append(out, h)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) MarkHostComplete(ctx context.Context, videoID, userID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO host_completions (video_id, user_id, updated_at_ms) VALUES (?, ?, ?)
ON CONFLICT (video_id, user_id) DO UPDATE SET updated_at_ms = excluded.updated_at_ms`,
		videoID, userID, at.UnixMilli())
	if err != nil {
		return fmt.Errorf("mark host complete: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ClearHost(ctx context.Context, videoID, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM host_completions WHERE video_id = ? AND user_id = ?`, videoID, userID); err != nil {
		return fmt.Errorf("clear host: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ClearHostVideo(ctx context.Context, videoID string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM host_completions WHERE video_id = ?`, videoID)
	if err != nil {
		return 0, fmt.Errorf("clear host video: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLiteStore) Close() error { return s.db.Close() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }
