package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/example/bunnyvideo/internal/platform/db"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/postgres/*.sql
var postgresMigrations embed.FS

// PostgresStore is the production Store.
type PostgresStore struct {
	db *pgxpool.Pool
}

// OpenPostgres connects to dsn and applies the embedded migrations.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := db.Open(ctx, dsn)
	if err != nil {
		return nil, err
	}
	sub, err := fs.Sub(postgresMigrations, "migrations/postgres")
	if err != nil {
		pool.Close()
		return nil, err
	}
	if err := db.Migrate(ctx, pool, sub); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{db: pool}, nil
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: pool}
}

func (s *PostgresStore) GetVideo(ctx context.Context, id string) (Video, error) {
	v := Video{ID: id}
	err := s.db.QueryRow(ctx,
		`SELECT title, threshold_percent, tracking_enabled, updated_at FROM videos WHERE id=$1`, id,
	).Scan(&v.Title, &v.ThresholdPercent, &v.TrackingEnabled, &v.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Video{}, ErrNotFound
	}
	if err != nil {
		return Video{}, fmt.Errorf("get video: %w", err)
	}
	return v, nil
}

func (s *PostgresStore) UpsertVideo(ctx context.Context, v Video) (Video, bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return Video{}, false, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	prev := Video{ID: v.ID}
	existed := true
	err = tx.QueryRow(ctx,
		`SELECT title, threshold_percent, tracking_enabled, updated_at FROM videos WHERE id=$1 FOR UPDATE`, v.ID,
	).Scan(&prev.Title, &prev.ThresholdPercent, &prev.TrackingEnabled, &prev.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		prev, existed = Video{}, false
	} else if err != nil {
		return Video{}, false, fmt.Errorf("lock video: %w", err)
	}

	if _, err := tx.Exec(ctx, `
INSERT INTO videos (id, title, threshold_percent, tracking_enabled, updated_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET
  title             = EXCLUDED.title,
  threshold_percent = EXCLUDED.threshold_percent,
  tracking_enabled  = EXCLUDED.tracking_enabled,
  updated_at        = EXCLUDED.updated_at`,
		v.ID, v.Title, v.ThresholdPercent, v.TrackingEnabled, v.UpdatedAt,
	); err != nil {
		return Video{}, false, fmt.Errorf("upsert video: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Video{}, false, fmt.Errorf("commit: %w", err)
	}
	return prev, existed, nil
}

func (s *PostgresStore) DeleteVideo(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM videos WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete video: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListVideos(ctx context.Context) ([]Video, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, title, threshold_percent, tracking_enabled, updated_at FROM videos ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}
	defer rows.Close()

	var out []Video
	for rows.Next() {
		var v Video
		if err := rows.Scan(&v.ID, &v.Title, &v.ThresholdPercent, &v.TrackingEnabled, &v.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan video: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetRecord(ctx context.Context, videoID, userID string) (CompletionRecord, error) {
	rec := CompletionRecord{VideoID: videoID, UserID: userID}
	err := s.db.QueryRow(ctx,
		`SELECT satisfied, source, last_modified FROM completion_records WHERE video_id=$1 AND user_id=$2`,
		videoID, userID,
	).Scan(&rec.Satisfied, &rec.Source, &rec.LastModified)
	if errors.Is(err, pgx.ErrNoRows) {
		return CompletionRecord{}, ErrNotFound
	}
	if err != nil {
		return CompletionRecord{}, fmt.Errorf("get record: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) MarkSatisfied(ctx context.Context, videoID, userID string, threshold int, at time.Time) (CompletionRecord, bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return CompletionRecord{}, false, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// FOR SHARE blocks a concurrent UpsertVideo until this commits, and waits
	// for one already in flight, so ResetVideo never misses this record.
	var current int
	err = tx.QueryRow(ctx, `SELECT threshold_percent FROM videos WHERE id = $1 FOR SHARE`, videoID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return CompletionRecord{}, false, ErrNotFound
	}
	if err != nil {
		return CompletionRecord{}, false, fmt.Errorf("lock video: %w", err)
	}
	if current != threshold {
		return CompletionRecord{}, false, ErrThresholdChanged
	}

	q := `
INSERT INTO completion_records (video_id, user_id, satisfied, source, last_modified)
VALUES ($1, $2, TRUE, $3, $4)
ON CONFLICT (video_id, user_id)
DO UPDATE SET
  satisfied     = TRUE,
  source        = EXCLUDED.source,
  last_modified = EXCLUDED.last_modified
WHERE NOT completion_records.satisfied
RETURNING satisfied, source, last_modified`

	rec := CompletionRecord{VideoID: videoID, UserID: userID}
	already := false
	err = tx.QueryRow(ctx, q, videoID, userID, SourceWatch, at).
		Scan(&rec.Satisfied, &rec.Source, &rec.LastModified)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		// WHERE clause blocked the update: the record was already satisfied.
		already = true
		err = tx.QueryRow(ctx,
			`SELECT satisfied, source, last_modified FROM completion_records WHERE video_id = $1 AND user_id = $2`,
			videoID, userID,
		).Scan(&rec.Satisfied, &rec.Source, &rec.LastModified)
		if err != nil {
			return CompletionRecord{}, false, fmt.Errorf("get record: %w", err)
		}
	case err != nil:
		return CompletionRecord{}, false, fmt.Errorf("mark satisfied: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return CompletionRecord{}, false, fmt.Errorf("commit: %w", err)
	}
	return rec, already, nil
}

func (s *PostgresStore) ApplyOverride(ctx context.Context, o CompletionOverride) (CompletionRecord, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return CompletionRecord{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rec := CompletionRecord{VideoID: o.VideoID, UserID: o.UserID}
	err = tx.QueryRow(ctx, `
INSERT INTO completion_records (video_id, user_id, satisfied, source, last_modified)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (video_id, user_id)
DO UPDATE SET
  satisfied     = EXCLUDED.satisfied,
  source        = EXCLUDED.source,
  last_modified = EXCLUDED.last_modified
RETURNING satisfied, source, last_modified`,
		o.VideoID, o.UserID, o.Satisfied, SourceOverride, o.CreatedAt,
	).Scan(&rec.Satisfied, &rec.Source, &rec.LastModified)
	if err != nil {
		return CompletionRecord{}, fmt.Errorf("override record: %w", err)
	}

	if _, err := tx.Exec(ctx, `
INSERT INTO completion_overrides (id, video_id, user_id, satisfied, acting_user, reason, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		o.ID, o.VideoID, o.UserID, o.Satisfied, o.ActingUser, o.Reason, o.CreatedAt,
	); err != nil {
		return CompletionRecord{}, fmt.Errorf("audit override: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return CompletionRecord{}, fmt.Errorf("commit: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) ResetVideo(ctx context.Context, videoID string, at time.Time) (int, error) {
	tag, err := s.db.Exec(ctx, `
UPDATE completion_records SET satisfied = FALSE, source = $2, last_modified = $3
WHERE video_id = $1 AND satisfied`, videoID, SourceReset, at)
	if err != nil {
		return 0, fmt.Errorf("reset video: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) ListOverrides(ctx context.Context, videoID, userID string, limit int) ([]CompletionOverride, error) {
	rows, err := s.db.Query(ctx, `
SELECT id, user_id, satisfied, acting_user, reason, created_at
FROM completion_overrides
WHERE video_id = $1 AND ($2 = '' OR user_id = $2)
ORDER BY created_at DESC, id DESC
LIMIT $3`, videoID, userID, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list overrides: %w", err)
	}
	defer rows.Close()

	var out []CompletionOverride
	for rows.Next() {
		o := CompletionOverride{VideoID: videoID}
		if err := rows.Scan(&o.ID, &o.UserID, &o.Satisfied, &o.ActingUser, &o.Reason, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan override: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListHostComplete(ctx context.Context, after Key, limit int) ([]HostCompletion, error) {
	rows, err := s.db.Query(ctx, `
SELECT video_id, user_id, updated_at FROM host_completions
WHERE (video_id, user_id) > ($1, $2)
ORDER BY video_id, user_id
LIMIT $3`, after.VideoID, after.UserID, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list host completions: %w", err)
	}
	defer rows.Close()

	var out []HostCompletion
	for rows.Next() {
		var h HostCompletion
		if err := rows.Scan(&h.VideoID, &h.UserID, &h.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan host completion: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (s *PostgresStore) MarkHostComplete(ctx context.Context, videoID, userID string, at time.Time) error {
	_, err := s.db.Exec(ctx, `
INSERT INTO host_completions (video_id, user_id, updated_at) VALUES ($1, $2, $3)
ON CONFLICT (video_id, user_id) DO UPDATE SET updated_at = EXCLUDED.updated_at`, videoID, userID, at)
	if err != nil {
		return fmt.Errorf("mark host complete: %w", err)
	}
	return nil
}

func (s *PostgresStore) ClearHost(ctx context.Context, videoID, userID string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM host_completions WHERE video_id=$1 AND user_id=$2`, videoID, userID); err != nil {
		return fmt.Errorf("clear host: %w", err)
	}
	return nil
}

func (s *PostgresStore) ClearHostVideo(ctx context.Context, videoID string) (int, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM host_completions WHERE video_id=$1`, videoID)
	if err != nil {
		return 0, fmt.Errorf("clear host video: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) Ping(ctx context.Context) error { return s.db.Ping(ctx) }

func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}
