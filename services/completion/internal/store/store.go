// Package store persists videos, completion records, the override audit
// trail and the host engine's mirrored completion flags.
//
// Backends: Postgres (DATABASE_URL), SQLite (SQLITE_PATH), or an in-memory
// store for development. See Open.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("store: not found")

// ErrThresholdChanged means the video's threshold no longer matches the one
// the caller evaluated against.
var ErrThresholdChanged = errors.New("store: video threshold changed")

// Source records which path last wrote a completion record.
type Source string

const (
	SourceWatch    Source = "watch"
	SourceOverride Source = "override"
	SourceReset    Source = "reset"
)

type Key struct {
	VideoID string
	UserID  string
}

// Video is the completion configuration of one video activity.
type Video struct {
	ID               string    `json:"id"`
	Title            string    `json:"title,omitempty"`
	ThresholdPercent int       `json:"threshold_percent"`
	TrackingEnabled  bool      `json:"tracking_enabled"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// CompletionRecord is the system of record for one (video, user) pair.
// Only an override or a video reset may move Satisfied back to false.
type CompletionRecord struct {
	VideoID      string    `json:"video_id"`
	UserID       string    `json:"user_id"`
	Satisfied    bool      `json:"satisfied"`
	Source       Source    `json:"source"`
	LastModified time.Time `json:"last_modified"`
}

// CompletionOverride is the audit row of an administrative state change.
type CompletionOverride struct {
	ID         uuid.UUID `json:"id"`
	VideoID    string    `json:"video_id"`
	UserID     string    `json:"user_id"`
	Satisfied  bool      `json:"satisfied"`
	ActingUser string    `json:"acting_user"`
	Reason     string    `json:"reason,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// HostCompletion is a completion flag held by the host engine.
type HostCompletion struct {
	VideoID   string    `json:"video_id"`
	UserID    string    `json:"user_id"`
	UpdatedAt time.Time `json:"updated_at"`
}

type VideoRepository interface {
	GetVideo(ctx context.Context, id string) (Video, error)
	// UpsertVideo stores v and returns the version it replaced; existed is
	// false for a new video.
	UpsertVideo(ctx context.Context, v Video) (prev Video, existed bool, err error)
	// DeleteVideo removes the video with its records and overrides.
	DeleteVideo(ctx context.Context, id string) error
	ListVideos(ctx context.Context) ([]Video, error)
}

type RecordRepository interface {
	GetRecord(ctx context.Context, videoID, userID string) (CompletionRecord, error)
	// MarkSatisfied atomically sets satisfied, provided the video still has
	// threshold; otherwise it returns ErrThresholdChanged, or ErrNotFound for
	// a deleted video. The check and the write hold the video row, so a
	// concurrent threshold change either sees the record and resets it or
	// makes this call fail. already reports that the record was satisfied
	// before the call, in which case nothing changed.
	MarkSatisfied(ctx context.Context, videoID, userID string, threshold int, at time.Time) (rec CompletionRecord, already bool, err error)
	// ApplyOverride writes the record state and its audit row in one transaction.
	ApplyOverride(ctx context.Context, o CompletionOverride) (CompletionRecord, error)
	// ResetVideo marks every satisfied record of the video unsatisfied.
	ResetVideo(ctx context.Context, videoID string, at time.Time) (int, error)
}

type OverrideRepository interface {
	ListOverrides(ctx context.Context, videoID, userID string, limit int) ([]CompletionOverride, error)
}

type HostStateRepository interface {
	// ListHostComplete pages through host flags ordered by (video, user),
	// starting after the given key.
	ListHostComplete(ctx context.Context, after Key, limit int) ([]HostCompletion, error)
	MarkHostComplete(ctx context.Context, videoID, userID string, at time.Time) error
	ClearHost(ctx context.Context, videoID, userID string) error
	ClearHostVideo(ctx context.Context, videoID string) (int, error)
}

type Store interface {
	VideoRepository
	RecordRepository
	OverrideRepository
	HostStateRepository
	Ping(ctx context.Context) error
	Close() error
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return 100
	}
	return limit
}
