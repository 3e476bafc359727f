// Package authority is the single source of truth for whether a learner
// has satisfied a video's watch requirement.
//
// Records only move to satisfied through RecordSatisfied. Moving back
// requires ForceState (audited) or a threshold change (ConfigureVideo).
// Every derived copy downstream is dropped through Invalidator whenever a
// record changes; the authority never reads those copies.
package authority

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/bunnyvideo/internal/platform/auth"
	"github.com/example/bunnyvideo/internal/platform/events"
	"github.com/example/bunnyvideo/services/completion/internal/store"
)

const maxIDLen = 255

// Repository is the part of the store the authority writes through.
type Repository interface {
	store.VideoRepository
	store.RecordRepository
	store.OverrideRepository
}

// Invalidator drops derived completion state for a key or a whole video.
type Invalidator interface {
	Invalidate(ctx context.Context, videoID, userID string) error
	InvalidateVideo(ctx context.Context, videoID string) error
}

// ExternalState is a completion flag held outside the authority that may
// drift from the records.
type ExternalState interface {
	ListComplete(ctx context.Context, after store.Key, limit int) ([]store.Key, error)
	Revert(ctx context.Context, videoID, userID string) error
}

type Options struct {
	Repo        Repository
	Invalidator Invalidator
	External    ExternalState
	Events      *events.Publisher
	Logger      *zap.Logger
	Now         func() time.Time
	// ReconcileBatch is the page size of a drift pass. Defaults to 200.
	ReconcileBatch int
}

type Authority struct {
	repo     Repository
	inv      Invalidator
	external ExternalState
	events   *events.Publisher
	log      *zap.Logger
	now      func() time.Time
	batch    int
	locks    keyLocks
}

func New(opts Options) *Authority {
	a := &Authority{
		repo:     opts.Repo,
		inv:      opts.Invalidator,
		external: opts.External,
		events:   opts.Events,
		log:      opts.Logger,
		now:      opts.Now,
		batch:    opts.ReconcileBatch,
	}
	if a.log == nil {
		a.log = zap.NewNop()
	}
	if a.now == nil {
		a.now = func() time.Time { return time.Now().UTC() }
	}
	if a.inv == nil {
		a.inv = noopInvalidator{}
	}
	if a.batch <= 0 {
		a.batch = 200
	}
	return a
}

// Actor is the authenticated caller of an administrative operation.
type Actor struct {
	UserID string
	Role   string
}

// Outcome is the result of RecordSatisfied.
type Outcome struct {
	Record          store.CompletionRecord
	AlreadyComplete bool
	// NoRequirement is set when the video's threshold is zero; nothing is
	// stored because the requirement is vacuously met.
	NoRequirement bool
}

// RecordSatisfied marks (video, user) satisfied. Repeating it is harmless:
// the second call reports AlreadyComplete and changes nothing.
func (a *Authority) RecordSatisfied(ctx context.Context, videoID, userID string) (Outcome, error) {
	if err := validateKey(videoID, userID); err != nil {
		return Outcome{}, err
	}
	unlock := a.locks.lockPair(videoID, userID)
	defer unlock()

	v, err := a.video(ctx, videoID)
	if err != nil {
		return Outcome{}, err
	}
	if v.ThresholdPercent == 0 {
		return Outcome{NoRequirement: true}, nil
	}
	if !v.TrackingEnabled {
		return Outcome{}, errNotEnabled()
	}

	rec, already, err := a.repo.MarkSatisfied(ctx, videoID, userID, v.ThresholdPercent, a.now())
	switch {
	case errors.Is(err, store.ErrThresholdChanged):
		// Another instance changed the requirement since v was read; the
		// signal was earned against the old one.
		a.log.Info("signal dropped after threshold change", zap.String("video_id", videoID), zap.String("user_id", userID))
		return Outcome{}, errThresholdChanged()
	case errors.Is(err, store.ErrNotFound):
		return Outcome{}, errVideoNotFound()
	case err != nil:
		a.log.Error("mark satisfied failed", zap.String("video_id", videoID), zap.String("user_id", userID), zap.Error(err))
		return Outcome{}, errStore()
	}
	if already {
		return Outcome{Record: rec, AlreadyComplete: true}, nil
	}

	// The record is durable at this point; a stale cached "unsatisfied"
	// only delays the host, so a failed invalidation is logged, not returned.
	if err := a.inv.Invalidate(ctx, videoID, userID); err != nil {
		a.log.Warn("invalidate after satisfied failed", zap.String("video_id", videoID), zap.String("user_id", userID), zap.Error(err))
	}
	a.events.Publish(events.SubjectSatisfied, videoID, userID, map[string]any{
		"threshold_percent": v.ThresholdPercent,
	})
	a.log.Info("completion satisfied", zap.String("video_id", videoID), zap.String("user_id", userID))
	return Outcome{Record: rec}, nil
}

// IsSatisfied answers from the records only. An unknown video or a missing
// record is false; a zero threshold is always true.
func (a *Authority) IsSatisfied(ctx context.Context, videoID, userID string) (bool, error) {
	if err := validateKey(videoID, userID); err != nil {
		return false, err
	}
	return a.isSatisfied(ctx, videoID, userID)
}

func (a *Authority) isSatisfied(ctx context.Context, videoID, userID string) (bool, error) {
	v, err := a.repo.GetVideo(ctx, videoID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, errStore()
	}
	if v.ThresholdPercent == 0 {
		return true, nil
	}
	rec, err := a.repo.GetRecord(ctx, videoID, userID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, errStore()
	}
	return rec.Satisfied, nil
}

type Status struct {
	VideoID          string       `json:"video_id"`
	UserID           string       `json:"user_id"`
	Satisfied        bool         `json:"satisfied"`
	ThresholdPercent int          `json:"threshold_percent"`
	TrackingEnabled  bool         `json:"tracking_enabled"`
	Source           store.Source `json:"source,omitempty"`
	LastModified     *time.Time   `json:"last_modified,omitempty"`
}

// Status is IsSatisfied plus the context a learner-facing view needs.
func (a *Authority) Status(ctx context.Context, videoID, userID string) (Status, error) {
	if err := validateKey(videoID, userID); err != nil {
		return Status{}, err
	}
	v, err := a.video(ctx, videoID)
	if err != nil {
		return Status{}, err
	}
	st := Status{
		VideoID:          videoID,
		UserID:           userID,
		ThresholdPercent: v.ThresholdPercent,
		TrackingEnabled:  v.TrackingEnabled,
		Satisfied:        v.ThresholdPercent == 0,
	}
	rec, err := a.repo.GetRecord(ctx, videoID, userID)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return Status{}, errStore()
	default:
		st.Satisfied = st.Satisfied || rec.Satisfied
		st.Source = rec.Source
		st.LastModified = &rec.LastModified
	}
	return st, nil
}

// Override is an administrative state change.
type Override struct {
	VideoID   string
	UserID    string
	Satisfied bool
	Reason    string
	Actor     Actor
}

// ForceState sets the record regardless of watch evidence, audits it, and
// invalidates every downstream copy before returning. An invalidation
// failure is returned: the record is written, and retrying is safe.
func (a *Authority) ForceState(ctx context.Context, o Override) (store.CompletionRecord, error) {
	if !auth.RoleHas(o.Actor.Role, auth.CapOverrideCompletion) || strings.TrimSpace(o.Actor.UserID) == "" {
		return store.CompletionRecord{}, errPermissionDenied("overriding completion requires " + string(auth.CapOverrideCompletion))
	}
	if err := validateKey(o.VideoID, o.UserID); err != nil {
		return store.CompletionRecord{}, err
	}
	unlock := a.locks.lockPair(o.VideoID, o.UserID)
	defer unlock()

	if _, err := a.video(ctx, o.VideoID); err != nil {
		return store.CompletionRecord{}, err
	}
	rec, err := a.repo.ApplyOverride(ctx, store.CompletionOverride{
		ID:         uuid.New(),
		VideoID:    o.VideoID,
		UserID:     o.UserID,
		Satisfied:  o.Satisfied,
		ActingUser: o.Actor.UserID,
		Reason:     strings.TrimSpace(o.Reason),
		CreatedAt:  a.now(),
	})
	if err != nil {
		a.log.Error("override failed", zap.String("video_id", o.VideoID), zap.String("user_id", o.UserID), zap.Error(err))
		return store.CompletionRecord{}, errStore()
	}

	a.log.Info("completion overridden",
		zap.String("video_id", o.VideoID),
		zap.String("user_id", o.UserID),
		zap.Bool("satisfied", o.Satisfied),
		zap.String("acting_user", o.Actor.UserID),
	)
	a.events.Publish(events.SubjectOverridden, o.VideoID, o.UserID, map[string]any{
		"satisfied":   o.Satisfied,
		"acting_user": o.Actor.UserID,
		"reason":      o.Reason,
	})
	if err := a.inv.Invalidate(ctx, o.VideoID, o.UserID); err != nil {
		a.log.Error("invalidate after override failed", zap.String("video_id", o.VideoID), zap.String("user_id", o.UserID), zap.Error(err))
		return rec, errInvalidation()
	}
	return rec, nil
}

// VideoConfig is the administrative configuration of one video.
type VideoConfig struct {
	ID               string
	Title            string
	ThresholdPercent int
	TrackingEnabled  bool
}

type ConfigureResult struct {
	Video        store.Video `json:"video"`
	Created      bool        `json:"created"`
	ResetRecords int         `json:"reset_records"`
}

// ConfigureVideo creates or updates a video. Changing the threshold of an
// existing video resets every record of that video, since they were earned
// against a different requirement.
func (a *Authority) ConfigureVideo(ctx context.Context, cfg VideoConfig, actor Actor) (ConfigureResult, error) {
	if !auth.RoleHas(actor.Role, auth.CapConfigureVideo) {
		return ConfigureResult{}, errPermissionDenied("configuring videos requires " + string(auth.CapConfigureVideo))
	}
	fields := map[string]string{}
	if msg := checkID(cfg.ID); msg != "" {
		fields["video_id"] = msg
	}
	if cfg.ThresholdPercent < 0 || cfg.ThresholdPercent > 100 {
		fields["threshold_percent"] = "must be between 0 and 100"
	}
	if len(fields) > 0 {
		return ConfigureResult{}, errInvalidArgument("invalid video configuration", fields)
	}

	unlock := a.locks.lockVideo(cfg.ID)
	defer unlock()

	v := store.Video{
		ID:               cfg.ID,
		Title:            strings.TrimSpace(cfg.Title),
		ThresholdPercent: cfg.ThresholdPercent,
		TrackingEnabled:  cfg.TrackingEnabled,
		UpdatedAt:        a.now(),
	}
	prev, existed, err := a.repo.UpsertVideo(ctx, v)
	if err != nil {
		a.log.Error("upsert video failed", zap.String("video_id", cfg.ID), zap.Error(err))
		return ConfigureResult{}, errStore()
	}
	res := ConfigureResult{Video: v, Created: !existed}
	if !existed || prev.ThresholdPercent == v.ThresholdPercent {
		return res, nil
	}

	n, err := a.repo.ResetVideo(ctx, cfg.ID, v.UpdatedAt)
	if err != nil {
		a.log.Error("reset video failed", zap.String("video_id", cfg.ID), zap.Error(err))
		return res, errStore()
	}
	res.ResetRecords = n
	a.log.Info("video threshold changed; records reset",
		zap.String("video_id", cfg.ID),
		zap.Int("previous_percent", prev.ThresholdPercent),
		zap.Int("threshold_percent", v.ThresholdPercent),
		zap.Int("reset_records", n),
		zap.String("acting_user", actor.UserID),
	)
	a.events.Publish(events.SubjectVideoReset, cfg.ID, "", map[string]any{
		"previous_percent":  prev.ThresholdPercent,
		"threshold_percent": v.ThresholdPercent,
		"reset_records":     n,
	})
	if err := a.inv.InvalidateVideo(ctx, cfg.ID); err != nil {
		a.log.Error("invalidate video failed", zap.String("video_id", cfg.ID), zap.Error(err))
		return res, errInvalidation()
	}
	return res, nil
}

// DeleteVideo removes a video with its records and audit trail.
func (a *Authority) DeleteVideo(ctx context.Context, videoID string, actor Actor) error {
	if !auth.RoleHas(actor.Role, auth.CapConfigureVideo) {
		return errPermissionDenied("deleting videos requires " + string(auth.CapConfigureVideo))
	}
	if msg := checkID(videoID); msg != "" {
		return errInvalidArgument("invalid video id", map[string]string{"video_id": msg})
	}
	unlock := a.locks.lockVideo(videoID)
	defer unlock()

	err := a.repo.DeleteVideo(ctx, videoID)
	if errors.Is(err, store.ErrNotFound) {
		return errVideoNotFound()
	}
	if err != nil {
		a.log.Error("delete video failed", zap.String("video_id", videoID), zap.Error(err))
		return errStore()
	}
	a.log.Info("video deleted", zap.String("video_id", videoID), zap.String("acting_user", actor.UserID))
	if err := a.inv.InvalidateVideo(ctx, videoID); err != nil {
		a.log.Error("invalidate video failed", zap.String("video_id", videoID), zap.Error(err))
		return errInvalidation()
	}
	return nil
}

func (a *Authority) Video(ctx context.Context, videoID string) (store.Video, error) {
	if msg := checkID(videoID); msg != "" {
		return store.Video{}, errInvalidArgument("invalid video id", map[string]string{"video_id": msg})
	}
	return a.video(ctx, videoID)
}

// Overrides lists the audit trail of a video, newest first. An empty userID
// lists every user.
func (a *Authority) Overrides(ctx context.Context, videoID, userID string, limit int) ([]store.CompletionOverride, error) {
	if msg := checkID(videoID); msg != "" {
		return nil, errInvalidArgument("invalid video id", map[string]string{"video_id": msg})
	}
	out, err := a.repo.ListOverrides(ctx, videoID, userID, limit)
	if err != nil {
		return nil, errStore()
	}
	return out, nil
}

func (a *Authority) video(ctx context.Context, videoID string) (store.Video, error) {
	v, err := a.repo.GetVideo(ctx, videoID)
	if errors.Is(err, store.ErrNotFound) {
		return store.Video{}, errVideoNotFound()
	}
	if err != nil {
		a.log.Error("get video failed", zap.String("video_id", videoID), zap.Error(err))
		return store.Video{}, errStore()
	}
	return v, nil
}

func validateKey(videoID, userID string) error {
	fields := map[string]string{}
	if msg := checkID(videoID); msg != "" {
		fields["video_id"] = msg
	}
	if msg := checkID(userID); msg != "" {
		fields["user_id"] = msg
	}
	if len(fields) > 0 {
		return errInvalidArgument("invalid completion key", fields)
	}
	return nil
}

func checkID(id string) string {
	switch {
	case strings.TrimSpace(id) == "":
		return "required"
	case len(id) > maxIDLen:
		return "too long"
	}
	return ""
}

type noopInvalidator struct{}

func (noopInvalidator) Invalidate(context.Context, string, string) error { return nil }
func (noopInvalidator) InvalidateVideo(context.Context, string) error    { return nil }
