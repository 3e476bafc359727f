// Package cache holds derived copies of completion decisions. Every copy is
// disposable: the authority drops entries through Invalidator whenever the
// underlying record changes.
package cache

import (
	"context"
	"errors"
	"net/url"
	"strings"
)

const keyPrefix = "completion:"

type Invalidator interface {
	Invalidate(ctx context.Context, videoID, userID string) error
	InvalidateVideo(ctx context.Context, videoID string) error
}

// DecisionCache stores satisfied/unsatisfied answers per (video, user).
type DecisionCache interface {
	Invalidator
	Get(ctx context.Context, videoID, userID string) (satisfied, ok bool, err error)
	Set(ctx context.Context, videoID, userID string, satisfied bool) error
}

func Key(videoID, userID string) string {
	return videoPrefix(videoID) + url.PathEscape(userID)
}

func videoPrefix(videoID string) string {
	return keyPrefix + url.PathEscape(videoID) + ":"
}

// Invalidators fans an invalidation out to every target and joins the errors.
type Invalidators []Invalidator

func (is Invalidators) Invalidate(ctx context.Context, videoID, userID string) error {
	var errs []error
	for _, inv := range is {
		if inv == nil {
			continue
		}
		if err := inv.Invalidate(ctx, videoID, userID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (is Invalidators) InvalidateVideo(ctx context.Context, videoID string) error {
	var errs []error
	for _, inv := range is {
		if inv == nil {
			continue
		}
		if err := inv.InvalidateVideo(ctx, videoID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func globEscape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)
	return r.Replace(s)
}
