package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is a development-only Store. State is lost on restart and is
// not shared between instances.
type MemoryStore struct {
	mu        sync.RWMutex
	videos    map[string]Video
	records   map[Key]CompletionRecord
	overrides []CompletionOverride
	host      map[Key]HostCompletion
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		videos:  make(map[string]Video),
		records: make(map[Key]CompletionRecord),
		host:    make(map[Key]HostCompletion),
	}
}

func (s *MemoryStore) GetVideo(_ context.Context, id string) (Video, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.videos[id]
	if !ok {
		return Video{}, ErrNotFound
	}
	return v, nil
}

func (s *MemoryStore) UpsertVideo(_ context.Context, v Video) (Video, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, existed := s.videos[v.ID]
	s.videos[v.ID] = v
	return prev, existed, nil
}

func (s *MemoryStore) DeleteVideo(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.videos[id]; !ok {
		return ErrNotFound
	}
	delete(s.videos, id)
	for k := range s.records {
		if k.VideoID == id {
			delete(s.records, k)
		}
	}
	kept := s.overrides[:0]
	for _, o := range s.overrides {
		if o.VideoID != id {
			kept = append(kept, o)
		}
	}
	s.overrides = kept
	return nil
}

func (s *MemoryStore) ListVideos(_ context.Context) ([]Video, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Video, 0, len(s.videos))
	for _, v := range s.videos {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) GetRecord(_ context.Context, videoID, userID string) (CompletionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[Key{videoID, userID}]
	if !ok {
		return CompletionRecord{}, ErrNotFound
	}
	return rec, nil
}

func (s *MemoryStore) MarkSatisfied(_ context.Context, videoID, userID string, threshold int, at time.Time) (CompletionRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.videos[videoID]
	if !ok {
		return CompletionRecord{}, false, ErrNotFound
	}
	if v.ThresholdPercent != threshold {
		return CompletionRecord{}, false, ErrThresholdChanged
	}
	k := Key{videoID, userID}
	if rec, ok := s.records[k]; ok && rec.Satisfied {
		return rec, true, nil
	}
	rec := CompletionRecord{VideoID: videoID, UserID: userID, Satisfied: true, Source: SourceWatch, LastModified: at}
	s.records[k] = rec
	return rec, false, nil
}

func (s *MemoryStore) ApplyOverride(_ context.Context, o CompletionOverride) (CompletionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := CompletionRecord{
		VideoID:      o.VideoID,
		UserID:       o.UserID,
		Satisfied:    o.Satisfied,
		Source:       SourceOverride,
		LastModified: o.CreatedAt,
	}
	s.records[Key{o.VideoID, o.UserID}] = rec
	s.overrides = append(s.overrides, o)
	return rec, nil
}

func (s *MemoryStore) ResetVideo(_ context.Context, videoID string, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, rec := range s.records {
		if k.VideoID != videoID || !rec.Satisfied {
			continue
		}
		rec.Satisfied = false
		rec.Source = SourceReset
		rec.LastModified = at
		s.records[k] = rec
		n++
	}
	return n, nil
}

func (s *MemoryStore) ListOverrides(_ context.Context, videoID, userID string, limit int) ([]CompletionOverride, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	limit = clampLimit(limit)
	var out []CompletionOverride
	for i := len(s.overrides) - 1; i >= 0 && len(out) < limit; i-- {
		o := s.overrides[i]
		if o.VideoID == videoID && (userID == "" || o.UserID == userID) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListHostComplete(_ context.Context, after Key, limit int) ([]HostCompletion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := make([]HostCompletion, 0, len(s.host))
	for k, h := range s.host {
		if keyLess(after, k) {
			all = append(all, h)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		return keyLess(Key{all[i].VideoID, all[i].UserID}, Key{all[j].VideoID, all[j].UserID})
	})
	if limit = clampLimit(limit); len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (s *MemoryStore) MarkHostComplete(_ context.Context, videoID, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.host[Key{videoID, userID}] = HostCompletion{VideoID: videoID, UserID: userID, UpdatedAt: at}
	return nil
}

func (s *MemoryStore) ClearHost(_ context.Context, videoID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.host, Key{videoID, userID})
	return nil
}

func (s *MemoryStore) ClearHostVideo(_ context.Context, videoID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k := range s.host {
		if k.VideoID == videoID {
			delete(s.host, k)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

func keyLess(a, b Key) bool {
	if a.VideoID != b.VideoID {
		return a.VideoID < b.VideoID
	}
	return a.UserID < b.UserID
}
