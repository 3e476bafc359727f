package cache

import (
	"context"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// LocalCache is the in-process tier.
type LocalCache struct {
	lru *expirable.LRU[string, bool]
}

func NewLocalCache(size int, ttl time.Duration) *LocalCache {
	if size <= 0 {
		size = 10000
	}
	return &LocalCache{lru: expirable.NewLRU[string, bool](size, nil, ttl)}
}

func (c *LocalCache) Get(_ context.Context, videoID, userID string) (bool, bool, error) {
	v, ok := c.lru.Get(Key(videoID, userID))
	return v, ok, nil
}

func (c *LocalCache) Set(_ context.Context, videoID, userID string, satisfied bool) error {
	c.lru.Add(Key(videoID, userID), satisfied)
	return nil
}

func (c *LocalCache) Invalidate(_ context.Context, videoID, userID string) error {
	c.lru.Remove(Key(videoID, userID))
	return nil
}

func (c *LocalCache) InvalidateVideo(_ context.Context, videoID string) error {
	prefix := videoPrefix(videoID)
	for _, k := range c.lru.Keys() {
		if strings.HasPrefix(k, prefix) {
			c.lru.Remove(k)
		}
	}
	return nil
}

func (c *LocalCache) Len() int { return c.lru.Len() }
