package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache is the tier shared between instances.
type RedisCache struct {
	Client *redis.Client
	TTL    time.Duration
}

type entry struct {
	Satisfied bool `json:"satisfied"`
}

func NewRedisCache(url string, ttl time.Duration) (*RedisCache, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opt)
	return &RedisCache{Client: client, TTL: ttl}, nil
}

func (c *RedisCache) Get(ctx context.Context, videoID, userID string) (bool, bool, error) {
	val, err := c.Client.Get(ctx, Key(videoID, userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, false, nil
		}
		return false, false, err
	}
	var e entry
	if err := json.Unmarshal([]byte(val), &e); err != nil {
		return false, false, err
	}
	return e.Satisfied, true, nil
}

func (c *RedisCache) Set(ctx context.Context, videoID, userID string, satisfied bool) error {
	b, err := json.Marshal(entry{Satisfied: satisfied})
	if err != nil {
		return err
	}
	return c.Client.Set(ctx, Key(videoID, userID), b, c.TTL).Err()
}

func (c *RedisCache) Invalidate(ctx context.Context, videoID, userID string) error {
	if err := c.Client.Del(ctx, Key(videoID, userID)).Err(); err != nil {
		return fmt.Errorf("redis invalidate: %w", err)
	}
	return nil
}

func (c *RedisCache) InvalidateVideo(ctx context.Context, videoID string) error {
	iter := c.Client.Scan(ctx, 0, globEscape(videoPrefix(videoID))+"*", 200).Iterator()
	batch := make([]string, 0, 200)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := c.Client.Del(ctx, batch...).Err()
		batch = batch[:0]
		return err
	}
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == cap(batch) {
			if err := flush(); err != nil {
				return fmt.Errorf("redis invalidate video: %w", err)
			}
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan: %w", err)
	}
	if err := flush(); err != nil {
		return fmt.Errorf("redis invalidate video: %w", err)
	}
	return nil
}

func (c *RedisCache) Ping(ctx context.Context) error { return c.Client.Ping(ctx).Err() }

func (c *RedisCache) Close() error { return c.Client.Close() }
