package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache keeps each chat's recent window in a Redis list with a TTL.
type RedisCache struct {
	client *redis.Client
	prefix string
	window int
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, window int, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if window <= 0 {
		window = DefaultCacheWindow
	}
	return &RedisCache{client: client, prefix: "chat:", window: window, ttl: ttl}
}

// NewRedisCacheFromURL parses a redis:// URL.
func NewRedisCacheFromURL(url string, window int, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedisCache(redis.NewClient(opts), window, ttl), nil
}

func (c *RedisCache) key(chatID string) string { return c.prefix + chatID + ":messages" }

func (c *RedisCache) Get(ctx context.Context, chatID string) ([]Message, bool, error) {
	raw, err := c.client.LRange(ctx, c.key(chatID), 0, -1).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis lrange: %w", err)
	}
	if len(raw) == 0 {
		return nil, false, nil
	}
	msgs := make([]Message, 0, len(raw))
	for _, item := range raw {
		var m Message
		if err := json.Unmarshal([]byte(item), &m); err != nil {
			return nil, false, fmt.Errorf("decode cached message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, true, nil
}

func (c *RedisCache) Put(ctx context.Context, chatID string, msgs []Message) error {
	msgs = tail(msgs, c.window)
	values := make([]any, 0, len(msgs))
	for _, m := range msgs {
		b, err := json.Marshal(m)
		if err != nil {
			return err
		}
		values = append(values, string(b))
	}
	key := c.key(chatID)
	_, err := c.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, key)
		if len(values) > 0 {
			p.RPush(ctx, key, values...)
			p.Expire(ctx, key, c.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis put window: %w", err)
	}
	return nil
}

func (c *RedisCache) Extend(ctx context.Context, chatID string, msg Message) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	key := c.key(chatID)
	_, err = c.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		// RPUSHX is a no-op on a missing key; the next miss rebuilds the window.
		p.RPushX(ctx, key, string(b))
		p.LTrim(ctx, key, int64(-c.window), -1)
		p.Expire(ctx, key, c.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis extend window: %w", err)
	}
	return nil
}

func (c *RedisCache) Invalidate(ctx context.Context, chatID string) error {
	return c.client.Del(ctx, c.key(chatID)).Err()
}

func (c *RedisCache) Ping(ctx context.Context) error { return c.client.Ping(ctx).Err() }

func (c *RedisCache) Close() error { return c.client.Close() }
