package memory

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	DefaultCacheTTL    = 2 * time.Hour
	DefaultCacheWindow = 50
)

// NewDurableStore picks a backend from the URL scheme: empty for in-memory,
// postgres:// or postgresql:// for PostgreSQL, sqlite: or file: for SQLite.
func NewDurableStore(ctx context.Context, databaseURL string) (DurableStore, error) {
	u := strings.TrimSpace(databaseURL)
	switch {
	case u == "":
		return NewInMemoryStore(), nil
	case strings.HasPrefix(u, "postgres://"), strings.HasPrefix(u, "postgresql://"):
		return NewPostgresStore(ctx, u)
	case strings.HasPrefix(u, "sqlite:"):
		return NewSQLiteStore(ctx, strings.TrimPrefix(strings.TrimPrefix(u, "sqlite:"), "//"))
	case strings.HasPrefix(u, "file:"):
		return NewSQLiteStore(ctx, u)
	default:
		return nil, fmt.Errorf("unsupported DATABASE_URL scheme in %q", u)
	}
}

// NewCache picks a cache tier: empty for in-process LRU, "none" to disable,
// redis:// or rediss:// for Redis.
func NewCache(cacheURL string, window int, ttl time.Duration) (Cache, error) {
	u := strings.TrimSpace(cacheURL)
	switch {
	case u == "":
		return NewLRUCache(0, window, ttl), nil
	case u == "none":
		return NopCache{}, nil
	case strings.HasPrefix(u, "redis://"), strings.HasPrefix(u, "rediss://"):
		return NewRedisCacheFromURL(u, window, ttl)
	default:
		return nil, fmt.Errorf("unsupported CACHE_URL scheme in %q", u)
	}
}
