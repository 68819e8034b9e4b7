package memory

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// LRUCache is an in-process cache tier bounded by chat count and TTL.
type LRUCache struct {
	mu     sync.Mutex
	lru    *expirable.LRU[string, []Message]
	window int
}

func NewLRUCache(maxChats, window int, ttl time.Duration) *LRUCache {
	if maxChats <= 0 {
		maxChats = 1024
	}
	return &LRUCache{
		lru:    expirable.NewLRU[string, []Message](maxChats, nil, ttl),
		window: window,
	}
}

func (c *LRUCache) Get(_ context.Context, chatID string) ([]Message, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	msgs, ok := c.lru.Get(chatID)
	if !ok || len(msgs) == 0 {
		return nil, false, nil
	}
	return append([]Message(nil), msgs...), true, nil
}

func (c *LRUCache) Put(_ context.Context, chatID string, msgs []Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(msgs) == 0 {
		c.lru.Remove(chatID)
		return nil
	}
	c.lru.Add(chatID, append([]Message(nil), tail(msgs, c.window)...))
	return nil
}

func (c *LRUCache) Extend(_ context.Context, chatID string, msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	msgs, ok := c.lru.Peek(chatID)
	if !ok {
		return nil
	}
	next := append(append([]Message(nil), msgs...), msg)
	c.lru.Add(chatID, tail(next, c.window))
	return nil
}

func (c *LRUCache) Invalidate(_ context.Context, chatID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(chatID)
	return nil
}

func (c *LRUCache) Close() error {
	c.lru.Purge()
	return nil
}

// NopCache disables the cache tier; every read is a miss.
type NopCache struct{}

func (NopCache) Get(context.Context, string) ([]Message, bool, error) { return nil, false, nil }
func (NopCache) Put(context.Context, string, []Message) error         { return nil }
func (NopCache) Extend(context.Context, string, Message) error        { return nil }
func (NopCache) Invalidate(context.Context, string) error             { return nil }
func (NopCache) Close() error                                         { return nil }
