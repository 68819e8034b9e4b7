package memory

import (
	"context"
	"encoding/json"
	"time"
)

// Record is one persisted conversation message.
type Record struct {
	ID        string          `json:"id"`
	ChatID    string          `json:"chat_id"`
	Role      string          `json:"role"`
	Content   string          `json:"content"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"timestamp"`
}

// Message is the slim copy kept in the cache tier.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (r Record) Message() Message {
	return Message{Role: r.Role, Content: r.Content}
}

// DurableStore is the authoritative, append-only conversation log.
type DurableStore interface {
	Append(ctx context.Context, record Record) error
	// Recent returns the last limit records in chronological order.
	Recent(ctx context.Context, chatID string, limit int) ([]Record, error)
	All(ctx context.Context, chatID string) ([]Record, error)
	Delete(ctx context.Context, chatID string) error
	Ping(ctx context.Context) error
	Close() error
}

// Cache holds a disposable window of recent messages per chat.
type Cache interface {
	// Get reports ok=false on a miss.
	Get(ctx context.Context, chatID string) (msgs []Message, ok bool, err error)
	// Put replaces the cached window.
	Put(ctx context.Context, chatID string, msgs []Message) error
	// Extend appends to an already cached window and is a no-op otherwise.
	Extend(ctx context.Context, chatID string, msg Message) error
	Invalidate(ctx context.Context, chatID string) error
	Close() error
}

func newestFirstToChronological(items []Record) {
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
}

func tail[T any](items []T, n int) []T {
	if n <= 0 || n >= len(items) {
		return items
	}
	return items[len(items)-n:]
}
