package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore is a simple in-process durable store for local/dev use.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string][]Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string][]Record)}
}

func (s *InMemoryStore) Append(_ context.Context, record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	s.records[record.ChatID] = append(s.records[record.ChatID], record)
	return nil
}

func (s *InMemoryStore) Recent(_ context.Context, chatID string, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	arr := s.records[chatID]
	if len(arr) == 0 {
		return nil, nil
	}
	return append([]Record(nil), tail(arr, limit)...), nil
}

func (s *InMemoryStore) All(_ context.Context, chatID string) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Record(nil), s.records[chatID]...), nil
}

func (s *InMemoryStore) Delete(_ context.Context, chatID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, chatID)
	return nil
}

func (s *InMemoryStore) Ping(context.Context) error { return nil }

func (s *InMemoryStore) Close() error { return nil }
