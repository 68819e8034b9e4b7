// Package memory is the two-level conversation store: an authoritative
// durable store plus a disposable cache tier of recent messages.
package memory

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Cache lookup outcomes reported to a LookupObserver.
const (
	LookupHit   = "hit"
	LookupMiss  = "miss"
	LookupError = "error"
)

// LookupObserver receives one outcome per cache lookup.
type LookupObserver interface {
	ObserveCacheLookup(outcome string)
}

// Tier owns both backends and the fallback policy between them.
type Tier struct {
	durable  DurableStore
	cache    Cache
	window   int
	observer LookupObserver
	now      func() time.Time

	// stale holds chats whose cached window could not be invalidated.
	stale sync.Map
}

type TierOption func(*Tier)

// WithWindow sets how many recent messages the cache keeps per chat.
func WithWindow(n int) TierOption {
	return func(t *Tier) {
		if n > 0 {
			t.window = n
		}
	}
}

func WithLookupObserver(o LookupObserver) TierOption {
	return func(t *Tier) { t.observer = o }
}

func NewTier(durable DurableStore, cache Cache, opts ...TierOption) *Tier {
	if cache == nil {
		cache = NopCache{}
	}
	t := &Tier{
		durable: durable,
		cache:   cache,
		window:  DefaultCacheWindow,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Append writes the durable store first, then best-effort extends the cache.
// Failures are logged and never returned to the turn.
func (t *Tier) Append(ctx context.Context, chatID, role, content string, payload json.RawMessage) Record {
	rec := Record{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		Role:      role,
		Content:   content,
		Payload:   payload,
		CreatedAt: t.now(),
	}
	if err := t.durable.Append(ctx, rec); err != nil {
		log.Warn().Err(err).Str("chat_id", chatID).Str("role", role).Msg("durable append failed")
	}
	if err := t.cache.Extend(ctx, chatID, rec.Message()); err != nil {
		log.Debug().Err(err).Str("chat_id", chatID).Msg("cache extend failed, invalidating")
		// A window that missed this message must not be served again.
		if err := t.cache.Invalidate(ctx, chatID); err != nil {
			log.Debug().Err(err).Str("chat_id", chatID).Msg("cache invalidate failed")
			t.stale.Store(chatID, struct{}{})
		}
	}
	return rec
}

// Recent returns up to limit messages in chronological order. The cache is
// tried first; a miss or cache error falls back to the durable store and
// repopulates the cache. A durable failure yields an empty history.
func (t *Tier) Recent(ctx context.Context, chatID string, limit int) []Message {
	if limit <= 0 {
		return nil
	}
	_, stale := t.stale.Load(chatID)
	if limit <= t.window && !stale {
		msgs, ok, err := t.cache.Get(ctx, chatID)
		switch {
		case err != nil:
			t.observe(LookupError)
			log.Debug().Err(err).Str("chat_id", chatID).Msg("cache read failed")
		case ok:
			t.observe(LookupHit)
			return tail(msgs, limit)
		default:
			t.observe(LookupMiss)
		}
	}

	fetch := limit
	if fetch < t.window {
		fetch = t.window
	}
	records, err := t.durable.Recent(ctx, chatID, fetch)
	if err != nil {
		log.Warn().Err(err).Str("chat_id", chatID).Msg("durable read failed, continuing without history")
		return nil
	}
	msgs := make([]Message, 0, len(records))
	for _, r := range records {
		msgs = append(msgs, r.Message())
	}
	if len(msgs) > 0 || stale {
		if err := t.cache.Put(ctx, chatID, tail(msgs, t.window)); err != nil {
			log.Debug().Err(err).Str("chat_id", chatID).Msg("cache repopulate failed")
		} else {
			t.stale.Delete(chatID)
		}
	}
	return tail(msgs, limit)
}

// Full returns every durable record for chatID, payloads included.
func (t *Tier) Full(ctx context.Context, chatID string) ([]Record, error) {
	return t.durable.All(ctx, chatID)
}

// Delete removes a whole conversation from both tiers.
func (t *Tier) Delete(ctx context.Context, chatID string) error {
	if err := t.durable.Delete(ctx, chatID); err != nil {
		return err
	}
	if err := t.cache.Invalidate(ctx, chatID); err != nil {
		log.Debug().Err(err).Str("chat_id", chatID).Msg("cache invalidate failed")
		t.stale.Store(chatID, struct{}{})
	}
	return nil
}

func (t *Tier) Ping(ctx context.Context) error { return t.durable.Ping(ctx) }

func (t *Tier) Close() error {
	cerr := t.cache.Close()
	if err := t.durable.Close(); err != nil {
		return err
	}
	return cerr
}

func (t *Tier) observe(outcome string) {
	if t.observer != nil {
		t.observer.ObserveCacheLookup(outcome)
	}
}
