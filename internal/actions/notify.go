package actions

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ent0n29/horizon/internal/turn"
)

// DefaultFeedSize bounds the notifications kept per chat.
const DefaultFeedSize = 50

// Notification is a message surfaced to the user outside the turn response.
type Notification struct {
	ChatID    string    `json:"chat_id"`
	TurnID    string    `json:"turn_id"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// FeedNotifier logs notifications and keeps the latest ones per chat.
type FeedNotifier struct {
	mu    sync.Mutex
	size  int
	feeds map[string][]Notification
}

func NewFeedNotifier(size int) *FeedNotifier {
	if size <= 0 {
		size = DefaultFeedSize
	}
	return &FeedNotifier{size: size, feeds: make(map[string][]Notification)}
}

func (f *FeedNotifier) Notify(ctx context.Context, n Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	log.Info().Str("chat_id", n.ChatID).Str("turn_id", n.TurnID).Msg("notification")
	f.mu.Lock()
	defer f.mu.Unlock()
	feed := append(f.feeds[n.ChatID], n)
	if len(feed) > f.size {
		feed = feed[len(feed)-f.size:]
	}
	f.feeds[n.ChatID] = feed
	return nil
}

// Feed returns the notifications kept for chatID, oldest first.
func (f *FeedNotifier) Feed(chatID string) []Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Notification(nil), f.feeds[chatID]...)
}

func (e *Executor) notify(ctx context.Context, params map[string]any, in Input) (map[string]any, error) {
	msg := turn.StringParam(params, "message")
	if msg == "" {
		msg = "Your request has finished."
	}
	n := Notification{
		ChatID:    in.Snapshot.ChatID,
		TurnID:    in.Snapshot.TurnID,
		Message:   msg,
		CreatedAt: e.now().UTC(),
	}
	if err := e.notifier.Notify(ctx, n); err != nil {
		return nil, err
	}
	return map[string]any{"message": msg}, nil
}
