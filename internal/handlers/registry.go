// Package handlers holds the primary task handlers, one per intent.
package handlers

import (
	"context"
	"fmt"

	"github.com/ent0n29/horizon/internal/turn"
)

// Handler fulfils exactly one intent. It must return a result tagged with
// that intent and must not mutate the turn.
type Handler interface {
	Handle(ctx context.Context, snap turn.Snapshot) (turn.PrimaryResult, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, snap turn.Snapshot) (turn.PrimaryResult, error)

func (f HandlerFunc) Handle(ctx context.Context, snap turn.Snapshot) (turn.PrimaryResult, error) {
	return f(ctx, snap)
}

// Registry maps every intent to its handler. It is read-only after
// construction and safe to share across turns.
type Registry struct {
	handlers map[turn.Intent]Handler
}

// NewRegistry fails unless every intent in turn.Intents has a handler.
func NewRegistry(handlers map[turn.Intent]Handler) (*Registry, error) {
	r := &Registry{handlers: make(map[turn.Intent]Handler, len(handlers))}
	for intent, h := range handlers {
		if !intent.Valid() {
			return nil, fmt.Errorf("handler registered for unknown intent %q", intent)
		}
		if h == nil {
			return nil, fmt.Errorf("nil handler for intent %q", intent)
		}
		r.handlers[intent] = h
	}
	for _, intent := range turn.Intents {
		if _, ok := r.handlers[intent]; !ok {
			return nil, fmt.Errorf("no handler registered for intent %q", intent)
		}
	}
	return r, nil
}

// Lookup returns the handler for intent.
func (r *Registry) Lookup(intent turn.Intent) (Handler, bool) {
	h, ok := r.handlers[intent]
	return h, ok
}
