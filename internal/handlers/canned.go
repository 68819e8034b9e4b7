package handlers

import (
	"context"

	"github.com/ent0n29/horizon/internal/turn"
)

const (
	OutOfScopeMessage = "I can help with project data questions, work request drafts, project summaries, " +
		"exports to CSV or Excel, emailing reports and notifications."
	UnresolvedMessage = "I could not work out what you need. Try asking about project data, " +
		"a work request draft or a project summary."
)

// Canned returns a handler that short-circuits to a fixed message without
// calling any collaborator.
func Canned(intent turn.Intent, message string) Handler {
	return HandlerFunc(func(context.Context, turn.Snapshot) (turn.PrimaryResult, error) {
		return turn.CannedResult{For: intent, Message: message}, nil
	})
}
