package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/ent0n29/horizon/internal/brain"
	"github.com/ent0n29/horizon/internal/catalog"
	"github.com/ent0n29/horizon/internal/dataaccess"
	"github.com/ent0n29/horizon/internal/turn"
)

const passagesPerAnswer = 3

// Answer responds to informational questions, grounded on retrieved passages
// when a retriever is configured.
type Answer struct {
	Provider  brain.Provider
	Retriever Retriever
}

func (h *Answer) Handle(ctx context.Context, snap turn.Snapshot) (turn.PrimaryResult, error) {
	system := "You answer questions about the assistant and its project data. Be brief and factual."
	var sources []string
	if passages := search(h.Retriever, snap.UserInput); len(passages) > 0 {
		system += "\n\nUse only this reference material:\n" + renderPassages(passages)
		for _, p := range passages {
			sources = append(sources, p.Source)
		}
	}
	resp, err := h.Provider.Respond(ctx, brain.Request{
		Task:     brain.TaskAnswer,
		System:   system,
		Messages: historyMessages(snap),
	})
	if err != nil {
		return nil, fmt.Errorf("answer: %w", err)
	}
	return turn.AnswerResult{Answer: strings.TrimSpace(resp.Text), Sources: sources}, nil
}

func search(r Retriever, query string) []catalog.Passage {
	if r == nil {
		return nil
	}
	return r.Search(query, passagesPerAnswer)
}

func renderPassages(passages []catalog.Passage) string {
	var b strings.Builder
	for _, p := range passages {
		fmt.Fprintf(&b, "[%s] %s\n", p.Source, p.Text)
	}
	return b.String()
}

// EntitySummary summarizes one named entity from looked-up facts.
type EntitySummary struct {
	Provider brain.Provider
	Entities dataaccess.EntitySource
}

func (h *EntitySummary) Handle(ctx context.Context, snap turn.Snapshot) (turn.PrimaryResult, error) {
	name := entityName(snap)
	var facts map[string]any
	if h.Entities != nil && name != "" {
		f, err := h.Entities.Lookup(ctx, name)
		switch {
		case err == nil:
			facts = f
		case errors.Is(err, dataaccess.ErrEntityNotFound):
			log.Info().Str("entity", name).Msg("entity not found, summarizing without facts")
		default:
			log.Warn().Err(err).Str("entity", name).Msg("entity lookup failed")
		}
	}

	msgs := historyMessages(snap)
	if facts != nil {
		raw, _ := json.Marshal(facts)
		msgs = append(msgs, brain.Message{Role: string(turn.RoleUser), Content: "Facts: " + string(raw)})
	}
	resp, err := h.Provider.Respond(ctx, brain.Request{
		Task:     brain.TaskEntitySummary,
		System:   "You write a short executive summary of one project from the facts given. Do not invent figures.",
		Messages: msgs,
	})
	if err != nil {
		if facts == nil {
			return nil, fmt.Errorf("summarize entity: %w", err)
		}
		return turn.EntitySummaryResult{Entity: name, Summary: factsSummary(facts), Facts: facts}, nil
	}
	return turn.EntitySummaryResult{Entity: name, Summary: strings.TrimSpace(resp.Text), Facts: facts}, nil
}

func entityName(snap turn.Snapshot) string {
	for _, k := range []string{"entity", "project", "name"} {
		if v := turn.StringParam(snap.Params, k); v != "" {
			return v
		}
	}
	return ""
}

func factsSummary(facts map[string]any) string {
	raw, _ := json.Marshal(facts)
	return "Known facts: " + string(raw)
}
