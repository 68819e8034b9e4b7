package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/ent0n29/horizon/internal/brain"
	"github.com/ent0n29/horizon/internal/turn"
)

// Document drafts a structured document such as a work request.
type Document struct {
	Provider  brain.Provider
	Retriever Retriever
}

func (h *Document) Handle(ctx context.Context, snap turn.Snapshot) (turn.PrimaryResult, error) {
	system := `You draft structured documents such as work requests.
Return JSON: {"title": string, "sections": [{"heading": string, "body": string}], "fields": {string: string}}.`
	if passages := search(h.Retriever, snap.UserInput); len(passages) > 0 {
		system += "\n\nReference material:\n" + renderPassages(passages)
	}
	resp, err := h.Provider.Respond(ctx, brain.Request{
		Task:     brain.TaskDocument,
		System:   system,
		Messages: historyMessages(snap),
		JSON:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("draft document: %w", err)
	}

	var doc turn.DocumentResult
	if err := brain.DecodeJSON(resp.Text, &doc); err != nil {
		// Keep prose output as a single untitled section.
		text := strings.TrimSpace(resp.Text)
		if text == "" {
			return nil, fmt.Errorf("draft document: %w", err)
		}
		return turn.DocumentResult{Title: "Draft", Sections: []turn.DocumentSection{{Body: text}}}, nil
	}
	if strings.TrimSpace(doc.Title) == "" {
		doc.Title = "Draft"
	}
	return doc, nil
}

// Artifact drafts a record to be created downstream.
type Artifact struct {
	Provider brain.Provider
}

func (h *Artifact) Handle(ctx context.Context, snap turn.Snapshot) (turn.PrimaryResult, error) {
	resp, err := h.Provider.Respond(ctx, brain.Request{
		Task: brain.TaskArtifact,
		System: `You draft a record the user wants created.
Return JSON: {"kind": string, "title": string, "fields": {string: string}}.`,
		Messages: historyMessages(snap),
		JSON:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("draft artifact: %w", err)
	}
	var a turn.ArtifactResult
	if err := brain.DecodeJSON(resp.Text, &a); err != nil {
		return nil, fmt.Errorf("draft artifact: %w", err)
	}
	if a.Kind == "" {
		a.Kind = "record"
	}
	if a.Title == "" {
		a.Title = snap.UserInput
	}
	return a, nil
}
