package actions

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/ent0n29/horizon/internal/turn"
)

type artifactRecord struct {
	ID        string            `json:"id"`
	ChatID    string            `json:"chat_id"`
	TurnID    string            `json:"turn_id"`
	Kind      string            `json:"kind"`
	Title     string            `json:"title"`
	Fields    map[string]string `json:"fields,omitempty"`
	Params    map[string]any    `json:"params,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

type savedResult struct {
	ChatID    string             `json:"chat_id"`
	TurnID    string             `json:"turn_id"`
	Intent    turn.Intent        `json:"intent"`
	UserInput string             `json:"user_input"`
	Result    turn.PrimaryResult `json:"result"`
	SavedAt   time.Time          `json:"saved_at"`
}

func (e *Executor) create(params map[string]any, in Input) (map[string]any, error) {
	rec := artifactRecord{
		ID:        uuid.NewString(),
		ChatID:    in.Snapshot.ChatID,
		TurnID:    in.Snapshot.TurnID,
		Kind:      turn.StringParam(params, "kind"),
		Title:     turn.StringParam(params, "title"),
		CreatedAt: e.now().UTC(),
	}
	if a, ok := in.Snapshot.Primary.(turn.ArtifactResult); ok {
		if rec.Kind == "" {
			rec.Kind = a.Kind
		}
		if rec.Title == "" {
			rec.Title = a.Title
		}
		rec.Fields = a.Fields
	} else {
		rec.Params = params
	}
	if rec.Kind == "" {
		rec.Kind = "record"
	}
	if rec.Title == "" {
		rec.Title = in.Snapshot.UserInput
	}

	path := filepath.Join(e.artifactDir, fmt.Sprintf("%s-%s.json", safeName(rec.Kind), rec.ID))
	if err := writeJSON(path, rec); err != nil {
		return nil, err
	}
	return map[string]any{"path": path, "id": rec.ID, "kind": rec.Kind}, nil
}

func (e *Executor) save(_ map[string]any, in Input) (map[string]any, error) {
	if in.Snapshot.Primary == nil {
		return nil, errNothingToExport
	}
	rec := savedResult{
		ChatID:    in.Snapshot.ChatID,
		TurnID:    in.Snapshot.TurnID,
		Intent:    in.Snapshot.Intent,
		UserInput: in.Snapshot.UserInput,
		Result:    in.Snapshot.Primary,
		SavedAt:   e.now().UTC(),
	}
	path := filepath.Join(e.artifactDir, fmt.Sprintf("result-%s.json", safeName(in.Snapshot.TurnID)))
	if err := writeJSON(path, rec); err != nil {
		return nil, err
	}
	return map[string]any{"path": path}, nil
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode artifact: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}
	return nil
}
