// Package intent turns untrusted provider classification output into a typed
// turn decision.
package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/ent0n29/horizon/internal/brain"
	"github.com/ent0n29/horizon/internal/policy"
	"github.com/ent0n29/horizon/internal/turn"
)

const systemPrompt = `You route requests for a project data assistant.
Return one JSON object: {"intent": string, "side_effects": [string], "params": {string: value}, "requires_followup": bool}.
intent is one of: data_query, document_generation, entity_summary, informational_answer, create_artifact, out_of_scope, unresolved.
side_effects may contain: email, export, notify, create, save, webhook.
params holds extracted values such as email_to, format (csv or excel), entity.
requires_followup is true only when extra explanation or steps beyond the main task are requested.`

// Classifier delegates judgment to a provider and sanitizes the result.
type Classifier struct {
	provider brain.Provider
}

func New(provider brain.Provider) *Classifier {
	return &Classifier{provider: provider}
}

// Classify never fails: any provider error, panic or malformed output
// degrades to the unresolved decision.
func (c *Classifier) Classify(ctx context.Context, input string, history []turn.Message) (decision turn.Decision) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("classifier panicked")
			decision = turn.UnresolvedDecision()
		}
	}()

	if strings.TrimSpace(input) == "" {
		return turn.UnresolvedDecision()
	}
	if screen := policy.ScreenInput(input); screen.Blocked {
		log.Warn().Str("reason", screen.Reason).Msg("input blocked before classification")
		return Blocked()
	}

	msgs := make([]brain.Message, 0, len(history)+1)
	for _, m := range history {
		msgs = append(msgs, brain.Message{Role: string(m.Role), Content: m.Content})
	}
	msgs = append(msgs, brain.Message{Role: string(turn.RoleUser), Content: input})

	resp, err := c.provider.Respond(ctx, brain.Request{
		Task:     brain.TaskClassify,
		System:   systemPrompt,
		Messages: msgs,
		JSON:     true,
	})
	if err != nil {
		log.Warn().Err(err).Msg("classification failed")
		return turn.UnresolvedDecision()
	}
	d, err := Parse(resp.Text)
	if err != nil {
		log.Warn().Err(err).Msg("classification output malformed")
		return turn.UnresolvedDecision()
	}
	return d
}

// Blocked is the decision for screened input: out of scope, nothing else.
func Blocked() turn.Decision {
	return turn.Decision{
		Intent:      turn.IntentOutOfScope,
		SideEffects: []turn.SideEffect{},
		Params:      map[string]any{},
	}
}

type rawDecision struct {
	Intent            *string           `json:"intent"`
	SideEffects       []json.RawMessage `json:"side_effects"`
	PostActions       []json.RawMessage `json:"post_actions"`
	Params            map[string]any    `json:"params"`
	ExtractedParams   map[string]any    `json:"extracted_params"`
	RequiresFollowup  *bool             `json:"requires_followup"`
	RequiresMultistep *bool             `json:"requires_multistep"`
}

// Parse sanitizes raw provider text into a decision. Unknown labels collapse
// to unresolved and side effects are restricted to the closed set.
func Parse(text string) (turn.Decision, error) {
	var raw rawDecision
	if err := brain.DecodeJSON(text, &raw); err != nil {
		return turn.Decision{}, err
	}
	if raw.Intent == nil {
		return turn.Decision{}, fmt.Errorf("intent field missing")
	}

	labels := effectLabels(append(raw.SideEffects, raw.PostActions...))
	params := sanitizeParams(raw.Params)
	for k, v := range sanitizeParams(raw.ExtractedParams) {
		if _, ok := params[k]; !ok {
			params[k] = v
		}
	}

	d := turn.Decision{
		Intent:      turn.ParseIntent(*raw.Intent),
		SideEffects: turn.NormalizeSideEffects(labels),
		Params:      params,
	}
	switch {
	case raw.RequiresFollowup != nil:
		d.RequiresFollowup = *raw.RequiresFollowup
	case raw.RequiresMultistep != nil:
		d.RequiresFollowup = *raw.RequiresMultistep
	}
	if d.Intent == turn.IntentUnresolved {
		return turn.UnresolvedDecision(), nil
	}
	return d, nil
}

// effectLabels accepts either plain strings or {"type": ...} objects.
func effectLabels(items []json.RawMessage) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			out = append(out, s)
			continue
		}
		var obj struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(item, &obj); err == nil && obj.Type != "" {
			out = append(out, obj.Type)
		}
	}
	return out
}

// sanitizeParams keeps scalar values only and normalizes well-known keys.
func sanitizeParams(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		key := strings.ToLower(strings.TrimSpace(k))
		if key == "" {
			continue
		}
		switch val := v.(type) {
		case string:
			if s := strings.TrimSpace(val); s != "" {
				out[key] = s
			}
		case float64, bool:
			out[key] = val
		}
	}
	if to, ok := out["to"]; ok {
		if _, has := out["email_to"]; !has {
			out["email_to"] = to
		}
		delete(out, "to")
	}
	if f, ok := out["format"].(string); ok {
		out["format"] = NormalizeFormat(f)
	}
	return out
}

// NormalizeFormat maps export format spellings onto csv or excel.
func NormalizeFormat(f string) string {
	switch strings.ToLower(strings.TrimSpace(f)) {
	case "excel", "xlsx", "xls", "spreadsheet":
		return "excel"
	default:
		return "csv"
	}
}
