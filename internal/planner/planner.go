// Package planner decides which follow-up subtasks and side effects run after
// the primary task.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"

	"github.com/ent0n29/horizon/internal/brain"
	"github.com/ent0n29/horizon/internal/turn"
)

// MaxSubtasks caps how many subtasks one plan may hold.
const MaxSubtasks = 8

const systemPrompt = `You plan follow-up work after a main task has already completed.
MAIN TASK ALREADY DONE: %s. Never plan it again.
Forbidden subtask actions: data_query, sql_query, rag_query, metadata_query, entity_summary, project_summary, document_generation, work_request, create_artifact.
Subtask types: "action" (with an action name) or "explain" (with a question).
Post actions may only be: email, export, notify, create, save, webhook.
Return JSON: {"plan_summary": string, "subtasks": [{"id": string, "type": string, "action": string, "question": string, "params": {}, "requires": [string]}], "post_actions": [{"type": string, "params": {}}]}.`

// Planner wraps a provider with strict post-validation.
type Planner struct {
	provider brain.Provider
}

func New(provider brain.Provider) *Planner {
	return &Planner{provider: provider}
}

type planContext struct {
	UserInput        string            `json:"user_input"`
	Intent           turn.Intent       `json:"intent"`
	SideEffects      []turn.SideEffect `json:"requested_side_effects"`
	Params           map[string]any    `json:"extracted_params"`
	RequiresFollowup bool              `json:"requires_followup"`
	MainResult       string            `json:"main_result,omitempty"`
}

// Plan never fails. Provider errors and malformed output yield an empty plan.
func (p *Planner) Plan(ctx context.Context, snap turn.Snapshot) (plan turn.Plan) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("chat_id", snap.ChatID).Msg("planner panicked")
			plan = turn.EmptyPlan()
		}
	}()

	pc := planContext{
		UserInput:        snap.UserInput,
		Intent:           snap.Intent,
		SideEffects:      snap.SideEffects,
		Params:           snap.Params,
		RequiresFollowup: snap.RequiresFollowup,
		MainResult:       describeResult(snap.Primary),
	}
	raw, err := json.Marshal(pc)
	if err != nil {
		return turn.EmptyPlan()
	}
	resp, err := p.provider.Respond(ctx, brain.Request{
		Task:     brain.TaskPlan,
		System:   fmt.Sprintf(systemPrompt, snap.Intent),
		Messages: []brain.Message{{Role: string(turn.RoleUser), Content: string(raw)}},
		JSON:     true,
	})
	if err != nil {
		log.Warn().Err(err).Str("chat_id", snap.ChatID).Msg("planning failed, continuing without plan")
		return turn.EmptyPlan()
	}

	parsed, err := Parse(resp.Text)
	if err != nil {
		log.Warn().Err(err).Str("chat_id", snap.ChatID).Msg("plan output malformed, continuing without plan")
		return turn.EmptyPlan()
	}
	return mergeRequested(parsed, snap)
}

type rawPlan struct {
	Summary     string              `json:"plan_summary"`
	Subtasks    []turn.SubtaskSpec  `json:"subtasks"`
	PostActions []rawSideEffectSpec `json:"post_actions"`
}

type rawSideEffectSpec struct {
	Type   string         `json:"type"`
	Params map[string]any `json:"params"`
}

// Parse validates provider text against the plan schema and sanitizes it.
func Parse(text string) (turn.Plan, error) {
	obj, err := brain.ExtractJSONObject(text)
	if err != nil {
		return turn.Plan{}, err
	}
	var doc map[string]any
	if err := json.Unmarshal([]byte(obj), &doc); err != nil {
		return turn.Plan{}, fmt.Errorf("decode plan: %w", err)
	}
	if _, ok := doc["post_actions"]; !ok {
		if v, ok := doc["side_effects"]; ok {
			doc["post_actions"] = v
		}
	}
	if _, ok := doc["plan_summary"]; !ok {
		if v, ok := doc["summary"]; ok {
			doc["plan_summary"] = v
		}
	}

	res, err := planSchema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return turn.Plan{}, fmt.Errorf("validate plan: %w", err)
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return turn.Plan{}, fmt.Errorf("plan schema: %s", strings.Join(msgs, "; "))
	}

	normalized, err := json.Marshal(doc)
	if err != nil {
		return turn.Plan{}, err
	}
	var rp rawPlan
	if err := json.Unmarshal(normalized, &rp); err != nil {
		return turn.Plan{}, fmt.Errorf("decode plan: %w", err)
	}
	return sanitize(rp), nil
}

// sanitize applies the anti-loop deny-list and restricts side effects to the
// closed set.
func sanitize(rp rawPlan) turn.Plan {
	plan := turn.EmptyPlan()
	plan.Summary = strings.TrimSpace(rp.Summary)

	ids := make(map[string]struct{}, len(rp.Subtasks))
	next := 1
	for _, st := range rp.Subtasks {
		if len(plan.Subtasks) >= MaxSubtasks {
			break
		}
		st.Type = turn.SubtaskType(strings.ToLower(strings.TrimSpace(string(st.Type))))
		st.Action = strings.TrimSpace(st.Action)
		if IsDenied(string(st.Type)) || IsDenied(st.Action) {
			continue
		}
		switch st.Type {
		case turn.SubtaskAction:
			if st.Action == "" {
				continue
			}
		case turn.SubtaskExplain:
			if strings.TrimSpace(st.Question) == "" {
				st.Question = "Explain the result."
			}
		default:
			continue
		}

		st.ID = strings.TrimSpace(st.ID)
		if st.ID != "" {
			if _, dup := ids[st.ID]; dup {
				continue
			}
		} else {
			for {
				st.ID = fmt.Sprintf("s%d", next)
				next++
				if _, taken := ids[st.ID]; !taken {
					break
				}
			}
		}

		requires := st.Requires[:0:0]
		for _, dep := range st.Requires {
			if _, ok := ids[dep]; ok {
				requires = append(requires, dep)
			}
		}
		st.Requires = requires
		ids[st.ID] = struct{}{}
		plan.Subtasks = append(plan.Subtasks, st)
	}

	for _, pa := range rp.PostActions {
		e, ok := turn.ParseSideEffect(pa.Type)
		if !ok {
			continue
		}
		plan.SideEffects = append(plan.SideEffects, turn.SideEffectSpec{Type: e, Params: turn.CloneParams(pa.Params)})
	}
	return plan
}

// IsDenied reports whether label re-invokes a primary task category.
func IsDenied(label string) bool {
	return turn.IsPrimaryCategory(label)
}

// mergeRequested appends requested side effects the provider left out.
func mergeRequested(plan turn.Plan, snap turn.Snapshot) turn.Plan {
	present := make(map[turn.SideEffect]bool, len(plan.SideEffects))
	for _, se := range plan.SideEffects {
		present[se.Type] = true
	}
	for _, e := range snap.SideEffects {
		if present[e] {
			continue
		}
		plan.SideEffects = append(plan.SideEffects, turn.SideEffectSpec{Type: e, Params: paramsFor(e, snap.Params)})
		present[e] = true
	}
	// An email may attach the export, so exports go first.
	sort.SliceStable(plan.SideEffects, func(i, j int) bool {
		return plan.SideEffects[i].Type == turn.SideEffectExport && plan.SideEffects[j].Type != turn.SideEffectExport
	})
	return plan
}

func paramsFor(e turn.SideEffect, extracted map[string]any) map[string]any {
	params := map[string]any{}
	switch e {
	case turn.SideEffectExport:
		if f := turn.StringParam(extracted, "format"); f != "" {
			params["format"] = f
		}
	case turn.SideEffectEmail:
		if to := turn.StringParam(extracted, "email_to"); to != "" {
			params["to"] = to
		}
	}
	return params
}

func describeResult(r turn.PrimaryResult) string {
	switch v := r.(type) {
	case nil:
		return ""
	case turn.DataQueryResult:
		if v.Rejected() {
			return "query rejected: " + v.Rejection
		}
		return fmt.Sprintf("%d rows fetched", v.RowCount)
	case turn.FailureResult:
		return "main task failed"
	default:
		return string(r.Intent()) + " completed"
	}
}
