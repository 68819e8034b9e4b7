package turn

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrIntentAlreadySet = errors.New("turn intent already set")
	ErrIntentNotSet     = errors.New("turn intent not set")
	ErrIntentMismatch   = errors.New("primary result does not match turn intent")
	ErrLoopBound        = errors.New("subtask results exceed plan bound")
	ErrSubtaskOrder     = errors.New("subtask executed out of plan order")
)

// Role is the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one prior conversation message.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Decision is the sanitized output of intent classification.
type Decision struct {
	Intent           Intent         `json:"intent"`
	SideEffects      []SideEffect   `json:"requested_side_effects"`
	Params           map[string]any `json:"extracted_params"`
	RequiresFollowup bool           `json:"requires_followup"`
}

// UnresolvedDecision is the degraded decision used when classification fails.
func UnresolvedDecision() Decision {
	return Decision{
		Intent:      IntentUnresolved,
		SideEffects: []SideEffect{},
		Params:      map[string]any{},
	}
}

// State is the context threaded through one in-flight turn. It is owned by a
// single goroutine and discarded when the turn completes.
type State struct {
	TurnID  string
	ChatID  string
	History []Message

	userInput string

	intentSet        bool
	intent           Intent
	sideEffects      []SideEffect
	params           map[string]any
	requiresFollowup bool

	primary PrimaryResult
	plan    *Plan

	subtaskResults    []SubtaskResult
	sideEffectResults []SideEffectResult
	aggregate         *Aggregate

	FinalText string
	Payload   json.RawMessage
}

func NewState(turnID, chatID, userInput string, history []Message) *State {
	return &State{
		TurnID:    turnID,
		ChatID:    chatID,
		History:   append([]Message(nil), history...),
		userInput: userInput,
		params:    map[string]any{},
	}
}

func (s *State) UserInput() string { return s.userInput }

func (s *State) Intent() Intent { return s.intent }

// ApplyDecision assigns the intent and its companions. It may succeed only once
// per turn.
func (s *State) ApplyDecision(d Decision) error {
	if s.intentSet {
		return ErrIntentAlreadySet
	}
	if !d.Intent.Valid() {
		return fmt.Errorf("apply decision: invalid intent %q", d.Intent)
	}
	s.intentSet = true
	s.intent = d.Intent
	s.sideEffects = append([]SideEffect(nil), d.SideEffects...)
	s.params = CloneParams(d.Params)
	s.requiresFollowup = d.RequiresFollowup
	return nil
}

// SetPrimary stores the handler output. Its tag must equal the turn intent.
func (s *State) SetPrimary(r PrimaryResult) error {
	if !s.intentSet {
		return ErrIntentNotSet
	}
	if r == nil || r.Intent() != s.intent {
		return ErrIntentMismatch
	}
	s.primary = r
	return nil
}

func (s *State) Primary() PrimaryResult { return s.primary }

// NeedsPlan is the plan-check branch condition. A rejected statement ends
// the data-query path, so none of its follow-ups run.
func (s *State) NeedsPlan() bool {
	if q, ok := s.primary.(DataQueryResult); ok && q.Rejected() {
		return false
	}
	return s.requiresFollowup || len(s.sideEffects) > 0 || s.plan != nil
}

func (s *State) SetPlan(p Plan) {
	s.plan = &p
	s.subtaskResults = make([]SubtaskResult, 0, len(p.Subtasks))
}

func (s *State) Plan() (Plan, bool) {
	if s.plan == nil {
		return Plan{}, false
	}
	return *s.plan, true
}

// RecordSubtask appends the result of the next planned subtask. Results must
// arrive in plan order and never exceed the plan.
func (s *State) RecordSubtask(r SubtaskResult) error {
	if s.plan == nil || len(s.subtaskResults) >= len(s.plan.Subtasks) {
		return ErrLoopBound
	}
	want := s.plan.Subtasks[len(s.subtaskResults)].ID
	if r.ID != want {
		return fmt.Errorf("%w: got %q want %q", ErrSubtaskOrder, r.ID, want)
	}
	s.subtaskResults = append(s.subtaskResults, r)
	return nil
}

func (s *State) RecordSideEffect(r SideEffectResult) error {
	if s.plan == nil || len(s.sideEffectResults) >= len(s.plan.SideEffects) {
		return ErrLoopBound
	}
	s.sideEffectResults = append(s.sideEffectResults, r)
	return nil
}

func (s *State) SetAggregate(a Aggregate) { s.aggregate = &a }

func (s *State) SubtaskResults() []SubtaskResult {
	return append([]SubtaskResult(nil), s.subtaskResults...)
}

func (s *State) SideEffectResults() []SideEffectResult {
	return append([]SideEffectResult(nil), s.sideEffectResults...)
}

// Snapshot returns a read-only copy for collaborators that must not mutate
// the turn.
func (s *State) Snapshot() Snapshot {
	snap := Snapshot{
		TurnID:            s.TurnID,
		ChatID:            s.ChatID,
		UserInput:         s.userInput,
		History:           append([]Message(nil), s.History...),
		Intent:            s.intent,
		SideEffects:       append([]SideEffect(nil), s.sideEffects...),
		Params:            CloneParams(s.params),
		RequiresFollowup:  s.requiresFollowup,
		Primary:           s.primary,
		SubtaskResults:    s.SubtaskResults(),
		SideEffectResults: s.SideEffectResults(),
	}
	if s.plan != nil {
		p := *s.plan
		snap.Plan = &p
	}
	if s.aggregate != nil {
		a := *s.aggregate
		snap.Aggregate = &a
	}
	return snap
}

// Snapshot is an immutable view of a turn at one point in the pipeline.
type Snapshot struct {
	TurnID            string
	ChatID            string
	UserInput         string
	History           []Message
	Intent            Intent
	SideEffects       []SideEffect
	Params            map[string]any
	RequiresFollowup  bool
	Primary           PrimaryResult
	Plan              *Plan
	SubtaskResults    []SubtaskResult
	SideEffectResults []SideEffectResult
	Aggregate         *Aggregate
}

// Requested reports whether the classifier asked for side effect e.
func (s Snapshot) Requested(e SideEffect) bool {
	for _, v := range s.SideEffects {
		if v == e {
			return true
		}
	}
	return false
}

func trim(v string) string { return strings.TrimSpace(v) }
