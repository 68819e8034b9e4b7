// Package dispatch executes a turn's plan: subtasks in declared order, then
// an aggregation step, then side effects in declared order.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/ent0n29/horizon/internal/actions"
	"github.com/ent0n29/horizon/internal/brain"
	"github.com/ent0n29/horizon/internal/turn"
)

// Phase is a dispatcher state.
type Phase int

const (
	PhasePending Phase = iota
	PhaseExecuting
	PhaseAggregating
	PhaseSideEffects
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhasePending:
		return "pending"
	case PhaseExecuting:
		return "executing"
	case PhaseAggregating:
		return "aggregating"
	case PhaseSideEffects:
		return "executing_side_effects"
	case PhaseDone:
		return "done"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// SideEffectRunner is satisfied by *actions.Executor.
type SideEffectRunner interface {
	Execute(ctx context.Context, spec turn.SideEffectSpec, in actions.Input) turn.SideEffectResult
}

// Observer receives one call per executed side effect.
type Observer interface {
	ObserveSideEffect(effect, status string)
}

type Option func(*Dispatcher)

func WithObserver(o Observer) Option {
	return func(d *Dispatcher) { d.observer = o }
}

type Dispatcher struct {
	provider brain.Provider
	effects  SideEffectRunner
	observer Observer
}

func New(provider brain.Provider, effects SideEffectRunner, opts ...Option) *Dispatcher {
	d := &Dispatcher{provider: provider, effects: effects}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run drives the plan on st to completion. Individual failures are recorded
// on st; only a broken loop bound or ordering violation returns an error.
func (d *Dispatcher) Run(ctx context.Context, st *turn.State) error {
	plan, ok := st.Plan()
	if !ok {
		return nil
	}
	bound := plan.Bound()
	steps := 0
	resolved := map[string]any{}

	phase := PhasePending
	for phase != PhaseDone {
		if steps > bound {
			return fmt.Errorf("%w: %d steps for bound %d", turn.ErrLoopBound, steps, bound)
		}
		switch phase {
		case PhasePending:
			phase = PhaseExecuting

		case PhaseExecuting:
			done := st.SubtaskResults()
			if len(done) >= len(plan.Subtasks) {
				phase = PhaseAggregating
				continue
			}
			spec := plan.Subtasks[len(done)]
			res := d.runSubtask(ctx, st.Snapshot(), spec, done)
			if err := st.RecordSubtask(res); err != nil {
				return err
			}
			steps++

		case PhaseAggregating:
			agg := Aggregate(st.Snapshot())
			st.SetAggregate(agg)
			for k, v := range agg.Resolved {
				resolved[k] = v
			}
			phase = PhaseSideEffects

		case PhaseSideEffects:
			idx := len(st.SideEffectResults())
			if idx >= len(plan.SideEffects) {
				phase = PhaseDone
				continue
			}
			spec := plan.SideEffects[idx]
			res := d.execute(ctx, spec, actions.Input{Snapshot: st.Snapshot(), Resolved: turn.CloneParams(resolved)})
			if err := st.RecordSideEffect(res); err != nil {
				return err
			}
			if res.Type == turn.SideEffectExport && res.Status == turn.StatusSuccess {
				if path, ok := res.Output["path"].(string); ok {
					resolved["attachment"] = path
				}
			}
			if d.observer != nil {
				d.observer.ObserveSideEffect(string(res.Type), string(res.Status))
			}
			steps++
		}
	}
	return nil
}

func (d *Dispatcher) runSubtask(ctx context.Context, snap turn.Snapshot, spec turn.SubtaskSpec, done []turn.SubtaskResult) (res turn.SubtaskResult) {
	res = turn.SubtaskResult{ID: spec.ID, Type: spec.Type, Action: spec.Action}
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("subtask", spec.ID).Msg("subtask panicked")
			res.Status = turn.StatusFailed
			res.Error = fmt.Sprintf("panic: %v", r)
			res.Output = nil
		}
	}()

	for _, dep := range spec.Requires {
		for _, r := range done {
			if r.ID == dep && r.Status != turn.StatusSuccess {
				res.Status = turn.StatusFailed
				res.Error = fmt.Sprintf("dependency %s did not succeed", dep)
				return res
			}
		}
	}

	switch spec.Type {
	case turn.SubtaskExplain:
		text, err := d.explain(ctx, snap, spec.Question)
		if err != nil {
			res.Status = turn.StatusFailed
			res.Error = err.Error()
			return res
		}
		res.Status = turn.StatusSuccess
		res.Output = map[string]any{"text": text}
		return res

	case turn.SubtaskAction:
		effect, ok := actions.ActionSpec(spec.Action, spec.Params)
		if !ok {
			res.Status = turn.StatusIgnored
			res.Error = fmt.Sprintf("unknown action %q", spec.Action)
			return res
		}
		resolved := Aggregate(snap).Resolved
		out := d.execute(ctx, effect, actions.Input{Snapshot: snap, Resolved: resolved})
		res.Status = out.Status
		res.Output = out.Output
		if out.Status != turn.StatusSuccess {
			res.Error = out.Detail
		}
		if n, ok := out.Output["rows"].(int); ok {
			res.Rows = n
		}
		return res

	default:
		res.Status = turn.StatusIgnored
		res.Error = fmt.Sprintf("unknown subtask type %q", spec.Type)
		return res
	}
}

func (d *Dispatcher) execute(ctx context.Context, spec turn.SideEffectSpec, in actions.Input) (res turn.SideEffectResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("side_effect", string(spec.Type)).Msg("side effect runner panicked")
			res = turn.SideEffectResult{Type: spec.Type, Status: turn.StatusFailed, Detail: fmt.Sprintf("panic: %v", r)}
		}
	}()
	return d.effects.Execute(ctx, spec, in)
}

const explainPrompt = `Answer the follow-up question about the result below in two or three sentences. Use only the data given.`

func (d *Dispatcher) explain(ctx context.Context, snap turn.Snapshot, question string) (string, error) {
	result, err := json.Marshal(snap.Primary)
	if err != nil {
		return "", err
	}
	resp, err := d.provider.Respond(ctx, brain.Request{
		Task:   brain.TaskExplain,
		System: explainPrompt,
		Messages: []brain.Message{
			{Role: string(turn.RoleUser), Content: snap.UserInput},
			{Role: string(turn.RoleUser), Content: "Result: " + string(result)},
			{Role: string(turn.RoleUser), Content: question},
		},
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}
