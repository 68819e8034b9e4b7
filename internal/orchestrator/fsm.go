package orchestrator

import (
	"errors"
	"fmt"
	"sort"
)

// State is one stage of the turn pipeline.
type State string

const (
	StateStart     State = "start"
	StateClassify  State = "classify"
	StateRoute     State = "route"
	StateHandle    State = "handle"
	StatePlanCheck State = "plan_check"
	StatePlan      State = "plan"
	StateDispatch  State = "dispatch"
	StateReduce    State = "reduce"
	StatePersist   State = "persist"
	StateComplete  State = "complete"
)

// Event is emitted by a stage when it finishes.
type Event string

const (
	EventHistoryLoaded Event = "history_loaded"
	EventClassified    Event = "classified"
	EventRouted        Event = "routed"
	EventHandled       Event = "handled"
	EventNeedsPlan     Event = "needs_plan"
	EventNoPlan        Event = "no_plan"
	EventPlanned       Event = "planned"
	EventPlanEmpty     Event = "plan_empty"
	EventDispatched    Event = "dispatched"
	EventReduced       Event = "reduced"
	EventPersisted     Event = "persisted"
)

var ErrInvalidTransition = errors.New("invalid turn transition")

// Transitions maps State x Event to the next State.
type Transitions map[State]map[Event]State

// DefaultTransitions is the turn pipeline. PlanCheck and Plan are the only
// branches.
func DefaultTransitions() Transitions {
	return Transitions{
		StateStart:     {EventHistoryLoaded: StateClassify},
		StateClassify:  {EventClassified: StateRoute},
		StateRoute:     {EventRouted: StateHandle},
		StateHandle:    {EventHandled: StatePlanCheck},
		StatePlanCheck: {EventNeedsPlan: StatePlan, EventNoPlan: StateReduce},
		StatePlan:      {EventPlanned: StateDispatch, EventPlanEmpty: StateReduce},
		StateDispatch:  {EventDispatched: StateReduce},
		StateReduce:    {EventReduced: StatePersist},
		StatePersist:   {EventPersisted: StateComplete},
		StateComplete:  {},
	}
}

func (t Transitions) Next(from State, ev Event) (State, error) {
	to, ok := t[from][ev]
	if !ok {
		return from, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, ev, from)
	}
	return to, nil
}

// Validate checks that every target is a known state, that Complete is
// terminal and reachable from Start, and that no other state is a dead end.
func (t Transitions) Validate() error {
	if _, ok := t[StateStart]; !ok {
		return fmt.Errorf("%w: missing start state", ErrInvalidTransition)
	}
	if out, ok := t[StateComplete]; !ok || len(out) != 0 {
		return fmt.Errorf("%w: complete must be a terminal state", ErrInvalidTransition)
	}
	for _, from := range t.states() {
		out := t[from]
		if from != StateComplete && len(out) == 0 {
			return fmt.Errorf("%w: %s has no outgoing events", ErrInvalidTransition, from)
		}
		for ev, to := range out {
			if _, ok := t[to]; !ok {
				return fmt.Errorf("%w: %s on %s targets unknown state %s", ErrInvalidTransition, ev, from, to)
			}
		}
	}

	seen := map[State]bool{StateStart: true}
	queue := []State{StateStart}
	for len(queue) > 0 {
		s := queue[0]
		queue = queue[1:]
		for _, to := range t[s] {
			if !seen[to] {
				seen[to] = true
				queue = append(queue, to)
			}
		}
	}
	if !seen[StateComplete] {
		return fmt.Errorf("%w: complete is unreachable", ErrInvalidTransition)
	}
	return nil
}

// MaxSteps bounds a walk through the table: a path visiting every state once.
func (t Transitions) MaxSteps() int { return len(t) }

func (t Transitions) states() []State {
	out := make([]State, 0, len(t))
	for s := range t {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
