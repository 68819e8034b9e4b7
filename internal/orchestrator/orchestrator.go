// Package orchestrator drives one conversational turn through its stages.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ent0n29/horizon/internal/handlers"
	"github.com/ent0n29/horizon/internal/memory"
	"github.com/ent0n29/horizon/internal/observability"
	horizonotel "github.com/ent0n29/horizon/internal/otel"
	"github.com/ent0n29/horizon/internal/turn"
)

var tracer = horizonotel.Tracer("github.com/ent0n29/horizon/internal/orchestrator")

const DefaultHistoryLimit = 10

var (
	ErrChatIDRequired = errors.New("chat_id is required")
	ErrStepBudget     = errors.New("turn exceeded its step budget")
)

// Memory is the conversation store seen by the controller.
type Memory interface {
	Append(ctx context.Context, chatID, role, content string, payload json.RawMessage) memory.Record
	Recent(ctx context.Context, chatID string, limit int) []memory.Message
}

type Classifier interface {
	Classify(ctx context.Context, input string, history []turn.Message) turn.Decision
}

type Router interface {
	Lookup(intent turn.Intent) (handlers.Handler, bool)
}

type Planner interface {
	Plan(ctx context.Context, snap turn.Snapshot) turn.Plan
}

type Dispatcher interface {
	Run(ctx context.Context, st *turn.State) error
}

type Reducer interface {
	Reduce(ctx context.Context, snap turn.Snapshot) turn.FinalResponse
}

// Sessions serializes turns within one chat.
type Sessions interface {
	Acquire(ctx context.Context, chatID, turnID string) (func(), error)
}

// Deps are the collaborators of a Controller. Sessions and Metrics may be nil.
type Deps struct {
	Memory       Memory
	Classifier   Classifier
	Router       Router
	Planner      Planner
	Dispatcher   Dispatcher
	Reducer      Reducer
	Sessions     Sessions
	Metrics      *observability.Metrics
	HistoryLimit int
}

// Controller runs turns. It is safe for concurrent use across chats.
type Controller struct {
	deps  Deps
	table Transitions
	newID func() string
}

type Option func(*Controller)

// WithTransitions replaces the transition table.
func WithTransitions(t Transitions) Option {
	return func(c *Controller) { c.table = t }
}

func New(deps Deps, opts ...Option) (*Controller, error) {
	if deps.Memory == nil || deps.Classifier == nil || deps.Router == nil ||
		deps.Planner == nil || deps.Dispatcher == nil || deps.Reducer == nil {
		return nil, errors.New("orchestrator: missing collaborator")
	}
	if deps.HistoryLimit <= 0 {
		deps.HistoryLimit = DefaultHistoryLimit
	}
	c := &Controller{
		deps:  deps,
		table: DefaultTransitions(),
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.table.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// run is the per-turn scratch space owned by one goroutine.
type run struct {
	st       *turn.State
	handler  handlers.Handler
	response turn.FinalResponse
	visited  []State
}

// Run processes one user input to completion. The only errors are caller
// errors (empty chat id) or a cancelled wait for the chat's previous turn;
// once started, a turn ignores cancellation and always persists.
func (c *Controller) Run(ctx context.Context, chatID, input string) (turn.FinalResponse, error) {
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return turn.FinalResponse{}, ErrChatIDRequired
	}
	turnID := c.newID()
	if c.deps.Sessions != nil {
		release, err := c.deps.Sessions.Acquire(ctx, chatID, turnID)
		if err != nil {
			return turn.FinalResponse{}, err
		}
		defer release()
	}

	ctx = context.WithoutCancel(ctx)
	ctx, span := tracer.Start(ctx, "turn",
		trace.WithAttributes(attribute.String("chat.id", chatID), attribute.String("turn.id", turnID)))
	defer span.End()

	started := time.Now()
	r := &run{st: turn.NewState(turnID, chatID, input, nil)}
	if err := c.walk(ctx, r); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return turn.FinalResponse{}, err
	}
	c.deps.Metrics.ObserveStage("turn_total", time.Since(started))

	outcome := outcomeOf(r.st.Primary())
	c.deps.Metrics.ObserveTurn(string(r.st.Intent()), outcome)
	span.SetAttributes(attribute.String("turn.intent", string(r.st.Intent())), attribute.String("turn.outcome", outcome))
	log.Info().
		Str("chat_id", chatID).
		Str("turn_id", turnID).
		Str("intent", string(r.st.Intent())).
		Str("outcome", outcome).
		Dur("elapsed", time.Since(started)).
		Func(horizonotel.LogTraceFields(ctx)).
		Msg("turn complete")
	return r.response, nil
}

func (c *Controller) walk(ctx context.Context, r *run) error {
	state := StateStart
	budget := c.table.MaxSteps()
	for steps := 0; state != StateComplete; steps++ {
		if steps >= budget {
			return fmt.Errorf("%w after %v", ErrStepBudget, r.visited)
		}
		r.visited = append(r.visited, state)
		ev := c.step(ctx, state, r)
		next, err := c.table.Next(state, ev)
		if err != nil {
			return err
		}
		state = next
	}
	r.visited = append(r.visited, StateComplete)
	return nil
}

func (c *Controller) step(ctx context.Context, state State, r *run) Event {
	switch state {
	case StateStart:
		return c.timed(ctx, "load_history", func(ctx context.Context) Event { return c.start(ctx, r) })
	case StateClassify:
		return c.timed(ctx, "classify", func(ctx context.Context) Event { return c.classify(ctx, r) })
	case StateRoute:
		return c.route(r)
	case StateHandle:
		return c.timed(ctx, "handle", func(ctx context.Context) Event { return c.handle(ctx, r) })
	case StatePlanCheck:
		if r.st.NeedsPlan() {
			return EventNeedsPlan
		}
		return EventNoPlan
	case StatePlan:
		return c.timed(ctx, "plan", func(ctx context.Context) Event { return c.plan(ctx, r) })
	case StateDispatch:
		return c.timed(ctx, "dispatch", func(ctx context.Context) Event { return c.dispatch(ctx, r) })
	case StateReduce:
		return c.timed(ctx, "reduce", func(ctx context.Context) Event { return c.reduce(ctx, r) })
	case StatePersist:
		return c.timed(ctx, "persist", func(ctx context.Context) Event { return c.persist(ctx, r) })
	}
	return ""
}

func (c *Controller) timed(ctx context.Context, stage string, fn func(context.Context) Event) Event {
	ctx, span := tracer.Start(ctx, "turn."+stage)
	defer span.End()
	started := time.Now()
	ev := fn(ctx)
	c.deps.Metrics.ObserveStage(stage, time.Since(started))
	span.SetAttributes(attribute.String("turn.event", string(ev)))
	return ev
}

func (c *Controller) start(ctx context.Context, r *run) Event {
	recent := c.deps.Memory.Recent(ctx, r.st.ChatID, c.deps.HistoryLimit)
	history := make([]turn.Message, 0, len(recent))
	for _, m := range recent {
		history = append(history, turn.Message{Role: turn.Role(m.Role), Content: m.Content})
	}
	r.st = turn.NewState(r.st.TurnID, r.st.ChatID, r.st.UserInput(), history)
	c.deps.Memory.Append(ctx, r.st.ChatID, string(turn.RoleUser), r.st.UserInput(), nil)
	return EventHistoryLoaded
}

func (c *Controller) classify(ctx context.Context, r *run) Event {
	d := c.deps.Classifier.Classify(ctx, r.st.UserInput(), r.st.History)
	if err := r.st.ApplyDecision(d); err != nil {
		log.Warn().Err(err).Str("chat_id", r.st.ChatID).Msg("classifier decision refused")
		_ = r.st.ApplyDecision(turn.UnresolvedDecision())
	}
	return EventClassified
}

func (c *Controller) route(r *run) Event {
	h, ok := c.deps.Router.Lookup(r.st.Intent())
	if !ok {
		log.Error().Str("intent", string(r.st.Intent())).Msg("no handler registered")
	}
	r.handler = h
	return EventRouted
}

func (c *Controller) handle(ctx context.Context, r *run) Event {
	intent := r.st.Intent()
	res, err := c.invoke(ctx, r)
	if err != nil {
		log.Error().Err(err).Str("chat_id", r.st.ChatID).Str("intent", string(intent)).Msg("handler failed")
		res = turn.FailureResult{For: intent, Reason: err.Error()}
	}
	if err := r.st.SetPrimary(res); err != nil {
		log.Error().Err(err).Str("intent", string(intent)).Msg("handler result refused")
		_ = r.st.SetPrimary(turn.FailureResult{For: intent, Reason: err.Error()})
	}
	if q, ok := r.st.Primary().(turn.DataQueryResult); ok && q.Rejected() {
		c.deps.Metrics.ObserveRejection(turn.ErrCodeQueryRejected)
	}
	return EventHandled
}

func (c *Controller) invoke(ctx context.Context, r *run) (res turn.PrimaryResult, err error) {
	if r.handler == nil {
		return nil, fmt.Errorf("no handler for intent %q", r.st.Intent())
	}
	defer func() {
		if rec := recover(); rec != nil {
			res, err = nil, fmt.Errorf("handler panic: %v", rec)
		}
	}()
	return r.handler.Handle(ctx, r.st.Snapshot())
}

func (c *Controller) plan(ctx context.Context, r *run) Event {
	p := c.deps.Planner.Plan(ctx, r.st.Snapshot())
	if p.Empty() {
		return EventPlanEmpty
	}
	r.st.SetPlan(p)
	return EventPlanned
}

func (c *Controller) dispatch(ctx context.Context, r *run) Event {
	if err := c.deps.Dispatcher.Run(ctx, r.st); err != nil {
		log.Error().Err(err).Str("chat_id", r.st.ChatID).Str("turn_id", r.st.TurnID).Msg("dispatch stopped early")
	}
	return EventDispatched
}

func (c *Controller) reduce(ctx context.Context, r *run) Event {
	resp := c.deps.Reducer.Reduce(ctx, r.st.Snapshot())
	resp.TurnID = r.st.TurnID
	resp.ChatID = r.st.ChatID
	resp.Intent = r.st.Intent()
	r.st.FinalText = resp.Text
	r.st.Payload = resp.Payload
	r.response = resp
	return EventReduced
}

func (c *Controller) persist(ctx context.Context, r *run) Event {
	c.deps.Memory.Append(ctx, r.st.ChatID, string(turn.RoleAssistant), r.st.FinalText, r.st.Payload)
	return EventPersisted
}

func outcomeOf(p turn.PrimaryResult) string {
	switch res := p.(type) {
	case turn.FailureResult:
		return "failed"
	case turn.CannedResult:
		return "canned"
	case turn.DataQueryResult:
		if res.Rejected() {
			return "rejected"
		}
	}
	return "ok"
}
