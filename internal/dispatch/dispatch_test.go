package dispatch

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/horizon/internal/actions"
	"github.com/ent0n29/horizon/internal/brain"
	"github.com/ent0n29/horizon/internal/brain/braintest"
	"github.com/ent0n29/horizon/internal/turn"
)

type recordingRunner struct {
	mu    sync.Mutex
	specs []turn.SideEffectSpec
	ins   []actions.Input
	panic bool
}

func (r *recordingRunner) Execute(_ context.Context, spec turn.SideEffectSpec, in actions.Input) turn.SideEffectResult {
	r.mu.Lock()
	r.specs = append(r.specs, spec)
	r.ins = append(r.ins, in)
	r.mu.Unlock()
	if r.panic {
		panic("runner down")
	}
	if spec.Type == turn.SideEffectExport {
		return turn.SideEffectResult{Type: spec.Type, Status: turn.StatusSuccess, Output: map[string]any{"path": "/tmp/x.xlsx", "format": "excel", "rows": 2}}
	}
	return turn.SideEffectResult{Type: spec.Type, Status: turn.StatusSuccess, Output: map[string]any{}}
}

type countingObserver struct {
	mu   sync.Mutex
	seen []string
}

func (c *countingObserver) ObserveSideEffect(effect, status string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen = append(c.seen, effect+":"+status)
}

func stateWithPlan(t *testing.T, d turn.Decision, primary turn.PrimaryResult, plan turn.Plan) *turn.State {
	t.Helper()
	st := turn.NewState("turn-1", "chat-1", "list projects", nil)
	require.NoError(t, st.ApplyDecision(d))
	require.NoError(t, st.SetPrimary(primary))
	st.SetPlan(plan)
	return st
}

func TestRunRecordsEverySubtaskEvenWhenOneFails(t *testing.T) {
	p := braintest.New().On(brain.TaskExplain,
		braintest.Reply{Err: errors.New("provider down")},
		braintest.Reply{Text: "Two projects are active."},
	)
	runner := &recordingRunner{}
	plan := turn.Plan{
		Subtasks: []turn.SubtaskSpec{
			{ID: "s1", Type: turn.SubtaskExplain, Question: "why?"},
			{ID: "s2", Type: turn.SubtaskAction, Action: "notify_user"},
			{ID: "s3", Type: turn.SubtaskAction, Action: "launch_rocket"},
			{ID: "s4", Type: turn.SubtaskExplain, Question: "so what?"},
			{ID: "s5", Type: turn.SubtaskExplain, Question: "after s1", Requires: []string{"s1"}},
		},
		SideEffects: []turn.SideEffectSpec{},
	}
	st := stateWithPlan(t, turn.Decision{Intent: turn.IntentDataQuery, RequiresFollowup: true}, turn.DataQueryResult{RowCount: 2}, plan)

	require.NoError(t, New(p, runner).Run(context.Background(), st))

	results := st.SubtaskResults()
	require.Len(t, results, len(plan.Subtasks))
	for i, r := range results {
		assert.Equal(t, plan.Subtasks[i].ID, r.ID)
	}
	assert.Equal(t, turn.StatusFailed, results[0].Status)
	assert.Equal(t, turn.StatusSuccess, results[1].Status)
	assert.Equal(t, turn.StatusIgnored, results[2].Status)
	assert.Equal(t, turn.StatusSuccess, results[3].Status)
	assert.Equal(t, "Two projects are active.", results[3].Output["text"])
	assert.Equal(t, turn.StatusFailed, results[4].Status)
	assert.Contains(t, results[4].Error, "s1")

	snap := st.Snapshot()
	require.NotNil(t, snap.Aggregate)
	assert.Equal(t, 5, snap.Aggregate.TotalSubtasks)
	assert.Equal(t, 2, snap.Aggregate.Completed)
	assert.Equal(t, 2, snap.Aggregate.Failed)
	assert.Len(t, p.Calls(brain.TaskExplain), 2)
}

func TestRunSideEffectsInOrderWithResolvedParams(t *testing.T) {
	runner := &recordingRunner{}
	obs := &countingObserver{}
	plan := turn.Plan{
		Subtasks: []turn.SubtaskSpec{},
		SideEffects: []turn.SideEffectSpec{
			{Type: turn.SideEffectExport, Params: map[string]any{"format": "excel"}},
			{Type: turn.SideEffectEmail},
			{Type: turn.SideEffectNotify},
		},
	}
	st := stateWithPlan(t, turn.Decision{
		Intent:      turn.IntentDataQuery,
		SideEffects: []turn.SideEffect{turn.SideEffectExport, turn.SideEffectEmail},
		Params:      map[string]any{"email_to": "ops@example.com"},
	}, turn.DataQueryResult{RowCount: 2}, plan)

	require.NoError(t, New(braintest.New(), runner, WithObserver(obs)).Run(context.Background(), st))

	require.Len(t, runner.specs, 3)
	assert.Equal(t, turn.SideEffectExport, runner.specs[0].Type)
	assert.Equal(t, turn.SideEffectEmail, runner.specs[1].Type)
	assert.Equal(t, "ops@example.com", runner.ins[1].Resolved["email_to"])
	assert.Equal(t, "/tmp/x.xlsx", runner.ins[1].Resolved["attachment"])
	assert.Nil(t, runner.ins[0].Resolved["attachment"])

	results := st.SideEffectResults()
	require.Len(t, results, 3)
	assert.Equal(t, []string{"export:success", "email:success", "notify:success"}, obs.seen)
}

func TestRunWithRealExecutorIgnoresUnknownSideEffect(t *testing.T) {
	dir := t.TempDir()
	exec := actions.New(actions.Config{ExportDir: filepath.Join(dir, "exports"), ArtifactDir: filepath.Join(dir, "artifacts")})
	plan := turn.Plan{
		Subtasks: []turn.SubtaskSpec{},
		SideEffects: []turn.SideEffectSpec{
			{Type: "fax"},
			{Type: turn.SideEffectExport, Params: map[string]any{"format": "excel"}},
		},
	}
	primary := turn.DataQueryResult{Columns: []string{"name"}, Rows: []map[string]any{{"name": "Apollo"}}, RowCount: 1}
	st := stateWithPlan(t, turn.Decision{Intent: turn.IntentDataQuery, SideEffects: []turn.SideEffect{turn.SideEffectExport}}, primary, plan)

	require.NoError(t, New(braintest.New(), exec).Run(context.Background(), st))

	results := st.SideEffectResults()
	require.Len(t, results, 2)
	assert.Equal(t, turn.StatusIgnored, results[0].Status)
	assert.Equal(t, turn.StatusSuccess, results[1].Status)
}

func TestRunRecoversRunnerPanics(t *testing.T) {
	runner := &recordingRunner{panic: true}
	plan := turn.Plan{
		Subtasks:    []turn.SubtaskSpec{{ID: "s1", Type: turn.SubtaskAction, Action: "notify"}},
		SideEffects: []turn.SideEffectSpec{{Type: turn.SideEffectNotify}},
	}
	st := stateWithPlan(t, turn.Decision{Intent: turn.IntentDataQuery, RequiresFollowup: true}, turn.DataQueryResult{}, plan)

	require.NoError(t, New(braintest.New(), runner).Run(context.Background(), st))

	require.Len(t, st.SubtaskResults(), 1)
	assert.Equal(t, turn.StatusFailed, st.SubtaskResults()[0].Status)
	require.Len(t, st.SideEffectResults(), 1)
	assert.Equal(t, turn.StatusFailed, st.SideEffectResults()[0].Status)
}

func TestRunWithoutPlanIsNoop(t *testing.T) {
	st := turn.NewState("turn-1", "chat-1", "hi", nil)
	require.NoError(t, st.ApplyDecision(turn.Decision{Intent: turn.IntentOutOfScope}))
	require.NoError(t, New(braintest.New(), &recordingRunner{}).Run(context.Background(), st))
	assert.Nil(t, st.Snapshot().Aggregate)
}

func TestAggregateResolvesFromSubtaskOutputs(t *testing.T) {
	snap := turn.Snapshot{
		SubtaskResults: []turn.SubtaskResult{
			{ID: "s1", Status: turn.StatusSuccess, Rows: 3, Output: map[string]any{"to": "lead@example.com"}},
			{ID: "s2", Status: turn.StatusSuccess, Rows: 4, Output: map[string]any{"path": "/tmp/a.csv", "format": "csv"}},
			{ID: "s3", Status: turn.StatusFailed, Output: map[string]any{"email": "ignored@example.com"}},
		},
	}
	agg := Aggregate(snap)
	assert.Equal(t, 3, agg.TotalSubtasks)
	assert.Equal(t, 2, agg.Completed)
	assert.Equal(t, 1, agg.Failed)
	assert.Equal(t, 7, agg.RowsTotal)
	assert.Equal(t, "lead@example.com", agg.Resolved["email_to"])
	assert.Equal(t, "/tmp/a.csv", agg.Resolved["attachment"])

	snap.Params = map[string]any{"email_to": "explicit@example.com"}
	assert.Equal(t, "explicit@example.com", Aggregate(snap).Resolved["email_to"])
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "executing_side_effects", PhaseSideEffects.String())
	assert.Equal(t, "done", PhaseDone.String())
}
