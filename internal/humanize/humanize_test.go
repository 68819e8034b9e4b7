package humanize

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/horizon/internal/brain"
	"github.com/ent0n29/horizon/internal/brain/braintest"
	"github.com/ent0n29/horizon/internal/turn"
)

func finishedTurn(t *testing.T, d turn.Decision, primary turn.PrimaryResult) *turn.State {
	t.Helper()
	st := turn.NewState("turn-1", "chat-1", "list active projects and export them", nil)
	require.NoError(t, st.ApplyDecision(d))
	require.NoError(t, st.SetPrimary(primary))
	return st
}

func activeProjects() turn.DataQueryResult {
	return turn.DataQueryResult{
		Query:     "SELECT name FROM projects WHERE status = 'active' LIMIT 30",
		Reasoning: "filter by status",
		Columns:   []string{"name"},
		Rows:      []map[string]any{{"name": "Apollo"}, {"name": "Borealis"}},
		RowCount:  2,
	}
}

func decodePayload(t *testing.T, raw json.RawMessage) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestReduceIncludesRowsAndSideEffects(t *testing.T) {
	st := finishedTurn(t, turn.Decision{Intent: turn.IntentDataQuery, SideEffects: []turn.SideEffect{turn.SideEffectExport}}, activeProjects())
	st.SetPlan(turn.Plan{Subtasks: []turn.SubtaskSpec{}, SideEffects: []turn.SideEffectSpec{{Type: turn.SideEffectExport, Params: map[string]any{"format": "excel"}}}})
	st.SetAggregate(turn.Aggregate{})
	require.NoError(t, st.RecordSideEffect(turn.SideEffectResult{Type: turn.SideEffectExport, Status: turn.StatusSuccess, Output: map[string]any{"path": "exports/a.xlsx"}}))

	p := braintest.New().Text(brain.TaskSummarize, "Two projects are active and the list was exported.")
	resp := New(p).Reduce(context.Background(), st.Snapshot())

	assert.Equal(t, "Two projects are active and the list was exported.", resp.Text)
	assert.Nil(t, resp.Error)
	assert.Equal(t, turn.IntentDataQuery, resp.Intent)

	payload := decodePayload(t, resp.Payload)
	assert.Equal(t, "data_query", payload["intent"])
	table := payload["table"].(map[string]any)
	assert.Len(t, table["rows"], 2)
	summary := payload["summary"].(map[string]any)
	assert.Equal(t, true, summary["exported"])
	assert.Equal(t, "exports/a.xlsx", summary["export_path"])
	effects := payload["side_effects"].([]any)
	require.Len(t, effects, 1)
	assert.Equal(t, "success", effects[0].(map[string]any)["status"])

	calls := p.Calls(brain.TaskSummarize)
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Messages[0].Content, `"exported":true`)
}

func TestReduceFallsBackToStructuralText(t *testing.T) {
	st := finishedTurn(t, turn.Decision{Intent: turn.IntentDataQuery}, activeProjects())

	resp := New(braintest.New().Fail(brain.TaskSummarize, errors.New("down"))).Reduce(context.Background(), st.Snapshot())

	assert.Contains(t, resp.Text, "Found 2 rows.")
	assert.Contains(t, resp.Text, "name: Apollo")
	assert.Equal(t, resp.Text, decodePayload(t, resp.Payload)["summary_text"])
}

func TestReduceRejectedQuerySetsError(t *testing.T) {
	st := finishedTurn(t, turn.Decision{Intent: turn.IntentDataQuery}, turn.DataQueryResult{Rejection: "statement contains forbidden keyword \"drop\""})
	p := braintest.New()

	resp := New(p).Reduce(context.Background(), st.Snapshot())

	require.NotNil(t, resp.Error)
	assert.Equal(t, turn.ErrCodeQueryRejected, resp.Error.Code)
	assert.Contains(t, resp.Text, "drop")
	assert.Empty(t, p.Calls(""))
	assert.Equal(t, "statement contains forbidden keyword \"drop\"", decodePayload(t, resp.Payload)["notes"].(map[string]any)["rejection"])
}

func TestReduceCannedSkipsProvider(t *testing.T) {
	st := finishedTurn(t, turn.Decision{Intent: turn.IntentOutOfScope}, turn.CannedResult{For: turn.IntentOutOfScope, Message: "I can only help with project data."})
	p := braintest.New()

	resp := New(p).Reduce(context.Background(), st.Snapshot())

	assert.Equal(t, "I can only help with project data.", resp.Text)
	assert.Empty(t, p.Calls(""))
}

func TestReduceWithoutPrimaryStillResponds(t *testing.T) {
	st := turn.NewState("turn-1", "chat-1", "", nil)
	resp := New(braintest.New()).Reduce(context.Background(), st.Snapshot())
	assert.Equal(t, "Generated report", resp.Text)
	assert.NotEmpty(t, resp.Payload)
}

func TestStructuralListsFollowups(t *testing.T) {
	st := finishedTurn(t, turn.Decision{Intent: turn.IntentDocumentGeneration}, turn.DocumentResult{
		Title:    "Pump repair request",
		Sections: []turn.DocumentSection{{Heading: "Scope", Body: "Replace seals"}},
	})
	st.SetPlan(turn.Plan{Subtasks: []turn.SubtaskSpec{{ID: "s1", Type: turn.SubtaskExplain}}, SideEffects: []turn.SideEffectSpec{{Type: turn.SideEffectEmail}}})
	require.NoError(t, st.RecordSubtask(turn.SubtaskResult{ID: "s1", Status: turn.StatusSuccess}))
	st.SetAggregate(turn.Aggregate{TotalSubtasks: 1, Completed: 1})
	require.NoError(t, st.RecordSideEffect(turn.SideEffectResult{Type: turn.SideEffectEmail, Status: turn.StatusFailed, Detail: "missing email recipient"}))

	text := Structural(BuildPayload(st.Snapshot()))

	lines := strings.Split(text, "\n")
	assert.Equal(t, "list active projects and export them", lines[0])
	assert.Contains(t, text, "Pump repair request")
	assert.Contains(t, text, "- Scope")
	assert.Contains(t, text, "Follow-up: 1 of 1 subtasks completed.")
	assert.Contains(t, text, "- email: failed (missing email recipient)")
}
