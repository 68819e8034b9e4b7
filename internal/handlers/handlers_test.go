package handlers

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/horizon/internal/brain"
	"github.com/ent0n29/horizon/internal/brain/braintest"
	"github.com/ent0n29/horizon/internal/catalog"
	"github.com/ent0n29/horizon/internal/dataaccess"
	"github.com/ent0n29/horizon/internal/safety"
	"github.com/ent0n29/horizon/internal/turn"
)

func demoRunner(t *testing.T) *dataaccess.SQLRunner {
	t.Helper()
	r, err := dataaccess.Open("sqlite::memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	require.NoError(t, dataaccess.SeedDemo(context.Background(), r.DB()))
	return r
}

func snapshot(intent turn.Intent, input string, params map[string]any) turn.Snapshot {
	return turn.Snapshot{ChatID: "c1", UserInput: input, Intent: intent, Params: params}
}

type fakeEntities map[string]map[string]any

func (f fakeEntities) Lookup(_ context.Context, name string) (map[string]any, error) {
	if facts, ok := f[name]; ok {
		return facts, nil
	}
	return nil, dataaccess.ErrEntityNotFound
}

func TestRegistryRequiresEveryIntent(t *testing.T) {
	_, err := NewRegistry(map[turn.Intent]Handler{
		turn.IntentDataQuery: Canned(turn.IntentDataQuery, "x"),
	})
	assert.Error(t, err)

	_, err = NewRegistry(map[turn.Intent]Handler{"bogus": Canned("bogus", "x")})
	assert.Error(t, err)

	reg, err := Default(Deps{Provider: braintest.New()})
	require.NoError(t, err)
	for _, intent := range turn.Intents {
		h, ok := reg.Lookup(intent)
		assert.True(t, ok, intent)
		assert.NotNil(t, h, intent)
	}
}

func TestCannedHandlersDoNotCallProvider(t *testing.T) {
	p := braintest.New()
	reg, err := Default(Deps{Provider: p})
	require.NoError(t, err)

	for _, intent := range []turn.Intent{turn.IntentOutOfScope, turn.IntentUnresolved} {
		h, _ := reg.Lookup(intent)
		res, err := h.Handle(context.Background(), snapshot(intent, "tell me a joke", nil))
		require.NoError(t, err)
		assert.Equal(t, intent, res.Intent())
	}
	assert.Empty(t, p.Calls(""))
}

func TestDataQueryRunsValidatedStatement(t *testing.T) {
	p := braintest.New().Text(brain.TaskGenerateQuery,
		`{"sql":"SELECT \"name\" FROM projects WHERE status = 'active' ORDER BY id LIMIT 500","reasoning":"active projects"}`)
	h := &DataQuery{Provider: p, Validator: safety.New(30, safety.PolicyReject), Runner: demoRunner(t), Catalog: catalog.Default()}

	res, err := h.Handle(context.Background(), snapshot(turn.IntentDataQuery, "list active projects", nil))
	require.NoError(t, err)
	dq := res.(turn.DataQueryResult)
	assert.False(t, dq.Rejected())
	assert.Equal(t, 2, dq.RowCount)
	assert.Equal(t, "Apollo", dq.Rows[0]["name"])
	assert.Equal(t, `SELECT "name" FROM projects WHERE status = 'active' ORDER BY id LIMIT 30`, dq.Query)

	calls := p.Calls(brain.TaskGenerateQuery)
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].System, "TABLE projects")
	assert.Contains(t, calls[0].System, "at most 30 rows")
}

func TestDataQueryRejectionIsExplicit(t *testing.T) {
	p := braintest.New().Text(brain.TaskGenerateQuery, `{"sql":"DELETE FROM projects","reasoning":"cleanup"}`)
	h := &DataQuery{Provider: p, Validator: safety.New(30, safety.PolicyReject), Runner: demoRunner(t), Catalog: catalog.Default()}

	res, err := h.Handle(context.Background(), snapshot(turn.IntentDataQuery, "remove everything", nil))
	require.NoError(t, err)
	dq := res.(turn.DataQueryResult)
	assert.True(t, dq.Rejected())
	assert.Contains(t, dq.Rejection, "delete")
	assert.Empty(t, dq.Rows)
}

func TestDataQueryMalformedProviderOutputFails(t *testing.T) {
	p := braintest.New().Text(brain.TaskGenerateQuery, "SELECT name FROM projects")
	h := &DataQuery{Provider: p, Validator: safety.New(30, safety.PolicyReject), Runner: demoRunner(t), Catalog: catalog.Default()}
	_, err := h.Handle(context.Background(), snapshot(turn.IntentDataQuery, "list", nil))
	assert.Error(t, err)
}

func TestDocumentHandlerToleratesProse(t *testing.T) {
	p := braintest.New().On(brain.TaskDocument,
		braintest.Reply{Text: `{"title":"Work request","sections":[{"heading":"Scope","body":"Fix the roof"}]}`},
		braintest.Reply{Text: "Just some prose"},
	)
	h := &Document{Provider: p, Retriever: catalog.Default()}

	res, err := h.Handle(context.Background(), snapshot(turn.IntentDocumentGeneration, "draft a work request", nil))
	require.NoError(t, err)
	doc := res.(turn.DocumentResult)
	assert.Equal(t, "Work request", doc.Title)
	require.Len(t, doc.Sections, 1)

	res, err = h.Handle(context.Background(), snapshot(turn.IntentDocumentGeneration, "again", nil))
	require.NoError(t, err)
	assert.Equal(t, "Just some prose", res.(turn.DocumentResult).Sections[0].Body)
}

func TestEntitySummaryUsesFacts(t *testing.T) {
	p := braintest.New().Fail(brain.TaskEntitySummary, errors.New("provider down"))
	h := &EntitySummary{Provider: p, Entities: fakeEntities{"Apollo": {"status": "active"}}}

	res, err := h.Handle(context.Background(), snapshot(turn.IntentEntitySummary, "summary of Apollo", map[string]any{"entity": "Apollo"}))
	require.NoError(t, err)
	es := res.(turn.EntitySummaryResult)
	assert.Equal(t, "Apollo", es.Entity)
	assert.Contains(t, es.Summary, "active")

	_, err = h.Handle(context.Background(), snapshot(turn.IntentEntitySummary, "summary of Zed", map[string]any{"entity": "Zed"}))
	assert.Error(t, err)
}

func TestAnswerCitesPassages(t *testing.T) {
	p := braintest.New().Text(brain.TaskAnswer, " Exports default to CSV. ")
	h := &Answer{Provider: p, Retriever: catalog.Default()}
	res, err := h.Handle(context.Background(), snapshot(turn.IntentInformationalAnswer, "is xlsx supported for excel files", nil))
	require.NoError(t, err)
	ans := res.(turn.AnswerResult)
	assert.Equal(t, "Exports default to CSV.", ans.Answer)
	assert.Contains(t, ans.Sources, "exports")
}

func TestArtifactDefaults(t *testing.T) {
	p := braintest.New().Text(brain.TaskArtifact, `{"fields":{"priority":"high"}}`)
	res, err := (&Artifact{Provider: p}).Handle(context.Background(), snapshot(turn.IntentCreateArtifact, "create a ticket", nil))
	require.NoError(t, err)
	a := res.(turn.ArtifactResult)
	assert.Equal(t, "record", a.Kind)
	assert.Equal(t, "create a ticket", a.Title)
	assert.Equal(t, "high", a.Fields["priority"])
}
