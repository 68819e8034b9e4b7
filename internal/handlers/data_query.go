package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/ent0n29/horizon/internal/brain"
	"github.com/ent0n29/horizon/internal/catalog"
	"github.com/ent0n29/horizon/internal/dataaccess"
	"github.com/ent0n29/horizon/internal/safety"
	"github.com/ent0n29/horizon/internal/turn"
)

// DataQuery generates a read statement, validates it and runs it.
type DataQuery struct {
	Provider  brain.Provider
	Validator *safety.Validator
	Runner    dataaccess.Runner
	Catalog   *catalog.Catalog
}

type generatedQuery struct {
	SQL       string `json:"sql"`
	Reasoning string `json:"reasoning"`
}

func (h *DataQuery) Handle(ctx context.Context, snap turn.Snapshot) (turn.PrimaryResult, error) {
	if h.Runner == nil {
		return nil, errors.New("no data source configured")
	}
	system := fmt.Sprintf(`You write one read-only SQL SELECT statement for the schema below.
Always include LIMIT, at most %d rows. Never modify data.
Use portable SQL: no ILIKE and no :: casts.
Return JSON: {"sql": string, "reasoning": string}.

Schema:
%s`, h.Validator.MaxLimit(), h.Catalog.Render())

	resp, err := h.Provider.Respond(ctx, brain.Request{
		Task:     brain.TaskGenerateQuery,
		System:   system,
		Messages: historyMessages(snap),
		JSON:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("generate query: %w", err)
	}
	var gen generatedQuery
	if err := brain.DecodeJSON(resp.Text, &gen); err != nil {
		return nil, fmt.Errorf("generate query: %w", err)
	}
	gen.SQL = strings.TrimSpace(gen.SQL)

	result := turn.DataQueryResult{
		Question:  snap.UserInput,
		Query:     gen.SQL,
		Reasoning: gen.Reasoning,
		Rows:      []map[string]any{},
	}

	safe, err := h.Validator.Validate(gen.SQL)
	if err != nil {
		var rej *safety.Rejection
		if errors.As(err, &rej) {
			log.Warn().Str("chat_id", snap.ChatID).Str("code", rej.Code).Msg("generated query rejected")
			result.Rejection = rej.Reason
			return result, nil
		}
		return nil, err
	}
	result.Query = safe.SQL

	rows, err := h.Runner.RunSelect(ctx, safe)
	if err != nil {
		return nil, err
	}
	result.Columns = rows.Columns
	result.Rows = rows.Records
	result.RowCount = len(rows.Records)
	return result, nil
}
