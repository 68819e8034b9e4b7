// Package humanize folds a finished turn into its final response.
package humanize

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/ent0n29/horizon/internal/brain"
	"github.com/ent0n29/horizon/internal/turn"
)

// maxSampleRows bounds the rows shown to the provider.
const maxSampleRows = 20

const summarizePrompt = `You write clear executive summaries for managers.
Do not mention SQL, databases, queries, schemas, models or any internal system detail.
Focus on what the results mean. Mention completed exports, emails and other follow-up actions.
Write three to five sentences.`

type Reducer struct {
	provider brain.Provider
}

func New(provider brain.Provider) *Reducer {
	return &Reducer{provider: provider}
}

// Reduce always returns a response. Provider failure falls back to a
// structural rendering of the payload.
func (r *Reducer) Reduce(ctx context.Context, snap turn.Snapshot) (resp turn.FinalResponse) {
	resp = turn.FinalResponse{TurnID: snap.TurnID, ChatID: snap.ChatID, Intent: snap.Intent}
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Interface("panic", rec).Str("chat_id", snap.ChatID).Msg("reduce panicked")
			resp.Text = "Sorry, something went wrong while preparing the answer."
			resp.Payload = json.RawMessage(fmt.Sprintf(`{"intent":%q}`, snap.Intent))
		}
	}()

	payload := BuildPayload(snap)
	switch res := snap.Primary.(type) {
	case turn.CannedResult:
		payload.SummaryText = res.Message
	case turn.FailureResult:
		payload.SummaryText = "Sorry, I couldn't complete that request. Please try rephrasing it."
	case turn.DataQueryResult:
		if res.Rejected() {
			payload.SummaryText = "I couldn't run that request safely: " + res.Rejection
			resp.Error = &turn.ResponseError{Code: turn.ErrCodeQueryRejected, Message: res.Rejection}
			break
		}
		payload.SummaryText = r.summarize(ctx, snap.ChatID, payload)
	case nil:
		payload.SummaryText = Structural(payload)
	default:
		payload.SummaryText = r.summarize(ctx, snap.ChatID, payload)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("chat_id", snap.ChatID).Msg("encode payload")
		raw = json.RawMessage(fmt.Sprintf(`{"intent":%q}`, snap.Intent))
	}
	resp.Text = payload.SummaryText
	resp.Payload = raw
	return resp
}

func (r *Reducer) summarize(ctx context.Context, chatID string, p Payload) string {
	if r.provider == nil {
		return Structural(p)
	}
	sample := p
	if sample.Table != nil && len(sample.Table.Rows) > maxSampleRows {
		t := *sample.Table
		t.Rows = t.Rows[:maxSampleRows]
		sample.Table = &t
	}
	if dq, ok := sample.Result.(turn.DataQueryResult); ok {
		dq.Rows = nil
		sample.Result = dq
	}
	raw, err := json.Marshal(sample)
	if err != nil {
		return Structural(p)
	}
	out, err := r.provider.Respond(ctx, brain.Request{
		Task:     brain.TaskSummarize,
		System:   summarizePrompt,
		Messages: []brain.Message{{Role: string(turn.RoleUser), Content: string(raw)}},
	})
	if err != nil {
		log.Warn().Err(err).Str("chat_id", chatID).Msg("summary failed, using structural rendering")
		return Structural(p)
	}
	text := strings.TrimSpace(strings.Trim(strings.TrimSpace(out.Text), "`"))
	if text == "" {
		return Structural(p)
	}
	return text
}

// Structural renders the payload as plain text without any provider help.
func Structural(p Payload) string {
	var b strings.Builder
	b.WriteString(p.Overview)
	b.WriteString("\n")

	switch res := p.Result.(type) {
	case turn.DataQueryResult:
		fmt.Fprintf(&b, "Found %d rows.\n", len(res.Rows))
		if p.Table != nil {
			for i, row := range p.Table.Rows {
				if i == 5 {
					fmt.Fprintf(&b, "... and %d more\n", len(p.Table.Rows)-5)
					break
				}
				parts := make([]string, 0, len(p.Table.Headers))
				for _, h := range p.Table.Headers {
					parts = append(parts, h+": "+row[h])
				}
				b.WriteString("- " + strings.Join(parts, ", ") + "\n")
			}
		}
	case turn.DocumentResult:
		b.WriteString(res.Title + "\n")
		for _, s := range res.Sections {
			b.WriteString("- " + s.Heading + "\n")
		}
	case turn.EntitySummaryResult:
		b.WriteString(res.Entity + ": " + res.Summary + "\n")
	case turn.AnswerResult:
		b.WriteString(res.Answer + "\n")
	case turn.ArtifactResult:
		fmt.Fprintf(&b, "Drafted %s: %s\n", res.Kind, res.Title)
	case turn.CannedResult:
		b.WriteString(res.Message + "\n")
	case turn.FailureResult:
		b.WriteString("The request could not be completed.\n")
	}

	if p.Summary.TotalSubtasks > 0 {
		fmt.Fprintf(&b, "Follow-up: %d of %d subtasks completed.\n", p.Summary.Completed, p.Summary.TotalSubtasks)
	}
	for _, se := range p.SideEffects {
		line := fmt.Sprintf("- %s: %s", se.Type, se.Status)
		if se.Detail != "" {
			line += " (" + se.Detail + ")"
		}
		b.WriteString(line + "\n")
	}
	return strings.TrimSpace(b.String())
}
