package humanize

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ent0n29/horizon/internal/turn"
)

// Payload is the deterministic, intent-tagged body of a final response.
type Payload struct {
	Intent         turn.Intent             `json:"intent"`
	Overview       string                  `json:"overview"`
	Result         turn.PrimaryResult      `json:"result,omitempty"`
	Table          *Table                  `json:"table,omitempty"`
	Summary        Summary                 `json:"summary"`
	Plan           *PlanInfo               `json:"plan,omitempty"`
	SubtaskResults []turn.SubtaskResult    `json:"subtask_results,omitempty"`
	SideEffects    []turn.SideEffectResult `json:"side_effects,omitempty"`
	Notes          Notes                   `json:"notes"`
	SummaryText    string                  `json:"summary_text"`
}

type Table struct {
	Headers []string            `json:"headers"`
	Rows    []map[string]string `json:"rows"`
}

type Summary struct {
	TotalRows     int    `json:"total_rows"`
	TotalSubtasks int    `json:"total_subtasks"`
	Completed     int    `json:"completed"`
	Failed        int    `json:"failed"`
	RowsTotal     int    `json:"rows_total"`
	Exported      bool   `json:"exported"`
	ExportPath    string `json:"export_path,omitempty"`
	Emailed       bool   `json:"emailed"`
	EmailTo       string `json:"email_to,omitempty"`
}

type PlanInfo struct {
	Summary     string                `json:"summary,omitempty"`
	Subtasks    []PlanSubtask         `json:"subtasks"`
	PostActions []turn.SideEffectSpec `json:"post_actions"`
}

type PlanSubtask struct {
	ID       string           `json:"id"`
	Type     turn.SubtaskType `json:"type"`
	Action   string           `json:"action,omitempty"`
	Question string           `json:"question,omitempty"`
}

type Notes struct {
	Reasoning string `json:"reasoning,omitempty"`
	Query     string `json:"query,omitempty"`
	Rejection string `json:"rejection,omitempty"`
}

// BuildPayload folds a finished turn into its payload. It never calls out.
func BuildPayload(snap turn.Snapshot) Payload {
	p := Payload{
		Intent:         snap.Intent,
		Overview:       strings.TrimSpace(snap.UserInput),
		Result:         snap.Primary,
		SubtaskResults: snap.SubtaskResults,
		SideEffects:    snap.SideEffectResults,
	}
	if p.Overview == "" {
		p.Overview = "Generated report"
	}

	if dq, ok := snap.Primary.(turn.DataQueryResult); ok {
		p.Table = buildTable(dq)
		p.Summary.TotalRows = len(dq.Rows)
		p.Notes = Notes{Reasoning: dq.Reasoning, Query: dq.Query, Rejection: dq.Rejection}
	}

	if snap.Aggregate != nil {
		p.Summary.TotalSubtasks = snap.Aggregate.TotalSubtasks
		p.Summary.Completed = snap.Aggregate.Completed
		p.Summary.Failed = snap.Aggregate.Failed
		p.Summary.RowsTotal = snap.Aggregate.RowsTotal
	}
	for _, se := range snap.SideEffectResults {
		if se.Status != turn.StatusSuccess {
			continue
		}
		switch se.Type {
		case turn.SideEffectExport:
			p.Summary.Exported = true
			p.Summary.ExportPath = turn.StringParam(se.Output, "path")
		case turn.SideEffectEmail:
			p.Summary.Emailed = true
			p.Summary.EmailTo = turn.StringParam(se.Output, "to")
		}
	}

	if snap.Plan != nil {
		info := &PlanInfo{
			Summary:     snap.Plan.Summary,
			Subtasks:    make([]PlanSubtask, 0, len(snap.Plan.Subtasks)),
			PostActions: snap.Plan.SideEffects,
		}
		if info.PostActions == nil {
			info.PostActions = []turn.SideEffectSpec{}
		}
		for _, st := range snap.Plan.Subtasks {
			info.Subtasks = append(info.Subtasks, PlanSubtask{ID: st.ID, Type: st.Type, Action: st.Action, Question: st.Question})
		}
		p.Plan = info
	}
	return p
}

func buildTable(dq turn.DataQueryResult) *Table {
	if len(dq.Rows) == 0 {
		return nil
	}
	headers := append([]string(nil), dq.Columns...)
	if len(headers) == 0 {
		seen := map[string]bool{}
		for _, r := range dq.Rows {
			keys := make([]string, 0, len(r))
			for k := range r {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				if !seen[k] {
					seen[k] = true
					headers = append(headers, k)
				}
			}
		}
	}
	t := &Table{Headers: headers, Rows: make([]map[string]string, 0, len(dq.Rows))}
	for _, r := range dq.Rows {
		row := make(map[string]string, len(headers))
		for _, h := range headers {
			row[h] = cell(r[h])
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

func cell(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}
