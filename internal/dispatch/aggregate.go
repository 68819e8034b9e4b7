package dispatch

import "github.com/ent0n29/horizon/internal/turn"

// Aggregate summarizes the executed subtasks and resolves parameters the
// side effects may need. Explicit extracted params win over values found in
// subtask outputs.
func Aggregate(snap turn.Snapshot) turn.Aggregate {
	agg := turn.Aggregate{
		TotalSubtasks: len(snap.SubtaskResults),
		Resolved:      map[string]any{},
	}
	for _, r := range snap.SubtaskResults {
		switch r.Status {
		case turn.StatusSuccess:
			agg.Completed++
		case turn.StatusFailed:
			agg.Failed++
		}
		agg.RowsTotal += r.Rows
		if r.Status != turn.StatusSuccess {
			continue
		}
		for _, key := range []string{"email_to", "to", "email"} {
			if v := turn.StringParam(r.Output, key); v != "" {
				agg.Resolved["email_to"] = v
				break
			}
		}
		if path := turn.StringParam(r.Output, "path"); path != "" && r.Output["format"] != nil {
			agg.Resolved["attachment"] = path
		}
	}
	if to := turn.StringParam(snap.Params, "email_to"); to != "" {
		agg.Resolved["email_to"] = to
	}
	if f := turn.StringParam(snap.Params, "format"); f != "" {
		agg.Resolved["format"] = f
	}
	return agg
}
