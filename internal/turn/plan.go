package turn

// SubtaskType is the kind of follow-up work a plan may schedule.
type SubtaskType string

const (
	SubtaskAction  SubtaskType = "action"
	SubtaskExplain SubtaskType = "explain"
)

// SubtaskSpec is one planned follow-up step.
type SubtaskSpec struct {
	ID       string         `json:"id"`
	Type     SubtaskType    `json:"type"`
	Action   string         `json:"action,omitempty"`
	Question string         `json:"question,omitempty"`
	Params   map[string]any `json:"params,omitempty"`
	Requires []string       `json:"requires,omitempty"`
}

// SideEffectSpec is one planned side-effect action.
type SideEffectSpec struct {
	Type   SideEffect     `json:"type"`
	Params map[string]any `json:"params,omitempty"`
}

// Plan is the post-action planner output. Subtask and side-effect order is
// the execution order.
type Plan struct {
	Summary     string           `json:"summary,omitempty"`
	Subtasks    []SubtaskSpec    `json:"subtasks"`
	SideEffects []SideEffectSpec `json:"side_effects"`
}

// EmptyPlan is the fallback when planning fails.
func EmptyPlan() Plan {
	return Plan{Subtasks: []SubtaskSpec{}, SideEffects: []SideEffectSpec{}}
}

func (p Plan) Empty() bool {
	return len(p.Subtasks) == 0 && len(p.SideEffects) == 0
}

// Bound is the maximum number of executions the plan can cause.
func (p Plan) Bound() int {
	return len(p.Subtasks) + len(p.SideEffects)
}

// Status is the outcome of one executed subtask or side effect.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusIgnored Status = "ignored"
)

// SubtaskResult records one executed subtask.
type SubtaskResult struct {
	ID     string         `json:"id"`
	Type   SubtaskType    `json:"type"`
	Action string         `json:"action,omitempty"`
	Status Status         `json:"status"`
	Output map[string]any `json:"output,omitempty"`
	Error  string         `json:"error,omitempty"`
	// Rows is the number of data rows the subtask produced, if any.
	Rows int `json:"rows,omitempty"`
}

// SideEffectResult records one executed side effect.
type SideEffectResult struct {
	Type   SideEffect     `json:"type"`
	Status Status         `json:"status"`
	Detail string         `json:"detail,omitempty"`
	Output map[string]any `json:"output,omitempty"`
}

// Aggregate is the summary computed between subtasks and side effects.
type Aggregate struct {
	TotalSubtasks int            `json:"total_subtasks"`
	Completed     int            `json:"completed"`
	Failed        int            `json:"failed"`
	RowsTotal     int            `json:"rows_total"`
	Resolved      map[string]any `json:"resolved,omitempty"`
}

// StringParam returns params[key] as a trimmed string when it is one.
func StringParam(params map[string]any, key string) string {
	if params == nil {
		return ""
	}
	switch v := params[key].(type) {
	case string:
		return trim(v)
	default:
		return ""
	}
}

// CloneParams returns a shallow copy of params, never nil.
func CloneParams(params map[string]any) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = v
	}
	return out
}
