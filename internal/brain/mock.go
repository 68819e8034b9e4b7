package brain

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// MockProvider gives deterministic replies for local runs without a model.
type MockProvider struct{}

func NewMockProvider() *MockProvider { return &MockProvider{} }

func (p *MockProvider) Name() string { return "mock" }

var (
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	tablePattern = regexp.MustCompile(`(?m)^TABLE\s+([A-Za-z_][A-Za-z0-9_]*)`)
)

func (p *MockProvider) Respond(ctx context.Context, req Request) (Response, error) {
	select {
	case <-ctx.Done():
		return Response{}, ctx.Err()
	default:
	}

	input := strings.TrimSpace(LastUserMessage(req))
	var out any
	switch req.Task {
	case TaskClassify:
		out = mockClassify(input)
	case TaskGenerateQuery:
		out = mockQuery(req.System, input)
	case TaskPlan:
		out = mockPlan(input)
	case TaskDocument:
		out = map[string]any{
			"title": "Draft: " + clip(input, 60),
			"sections": []map[string]string{
				{"heading": "Request", "body": input},
				{"heading": "Next steps", "body": "Review and confirm the details above."},
			},
		}
	case TaskArtifact:
		out = map[string]any{
			"kind":   "work_item",
			"title":  clip(input, 80),
			"fields": map[string]string{"status": "draft"},
		}
	case TaskEntitySummary:
		return p.text(fmt.Sprintf("Summary based on the available facts: %s", clip(input, 200)))
	case TaskAnswer:
		return p.text(fmt.Sprintf("Here is what I know about that: %s", clip(input, 200)))
	case TaskExplain:
		return p.text(fmt.Sprintf("Explanation: %s", clip(input, 200)))
	default:
		return p.text(fmt.Sprintf("Done. %s", clip(input, 200)))
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return Response{}, err
	}
	return Response{Text: string(raw), Provider: p.Name()}, nil
}

func (p *MockProvider) text(s string) (Response, error) {
	return Response{Text: s, Provider: p.Name()}, nil
}

func mockClassify(input string) map[string]any {
	lower := strings.ToLower(input)
	intent := "unresolved"
	switch {
	case containsAny(lower, "work request", "draft a", "write a document"):
		intent = "document_generation"
	case containsAny(lower, "summary of", "summarize", "overview of"):
		intent = "entity_summary"
	case strings.Contains(lower, "create") && containsAny(lower, "ticket", "task", "record", "item"):
		intent = "create_artifact"
	case containsAny(lower, "how many", "list ", "show ", "count", "top ", "rows", "total", "query"):
		intent = "data_query"
	case containsAny(lower, "what is", "what are", "how do", "explain", "?"):
		intent = "informational_answer"
	case containsAny(lower, "help", "hello", "hi ", "weather", "joke"):
		intent = "out_of_scope"
	}

	params := map[string]any{}
	var effects []string
	if containsAny(lower, "email", "mail ") {
		effects = append(effects, "email")
		if to := emailPattern.FindString(input); to != "" {
			params["email_to"] = to
		}
	}
	switch {
	case containsAny(lower, "excel", "xlsx", "spreadsheet"):
		effects = append(effects, "export")
		params["format"] = "excel"
	case containsAny(lower, "csv", "export", "download"):
		effects = append(effects, "export")
		params["format"] = "csv"
	}
	if strings.Contains(lower, "notify") {
		effects = append(effects, "notify")
	}
	if strings.Contains(lower, "webhook") {
		effects = append(effects, "webhook")
	}
	return map[string]any{
		"intent":            intent,
		"side_effects":      effects,
		"params":            params,
		"requires_followup": containsAny(lower, " and explain", "then explain"),
	}
}

func mockQuery(system, input string) map[string]any {
	table := "items"
	if m := tablePattern.FindStringSubmatch(system); len(m) == 2 {
		table = m[1]
	}
	lower := strings.ToLower(input)
	if containsAny(lower, "how many", "count") {
		return map[string]any{
			"sql":       fmt.Sprintf("SELECT COUNT(*) AS total FROM %s LIMIT 1", table),
			"reasoning": "count of rows in " + table,
		}
	}
	return map[string]any{
		"sql":       fmt.Sprintf("SELECT * FROM %s LIMIT 30", table),
		"reasoning": "latest rows from " + table,
	}
}

// mockPlan echoes the requested side effects from the planning context.
func mockPlan(input string) map[string]any {
	var planCtx struct {
		SideEffects      []string       `json:"requested_side_effects"`
		Params           map[string]any `json:"extracted_params"`
		RequiresFollowup bool           `json:"requires_followup"`
	}
	_ = DecodeJSON(input, &planCtx)

	actions := make([]map[string]any, 0, len(planCtx.SideEffects))
	for _, e := range planCtx.SideEffects {
		params := map[string]any{}
		switch e {
		case "export":
			format, _ := planCtx.Params["format"].(string)
			if format == "" {
				format = "csv"
			}
			params["format"] = format
		case "email":
			if to, ok := planCtx.Params["email_to"].(string); ok && to != "" {
				params["to"] = to
			}
		}
		actions = append(actions, map[string]any{"type": e, "params": params})
	}
	subtasks := []map[string]any{}
	if planCtx.RequiresFollowup {
		subtasks = append(subtasks, map[string]any{
			"id":       "s1",
			"type":     "explain",
			"question": "Explain the result in plain terms.",
		})
	}
	return map[string]any{
		"plan_summary": fmt.Sprintf("%d subtasks, %d post actions", len(subtasks), len(actions)),
		"subtasks":     subtasks,
		"post_actions": actions,
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
