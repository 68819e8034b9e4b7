package turn

import "strings"

// Intent is the closed set of outcomes a single turn can resolve to.
type Intent string

const (
	IntentDataQuery           Intent = "data_query"
	IntentDocumentGeneration  Intent = "document_generation"
	IntentEntitySummary       Intent = "entity_summary"
	IntentInformationalAnswer Intent = "informational_answer"
	IntentCreateArtifact      Intent = "create_artifact"
	IntentOutOfScope          Intent = "out_of_scope"
	IntentUnresolved          Intent = "unresolved"
)

// Intents lists every intent in routing order.
var Intents = []Intent{
	IntentDataQuery,
	IntentDocumentGeneration,
	IntentEntitySummary,
	IntentInformationalAnswer,
	IntentCreateArtifact,
	IntentOutOfScope,
	IntentUnresolved,
}

var intentAliases = map[string]Intent{
	"data_query":              IntentDataQuery,
	"text_to_sql":             IntentDataQuery,
	"sql_query":               IntentDataQuery,
	"document_generation":     IntentDocumentGeneration,
	"work_request":            IntentDocumentGeneration,
	"work_request_generation": IntentDocumentGeneration,
	"entity_summary":          IntentEntitySummary,
	"project_summary":         IntentEntitySummary,
	"informational_answer":    IntentInformationalAnswer,
	"rag_query":               IntentInformationalAnswer,
	"app_info":                IntentInformationalAnswer,
	"metadata_query":          IntentInformationalAnswer,
	"project_metadata":        IntentInformationalAnswer,
	"create_artifact":         IntentCreateArtifact,
	"out_of_scope":            IntentOutOfScope,
	"help":                    IntentOutOfScope,
	"irrelevant":              IntentOutOfScope,
	"unresolved":              IntentUnresolved,
	"unknown":                 IntentUnresolved,
}

// ParseIntent maps a provider label onto the closed set. Unknown labels
// collapse to IntentUnresolved.
func ParseIntent(label string) Intent {
	if v, ok := intentAliases[normalizeLabel(label)]; ok {
		return v
	}
	return IntentUnresolved
}

// IsPrimaryCategory reports whether label names a primary task category,
// either directly or through one of its aliases.
func IsPrimaryCategory(label string) bool {
	v, ok := intentAliases[normalizeLabel(label)]
	if !ok {
		return false
	}
	return v != IntentUnresolved && v != IntentOutOfScope
}

// Canned reports whether the intent short-circuits to a fixed response.
func (i Intent) Canned() bool {
	return i == IntentOutOfScope || i == IntentUnresolved
}

func (i Intent) Valid() bool {
	for _, v := range Intents {
		if v == i {
			return true
		}
	}
	return false
}

// SideEffect is a follow-up operation requested in addition to the primary task.
type SideEffect string

const (
	SideEffectEmail   SideEffect = "email"
	SideEffectExport  SideEffect = "export"
	SideEffectNotify  SideEffect = "notify"
	SideEffectCreate  SideEffect = "create"
	SideEffectSave    SideEffect = "save"
	SideEffectWebhook SideEffect = "webhook"
)

// SideEffects lists the closed side-effect set.
var SideEffects = []SideEffect{
	SideEffectEmail,
	SideEffectExport,
	SideEffectNotify,
	SideEffectCreate,
	SideEffectSave,
	SideEffectWebhook,
}

var sideEffectAliases = map[string]SideEffect{
	"email":        SideEffectEmail,
	"send_email":   SideEffectEmail,
	"mail":         SideEffectEmail,
	"export":       SideEffectExport,
	"download":     SideEffectExport,
	"notify":       SideEffectNotify,
	"notification": SideEffectNotify,
	"create":       SideEffectCreate,
	"save":         SideEffectSave,
	"webhook":      SideEffectWebhook,
}

// ParseSideEffect maps a label onto the closed side-effect set.
func ParseSideEffect(label string) (SideEffect, bool) {
	v, ok := sideEffectAliases[normalizeLabel(label)]
	return v, ok
}

// NormalizeSideEffects restricts labels to the closed set, preserving first
// occurrence order and dropping duplicates.
func NormalizeSideEffects(labels []string) []SideEffect {
	out := make([]SideEffect, 0, len(labels))
	seen := make(map[SideEffect]struct{}, len(labels))
	for _, label := range labels {
		v, ok := ParseSideEffect(label)
		if !ok {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func normalizeLabel(label string) string {
	label = strings.ToLower(strings.TrimSpace(label))
	label = strings.ReplaceAll(label, "-", "_")
	return strings.ReplaceAll(label, " ", "_")
}
