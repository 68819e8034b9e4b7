package turn

// PrimaryResult is the output of exactly one task handler. The variant set is
// closed; each variant reports the intent it belongs to.
type PrimaryResult interface {
	Intent() Intent
	primary()
}

// DataQueryResult carries rows fetched by a validated read statement.
type DataQueryResult struct {
	Question  string           `json:"question,omitempty"`
	Query     string           `json:"query,omitempty"`
	Reasoning string           `json:"reasoning,omitempty"`
	Columns   []string         `json:"columns,omitempty"`
	Rows      []map[string]any `json:"rows"`
	RowCount  int              `json:"row_count"`
	// Rejection is set when the generated statement failed validation.
	Rejection string `json:"rejection,omitempty"`
}

func (DataQueryResult) Intent() Intent { return IntentDataQuery }
func (DataQueryResult) primary()       {}

// Rejected reports whether the statement was stopped by the validator.
func (r DataQueryResult) Rejected() bool { return r.Rejection != "" }

// DocumentSection is one titled block of a generated document.
type DocumentSection struct {
	Heading string `json:"heading"`
	Body    string `json:"body"`
}

// DocumentResult is a generated structured document.
type DocumentResult struct {
	Title    string            `json:"title"`
	Sections []DocumentSection `json:"sections,omitempty"`
	Fields   map[string]string `json:"fields,omitempty"`
}

func (DocumentResult) Intent() Intent { return IntentDocumentGeneration }
func (DocumentResult) primary()       {}

// EntitySummaryResult summarizes one named entity.
type EntitySummaryResult struct {
	Entity  string         `json:"entity"`
	Summary string         `json:"summary"`
	Facts   map[string]any `json:"facts,omitempty"`
}

func (EntitySummaryResult) Intent() Intent { return IntentEntitySummary }
func (EntitySummaryResult) primary()       {}

// AnswerResult is a free-form informational answer.
type AnswerResult struct {
	Answer  string   `json:"answer"`
	Sources []string `json:"sources,omitempty"`
}

func (AnswerResult) Intent() Intent { return IntentInformationalAnswer }
func (AnswerResult) primary()       {}

// ArtifactResult is a drafted record to be created downstream.
type ArtifactResult struct {
	Kind   string            `json:"kind"`
	Title  string            `json:"title"`
	Fields map[string]string `json:"fields,omitempty"`
}

func (ArtifactResult) Intent() Intent { return IntentCreateArtifact }
func (ArtifactResult) primary()       {}

// CannedResult is the fixed response of the out_of_scope and unresolved intents.
type CannedResult struct {
	For     Intent `json:"for"`
	Message string `json:"message"`
}

func (r CannedResult) Intent() Intent { return r.For }
func (CannedResult) primary()         {}

// FailureResult replaces the output of a handler that errored or panicked.
// It keeps the turn's intent so the tag invariant holds.
type FailureResult struct {
	For    Intent `json:"for"`
	Reason string `json:"reason"`
}

func (r FailureResult) Intent() Intent { return r.For }
func (FailureResult) primary()         {}
