package turn

import "encoding/json"

// ResponseError is the explicit, user-visible error of a turn.
type ResponseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const ErrCodeQueryRejected = "query_rejected"

// FinalResponse is the single envelope produced by every turn.
type FinalResponse struct {
	TurnID  string          `json:"turn_id"`
	ChatID  string          `json:"chat_id"`
	Intent  Intent          `json:"intent"`
	Text    string          `json:"text"`
	Payload json.RawMessage `json:"payload"`
	Error   *ResponseError  `json:"error,omitempty"`
}
