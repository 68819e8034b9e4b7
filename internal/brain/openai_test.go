package brain

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOpenAITestServer(t *testing.T, handler http.HandlerFunc) *OpenAIProvider {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return NewOpenAIProvider("test-api-key", ts.URL, "gpt-test")
}

func TestOpenAIRespondJSONMode(t *testing.T) {
	p := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-api-key", r.Header.Get("Authorization"))
		var req openai.ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-test", req.Model)
		require.NotNil(t, req.ResponseFormat)
		assert.Equal(t, openai.ChatCompletionResponseFormatTypeJSONObject, req.ResponseFormat.Type)
		require.Len(t, req.Messages, 3)
		assert.Equal(t, openai.ChatMessageRoleSystem, req.Messages[0].Role)
		assert.Equal(t, openai.ChatMessageRoleAssistant, req.Messages[1].Role)
		assert.Equal(t, "count rows", req.Messages[2].Content)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
			Model: "gpt-test",
			Choices: []openai.ChatCompletionChoice{{
				Message:      openai.ChatCompletionMessage{Role: "assistant", Content: ` {"intent":"data_query"} `},
				FinishReason: openai.FinishReasonStop,
			}},
		})
	})

	resp, err := p.Respond(context.Background(), Request{
		Task:   TaskClassify,
		System: "classify",
		Messages: []Message{
			{Role: "assistant", Content: "earlier"},
			{Role: "user", Content: "count rows"},
		},
		JSON: true,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"intent":"data_query"}`, resp.Text)
	assert.Equal(t, "openai", resp.Provider)
}

func TestOpenAIRespondAPIError(t *testing.T) {
	p := newOpenAITestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "Invalid API key", "type": "invalid_request_error"},
		})
	})
	_, err := p.Respond(context.Background(), Request{Task: TaskAnswer, Messages: []Message{{Role: "user", Content: "hi"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "openai chat completion")
}

func TestOpenAIRespondNoChoices(t *testing.T) {
	p := newOpenAITestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{})
	})
	_, err := p.Respond(context.Background(), Request{Task: TaskAnswer})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}
