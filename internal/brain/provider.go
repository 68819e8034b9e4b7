// Package brain holds the intelligence providers that classify, plan, write
// queries and produce prose. Providers are chosen once at construction.
package brain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Task names the kind of judgment requested. Providers may ignore it; the
// mock provider uses it to pick a deterministic reply.
type Task string

const (
	TaskClassify      Task = "classify"
	TaskGenerateQuery Task = "generate_query"
	TaskPlan          Task = "plan"
	TaskDocument      Task = "document"
	TaskEntitySummary Task = "entity_summary"
	TaskAnswer        Task = "answer"
	TaskArtifact      Task = "artifact"
	TaskExplain       Task = "explain"
	TaskSummarize     Task = "summarize"
)

// Message is one conversation message sent to a provider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is the uniform provider request.
type Request struct {
	Task     Task      `json:"task"`
	System   string    `json:"system"`
	Messages []Message `json:"messages"`
	// JSON asks for a single JSON object as output.
	JSON bool `json:"json,omitempty"`
}

// Response is the raw provider output. Callers must treat it as untrusted.
type Response struct {
	Text     string `json:"text"`
	Provider string `json:"provider,omitempty"`
}

// Provider is an opaque intelligence collaborator that may fail, time out, or
// return malformed output.
type Provider interface {
	Name() string
	Respond(ctx context.Context, req Request) (Response, error)
}

// ErrEmptyResponse is returned when a provider produced no text.
var ErrEmptyResponse = errors.New("provider returned empty response")

// Config controls provider construction.
type Config struct {
	Mode string

	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	HTTPURL    string
	HTTPStrict bool

	FallbackToMock     bool
	BreakerMaxFailures uint32
	BreakerTimeout     time.Duration
}

// New builds the configured provider. "auto" prefers OpenAI when a key is
// set, then the HTTP endpoint, then the local mock.
func New(cfg Config) (Provider, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	var primary Provider
	switch mode {
	case "auto":
		switch {
		case strings.TrimSpace(cfg.OpenAIAPIKey) != "":
			primary = NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel)
		case strings.TrimSpace(cfg.HTTPURL) != "":
			primary = NewHTTPProvider(cfg.HTTPURL, cfg.HTTPStrict)
		default:
			return NewMockProvider(), nil
		}
	case "openai":
		if strings.TrimSpace(cfg.OpenAIAPIKey) == "" {
			return nil, errors.New("OPENAI_API_KEY is required for openai mode")
		}
		primary = NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel)
	case "http":
		if strings.TrimSpace(cfg.HTTPURL) == "" {
			return nil, errors.New("BRAIN_HTTP_URL is required for http mode")
		}
		primary = NewHTTPProvider(cfg.HTTPURL, cfg.HTTPStrict)
	case "mock":
		return NewMockProvider(), nil
	default:
		return nil, fmt.Errorf("unsupported brain mode %q", cfg.Mode)
	}

	primary = NewBreakerProvider(primary, BreakerConfig{
		MaxFailures: cfg.BreakerMaxFailures,
		Timeout:     cfg.BreakerTimeout,
	})
	if cfg.FallbackToMock {
		return NewFallbackProvider(primary, NewMockProvider()), nil
	}
	return primary, nil
}

// LastUserMessage returns the content of the last user message in req.
func LastUserMessage(req Request) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			return req.Messages[i].Content
		}
	}
	return ""
}
