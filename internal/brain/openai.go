package brain

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	horizonotel "github.com/ent0n29/horizon/internal/otel"
)

var tracer = horizonotel.Tracer("github.com/ent0n29/horizon/internal/brain")

const (
	defaultOpenAIModel = "gpt-4o-mini"
	openAICallTimeout  = 45 * time.Second
)

// OpenAIProvider calls an OpenAI-compatible chat completions API.
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

// NewOpenAIProvider builds a provider. baseURL may be empty for the public
// API, otherwise it is the scheme+host of a compatible server.
func NewOpenAIProvider(apiKey, baseURL, model string) *OpenAIProvider {
	config := openai.DefaultConfig(apiKey)
	if u := strings.TrimRight(strings.TrimSpace(baseURL), "/"); u != "" {
		config.BaseURL = u + "/v1"
	}
	return newOpenAIProviderWithClient(openai.NewClientWithConfig(config), model)
}

func newOpenAIProviderWithClient(client *openai.Client, model string) *OpenAIProvider {
	if strings.TrimSpace(model) == "" {
		model = defaultOpenAIModel
	}
	return &OpenAIProvider{client: client, model: model}
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) Respond(ctx context.Context, req Request) (Response, error) {
	ctx, span := tracer.Start(ctx, "brain.openai",
		trace.WithAttributes(
			attribute.String("brain.task", string(req.Task)),
			attribute.String("gen_ai.request.model", p.model),
		))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, openAICallTimeout)
	defer cancel()

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if strings.TrimSpace(req.System) != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, m := range req.Messages {
		role := openai.ChatMessageRoleUser
		if m.Role == "assistant" {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}

	chatReq := openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    messages,
		Temperature: 0,
	}
	if req.JSON {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		span.RecordError(err)
		return Response{}, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Response{}, fmt.Errorf("openai chat completion: %w", ErrEmptyResponse)
	}
	span.SetAttributes(
		attribute.Int("gen_ai.usage.input_tokens", resp.Usage.PromptTokens),
		attribute.Int("gen_ai.usage.output_tokens", resp.Usage.CompletionTokens),
	)
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return Response{}, ErrEmptyResponse
	}
	return Response{Text: text, Provider: p.Name()}, nil
}
