package brain

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

// FallbackProvider tries a primary provider first and falls back on error.
type FallbackProvider struct {
	primary  Provider
	fallback Provider
}

func NewFallbackProvider(primary, fallback Provider) *FallbackProvider {
	return &FallbackProvider{primary: primary, fallback: fallback}
}

func (p *FallbackProvider) Name() string {
	return p.primary.Name() + "+" + p.fallback.Name()
}

func (p *FallbackProvider) Respond(ctx context.Context, req Request) (Response, error) {
	resp, err := p.primary.Respond(ctx, req)
	if err == nil {
		return resp, nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Response{}, err
	}
	log.Warn().Err(err).Str("task", string(req.Task)).Str("provider", p.primary.Name()).Msg("primary provider failed, using fallback")

	fallbackResp, fallbackErr := p.fallback.Respond(ctx, req)
	if fallbackErr != nil {
		return Response{}, fmt.Errorf("primary provider error: %w; fallback provider error: %v", err, fallbackErr)
	}
	return fallbackResp, nil
}
