package brain

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned while the breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerConfig controls when the breaker trips and recovers.
type BreakerConfig struct {
	// MaxFailures is the consecutive failure count that opens the circuit.
	MaxFailures uint32
	// Timeout is how long the circuit stays open before a half-open probe.
	Timeout time.Duration
	// HalfOpenMaxRequests is the probe count allowed while half-open.
	HalfOpenMaxRequests uint32
}

// BreakerProvider stops calling a failing provider for a cool-down period.
type BreakerProvider struct {
	next    Provider
	breaker *gobreaker.CircuitBreaker
}

func NewBreakerProvider(next Provider, cfg BreakerConfig) *BreakerProvider {
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.HalfOpenMaxRequests == 0 {
		cfg.HalfOpenMaxRequests = 1
	}
	settings := gobreaker.Settings{
		Name:        next.Name(),
		MaxRequests: cfg.HalfOpenMaxRequests,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		IsSuccessful: func(err error) bool {
			// Caller cancellation says nothing about provider health.
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("provider", name).Str("from", from.String()).Str("to", to.String()).Msg("provider circuit state changed")
		},
	}
	return &BreakerProvider{next: next, breaker: gobreaker.NewCircuitBreaker(settings)}
}

func (p *BreakerProvider) Name() string { return p.next.Name() }

// State reports closed, open or half-open.
func (p *BreakerProvider) State() string { return p.breaker.State().String() }

func (p *BreakerProvider) Respond(ctx context.Context, req Request) (Response, error) {
	out, err := p.breaker.Execute(func() (interface{}, error) {
		return p.next.Respond(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return Response{}, ErrCircuitOpen
		}
		return Response{}, err
	}
	return out.(Response), nil
}
