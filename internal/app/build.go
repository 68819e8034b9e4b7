// Package app assembles the turn orchestration service from configuration.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/ent0n29/horizon/internal/actions"
	"github.com/ent0n29/horizon/internal/brain"
	"github.com/ent0n29/horizon/internal/config"
	"github.com/ent0n29/horizon/internal/dispatch"
	"github.com/ent0n29/horizon/internal/handlers"
	"github.com/ent0n29/horizon/internal/httpapi"
	"github.com/ent0n29/horizon/internal/humanize"
	"github.com/ent0n29/horizon/internal/intent"
	"github.com/ent0n29/horizon/internal/memory"
	"github.com/ent0n29/horizon/internal/observability"
	"github.com/ent0n29/horizon/internal/orchestrator"
	"github.com/ent0n29/horizon/internal/planner"
	"github.com/ent0n29/horizon/internal/policy"
	"github.com/ent0n29/horizon/internal/safety"
	"github.com/ent0n29/horizon/internal/session"
)

type BuildResult struct {
	Config       config.Config
	API          *httpapi.Server
	Sessions     *session.Manager
	Orchestrator *orchestrator.Controller
	Memory       *memory.Tier
	Validator    *safety.Validator
	Provider     brain.Provider
	Metrics      *observability.Metrics

	// Cleanup should be called on shutdown to release external resources (DB, cache).
	Cleanup func() error
}

// Option adjusts a build before collaborators are wired.
type Option func(*buildOptions)

type buildOptions struct {
	metrics  *observability.Metrics
	provider brain.Provider
}

// WithMetrics uses m instead of registering on the default registry.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *buildOptions) { o.metrics = m }
}

// WithProvider bypasses provider resolution.
func WithProvider(p brain.Provider) Option {
	return func(o *buildOptions) { o.provider = p }
}

func Build(ctx context.Context, cfg config.Config, opts ...Option) (*BuildResult, error) {
	var o buildOptions
	for _, opt := range opts {
		opt(&o)
	}
	metrics := o.metrics
	if metrics == nil {
		metrics = observability.NewMetrics(cfg.MetricsNamespace)
	}

	var closers []func() error
	cleanup := func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
	fail := func(err error) (*BuildResult, error) {
		_ = cleanup()
		return nil, err
	}

	provider := o.provider
	if provider == nil {
		p, err := resolveProvider(cfg, metrics)
		if err != nil {
			return nil, err
		}
		provider = p
	}

	durable, err := memory.NewDurableStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("memory store init failed: %w", err)
	}
	cache, err := memory.NewCache(cfg.CacheURL, cfg.CacheWindow, cfg.CacheTTL)
	if err != nil {
		_ = durable.Close()
		return nil, fmt.Errorf("cache init failed: %w", err)
	}
	tier := memory.NewTier(durable, cache,
		memory.WithWindow(cfg.CacheWindow),
		memory.WithLookupObserver(metrics),
	)
	closers = append(closers, tier.Close)
	log.Info().
		Str("durable", policy.RedactString(orDefault(cfg.DatabaseURL, "memory"))).
		Str("cache", policy.RedactString(orDefault(cfg.CacheURL, "lru"))).
		Int("window", cfg.CacheWindow).
		Msg("memory tiers ready")

	unbounded, err := safety.ParsePolicy(cfg.SQLUnboundedPolicy)
	if err != nil {
		return fail(err)
	}
	validator := safety.New(cfg.SQLMaxLimit, unbounded)

	cat, err := resolveCatalog(cfg)
	if err != nil {
		return fail(err)
	}
	runner, err := openDataSource(ctx, cfg)
	if err != nil {
		return fail(fmt.Errorf("data source init failed: %w", err))
	}
	closers = append(closers, runner.Close)

	registry, err := handlers.Default(handlers.Deps{
		Provider:  provider,
		Validator: validator,
		Runner:    runner,
		Catalog:   cat,
		Entities:  resolveEntities(cfg, runner),
		Retriever: cat,
	})
	if err != nil {
		return fail(err)
	}

	executor := actions.New(actions.Config{
		ExportDir:   cfg.ExportDir,
		ArtifactDir: cfg.ArtifactDir,
		MailFrom:    cfg.EmailFrom,
		Mailer:      resolveMailer(cfg),
		Webhook:     resolveWebhook(cfg),
	})

	sessions := session.NewManager(cfg.ChatIdleTimeout)
	sessions.SetExpireHook(func(_ session.Chat) {
		metrics.SetActiveChats(sessions.ActiveCount())
	})

	controller, err := orchestrator.New(orchestrator.Deps{
		Memory:       tier,
		Classifier:   intent.New(provider),
		Router:       registry,
		Planner:      planner.New(provider),
		Dispatcher:   dispatch.New(provider, executor, dispatch.WithObserver(metrics)),
		Reducer:      humanize.New(provider),
		Sessions:     activeChats{Manager: sessions, metrics: metrics},
		Metrics:      metrics,
		HistoryLimit: cfg.HistoryLimit,
	})
	if err != nil {
		return fail(err)
	}

	api := httpapi.New(cfg, controller, tier, sessions, metrics)

	return &BuildResult{
		Config:       cfg,
		API:          api,
		Sessions:     sessions,
		Orchestrator: controller,
		Memory:       tier,
		Validator:    validator,
		Provider:     provider,
		Metrics:      metrics,
		Cleanup:      cleanup,
	}, nil
}

// activeChats keeps the active-chat gauge current as turns start.
type activeChats struct {
	*session.Manager
	metrics *observability.Metrics
}

func (a activeChats) Acquire(ctx context.Context, chatID, turnID string) (func(), error) {
	release, err := a.Manager.Acquire(ctx, chatID, turnID)
	a.metrics.SetActiveChats(a.Manager.ActiveCount())
	return release, err
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
