package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ent0n29/horizon/internal/actions"
	"github.com/ent0n29/horizon/internal/brain"
	"github.com/ent0n29/horizon/internal/catalog"
	"github.com/ent0n29/horizon/internal/config"
	"github.com/ent0n29/horizon/internal/dataaccess"
	"github.com/ent0n29/horizon/internal/observability"
	"github.com/ent0n29/horizon/internal/reliability"
)

const demoDataURL = "sqlite::memory:"

func resolveProvider(cfg config.Config, metrics *observability.Metrics) (brain.Provider, error) {
	p, err := brain.New(brain.Config{
		Mode:               cfg.BrainMode,
		OpenAIAPIKey:       cfg.OpenAIAPIKey,
		OpenAIBaseURL:      cfg.OpenAIBaseURL,
		OpenAIModel:        cfg.OpenAIModel,
		HTTPURL:            cfg.BrainHTTPURL,
		FallbackToMock:     cfg.BrainFallbackMock,
		BreakerMaxFailures: uint32(cfg.BrainBreakerMaxFailures),
		BreakerTimeout:     cfg.BrainBreakerTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("brain provider init failed: %w", err)
	}
	log.Info().Str("provider", p.Name()).Msg("brain provider ready")
	return observedProvider{Provider: p, metrics: metrics}, nil
}

// observedProvider counts provider errors per task.
type observedProvider struct {
	brain.Provider
	metrics *observability.Metrics
}

func (o observedProvider) Respond(ctx context.Context, req brain.Request) (brain.Response, error) {
	resp, err := o.Provider.Respond(ctx, req)
	if err != nil {
		o.metrics.ObserveProviderError(o.Provider.Name(), string(req.Task))
	}
	return resp, err
}

func resolveMailer(cfg config.Config) actions.Mailer {
	if strings.EqualFold(cfg.EmailProvider, "smtp") {
		log.Info().Str("addr", cfg.SMTPAddr).Msg("email provider: smtp")
		return actions.NewSMTPMailer(cfg.SMTPAddr, cfg.SMTPUsername, cfg.SMTPPassword)
	}
	log.Info().Msg("email provider: log")
	return actions.NewLogMailer()
}

func resolveWebhook(cfg config.Config) *actions.WebhookSender {
	return actions.NewWebhookSender(cfg.WebhookURL, cfg.WebhookAllowedHosts, &http.Client{Timeout: 10 * time.Second}, reliability.DefaultPolicy)
}

func resolveCatalog(cfg config.Config) (*catalog.Catalog, error) {
	if strings.TrimSpace(cfg.CatalogPath) == "" {
		return catalog.Default(), nil
	}
	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("catalog load failed: %w", err)
	}
	return cat, nil
}

// openDataSource opens the read-only data source. Without DATA_DATABASE_URL
// an in-memory demo database is seeded.
func openDataSource(ctx context.Context, cfg config.Config) (*dataaccess.SQLRunner, error) {
	dsn := strings.TrimSpace(cfg.DataDatabaseURL)
	demo := dsn == ""
	if demo {
		dsn = demoDataURL
	}
	runner, err := dataaccess.Open(dsn)
	if err != nil {
		return nil, err
	}
	if demo {
		if err := dataaccess.SeedDemo(ctx, runner.DB()); err != nil {
			_ = runner.Close()
			return nil, err
		}
		log.Info().Msg("data source: in-memory demo database")
	}
	return runner, nil
}

func resolveEntities(cfg config.Config, runner *dataaccess.SQLRunner) dataaccess.EntitySource {
	if u := strings.TrimSpace(cfg.EntityAPIURL); u != "" {
		return dataaccess.NewHTTPEntitySource(u)
	}
	return dataaccess.NewSQLEntitySource(runner, "projects")
}
