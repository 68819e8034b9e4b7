package app

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ent0n29/horizon/internal/config"
	"github.com/ent0n29/horizon/internal/observability"
	"github.com/ent0n29/horizon/internal/turn"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("BRAIN_MODE", "mock")
	t.Setenv("EXPORT_DIR", dir+"/exports")
	t.Setenv("ARTIFACT_DIR", dir+"/artifacts")
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config.Load() error = %v", err)
	}
	return cfg
}

func TestBuildRunsTurnWithMockProvider(t *testing.T) {
	cfg := testConfig(t)
	res, err := Build(context.Background(), cfg, WithMetrics(observability.NewMetricsWith(prometheus.NewRegistry(), "test_app")))
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			t.Fatalf("Cleanup() error = %v", err)
		}
	}()

	resp, err := res.Orchestrator.Run(context.Background(), "chat-1", "list projects and export csv")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if resp.Intent != turn.IntentDataQuery {
		t.Fatalf("intent = %q, want %q", resp.Intent, turn.IntentDataQuery)
	}
	if resp.Error != nil {
		t.Fatalf("unexpected response error: %+v", resp.Error)
	}
	if !strings.Contains(string(resp.Payload), `"exported":true`) {
		t.Fatalf("payload missing export: %s", resp.Payload)
	}

	records, err := res.Memory.Full(context.Background(), "chat-1")
	if err != nil {
		t.Fatalf("Full() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %d, want 2", len(records))
	}
}

func TestBuildRejectsBadCatalogPath(t *testing.T) {
	cfg := testConfig(t)
	cfg.CatalogPath = t.TempDir() + "/missing.yaml"
	_, err := Build(context.Background(), cfg, WithMetrics(observability.NewMetricsWith(prometheus.NewRegistry(), "test_app_bad")))
	if err == nil {
		t.Fatalf("Build() error = nil, want catalog error")
	}
}
