package telemetry_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/jonesrussell/north-cloud/scene-extractor/internal/telemetry"
)

func TestNewProvider(t *testing.T) {
	provider := telemetry.NewProvider()
	if provider.Tracer == nil {
		t.Error("expected non-nil tracer")
	}
	if provider.Metrics == nil {
		t.Error("expected non-nil metrics")
	}

	// Registries are per provider, so a second one must not panic on registration.
	_ = telemetry.NewProvider()
}

func TestRecordJob(t *testing.T) {
	provider := telemetry.NewProvider()
	ctx := context.Background()

	provider.RecordJob(ctx, "ensemble", "ok", 120*time.Millisecond, 7)
	provider.RecordJob(ctx, "ensemble", "ok", 80*time.Millisecond, 3)
	provider.RecordJob(ctx, "single", "failed", time.Second, 0)
	provider.RecordJobFailure(ctx, "all_engines_failed")

	if got := testutil.ToFloat64(provider.Metrics.JobsTotal.WithLabelValues("ensemble", "ok")); got != 2 {
		t.Errorf("ensemble ok jobs = %v, want 2", got)
	}
	if got := testutil.ToFloat64(provider.Metrics.JobFailures.WithLabelValues("all_engines_failed")); got != 1 {
		t.Errorf("failures = %v, want 1", got)
	}
}

func TestRecordAdapterCall(t *testing.T) {
	provider := telemetry.NewProvider()
	ctx := context.Background()

	provider.RecordAdapterCall(ctx, "lexicon", "ok", 5*time.Millisecond, 12)
	provider.RecordAdapterCall(ctx, "sidecar", "timeout", 30*time.Second, 0)

	if got := testutil.ToFloat64(provider.Metrics.AdapterCandidates.WithLabelValues("lexicon")); got != 12 {
		t.Errorf("lexicon candidates = %v, want 12", got)
	}
	if got := testutil.ToFloat64(provider.Metrics.AdapterCalls.WithLabelValues("sidecar", "timeout")); got != 1 {
		t.Errorf("sidecar timeouts = %v, want 1", got)
	}
}

func TestGaugesAndHandler(t *testing.T) {
	provider := telemetry.NewProvider()
	provider.IncInFlight()
	provider.IncInFlight()
	provider.DecInFlight()
	provider.SetEngineState("sidecar", 1)
	provider.RecordCacheLookup(context.Background(), "miss")

	if got := testutil.ToFloat64(provider.Metrics.JobsInFlight); got != 1 {
		t.Errorf("in flight = %v, want 1", got)
	}

	rec := httptest.NewRecorder()
	provider.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, name := range []string{"extractor_engine_state", "extractor_cache_lookups_total", "go_goroutines"} {
		if !strings.Contains(body, name) {
			t.Errorf("metrics output missing %s", name)
		}
	}
}

func TestStartSpan(t *testing.T) {
	provider := telemetry.NewProvider()
	ctx, span := provider.StartSpan(context.Background(), "test")
	defer span.End()
	if ctx == nil {
		t.Error("expected context")
	}
}
