package telemetry

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config must validate: %v", err)
	}

	bad := DefaultConfig()
	bad.Logging.Level = "verbose"
	if err := bad.Validate(); err == nil {
		t.Error("expected error for bad log level")
	}

	bad = DefaultConfig()
	bad.Tracing.Enabled = true
	bad.Tracing.Exporter = "jaeger"
	if err := bad.Validate(); err == nil {
		t.Error("expected error for unsupported exporter")
	}

	bad = DefaultConfig()
	bad.Tracing.SamplingRate = 1.5
	if err := bad.Validate(); err == nil {
		t.Error("expected error for out-of-range sampling rate")
	}
}

func TestNewLogger_Levels(t *testing.T) {
	logger, err := NewLogger(LoggingConfig{Level: "debug", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	if logger.GetLevel() != zerolog.DebugLevel {
		t.Errorf("expected debug level, got %s", logger.GetLevel())
	}

	logger, err = NewLogger(LoggingConfig{Level: "nonsense", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	if logger.GetLevel() != zerolog.InfoLevel {
		t.Errorf("unknown level must default to info, got %s", logger.GetLevel())
	}
}

func TestMetrics_DisabledIsNoOp(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	// None of these may panic on a disabled instance.
	m.RecordRunStarted()
	m.RecordRunCompleted("completed", time.Second)
	m.StageVisited("plan", true, time.Second)
	m.HealCycle(1)
	m.SetParallelismHint(10)
	m.RecordOracleCall(true, time.Second)
	m.RecordError("stage_execution")

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("disabled metrics handler should 404, got %d", resp.StatusCode)
	}
}

func TestMetrics_Exposition(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{
		Enabled:   true,
		Namespace: "tfmend",
		Path:      "/metrics",
	})
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	m.RecordRunStarted()
	m.StageVisited("plan", true, 2*time.Second)
	m.StageVisited("apply", false, time.Second)
	m.HealCycle(1)
	m.SetParallelismHint(1)
	m.RecordError("healing_budget_exceeded")
	m.RecordRunCompleted("failed", 10*time.Second)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET metrics: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read metrics body: %v", err)
	}
	body := string(raw)

	for _, want := range []string{
		"tfmend_runs_started_total 1",
		`tfmend_stages_executed_total{stage="plan",status="success"} 1`,
		`tfmend_stages_executed_total{stage="apply",status="failure"} 1`,
		"tfmend_heal_cycles_total 1",
		"tfmend_parallelism_hint 1",
		`tfmend_errors_by_kind_total{kind="healing_budget_exceeded"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics exposition missing %q", want)
		}
	}
}

func TestTracer_DisabledNoError(t *testing.T) {
	tr, err := NewTracer(TracingConfig{Enabled: false}, "tfmend", "test", "test")
	if err != nil {
		t.Fatalf("NewTracer: %v", err)
	}
	if tr.Tracer() == nil {
		t.Error("disabled tracer must still hand out a tracer")
	}
}

func TestTracer_UnsupportedExporter(t *testing.T) {
	_, err := NewTracer(TracingConfig{Enabled: true, Exporter: "jaeger"}, "tfmend", "test", "test")
	if err == nil {
		t.Fatal("expected error for unsupported exporter")
	}
}
