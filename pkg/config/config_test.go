package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault_IsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoad_EmptyPath(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Workspace.Root != ".tfmend/workspaces" {
		t.Errorf("unexpected workspace root: %s", cfg.Workspace.Root)
	}
	if cfg.Throttle.Parallelism != 10 {
		t.Errorf("expected default parallelism 10, got %d", cfg.Throttle.Parallelism)
	}
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tfmend.yaml")

	content := `workspace:
  root: /var/lib/tfmend
  region: eu-west-1
terraform:
  timeout: 5m
oracle:
  enabled: false
throttle:
  parallelism: 4
  floor: 2
store:
  path: /var/lib/tfmend/history.db
telemetry:
  log_level: debug
  log_format: json
  metrics_enabled: true
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Workspace.Root != "/var/lib/tfmend" {
		t.Errorf("unexpected workspace root: %s", cfg.Workspace.Root)
	}
	if cfg.Workspace.Region != "eu-west-1" {
		t.Errorf("unexpected region: %s", cfg.Workspace.Region)
	}
	if cfg.Terraform.Timeout != 5*time.Minute {
		t.Errorf("unexpected timeout: %s", cfg.Terraform.Timeout)
	}
	if cfg.Oracle.Enabled {
		t.Error("expected oracle disabled")
	}
	if cfg.Throttle.Parallelism != 4 || cfg.Throttle.Floor != 2 {
		t.Errorf("unexpected throttle config: %+v", cfg.Throttle)
	}
	if cfg.Telemetry.LogFormat != "json" {
		t.Errorf("unexpected log format: %s", cfg.Telemetry.LogFormat)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/does/not/exist.yaml"); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("TFMEND_REGION", "ap-southeast-2")
	t.Setenv("TFMEND_PARALLELISM", "3")
	t.Setenv("TFMEND_ORACLE_ENABLED", "false")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Workspace.Region != "ap-southeast-2" {
		t.Errorf("expected env region override, got %s", cfg.Workspace.Region)
	}
	if cfg.Throttle.Parallelism != 3 {
		t.Errorf("expected env parallelism override, got %d", cfg.Throttle.Parallelism)
	}
	if cfg.Oracle.Enabled {
		t.Error("expected env oracle override to disable oracle")
	}
}

func TestLoad_EnvWinsOverFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tfmend.yaml")
	if err := os.WriteFile(path, []byte("workspace:\n  region: us-west-2\n"), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	t.Setenv("TFMEND_REGION", "eu-central-1")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Workspace.Region != "eu-central-1" {
		t.Errorf("expected env to win over file, got %s", cfg.Workspace.Region)
	}
}

func TestConfig_Validate_FloorAboveParallelism(t *testing.T) {
	cfg := Default()
	cfg.Throttle.Parallelism = 2
	cfg.Throttle.Floor = 5

	if err := cfg.Validate(); err == nil {
		t.Error("expected error when floor exceeds parallelism")
	}
}

func TestConfig_Validate_BadLogFormat(t *testing.T) {
	cfg := Default()
	cfg.Telemetry.LogFormat = "xml"

	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unknown log format")
	}
}

func TestConfig_TelemetryConfig(t *testing.T) {
	cfg := Default()
	cfg.Telemetry.LogLevel = "debug"
	cfg.Telemetry.MetricsEnabled = true
	cfg.Telemetry.TracingEnabled = true
	cfg.Telemetry.TracingExporter = "otlp"
	cfg.Telemetry.TracingEndpoint = "collector:4317"

	tc := cfg.TelemetryConfig()

	if tc.Logging.Level != "debug" {
		t.Errorf("unexpected log level: %s", tc.Logging.Level)
	}
	if !tc.Metrics.Enabled {
		t.Error("expected metrics enabled")
	}
	if !tc.Tracing.Enabled || tc.Tracing.Exporter != "otlp" || tc.Tracing.Endpoint != "collector:4317" {
		t.Errorf("unexpected tracing config: %+v", tc.Tracing)
	}
	if err := tc.Validate(); err != nil {
		t.Errorf("converted telemetry config should validate: %v", err)
	}
}
