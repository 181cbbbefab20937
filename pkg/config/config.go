// Package config loads the runtime configuration for the tfmend
// daemon and CLI: workspace location, terraform binary selection,
// oracle endpoint, throttle bounds, store path, policy sources, and
// telemetry settings. Configuration comes from a YAML file with
// environment variable overrides on top.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/tfmend/tfmend/pkg/telemetry"
)

// Config is the complete runtime configuration.
type Config struct {
	// Workspace configures where run workspaces live.
	Workspace WorkspaceConfig `yaml:"workspace"`

	// Terraform configures binary selection and execution limits.
	Terraform TerraformConfig `yaml:"terraform"`

	// Oracle configures the repair oracle endpoint.
	Oracle OracleConfig `yaml:"oracle"`

	// Throttle configures the adaptive parallelism controller.
	Throttle ThrottleConfig `yaml:"throttle"`

	// Store configures the run history database.
	Store StoreConfig `yaml:"store"`

	// Policy configures policy sources and hot reload.
	Policy PolicyConfig `yaml:"policy"`

	// Telemetry configures logging, metrics, and tracing.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// WorkspaceConfig configures run workspaces.
type WorkspaceConfig struct {
	// Root is the directory workspaces are created under.
	Root string `yaml:"root" validate:"required"`

	// Region is the default cloud region injected into runs.
	Region string `yaml:"region"`
}

// TerraformConfig configures the terraform binary.
type TerraformConfig struct {
	// Binary overrides binary discovery with an explicit path.
	Binary string `yaml:"binary"`

	// Version is the version the installer fetches when no binary is
	// found on the host.
	Version string `yaml:"version"`

	// Timeout bounds a single terraform invocation.
	Timeout time.Duration `yaml:"timeout" validate:"gte=0"`
}

// OracleConfig configures the repair oracle.
type OracleConfig struct {
	// Enabled controls whether heal nodes are wired at all. When false
	// a failing run routes to heal and terminates with a missing
	// callback error instead of consulting the oracle.
	Enabled bool `yaml:"enabled"`

	// BaseURL is the oracle API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects the model used for repairs.
	Model string `yaml:"model"`

	// MaxTokens caps the response size per repair.
	MaxTokens int `yaml:"max_tokens" validate:"gte=0"`
}

// ThrottleConfig configures adaptive parallelism.
type ThrottleConfig struct {
	// Parallelism is the initial -parallelism hint.
	Parallelism int `yaml:"parallelism" validate:"gte=1,lte=256"`

	// Floor is the lowest hint the controller steps down to.
	Floor int `yaml:"floor" validate:"gte=1"`
}

// StoreConfig configures run history persistence.
type StoreConfig struct {
	// Path is the SQLite database file. ":memory:" keeps history for
	// the process lifetime only.
	Path string `yaml:"path" validate:"required"`
}

// PolicyConfig configures policy loading.
type PolicyConfig struct {
	// Paths lists .rego/.json files or directories to load.
	Paths []string `yaml:"paths"`

	// Watch reloads policies when a source file changes.
	Watch bool `yaml:"watch"`
}

// TelemetryConfig is the YAML surface for telemetry settings.
type TelemetryConfig struct {
	LogLevel        string  `yaml:"log_level"`
	LogFormat       string  `yaml:"log_format" validate:"omitempty,oneof=console json"`
	LogOutput       string  `yaml:"log_output"`
	MetricsEnabled  bool    `yaml:"metrics_enabled"`
	MetricsListen   string  `yaml:"metrics_listen"`
	TracingEnabled  bool    `yaml:"tracing_enabled"`
	TracingExporter string  `yaml:"tracing_exporter" validate:"omitempty,oneof=otlp stdout none"`
	TracingEndpoint string  `yaml:"tracing_endpoint"`
	SamplingRate    float64 `yaml:"sampling_rate" validate:"gte=0,lte=1"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Workspace: WorkspaceConfig{
			Root:   ".tfmend/workspaces",
			Region: "us-east-1",
		},
		Terraform: TerraformConfig{
			Version: "1.9.5",
			Timeout: 15 * time.Minute,
		},
		Oracle: OracleConfig{
			Enabled:   true,
			MaxTokens: 2000,
		},
		Throttle: ThrottleConfig{
			Parallelism: 10,
			Floor:       1,
		},
		Store: StoreConfig{
			Path: ".tfmend/tfmend.db",
		},
		Telemetry: TelemetryConfig{
			LogLevel:      "info",
			LogFormat:     "console",
			LogOutput:     "stderr",
			MetricsListen: ":9090",
			SamplingRate:  1.0,
		},
	}
}

// Validate checks the configuration against its struct tags.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Throttle.Floor > c.Throttle.Parallelism {
		return fmt.Errorf("invalid configuration: throttle floor %d exceeds parallelism %d",
			c.Throttle.Floor, c.Throttle.Parallelism)
	}
	return nil
}

// Telemetry settings convert into the telemetry package's config,
// overlaid on its defaults.
func (c *Config) TelemetryConfig() *telemetry.Config {
	tc := telemetry.DefaultConfig()

	if c.Telemetry.LogLevel != "" {
		tc.Logging.Level = c.Telemetry.LogLevel
	}
	if c.Telemetry.LogFormat != "" {
		tc.Logging.Format = c.Telemetry.LogFormat
	}
	if c.Telemetry.LogOutput != "" {
		tc.Logging.Output = c.Telemetry.LogOutput
	}

	tc.Metrics.Enabled = c.Telemetry.MetricsEnabled
	if c.Telemetry.MetricsListen != "" {
		tc.Metrics.ListenAddress = c.Telemetry.MetricsListen
	}

	tc.Tracing.Enabled = c.Telemetry.TracingEnabled
	if c.Telemetry.TracingExporter != "" {
		tc.Tracing.Exporter = c.Telemetry.TracingExporter
	}
	if c.Telemetry.TracingEndpoint != "" {
		tc.Tracing.Endpoint = c.Telemetry.TracingEndpoint
	}
	if c.Telemetry.SamplingRate > 0 {
		tc.Tracing.SamplingRate = c.Telemetry.SamplingRate
	}

	return tc
}
