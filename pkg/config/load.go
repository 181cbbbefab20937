package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads configuration from a YAML file, applies environment
// overrides, and validates the result. An empty path loads defaults
// plus environment overrides only.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnv overlays TFMEND_* environment variables onto the config.
// Environment always wins over the file.
func applyEnv(cfg *Config) {
	setString(&cfg.Workspace.Root, "TFMEND_WORKSPACE_ROOT")
	setString(&cfg.Workspace.Region, "TFMEND_REGION")

	setString(&cfg.Terraform.Binary, "TFMEND_TERRAFORM_BINARY")
	setString(&cfg.Terraform.Version, "TFMEND_TERRAFORM_VERSION")
	setDuration(&cfg.Terraform.Timeout, "TFMEND_TERRAFORM_TIMEOUT")

	setBool(&cfg.Oracle.Enabled, "TFMEND_ORACLE_ENABLED")
	setString(&cfg.Oracle.BaseURL, "TFMEND_ORACLE_BASE_URL")
	setString(&cfg.Oracle.Model, "TFMEND_ORACLE_MODEL")
	setInt(&cfg.Oracle.MaxTokens, "TFMEND_ORACLE_MAX_TOKENS")

	setInt(&cfg.Throttle.Parallelism, "TFMEND_PARALLELISM")
	setInt(&cfg.Throttle.Floor, "TFMEND_PARALLELISM_FLOOR")

	setString(&cfg.Store.Path, "TFMEND_STORE_PATH")

	setString(&cfg.Telemetry.LogLevel, "TFMEND_LOG_LEVEL")
	setString(&cfg.Telemetry.LogFormat, "TFMEND_LOG_FORMAT")
	setBool(&cfg.Telemetry.MetricsEnabled, "TFMEND_METRICS_ENABLED")
	setString(&cfg.Telemetry.MetricsListen, "TFMEND_METRICS_LISTEN")
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
