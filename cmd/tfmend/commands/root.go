package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/tfmend/tfmend/pkg/config"
	"github.com/tfmend/tfmend/pkg/telemetry"
)

var (
	// Global flags
	configPath string
	verbose    bool
	jsonOutput bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "tfmend",
		Short: "tfmend - Self-healing Terraform workflow engine",
		Long: `tfmend provisions infrastructure through a workflow graph and repairs
broken Terraform configurations automatically.

Features:
  - Graph-driven init/plan/apply execution with conditional routing
  - LLM-backed repair of failing configurations
  - Idempotent init with content-hash skip detection
  - Adaptive parallelism under provider rate limiting
  - Policy guardrails via OPA/Rego
  - Run history in SQLite`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	// Add subcommands
	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newGenerateCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newGraphCommand())
	rootCmd.AddCommand(newHistoryCommand())
	rootCmd.AddCommand(newDevCommand())

	return rootCmd
}

// loadConfig loads the runtime config and builds the logger from its
// telemetry settings. The --verbose flag forces debug level.
func loadConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Nop(), err
	}

	if verbose {
		cfg.Telemetry.LogLevel = "debug"
	}
	if jsonOutput {
		cfg.Telemetry.LogFormat = "json"
	}

	logger, err := telemetry.NewLogger(cfg.TelemetryConfig().Logging)
	if err != nil {
		return nil, zerolog.Nop(), err
	}

	return cfg, logger, nil
}
