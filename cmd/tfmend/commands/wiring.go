package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/tfmend/tfmend/pkg/config"
	"github.com/tfmend/tfmend/pkg/oracle"
	"github.com/tfmend/tfmend/pkg/policy"
	"github.com/tfmend/tfmend/pkg/telemetry"
	"github.com/tfmend/tfmend/pkg/terraform"
)

// buildPolicyEngine creates the policy engine with built-ins plus any
// configured policy paths.
func buildPolicyEngine(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*policy.Engine, error) {
	eng, err := policy.NewEngine(logger)
	if err != nil {
		return nil, err
	}

	if len(cfg.Policy.Paths) > 0 {
		if err := eng.LoadPolicies(ctx, cfg.Policy.Paths); err != nil {
			return nil, err
		}
	}

	return eng, nil
}

// resolveBinary locates the terraform binary, installing it when the
// host has none.
func resolveBinary(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (string, error) {
	bin, err := terraform.Locate(cfg.Terraform.Binary)
	if err == nil {
		return bin, nil
	}

	logger.Info().Str("version", cfg.Terraform.Version).Msg("terraform not found, installing")
	return terraform.NewInstaller(logger).Install(ctx)
}

// buildHealer constructs the repair oracle client, wrapped with
// artifact policy screening and call metrics. Returns nil when the
// oracle is disabled.
func buildHealer(cfg *config.Config, pol *policy.Engine, metrics *telemetry.Metrics, logger zerolog.Logger) (*screenedHealer, error) {
	if !cfg.Oracle.Enabled {
		return nil, nil
	}

	client, err := oracle.NewHTTPClient(oracle.HTTPConfig{
		BaseURL: cfg.Oracle.BaseURL,
		Model:   cfg.Oracle.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("oracle client: %w", err)
	}

	return &screenedHealer{
		healer:  oracle.NewHealer(client, cfg.Oracle.MaxTokens, logger),
		pol:     pol,
		metrics: metrics,
		logger:  telemetry.WithStage(logger, "heal"),
	}, nil
}

// screenedHealer runs every oracle-produced artifact through the
// artifact policies before it reaches the workspace, and times the
// round trips for the oracle metrics.
type screenedHealer struct {
	healer  *oracle.Healer
	pol     *policy.Engine
	metrics *telemetry.Metrics
	logger  zerolog.Logger
}

func (s *screenedHealer) Heal(ctx context.Context, fc oracle.FailureContext) (string, error) {
	start := time.Now()
	healed, err := s.healer.Heal(ctx, fc)
	if s.metrics != nil {
		s.metrics.RecordOracleCall(err == nil, time.Since(start))
	}
	if err != nil {
		return "", err
	}

	result, err := s.pol.EvaluateArtifact(ctx, healed)
	if err != nil {
		return "", fmt.Errorf("artifact policy evaluation: %w", err)
	}

	for _, v := range result.Violations {
		s.logger.Warn().
			Str("policy", v.Policy).
			Str("severity", string(v.Severity)).
			Msg(v.Message)
	}

	if !result.Allowed {
		return "", fmt.Errorf("healed artifact rejected by policy: %s", firstBlocking(result.Violations))
	}

	return healed, nil
}

// firstBlocking returns the message of the first error-severity
// violation.
func firstBlocking(vs []policy.Violation) string {
	for _, v := range vs {
		if v.Severity == policy.SeverityError {
			return v.Message
		}
	}
	if len(vs) > 0 {
		return vs[0].Message
	}
	return "policy denied"
}

// credentialsFromEnv picks up cloud credentials from the process
// environment so they can be re-injected per run.
func credentialsFromEnv() terraform.Credentials {
	return terraform.Credentials{
		AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
		SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
		SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
	}
}
