package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tfmend/tfmend/pkg/oracle"
)

func newGenerateCommand() *cobra.Command {
	var (
		output    string
		maxTokens int
	)

	cmd := &cobra.Command{
		Use:   "generate <request>",
		Short: "Generate a Terraform artifact from a plain-text request",
		Long: `Ask the oracle to generate a Terraform artifact from a description.

The response is cleaned of markdown leftovers and screened against the
artifact policies before it is written.`,
		Example: `  # Generate to stdout
  tfmend generate "an S3 bucket with versioning in eu-west-1"

  # Generate into a file
  tfmend generate "a VPC with two public subnets" -o main.tf`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			client, err := oracle.NewHTTPClient(oracle.HTTPConfig{
				BaseURL: cfg.Oracle.BaseURL,
				Model:   cfg.Oracle.Model,
			})
			if err != nil {
				return err
			}
			healer := oracle.NewHealer(client, maxTokens, logger)

			artifact, err := healer.GenerateArtifact(ctx, args[0])
			if err != nil {
				return err
			}

			pol, err := buildPolicyEngine(ctx, cfg, logger)
			if err != nil {
				return err
			}
			result, err := pol.EvaluateArtifact(ctx, artifact)
			if err != nil {
				return err
			}
			for _, v := range result.Violations {
				logger.Warn().Str("policy", v.Policy).Str("severity", string(v.Severity)).Msg(v.Message)
			}
			if !result.Allowed {
				return fmt.Errorf("generated artifact rejected by policy: %s", firstBlocking(result.Violations))
			}

			if output == "" {
				fmt.Println(artifact)
				return nil
			}
			if err := os.WriteFile(output, []byte(artifact), 0o644); err != nil {
				return fmt.Errorf("failed to write artifact: %w", err)
			}
			logger.Info().Str("path", output).Msg("artifact written")
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write the artifact to a file instead of stdout")
	cmd.Flags().IntVar(&maxTokens, "max-tokens", oracle.DefaultGenerateMaxTokens, "response token cap")

	return cmd
}
