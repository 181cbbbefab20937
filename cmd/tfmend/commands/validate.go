package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tfmend/tfmend/pkg/policy"
	"github.com/tfmend/tfmend/pkg/workflow"
)

func newValidateCommand() *cobra.Command {
	var artifactFile string

	cmd := &cobra.Command{
		Use:   "validate [graph-file]",
		Short: "Validate a workflow graph and optionally an artifact",
		Long: `Validate a workflow graph definition without executing it.

This command checks:
  - JSON/YAML syntax and struct constraints
  - CUE schema conformance
  - Structural invariants (unique IDs, declared edge endpoints, start node)
  - Graph admission policies (OPA/Rego)

With --artifact the Terraform artifact is screened against the
artifact policies as well.`,
		Example: `  # Validate the built-in default graph
  tfmend validate

  # Validate a custom graph
  tfmend validate graph.yaml

  # Validate a graph and an artifact together
  tfmend validate graph.yaml --artifact main.tf`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			g := workflow.DefaultGraph()
			if len(args) > 0 {
				g, err = workflow.NewParser().ParseFile(args[0])
				if err != nil {
					return err
				}
			}

			pol, err := buildPolicyEngine(ctx, cfg, logger)
			if err != nil {
				return err
			}

			result, err := pol.EvaluateGraph(ctx, g)
			if err != nil {
				return err
			}
			printViolations(result)
			if !result.Allowed {
				return fmt.Errorf("graph rejected by policy")
			}

			if artifactFile != "" {
				data, err := os.ReadFile(artifactFile)
				if err != nil {
					return fmt.Errorf("failed to read artifact: %w", err)
				}
				screen, err := pol.EvaluateArtifact(ctx, string(data))
				if err != nil {
					return err
				}
				printViolations(screen)
				if !screen.Allowed {
					return fmt.Errorf("artifact rejected by policy")
				}
			}

			fmt.Printf("graph %q is valid (%d nodes, %d edges)\n",
				g.Metadata.Name, len(g.Nodes), len(g.Edges))
			return nil
		},
	}

	cmd.Flags().StringVarP(&artifactFile, "artifact", "a", "", "Terraform artifact to screen")

	return cmd
}

func printViolations(result *policy.Result) {
	for _, v := range result.Violations {
		fmt.Printf("  [%s] %s: %s\n", v.Severity, v.Policy, v.Message)
	}
	for _, w := range result.Warnings {
		fmt.Printf("  [warning] %s\n", w)
	}
}
