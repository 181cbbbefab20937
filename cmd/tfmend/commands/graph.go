package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tfmend/tfmend/pkg/workflow"
)

func newGraphCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "graph [graph-file]",
		Short: "Render a workflow graph as DOT",
		Long: `Render a workflow graph in Graphviz DOT format.

Without a file the built-in default graph is rendered. Pipe the output
through dot to produce an image.`,
		Example: `  # Render the default graph
  tfmend graph

  # Render a custom graph to a file
  tfmend graph graph.yaml -o graph.dot

  # Produce a PNG
  tfmend graph | dot -Tpng -o graph.png`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g := workflow.DefaultGraph()
			if len(args) > 0 {
				var err error
				g, err = workflow.NewParser().ParseFile(args[0])
				if err != nil {
					return err
				}
			}

			dot := g.ToDOT()
			if output == "" {
				fmt.Print(dot)
				return nil
			}
			if err := os.WriteFile(output, []byte(dot), 0o644); err != nil {
				return fmt.Errorf("failed to write DOT file: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write DOT to a file instead of stdout")

	return cmd
}
