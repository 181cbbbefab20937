package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/tfmend/tfmend/pkg/stores"
)

func newHistoryCommand() *cobra.Command {
	var (
		runID string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show past runs and their stage attempts",
		Long: `Show the run history recorded in the store.

Without flags the most recent runs are listed. With --run the stage
attempts of a single run are shown in order.`,
		Example: `  # List recent runs
  tfmend history

  # Show one run in detail
  tfmend history --run 2f1c9c7e-...

  # List more runs as JSON
  tfmend history --limit 50 --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			store, err := stores.NewSQLiteStore(stores.Config{Path: cfg.Store.Path})
			if err != nil {
				return err
			}
			if err := store.Init(ctx); err != nil {
				return err
			}
			defer store.Close()
			if err := store.Migrate(ctx); err != nil {
				return err
			}

			if runID != "" {
				return showRun(cmd, store, runID)
			}

			runs, err := store.ListRuns(ctx, limit, 0)
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(runs)
			}

			if len(runs) == 0 {
				fmt.Println("no runs recorded")
				return nil
			}
			for _, r := range runs {
				line := fmt.Sprintf("%s  %-9s  graph=%s workspace=%s started=%s",
					r.ID, r.Status, r.Graph, r.WorkspaceID,
					r.StartedAt.Format(time.RFC3339))
				if r.Error != nil {
					line += "  error=" + *r.Error
				}
				fmt.Println(line)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&runID, "run", "", "show attempts for one run")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to list")

	return cmd
}

func showRun(cmd *cobra.Command, store *stores.SQLiteStore, runID string) error {
	ctx := cmd.Context()

	run, err := store.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	attempts, err := store.ListAttemptsByRun(ctx, runID)
	if err != nil {
		return err
	}
	events, err := store.ListEvents(ctx, runID, 100, 0)
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Run      *stores.Run       `json:"run"`
			Attempts []*stores.Attempt `json:"attempts"`
			Events   []*stores.Event   `json:"events"`
		}{run, attempts, events})
	}

	fmt.Printf("Run %s (%s)\n", run.ID, run.Status)
	fmt.Printf("  graph=%s workspace=%s started=%s\n",
		run.Graph, run.WorkspaceID, run.StartedAt.Format(time.RFC3339))
	if run.CompletedAt != nil {
		fmt.Printf("  completed=%s\n", run.CompletedAt.Format(time.RFC3339))
	}
	if run.Error != nil {
		fmt.Printf("  error=%s\n", *run.Error)
	}

	for _, a := range attempts {
		outcome := "ok"
		if !a.Success {
			outcome = "failed"
		}
		exit := "-"
		if a.ExitCode != nil {
			exit = fmt.Sprintf("%d", *a.ExitCode)
		}
		fmt.Printf("  %2d. %-6s %-6s exit=%s duration=%dms\n",
			a.Seq, a.Stage, outcome, exit, a.DurationMS)
	}

	if len(events) > 0 {
		fmt.Println("  events:")
		// ListEvents returns newest first; replay in order.
		for i := len(events) - 1; i >= 0; i-- {
			e := events[i]
			fmt.Printf("    %s  %-7s %s\n",
				e.Timestamp.Format(time.RFC3339), e.Level, e.Message)
		}
	}
	return nil
}
