package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/tfmend/tfmend/pkg/engine"
	"github.com/tfmend/tfmend/pkg/stages"
	"github.com/tfmend/tfmend/pkg/stores"
	"github.com/tfmend/tfmend/pkg/telemetry"
	"github.com/tfmend/tfmend/pkg/terraform"
	"github.com/tfmend/tfmend/pkg/throttle"
	"github.com/tfmend/tfmend/pkg/workflow"
)

func newRunCommand() *cobra.Command {
	var (
		graphFile   string
		workspaceID string
		region      string
		attempts    int
		noHeal      bool
		reset       bool
	)

	cmd := &cobra.Command{
		Use:   "run <artifact.tf>",
		Short: "Provision an artifact through the workflow graph",
		Long: `Run a Terraform artifact through the workflow graph.

The run walks the graph from its start node:
  - init prepares the workspace (skipped when nothing changed)
  - plan computes pending changes with a detailed exit code
  - apply executes the plan (skipped when the plan was empty)
  - heal consults the repair oracle when a stage fails

Healing is bounded by the graph's max_attempts; a repair that changes
nothing terminates the run immediately.`,
		Example: `  # Run with the default graph
  tfmend run main.tf

  # Run with a custom graph and workspace
  tfmend run main.tf --graph graph.yaml --workspace prod-vpc

  # Run without healing
  tfmend run main.tf --no-heal`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read artifact: %w", err)
			}
			artifact := string(data)

			g := workflow.DefaultGraph()
			if graphFile != "" {
				g, err = workflow.NewParser().ParseFile(graphFile)
				if err != nil {
					return err
				}
			}

			pol, err := buildPolicyEngine(ctx, cfg, logger)
			if err != nil {
				return err
			}

			admission, err := pol.EvaluateGraph(ctx, g)
			if err != nil {
				return err
			}
			for _, v := range admission.Violations {
				logger.Warn().Str("policy", v.Policy).Str("severity", string(v.Severity)).Msg(v.Message)
			}
			if !admission.Allowed {
				return fmt.Errorf("graph rejected by policy: %s", firstBlocking(admission.Violations))
			}

			screen, err := pol.EvaluateArtifact(ctx, artifact)
			if err != nil {
				return err
			}
			for _, v := range screen.Violations {
				logger.Warn().Str("policy", v.Policy).Str("severity", string(v.Severity)).Msg(v.Message)
			}
			if !screen.Allowed {
				return fmt.Errorf("artifact rejected by policy: %s", firstBlocking(screen.Violations))
			}

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

			tcfg := cfg.TelemetryConfig()
			metrics, err := telemetry.NewMetrics(tcfg.Metrics)
			if err != nil {
				return err
			}
			if tcfg.Metrics.Enabled {
				go func() {
					if err := metrics.StartMetricsServer(logger); err != nil {
						logger.Error().Err(err).Msg("metrics server stopped")
					}
				}()
			}

			tracer, err := telemetry.NewTracer(tcfg.Tracing, tcfg.ServiceName, tcfg.ServiceVersion, tcfg.Environment)
			if err != nil {
				return err
			}
			defer tracer.Shutdown(ctx)

			bin, err := resolveBinary(ctx, cfg, logger)
			if err != nil {
				return err
			}

			wsDir := filepath.Join(cfg.Workspace.Root, workspaceID)
			ws, err := terraform.NewWorkspace(wsDir)
			if err != nil {
				return err
			}

			tracker := stores.NewPersistentTracker(store, logger)
			if reset {
				if err := ws.Reset(); err != nil {
					return fmt.Errorf("failed to reset workspace: %w", err)
				}
				tracker.Reset(workspaceID)
				logger.Info().Str("workspace", workspaceID).Msg("workspace reset")
			}

			if region == "" {
				region = cfg.Workspace.Region
			}

			runLogger := telemetry.WithWorkspace(logger, workspaceID)

			thr := throttle.NewController(cfg.Throttle.Parallelism, cfg.Throttle.Floor, runLogger)
			thr.Notify(metrics.SetParallelismHint)

			deps := &stages.Deps{
				Runner:      terraform.NewExecRunner(),
				Binary:      bin,
				Workspace:   ws,
				Tracker:     tracker,
				Throttle:    thr,
				Credentials: credentialsFromEnv(),
				Region:      region,
				Timeout:     cfg.Terraform.Timeout,
				Logger:      runLogger,
			}

			if !noHeal {
				healer, err := buildHealer(cfg, pol, metrics, runLogger)
				if err != nil {
					return err
				}
				if healer != nil {
					deps.Healer = healer
				}
			}

			reg := engine.NewRegistry()
			if err := stages.Register(reg, g, deps); err != nil {
				return err
			}
			if err := reg.ValidateFor(g); err != nil {
				return err
			}

			exec := engine.NewExecutor(
				engine.WithLogger(runLogger),
				engine.WithRecorder(stores.NewRecorder(store)),
				engine.WithObserver(metrics),
				engine.WithTracer(tracer.Tracer()),
			)

			metrics.RecordRunStarted()
			start := time.Now()

			report := exec.Run(ctx, g, reg, engine.NewContext(artifact, workspaceID, region), attempts)

			status := "completed"
			if !report.Success {
				status = "failed"
				if report.Err != nil {
					metrics.RecordError(string(report.Err.Kind))
				}
			}
			metrics.RecordRunCompleted(status, time.Since(start))

			if err := printReport(report); err != nil {
				return err
			}
			if !report.Success {
				failLogger := telemetry.WithRunID(runLogger, report.RunID)
				if engine.IsThrottled(report.Err) {
					failLogger.Warn().Msg("run failed on rate limiting, retry with a lower parallelism hint")
				} else if engine.IsTransient(report.Err) {
					failLogger.Warn().Msg("failure looks transient, rerunning may succeed")
				}
				return fmt.Errorf("run %s failed: %s", report.RunID, report.ErrorMessage())
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&graphFile, "graph", "g", "", "workflow graph file (JSON or YAML)")
	cmd.Flags().StringVarP(&workspaceID, "workspace", "w", "default", "workspace identifier")
	cmd.Flags().StringVarP(&region, "region", "r", "", "target cloud region")
	cmd.Flags().IntVar(&attempts, "attempts", 0, "heal budget override (0 uses the graph setting)")
	cmd.Flags().BoolVar(&noHeal, "no-heal", false, "disable oracle healing for this run")
	cmd.Flags().BoolVar(&reset, "reset", false, "discard workspace state (init cache, lock file, local state) before running")

	return cmd
}

// printReport writes the run outcome to stdout, as JSON when --json is
// set.
func printReport(report *engine.ExecutionReport) error {
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	fmt.Printf("Run %s: ", report.RunID)
	if report.Success {
		fmt.Println("success")
	} else {
		fmt.Printf("failed (%s)\n", report.ErrorMessage())
	}
	fmt.Printf("  stages: %d, heal cycles: %d, duration: %s\n",
		len(report.Attempts), report.HealCycles,
		report.CompletedAt.Sub(report.StartedAt).Round(time.Millisecond))

	for i, a := range report.Attempts {
		outcome := "ok"
		if !a.Success {
			outcome = "failed"
		}
		fmt.Printf("  %2d. %-6s %-6s exit=%d\n", i+1, a.Stage, outcome, a.ExitCode())
	}
	return nil
}
