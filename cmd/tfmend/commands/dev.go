package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/tfmend/tfmend/pkg/config"
	"github.com/tfmend/tfmend/pkg/policy"
	"github.com/tfmend/tfmend/pkg/terraform"
	"github.com/tfmend/tfmend/pkg/throttle"
)

func newDevCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dev",
		Short: "Development mode commands",
		Long: `Commands for iterating on artifacts locally.

These commands watch files and re-run parts of the workflow without a
full provisioning run.`,
	}

	cmd.AddCommand(newDevWatchCommand())

	return cmd
}

func newDevWatchCommand() *cobra.Command {
	var (
		workspaceID string
		region      string
	)

	cmd := &cobra.Command{
		Use:   "watch <artifact.tf>",
		Short: "Re-plan an artifact whenever it changes",
		Long: `Watch a Terraform artifact and re-run plan on every save.

Each change is screened against the artifact policies first, then
planned with a detailed exit code so the output distinguishes "no
changes" from "changes pending". The loop runs until interrupted.`,
		Example: `  # Watch an artifact with the default workspace
  tfmend dev watch main.tf

  # Watch with an explicit workspace and region
  tfmend dev watch main.tf --workspace sandbox --region eu-west-1`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			artifactPath := args[0]

			pol, err := buildPolicyEngine(ctx, cfg, logger)
			if err != nil {
				return err
			}
			if cfg.Policy.Watch && len(cfg.Policy.Paths) > 0 {
				loader := policy.NewLoader(logger)
				err = loader.Watch(ctx, cfg.Policy.Paths, func([]policy.Policy) error {
					return pol.LoadPolicies(ctx, cfg.Policy.Paths)
				})
				if err != nil {
					return err
				}
				defer loader.StopWatching()
			}

			bin, err := resolveBinary(ctx, cfg, logger)
			if err != nil {
				return err
			}

			ws, err := terraform.NewWorkspace(filepath.Join(cfg.Workspace.Root, workspaceID))
			if err != nil {
				return err
			}

			if region == "" {
				region = cfg.Workspace.Region
			}

			w := &watchLoop{
				cfg:      cfg,
				pol:      pol,
				runner:   terraform.NewExecRunner(),
				binary:   bin,
				ws:       ws,
				throttle: throttle.NewController(cfg.Throttle.Parallelism, cfg.Throttle.Floor, logger),
				region:   region,
				logger:   logger,
			}

			// Plan once before waiting for the first change.
			w.replan(ctx, artifactPath)

			return w.run(ctx, artifactPath)
		},
	}

	cmd.Flags().StringVarP(&workspaceID, "workspace", "w", "dev", "workspace identifier")
	cmd.Flags().StringVarP(&region, "region", "r", "", "target cloud region")

	return cmd
}

type watchLoop struct {
	cfg      *config.Config
	pol      *policy.Engine
	runner   terraform.Runner
	binary   string
	ws       *terraform.Workspace
	throttle *throttle.Controller
	region   string
	logger   zerolog.Logger
}

// run watches the artifact's directory so editor save-via-rename still
// produces events, debouncing bursts into a single replan.
func (w *watchLoop) run(ctx context.Context, artifactPath string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(artifactPath)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	w.logger.Info().Str("file", artifactPath).Msg("watching artifact")

	var debounce *time.Timer
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(artifactPath) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(500*time.Millisecond, func() {
				w.replan(ctx, artifactPath)
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error().Err(err).Msg("watcher error")
		}
	}
}

func (w *watchLoop) replan(ctx context.Context, artifactPath string) {
	data, err := os.ReadFile(artifactPath)
	if err != nil {
		w.logger.Error().Err(err).Msg("failed to read artifact")
		return
	}
	artifact := string(data)

	screen, err := w.pol.EvaluateArtifact(ctx, artifact)
	if err != nil {
		w.logger.Error().Err(err).Msg("policy evaluation failed")
		return
	}
	for _, v := range screen.Violations {
		w.logger.Warn().Str("policy", v.Policy).Str("severity", string(v.Severity)).Msg(v.Message)
	}
	if !screen.Allowed {
		w.logger.Error().Msg("artifact rejected by policy, skipping plan")
		return
	}

	if err := w.ws.WriteArtifact(artifact); err != nil {
		w.logger.Error().Err(err).Msg("failed to write artifact")
		return
	}

	result, err := w.runner.Run(ctx, terraform.Command{
		Binary: w.binary,
		Args: []string{
			"plan", "-input=false", "-detailed-exitcode",
			"-parallelism=" + strconv.Itoa(w.throttle.Hint()),
		},
		Dir:     w.ws.Dir(),
		Env:     terraform.BuildEnv(credentialsFromEnv(), w.region),
		Timeout: w.cfg.Terraform.Timeout,
	})
	if err != nil {
		w.logger.Error().Err(err).Msg("plan failed to start")
		return
	}

	w.throttle.Observe(result.Stderr)

	switch result.ExitCode {
	case 0:
		w.logger.Info().Msg("plan: no changes")
	case 2:
		w.logger.Info().Msg("plan: changes pending")
	default:
		w.logger.Error().Int("exit", result.ExitCode).Str("stderr", result.Stderr).Msg("plan failed")
	}
}
