package stages

import (
	"context"

	"github.com/tfmend/tfmend/pkg/engine"
	"github.com/tfmend/tfmend/pkg/terraform"
)

// InitStage materializes the artifact into the workspace and runs
// terraform init. Init is skipped when the tracker shows a prior
// success for the same workspace and an unchanged artifact hash; the
// skip is a real success result, so routing is unaffected.
type InitStage struct {
	deps *Deps
}

// NewInitStage creates the init callback.
func NewInitStage(deps *Deps) *InitStage {
	return &InitStage{deps: deps}
}

// Produce implements engine.StageCallback.
func (s *InitStage) Produce(ctx context.Context, run *engine.Context) (*engine.StageResult, error) {
	d := s.deps
	logger := d.Logger.With().Str("stage", "init").Logger()

	if err := d.Workspace.WriteArtifact(run.Artifact); err != nil {
		return nil, err
	}

	if d.Tracker.ShouldSkip(run.WorkspaceID, run.Artifact) {
		logger.Info().Str("workspace", run.WorkspaceID).Msg("init skipped, workspace already initialized for this artifact")
		zero := 0
		return &engine.StageResult{
			Stage:      "init",
			Success:    true,
			Stdout:     "init skipped: workspace already initialized for this artifact",
			ExitDetail: &zero,
		}, nil
	}

	res, err := d.Runner.Run(ctx, d.command("init", "-input=false"))
	if err != nil {
		return nil, runError("init", res, err)
	}

	// A changed provider set invalidates the lock file; one -upgrade
	// retry resolves it without operator intervention.
	if res.ExitCode != 0 && terraform.IsDependencyLockFailure(res.Stderr) {
		logger.Warn().Msg("dependency lock failure, retrying init with -upgrade")
		res, err = d.Runner.Run(ctx, d.command("init", "-input=false", "-upgrade"))
		if err != nil {
			return nil, runError("init", res, err)
		}
	}

	success := res.ExitCode == 0
	if success {
		d.Tracker.Record(run.WorkspaceID, run.Artifact, true)
	}

	exit := res.ExitCode
	return &engine.StageResult{
		Stage:      "init",
		Success:    success,
		Stdout:     res.Stdout,
		Stderr:     res.Stderr,
		ExitDetail: &exit,
		Duration:   res.Duration,
	}, nil
}
