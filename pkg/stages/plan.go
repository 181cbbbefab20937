package stages

import (
	"context"
	"strconv"

	"github.com/tfmend/tfmend/pkg/engine"
)

// PlanStage runs terraform plan with -detailed-exitcode. Exit 0 means
// no changes, exit 2 means changes are pending; both are successes for
// routing. Every other exit is a failure the graph can heal.
type PlanStage struct {
	deps *Deps
}

// NewPlanStage creates the plan callback.
func NewPlanStage(deps *Deps) *PlanStage {
	return &PlanStage{deps: deps}
}

// Produce implements engine.StageCallback.
func (s *PlanStage) Produce(ctx context.Context, run *engine.Context) (*engine.StageResult, error) {
	d := s.deps

	// The artifact may have been rewritten by a heal since the last
	// write; the on-disk file must match the context before planning.
	if err := d.Workspace.WriteArtifact(run.Artifact); err != nil {
		return nil, err
	}

	res, err := d.Runner.Run(ctx, d.command("plan", "-input=false", "-detailed-exitcode",
		"-parallelism="+strconv.Itoa(d.Throttle.Hint())))
	if err != nil {
		return nil, runError("plan", res, err)
	}

	d.Throttle.Observe(res.Stderr)

	success := res.ExitCode == 0 || res.ExitCode == 2
	exit := res.ExitCode

	d.Logger.Info().
		Str("stage", "plan").
		Int("exit_code", exit).
		Bool("changes_pending", exit == 2).
		Msg("plan completed")

	return &engine.StageResult{
		Stage:      "plan",
		Success:    success,
		Stdout:     res.Stdout,
		Stderr:     res.Stderr,
		ExitDetail: &exit,
		Duration:   res.Duration,
	}, nil
}
