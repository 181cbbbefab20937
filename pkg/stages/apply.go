package stages

import (
	"context"
	"strconv"

	"github.com/tfmend/tfmend/pkg/engine"
)

// ApplyStage runs terraform apply. When the most recent plan reported
// no changes the apply is skipped as a success; when no plan result is
// available at all, a probing plan runs first so apply never executes
// against an unplanned workspace.
type ApplyStage struct {
	deps *Deps
}

// NewApplyStage creates the apply callback.
func NewApplyStage(deps *Deps) *ApplyStage {
	return &ApplyStage{deps: deps}
}

// Produce implements engine.StageCallback.
func (s *ApplyStage) Produce(ctx context.Context, run *engine.Context) (*engine.StageResult, error) {
	d := s.deps
	logger := d.Logger.With().Str("stage", "apply").Logger()

	lastPlan := run.LastPlan
	if lastPlan == nil {
		logger.Warn().Msg("no plan result in context, running probing plan before apply")

		res, err := d.Runner.Run(ctx, d.command("plan", "-input=false", "-detailed-exitcode",
			"-parallelism="+strconv.Itoa(d.Throttle.Hint())))
		if err != nil {
			return nil, runError("plan", res, err)
		}
		d.Throttle.Observe(res.Stderr)

		if res.ExitCode != 0 && res.ExitCode != 2 {
			exit := res.ExitCode
			return &engine.StageResult{
				Stage:      "apply",
				Success:    false,
				Stdout:     res.Stdout,
				Stderr:     res.Stderr,
				ExitDetail: &exit,
				Duration:   res.Duration,
			}, nil
		}

		exit := res.ExitCode
		lastPlan = &engine.StageResult{Stage: "plan", Success: true, ExitDetail: &exit}
	}

	if lastPlan.ExitCode() == 0 {
		logger.Info().Msg("apply skipped, plan reported no changes")
		zero := 0
		return &engine.StageResult{
			Stage:      "apply",
			Success:    true,
			Stdout:     "apply skipped: plan reported no changes",
			ExitDetail: &zero,
		}, nil
	}

	res, err := d.Runner.Run(ctx, d.command("apply", "-auto-approve", "-input=false",
		"-parallelism="+strconv.Itoa(d.Throttle.Hint())))
	if err != nil {
		return nil, runError("apply", res, err)
	}

	d.Throttle.Observe(res.Stderr)

	exit := res.ExitCode
	return &engine.StageResult{
		Stage:      "apply",
		Success:    exit == 0,
		Stdout:     res.Stdout,
		Stderr:     res.Stderr,
		ExitDetail: &exit,
		Duration:   res.Duration,
	}, nil
}
