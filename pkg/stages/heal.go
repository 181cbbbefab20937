package stages

import (
	"context"
	"errors"

	"github.com/tfmend/tfmend/pkg/engine"
	"github.com/tfmend/tfmend/pkg/idempotency"
	"github.com/tfmend/tfmend/pkg/oracle"
)

// HealStage asks the oracle for a corrected artifact after a failed
// stage. A heal that returns an artifact byte-identical to the input
// is marked NoOp, telling the executor the oracle is stalled.
type HealStage struct {
	deps *Deps
}

// NewHealStage creates the heal callback.
func NewHealStage(deps *Deps) *HealStage {
	return &HealStage{deps: deps}
}

// Produce implements engine.StageCallback.
func (s *HealStage) Produce(ctx context.Context, run *engine.Context) (*engine.StageResult, error) {
	d := s.deps
	logger := d.Logger.With().Str("stage", "heal").Logger()

	if d.Healer == nil {
		return nil, engine.NewOracleError("healing is disabled: no oracle client configured", nil).
			WithCode(engine.ErrCodeOracleUnusable).
			WithStage("heal")
	}

	// A heal reached through an "always" edge after a success has
	// nothing to repair.
	if run.LastAttempt != nil && run.LastAttempt.Success {
		return &engine.StageResult{
			Stage:   "heal",
			Success: true,
			Stdout:  "nothing to heal: last stage succeeded",
		}, nil
	}

	fc := oracle.FailureContext{Artifact: run.Artifact}
	if run.LastAttempt != nil {
		fc.Stage = run.LastAttempt.Stage
		fc.Stdout = run.LastAttempt.Stdout
		fc.Stderr = run.LastAttempt.Stderr
	}

	healed, err := d.Healer.Heal(ctx, fc)
	if err != nil {
		ee := engine.NewOracleError("oracle heal call failed", err).WithStage("heal")
		if errors.Is(err, oracle.ErrRateLimited) {
			ee.Class = engine.ClassThrottled
			ee.WithCode(engine.ErrCodeRateLimited)
		}
		return nil, ee
	}

	if idempotency.Hash(healed) == idempotency.Hash(run.Artifact) {
		logger.Warn().Msg("oracle returned an identical artifact, marking heal as no-op")
		return &engine.StageResult{
			Stage:   "heal",
			Success: false,
			NoOp:    true,
			Stdout:  "heal produced no artifact change",
		}, nil
	}

	if err := d.Workspace.WriteArtifact(healed); err != nil {
		return nil, err
	}

	logger.Info().Int("bytes", len(healed)).Msg("healed artifact written to workspace")
	return &engine.StageResult{
		Stage:    "heal",
		Success:  true,
		Artifact: healed,
	}, nil
}
