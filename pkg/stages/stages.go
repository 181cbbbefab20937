// Package stages implements the built-in stage callbacks: init, plan,
// apply, heal, and Starlark-backed custom nodes. Each stage reads the
// run context it is handed and reports its outcome as a StageResult;
// routing and context mutation stay with the executor.
package stages

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tfmend/tfmend/pkg/engine"
	"github.com/tfmend/tfmend/pkg/idempotency"
	"github.com/tfmend/tfmend/pkg/oracle"
	"github.com/tfmend/tfmend/pkg/terraform"
	"github.com/tfmend/tfmend/pkg/throttle"
	"github.com/tfmend/tfmend/pkg/workflow"
)

// Healer is the repair capability the heal stage depends on.
type Healer interface {
	Heal(ctx context.Context, fc oracle.FailureContext) (string, error)
}

// Deps bundles everything the built-in stages share. All fields except
// Healer are required; a nil Healer makes the heal stage fail fast.
type Deps struct {
	// Runner executes terraform invocations.
	Runner terraform.Runner

	// Binary is the resolved terraform executable path.
	Binary string

	// Workspace is the directory terraform operates on.
	Workspace *terraform.Workspace

	// Tracker answers init skip decisions.
	Tracker idempotency.Tracker

	// Throttle observes stderr for rate limiting and owns the
	// parallelism hint.
	Throttle *throttle.Controller

	// Healer produces corrected artifacts from failure context.
	Healer Healer

	// Credentials and Region are injected into the process environment.
	Credentials terraform.Credentials
	Region      string

	// Timeout caps a single terraform invocation; zero uses the runner
	// default.
	Timeout time.Duration

	Logger zerolog.Logger
}

func (d *Deps) validate() error {
	if d.Runner == nil {
		return fmt.Errorf("stage deps: runner is required")
	}
	if d.Binary == "" {
		return fmt.Errorf("stage deps: terraform binary path is required")
	}
	if d.Workspace == nil {
		return fmt.Errorf("stage deps: workspace is required")
	}
	if d.Tracker == nil {
		return fmt.Errorf("stage deps: idempotency tracker is required")
	}
	if d.Throttle == nil {
		return fmt.Errorf("stage deps: throttle controller is required")
	}
	return nil
}

// runError classifies a runner failure. A timed-out process gets its
// own code so reports distinguish a hung terraform from a crash.
func runError(stage string, res *terraform.Result, err error) error {
	ee := engine.NewStageExecutionError(stage, err)
	if res != nil && res.TimedOut {
		ee.WithCode(engine.ErrCodeProcessTimeout)
	}
	return ee
}

// command builds a terraform invocation in the workspace directory
// with the run environment.
func (d *Deps) command(args ...string) terraform.Command {
	return terraform.Command{
		Binary:  d.Binary,
		Args:    args,
		Dir:     d.Workspace.Dir(),
		Env:     terraform.BuildEnv(d.Credentials, d.Region),
		Timeout: d.Timeout,
	}
}

// Register wires the built-in stages for a graph into the registry.
// The heal stage is always registered so graphs with heal nodes pass
// registry validation; with a nil healer it terminates the run on
// first visit. A Starlark dispatcher backs custom nodes when the graph
// carries hooks.
func Register(reg *engine.Registry, g *workflow.Graph, deps *Deps) error {
	if err := deps.validate(); err != nil {
		return err
	}

	if err := reg.Register(workflow.NodeInit, NewInitStage(deps)); err != nil {
		return err
	}
	if err := reg.Register(workflow.NodePlan, NewPlanStage(deps)); err != nil {
		return err
	}
	if err := reg.Register(workflow.NodeApply, NewApplyStage(deps)); err != nil {
		return err
	}
	if err := reg.Register(workflow.NodeHeal, NewHealStage(deps)); err != nil {
		return err
	}

	if len(g.Metadata.Hooks) > 0 {
		star := NewStarlarkStage(g, 0, deps.Logger)
		if err := reg.Register(workflow.NodeCustom, star); err != nil {
			return err
		}
		if g.Metadata.AllowCustom {
			reg.RegisterFallback(star)
		}
	}
	return nil
}
