package stages

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.starlark.net/starlark"

	"github.com/tfmend/tfmend/pkg/engine"
	"github.com/tfmend/tfmend/pkg/workflow"
)

// DefaultHookTimeout caps a single hook evaluation.
const DefaultHookTimeout = 30 * time.Second

// StarlarkStage dispatches custom nodes to Starlark hook scripts
// carried in the graph metadata. The script sees the run state as
// predeclared variables:
//
//	current_artifact (string, the artifact as it stands)
//	workspace_id, region, node (strings)
//	last_success (bool), last_stderr (string)
//
// and reports its outcome through the globals it leaves behind:
//
//	success  (bool, required)
//	artifact (string, optional replacement artifact)
//	output   (string, optional, surfaced as stage stdout)
type StarlarkStage struct {
	graph   *workflow.Graph
	timeout time.Duration
	logger  zerolog.Logger
}

// NewStarlarkStage creates the hook dispatcher for a graph. A
// non-positive timeout uses the default.
func NewStarlarkStage(g *workflow.Graph, timeout time.Duration, logger zerolog.Logger) *StarlarkStage {
	if timeout <= 0 {
		timeout = DefaultHookTimeout
	}
	return &StarlarkStage{graph: g, timeout: timeout, logger: logger}
}

// Produce implements engine.StageCallback.
func (s *StarlarkStage) Produce(ctx context.Context, run *engine.Context) (*engine.StageResult, error) {
	nodeID := run.Meta[engine.MetaNodeKey]
	script, ok := s.graph.HookFor(nodeID)
	if !ok {
		return nil, fmt.Errorf("no hook script bound to node %q", nodeID)
	}

	nodeType, _ := s.graph.NodeTypeOf(nodeID)
	logger := s.logger.With().Str("stage", string(nodeType)).Str("node", nodeID).Logger()

	evalCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	type evalOutcome struct {
		globals starlark.StringDict
		err     error
	}
	done := make(chan evalOutcome, 1)

	go func() {
		thread := &starlark.Thread{
			Name: "tfmend-hook",
			Print: func(_ *starlark.Thread, msg string) {
				logger.Debug().Str("print", msg).Msg("hook output")
			},
		}
		// The input artifact is predeclared under a name distinct
		// from the artifact output global so a script can derive one
		// from the other.
		predeclared := starlark.StringDict{
			"current_artifact": starlark.String(run.Artifact),
			"workspace_id":     starlark.String(run.WorkspaceID),
			"region":           starlark.String(run.Region),
			"node":             starlark.String(nodeID),
			"last_success":     starlark.Bool(run.LastAttempt != nil && run.LastAttempt.Success),
			"last_stderr":      starlark.String(lastStderr(run)),
		}
		globals, err := starlark.ExecFile(thread, nodeID+".star", script, predeclared)
		done <- evalOutcome{globals: globals, err: err}
	}()

	select {
	case <-evalCtx.Done():
		return nil, fmt.Errorf("hook %q timed out after %s", nodeID, s.timeout)
	case out := <-done:
		if out.err != nil {
			return nil, fmt.Errorf("hook %q failed: %w", nodeID, out.err)
		}
		return resultFromGlobals(string(nodeType), out.globals)
	}
}

func lastStderr(run *engine.Context) string {
	if run.LastAttempt == nil {
		return ""
	}
	return run.LastAttempt.Stderr
}

// resultFromGlobals maps the script's exported globals onto a stage
// result. A missing or non-bool success global is a script bug, not a
// routable failure.
func resultFromGlobals(stage string, globals starlark.StringDict) (*engine.StageResult, error) {
	successVal, ok := globals["success"]
	if !ok {
		return nil, fmt.Errorf("hook did not export a success global")
	}
	success, ok := successVal.(starlark.Bool)
	if !ok {
		return nil, fmt.Errorf("hook success global must be a bool, got %s", successVal.Type())
	}

	result := &engine.StageResult{
		Stage:   stage,
		Success: bool(success),
	}

	if v, ok := globals["artifact"]; ok {
		str, ok := v.(starlark.String)
		if !ok {
			return nil, fmt.Errorf("hook artifact global must be a string, got %s", v.Type())
		}
		result.Artifact = string(str)
	}
	if v, ok := globals["output"]; ok {
		if str, ok := v.(starlark.String); ok {
			result.Stdout = string(str)
		}
	}
	return result, nil
}
