package engine

import (
	"context"
	"time"
)

// StageResult is the immutable outcome of one node visit. It is
// appended to the run's attempt log and merged into the execution
// context by the executor, never by the stage that produced it.
type StageResult struct {
	// Stage is the producing stage name (init, plan, apply, heal, or a
	// custom name).
	Stage string `json:"stage"`

	// Success reports whether the stage succeeded.
	Success bool `json:"success"`

	// Stdout is the captured standard output.
	Stdout string `json:"stdout"`

	// Stderr is the captured standard error.
	Stderr string `json:"stderr"`

	// Artifact is the provisioning source used or produced by the
	// stage.
	Artifact string `json:"artifact,omitempty"`

	// TF mirrors Artifact for callbacks that still populate the legacy
	// field name; the executor normalizes it into Artifact.
	TF string `json:"tf,omitempty"`

	// ExitDetail carries the raw process exit code when the stage
	// invoked the external tool. Plan uses it to distinguish
	// "no changes" (0) from "changes present" (2).
	ExitDetail *int `json:"exit_detail,omitempty"`

	// NoOp marks a heal result whose artifact was byte-identical to the
	// input; the executor terminates the run instead of cycling.
	NoOp bool `json:"noop,omitempty"`

	// Duration is how long the stage took.
	Duration time.Duration `json:"duration,omitempty"`
}

// ExitCode returns the recorded process exit code, or -1 when the
// stage never ran the external tool.
func (r *StageResult) ExitCode() int {
	if r.ExitDetail == nil {
		return -1
	}
	return *r.ExitDetail
}

// Context is the mutable state owned by exactly one execution run. It
// is mutated only by the executor and by the stage callback the
// executor is currently invoking; it is never shared across concurrent
// runs.
type Context struct {
	// Artifact is the current provisioning source text.
	Artifact string `json:"artifact"`

	// LastAttempt is the most recent stage result, or nil before the
	// first stage runs.
	LastAttempt *StageResult `json:"last_attempt,omitempty"`

	// LastPlan is the most recent plan result; apply consults it to
	// decide whether any work is pending.
	LastPlan *StageResult `json:"last_plan,omitempty"`

	// WorkspaceID identifies the workspace this run operates on and
	// scopes idempotency state.
	WorkspaceID string `json:"workspace_id,omitempty"`

	// Region is the target cloud region.
	Region string `json:"region,omitempty"`

	// Meta carries caller-supplied metadata untouched by the engine.
	Meta map[string]string `json:"meta,omitempty"`
}

// NewContext builds a run context for an artifact and workspace.
func NewContext(artifact, workspaceID, region string) *Context {
	return &Context{
		Artifact:    artifact,
		WorkspaceID: workspaceID,
		Region:      region,
		Meta:        make(map[string]string),
	}
}

// ExecutionReport is the sole return value of a run. All failure is
// represented here; nothing is raised past the executor boundary.
type ExecutionReport struct {
	// Success is true only when the run reached an end node.
	Success bool `json:"success"`

	// Attempts is the ordered log of every stage result produced.
	Attempts []StageResult `json:"attempts"`

	// FinalContext is the context as of termination.
	FinalContext *Context `json:"final_context"`

	// Err describes why the run terminated unsuccessfully, if it did.
	Err *EngineError `json:"error,omitempty"`

	// RunID uniquely identifies this run.
	RunID string `json:"run_id"`

	// HealCycles is the number of heal-node visits during the run.
	HealCycles int `json:"heal_cycles"`

	// StartedAt and CompletedAt bound the run wall-clock time.
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// ErrorMessage returns the report error text, or "" on success.
func (r *ExecutionReport) ErrorMessage() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// StageCallback produces a StageResult from the current run context.
// A returned error is fatal to the run and recorded as a
// StageExecutionError; expected failures (nonzero exits the graph can
// route on) are expressed as results with Success=false.
type StageCallback interface {
	Produce(ctx context.Context, run *Context) (*StageResult, error)
}

// StageFunc adapts a plain function to the StageCallback interface.
type StageFunc func(ctx context.Context, run *Context) (*StageResult, error)

// Produce implements StageCallback.
func (f StageFunc) Produce(ctx context.Context, run *Context) (*StageResult, error) {
	return f(ctx, run)
}

// RunRecorder persists run progress. The executor calls it best-effort;
// a nil recorder disables persistence.
type RunRecorder interface {
	StartRun(ctx context.Context, runID, graphName, workspaceID string) error
	RecordAttempt(ctx context.Context, runID string, seq int, result *StageResult) error
	FinishRun(ctx context.Context, runID string, success bool, errMsg string) error
}
