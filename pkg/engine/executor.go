package engine

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/tfmend/tfmend/pkg/workflow"
)

// DefaultHealLimit caps heal cycles when neither the caller nor the
// graph metadata declares a budget.
const DefaultHealLimit = 6

// MetaNodeKey is the context metadata key holding the ID of the node
// currently being visited. Callbacks that vary behavior per node, such
// as hook dispatch, read it.
const MetaNodeKey = "node"

// Observer receives execution signals for metrics.
type Observer interface {
	// StageVisited is called once per node visit with the outcome.
	StageVisited(stage string, success bool, d time.Duration)

	// HealCycle is called after each heal-node visit with the running
	// cycle count.
	HealCycle(n int)
}

// Executor walks a workflow graph, dispatching node visits to stage
// callbacks and routing on edge conditions. One executor may run many
// graphs, but a single run is strictly sequential: the executor blocks
// on each callback before routing.
type Executor struct {
	logger    zerolog.Logger
	recorder  RunRecorder
	observer  Observer
	tracer    trace.Tracer
	healLimit int
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the executor logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Executor) { e.logger = logger }
}

// WithRecorder sets a run recorder for persistence.
func WithRecorder(r RunRecorder) Option {
	return func(e *Executor) { e.recorder = r }
}

// WithObserver sets a metrics observer.
func WithObserver(o Observer) Option {
	return func(e *Executor) { e.observer = o }
}

// WithTracer sets the tracer used for per-stage spans.
func WithTracer(t trace.Tracer) Option {
	return func(e *Executor) { e.tracer = t }
}

// WithDefaultHealLimit overrides the built-in heal-cycle fallback cap.
func WithDefaultHealLimit(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.healLimit = n
		}
	}
}

// NewExecutor creates an executor with the given options.
func NewExecutor(opts ...Option) *Executor {
	e := &Executor{
		logger:    zerolog.Nop(),
		tracer:    noop.NewTracerProvider().Tracer("tfmend"),
		healLimit: DefaultHealLimit,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes the graph to termination and returns a report. The
// report is always non-nil; failures of any kind are captured in its
// Err field. attemptLimit caps heal cycles; when zero the graph's
// max_attempts applies, falling back to the executor default.
//
// The loop always terminates at an end node, at the healing budget, or
// at a routing or definition error. Non-healing cycles in the graph
// are a caller error and are not defended against.
func (e *Executor) Run(
	ctx context.Context,
	g *workflow.Graph,
	reg *Registry,
	run *Context,
	attemptLimit int,
) *ExecutionReport {
	report := &ExecutionReport{
		RunID:        uuid.New().String(),
		FinalContext: run,
		StartedAt:    time.Now(),
	}

	logger := e.logger.With().Str("run_id", report.RunID).Str("graph", g.Metadata.Name).Logger()

	limit := attemptLimit
	if limit <= 0 {
		limit = g.Metadata.MaxAttempts
	}
	if limit <= 0 {
		limit = e.healLimit
	}

	current := g.StartNodeID()
	if _, ok := g.NodeByID(current); current == "" || !ok {
		return e.finish(ctx, logger, report,
			NewGraphDefinitionError("invalid graph start node"))
	}

	e.startRecording(ctx, logger, report.RunID, g.Metadata.Name, run.WorkspaceID)
	logger.Info().Str("start", current).Int("heal_limit", limit).Msg("starting workflow run")

	runCtx, span := e.tracer.Start(ctx, "workflow.run",
		trace.WithAttributes(attribute.String("graph.name", g.Metadata.Name)))
	defer span.End()

	healCycles := 0

	for {
		nodeType, ok := g.NodeTypeOf(current)
		if !ok {
			return e.finish(runCtx, logger, report,
				NewGraphDefinitionError("current node disappeared from graph").WithNode(current))
		}

		if nodeType == workflow.NodeEnd {
			logger.Info().Str("node", current).Int("attempts", len(report.Attempts)).Msg("workflow run reached end node")
			return e.finish(runCtx, logger, report, nil)
		}

		cb, ok := reg.Lookup(nodeType)
		if !ok {
			return e.finish(runCtx, logger, report,
				NewMissingCallbackError(string(nodeType)).WithNode(current))
		}

		if run.Meta == nil {
			run.Meta = make(map[string]string)
		}
		run.Meta[MetaNodeKey] = current

		result, err := e.invoke(runCtx, cb, run, current, string(nodeType))
		if err != nil {
			// Callbacks that already classified their failure keep
			// their kind; anything else is a stage execution failure.
			var ee *EngineError
			if !errors.As(err, &ee) {
				ee = NewStageExecutionError(string(nodeType), err)
			}
			if ee.Node == "" {
				ee.WithNode(current)
			}
			return e.finish(runCtx, logger, report, ee)
		}

		report.Attempts = append(report.Attempts, *result)
		e.merge(run, result)
		e.recordAttempt(runCtx, logger, report.RunID, len(report.Attempts), result)

		logger.Info().
			Str("node", current).
			Str("stage", result.Stage).
			Bool("success", result.Success).
			Dur("duration", result.Duration).
			Msg("stage completed")

		if nodeType == workflow.NodeHeal {
			healCycles++
			report.HealCycles = healCycles
			if e.observer != nil {
				e.observer.HealCycle(healCycles)
			}

			if result.NoOp {
				return e.finish(runCtx, logger, report, NewHealStalledError().WithNode(current))
			}
			if healCycles >= limit {
				return e.finish(runCtx, logger, report,
					NewHealingBudgetError(limit).WithNode(current))
			}
		}

		next, routed := route(g, current, result)
		if !routed {
			return e.finish(runCtx, logger, report, NewUnroutableStateError(current))
		}
		current = next
	}
}

// invoke runs one stage callback under a span and normalizes the
// result's artifact aliasing.
func (e *Executor) invoke(
	ctx context.Context,
	cb StageCallback,
	run *Context,
	node, nodeType string,
) (*StageResult, error) {
	stageCtx, span := e.tracer.Start(ctx, "workflow.stage",
		trace.WithAttributes(
			attribute.String("node.id", node),
			attribute.String("node.type", nodeType),
		))
	defer span.End()

	start := time.Now()
	result, err := cb.Produce(stageCtx, run)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, NewStageExecutionError(nodeType, nil).
			WithCode(ErrCodeCallbackFailed).
			WithDetail("reason", "callback returned nil result")
	}

	if result.Duration == 0 {
		result.Duration = time.Since(start)
	}
	if result.Stage == "" {
		result.Stage = nodeType
	}
	// Legacy callbacks populate "tf" instead of "artifact".
	if result.Artifact == "" && result.TF != "" {
		result.Artifact = result.TF
	}
	result.TF = ""

	if e.observer != nil {
		e.observer.StageVisited(result.Stage, result.Success, result.Duration)
	}
	return result, nil
}

// merge folds a stage result into the run context. This is the only
// place context mutation from results happens; stages observe only the
// context they were handed.
func (e *Executor) merge(run *Context, result *StageResult) {
	run.LastAttempt = result
	if result.Artifact != "" {
		run.Artifact = result.Artifact
	}
	if strings.EqualFold(result.Stage, string(workflow.NodePlan)) {
		run.LastPlan = result
	}
}

// route scans edges from the current node in declaration order and
// returns the first match: always unconditionally, success/failure
// against the result. Declaration order is the tie-break.
func route(g *workflow.Graph, current string, result *StageResult) (string, bool) {
	for _, edge := range g.EdgesFrom(current) {
		switch edge.Condition {
		case workflow.CondAlways, "":
			return edge.To, true
		case workflow.CondSuccess:
			if result.Success {
				return edge.To, true
			}
		case workflow.CondFailure:
			if !result.Success {
				return edge.To, true
			}
		}
	}
	return "", false
}

// finish stamps the report, persists the outcome, and returns it.
func (e *Executor) finish(ctx context.Context, logger zerolog.Logger, report *ExecutionReport, runErr *EngineError) *ExecutionReport {
	report.CompletedAt = time.Now()
	report.Err = runErr
	report.Success = runErr == nil

	if runErr != nil {
		logger.Error().Err(runErr).Msg("workflow run failed")
	}

	if e.recorder != nil {
		if err := e.recorder.FinishRun(ctx, report.RunID, report.Success, report.ErrorMessage()); err != nil {
			logger.Warn().Err(err).Msg("failed to persist run outcome")
		}
	}
	return report
}

func (e *Executor) startRecording(ctx context.Context, logger zerolog.Logger, runID, graphName, workspaceID string) {
	if e.recorder == nil {
		return
	}
	if err := e.recorder.StartRun(ctx, runID, graphName, workspaceID); err != nil {
		logger.Warn().Err(err).Msg("failed to persist run start")
	}
}

func (e *Executor) recordAttempt(ctx context.Context, logger zerolog.Logger, runID string, seq int, result *StageResult) {
	if e.recorder == nil {
		return
	}
	if err := e.recorder.RecordAttempt(ctx, runID, seq, result); err != nil {
		logger.Warn().Err(err).Msg("failed to persist attempt")
	}
}
