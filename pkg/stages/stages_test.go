package stages

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/tfmend/tfmend/pkg/engine"
	"github.com/tfmend/tfmend/pkg/idempotency"
	"github.com/tfmend/tfmend/pkg/oracle"
	"github.com/tfmend/tfmend/pkg/terraform"
	"github.com/tfmend/tfmend/pkg/throttle"
	"github.com/tfmend/tfmend/pkg/workflow"
)

// fakeRunner returns scripted results in call order and records every
// command it was asked to run.
type fakeRunner struct {
	results []*terraform.Result
	errs    []error
	calls   []terraform.Command
}

func (f *fakeRunner) Run(_ context.Context, cmd terraform.Command) (*terraform.Result, error) {
	f.calls = append(f.calls, cmd)
	i := len(f.calls) - 1
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	var res *terraform.Result
	if i < len(f.results) {
		res = f.results[i]
	} else {
		res = &terraform.Result{ExitCode: 0}
	}
	return res, err
}

type fakeHealer struct {
	artifact string
	err      error
	calls    []oracle.FailureContext
}

func (f *fakeHealer) Heal(_ context.Context, fc oracle.FailureContext) (string, error) {
	f.calls = append(f.calls, fc)
	if f.err != nil {
		return "", f.err
	}
	return f.artifact, nil
}

func newTestDeps(t *testing.T, runner terraform.Runner, healer Healer) *Deps {
	t.Helper()
	ws, err := terraform.NewWorkspace(t.TempDir())
	if err != nil {
		t.Fatalf("NewWorkspace: %v", err)
	}
	return &Deps{
		Runner:    runner,
		Binary:    "/usr/bin/terraform",
		Workspace: ws,
		Tracker:   idempotency.NewMemoryTracker(),
		Throttle:  throttle.NewController(10, 1, zerolog.Nop()),
		Healer:    healer,
		Region:    "eu-west-1",
		Logger:    zerolog.Nop(),
	}
}

func argsOf(t *testing.T, runner *fakeRunner, i int) string {
	t.Helper()
	if i >= len(runner.calls) {
		t.Fatalf("expected at least %d runner calls, got %d", i+1, len(runner.calls))
	}
	return strings.Join(runner.calls[i].Args, " ")
}

func TestInitStage_Success_RecordsIdempotency(t *testing.T) {
	runner := &fakeRunner{results: []*terraform.Result{{ExitCode: 0, Stdout: "Initialized"}}}
	deps := newTestDeps(t, runner, nil)
	run := engine.NewContext("resource \"aws_vpc\" \"main\" {}", "ws-1", "eu-west-1")

	res, err := NewInitStage(deps).Produce(context.Background(), run)
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}
	if !res.Success {
		t.Error("expected init success")
	}
	if got := argsOf(t, runner, 0); got != "init -input=false" {
		t.Errorf("unexpected args: %q", got)
	}
	if !deps.Tracker.ShouldSkip("ws-1", run.Artifact) {
		t.Error("init success was not recorded for skipping")
	}

	content, err := deps.Workspace.ReadArtifact()
	if err != nil {
		t.Fatalf("ReadArtifact: %v", err)
	}
	if content != run.Artifact {
		t.Error("artifact was not written to workspace")
	}
}

func TestInitStage_SkipsWhenRecorded(t *testing.T) {
	runner := &fakeRunner{}
	deps := newTestDeps(t, runner, nil)
	run := engine.NewContext("resource \"aws_vpc\" \"main\" {}", "ws-1", "eu-west-1")
	deps.Tracker.Record("ws-1", run.Artifact, true)

	res, err := NewInitStage(deps).Produce(context.Background(), run)
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}
	if !res.Success {
		t.Error("expected skip to be a success")
	}
	if len(runner.calls) != 0 {
		t.Errorf("expected no terraform invocation, got %d", len(runner.calls))
	}
	if !strings.Contains(res.Stdout, "skipped") {
		t.Errorf("skip result should say so: %q", res.Stdout)
	}
}

func TestInitStage_ChangedArtifactDoesNotSkip(t *testing.T) {
	runner := &fakeRunner{results: []*terraform.Result{{ExitCode: 0}}}
	deps := newTestDeps(t, runner, nil)
	deps.Tracker.Record("ws-1", "old artifact", true)
	run := engine.NewContext("new artifact", "ws-1", "eu-west-1")

	_, err := NewInitStage(deps).Produce(context.Background(), run)
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}
	if len(runner.calls) != 1 {
		t.Errorf("changed artifact must re-run init, got %d calls", len(runner.calls))
	}
}

func TestInitStage_DependencyLockRetry(t *testing.T) {
	runner := &fakeRunner{results: []*terraform.Result{
		{ExitCode: 1, Stderr: "Error: Inconsistent dependency lock file"},
		{ExitCode: 0},
	}}
	deps := newTestDeps(t, runner, nil)
	run := engine.NewContext("a", "ws-1", "eu-west-1")

	res, err := NewInitStage(deps).Produce(context.Background(), run)
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}
	if !res.Success {
		t.Error("expected retry to succeed")
	}
	if len(runner.calls) != 2 {
		t.Fatalf("expected 2 invocations, got %d", len(runner.calls))
	}
	if got := argsOf(t, runner, 1); !strings.Contains(got, "-upgrade") {
		t.Errorf("retry must pass -upgrade: %q", got)
	}
}

func TestInitStage_FailureNotRecorded(t *testing.T) {
	runner := &fakeRunner{results: []*terraform.Result{{ExitCode: 1, Stderr: "Error: bad provider"}}}
	deps := newTestDeps(t, runner, nil)
	run := engine.NewContext("a", "ws-1", "eu-west-1")

	res, err := NewInitStage(deps).Produce(context.Background(), run)
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}
	if res.Success {
		t.Error("expected failure result")
	}
	if deps.Tracker.ShouldSkip("ws-1", "a") {
		t.Error("failed init must not enable skipping")
	}
}

func TestPlanStage_ChangesPending(t *testing.T) {
	runner := &fakeRunner{results: []*terraform.Result{{ExitCode: 2, Stdout: "Plan: 1 to add"}}}
	deps := newTestDeps(t, runner, nil)
	run := engine.NewContext("a", "ws-1", "eu-west-1")

	res, err := NewPlanStage(deps).Produce(context.Background(), run)
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}
	if !res.Success {
		t.Error("exit 2 must be a success")
	}
	if res.ExitCode() != 2 {
		t.Errorf("expected exit detail 2, got %d", res.ExitCode())
	}
	if got := argsOf(t, runner, 0); !strings.Contains(got, "-detailed-exitcode") {
		t.Errorf("plan must use -detailed-exitcode: %q", got)
	}
}

func TestPlanStage_NoChanges(t *testing.T) {
	runner := &fakeRunner{results: []*terraform.Result{{ExitCode: 0}}}
	deps := newTestDeps(t, runner, nil)
	run := engine.NewContext("a", "ws-1", "eu-west-1")

	res, err := NewPlanStage(deps).Produce(context.Background(), run)
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}
	if !res.Success || res.ExitCode() != 0 {
		t.Errorf("exit 0 must be a success with detail 0, got success=%v detail=%d", res.Success, res.ExitCode())
	}
}

func TestPlanStage_FailureObservesThrottle(t *testing.T) {
	runner := &fakeRunner{results: []*terraform.Result{
		{ExitCode: 1, Stderr: "Error: ThrottlingException: rate exceeded"},
	}}
	deps := newTestDeps(t, runner, nil)
	run := engine.NewContext("a", "ws-1", "eu-west-1")

	res, err := NewPlanStage(deps).Produce(context.Background(), run)
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}
	if res.Success {
		t.Error("exit 1 must be a failure")
	}
	if deps.Throttle.Hint() != 1 {
		t.Errorf("throttle hint should have dropped to floor, got %d", deps.Throttle.Hint())
	}
}

func TestPlanStage_ParallelismFollowsHint(t *testing.T) {
	runner := &fakeRunner{results: []*terraform.Result{{ExitCode: 0}, {ExitCode: 0}}}
	deps := newTestDeps(t, runner, nil)
	run := engine.NewContext("a", "ws-1", "eu-west-1")

	stage := NewPlanStage(deps)
	if _, err := stage.Produce(context.Background(), run); err != nil {
		t.Fatalf("Produce: %v", err)
	}
	if got := argsOf(t, runner, 0); !strings.Contains(got, "-parallelism=10") {
		t.Errorf("expected initial hint in args: %q", got)
	}

	deps.Throttle.Observe("429 Too Many Requests")
	if _, err := stage.Produce(context.Background(), run); err != nil {
		t.Fatalf("Produce: %v", err)
	}
	if got := argsOf(t, runner, 1); !strings.Contains(got, "-parallelism=1") {
		t.Errorf("expected reduced hint in args: %q", got)
	}
}

func TestApplyStage_SkipsWhenPlanHadNoChanges(t *testing.T) {
	runner := &fakeRunner{}
	deps := newTestDeps(t, runner, nil)
	run := engine.NewContext("a", "ws-1", "eu-west-1")
	zero := 0
	run.LastPlan = &engine.StageResult{Stage: "plan", Success: true, ExitDetail: &zero}

	res, err := NewApplyStage(deps).Produce(context.Background(), run)
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}
	if !res.Success {
		t.Error("skip must be a success")
	}
	if len(runner.calls) != 0 {
		t.Errorf("expected no invocation, got %d", len(runner.calls))
	}
}

func TestApplyStage_AppliesPendingChanges(t *testing.T) {
	runner := &fakeRunner{results: []*terraform.Result{{ExitCode: 0, Stdout: "Apply complete!"}}}
	deps := newTestDeps(t, runner, nil)
	run := engine.NewContext("a", "ws-1", "eu-west-1")
	two := 2
	run.LastPlan = &engine.StageResult{Stage: "plan", Success: true, ExitDetail: &two}

	res, err := NewApplyStage(deps).Produce(context.Background(), run)
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}
	if !res.Success {
		t.Error("expected apply success")
	}
	if got := argsOf(t, runner, 0); !strings.HasPrefix(got, "apply -auto-approve -input=false") {
		t.Errorf("unexpected apply args: %q", got)
	}
}

func TestApplyStage_ProbingPlanWhenNoPlanResult(t *testing.T) {
	runner := &fakeRunner{results: []*terraform.Result{
		{ExitCode: 2},
		{ExitCode: 0, Stdout: "Apply complete!"},
	}}
	deps := newTestDeps(t, runner, nil)
	run := engine.NewContext("a", "ws-1", "eu-west-1")

	res, err := NewApplyStage(deps).Produce(context.Background(), run)
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}
	if !res.Success {
		t.Error("expected apply success after probing plan")
	}
	if len(runner.calls) != 2 {
		t.Fatalf("expected plan then apply, got %d calls", len(runner.calls))
	}
	if got := argsOf(t, runner, 0); !strings.HasPrefix(got, "plan") {
		t.Errorf("first call must be a plan: %q", got)
	}
}

func TestApplyStage_ProbingPlanNoChangesSkips(t *testing.T) {
	runner := &fakeRunner{results: []*terraform.Result{{ExitCode: 0}}}
	deps := newTestDeps(t, runner, nil)
	run := engine.NewContext("a", "ws-1", "eu-west-1")

	res, err := NewApplyStage(deps).Produce(context.Background(), run)
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}
	if !res.Success {
		t.Error("expected skip success")
	}
	if len(runner.calls) != 1 {
		t.Errorf("expected only the probing plan, got %d calls", len(runner.calls))
	}
}

func TestApplyStage_ProbingPlanFailureFailsFast(t *testing.T) {
	runner := &fakeRunner{results: []*terraform.Result{{ExitCode: 1, Stderr: "Error: invalid resource"}}}
	deps := newTestDeps(t, runner, nil)
	run := engine.NewContext("a", "ws-1", "eu-west-1")

	res, err := NewApplyStage(deps).Produce(context.Background(), run)
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}
	if res.Success {
		t.Error("expected failure when probing plan fails")
	}
	if len(runner.calls) != 1 {
		t.Errorf("apply must not run after a failed probe, got %d calls", len(runner.calls))
	}
}

func TestHealStage_NothingToHeal(t *testing.T) {
	healer := &fakeHealer{artifact: "should not be used"}
	deps := newTestDeps(t, &fakeRunner{}, healer)
	run := engine.NewContext("a", "ws-1", "eu-west-1")
	run.LastAttempt = &engine.StageResult{Stage: "plan", Success: true}

	res, err := NewHealStage(deps).Produce(context.Background(), run)
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}
	if !res.Success {
		t.Error("expected no-op success")
	}
	if len(healer.calls) != 0 {
		t.Errorf("healer must not be called, got %d calls", len(healer.calls))
	}
}

func TestHealStage_WritesHealedArtifact(t *testing.T) {
	healer := &fakeHealer{artifact: "resource \"aws_vpc\" \"fixed\" {}"}
	deps := newTestDeps(t, &fakeRunner{}, healer)
	run := engine.NewContext("resource \"aws_vpc\" \"broken\" {", "ws-1", "eu-west-1")
	run.LastAttempt = &engine.StageResult{
		Stage:   "plan",
		Success: false,
		Stderr:  "Error: unclosed block",
	}

	res, err := NewHealStage(deps).Produce(context.Background(), run)
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}
	if !res.Success {
		t.Error("expected heal success")
	}
	if res.Artifact != healer.artifact {
		t.Errorf("result must carry the healed artifact, got %q", res.Artifact)
	}
	if len(healer.calls) != 1 {
		t.Fatalf("expected 1 healer call, got %d", len(healer.calls))
	}
	if healer.calls[0].Stage != "plan" || !strings.Contains(healer.calls[0].Stderr, "unclosed") {
		t.Errorf("failure context not forwarded: %+v", healer.calls[0])
	}

	onDisk, err := deps.Workspace.ReadArtifact()
	if err != nil {
		t.Fatalf("ReadArtifact: %v", err)
	}
	if onDisk != healer.artifact {
		t.Error("healed artifact was not written to workspace")
	}
}

func TestHealStage_IdenticalArtifactIsNoOp(t *testing.T) {
	same := "resource \"aws_vpc\" \"main\" {}"
	healer := &fakeHealer{artifact: same}
	deps := newTestDeps(t, &fakeRunner{}, healer)
	run := engine.NewContext(same, "ws-1", "eu-west-1")
	run.LastAttempt = &engine.StageResult{Stage: "apply", Success: false, Stderr: "Error"}

	res, err := NewHealStage(deps).Produce(context.Background(), run)
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}
	if res.Success {
		t.Error("no-op heal must not report success")
	}
	if !res.NoOp {
		t.Error("expected NoOp flag set")
	}
	if res.Artifact != "" {
		t.Errorf("no-op must not carry an artifact, got %q", res.Artifact)
	}
}

func TestHealStage_OracleErrorIsFatal(t *testing.T) {
	healer := &fakeHealer{err: errors.New("api unreachable")}
	deps := newTestDeps(t, &fakeRunner{}, healer)
	run := engine.NewContext("a", "ws-1", "eu-west-1")
	run.LastAttempt = &engine.StageResult{Stage: "plan", Success: false}

	_, err := NewHealStage(deps).Produce(context.Background(), run)
	if err == nil {
		t.Fatal("expected error from failing oracle")
	}
	if !engine.IsKind(err, engine.KindOracle) {
		t.Errorf("expected oracle error kind, got: %v", err)
	}
}

func TestHealStage_RateLimitedOracleIsThrottled(t *testing.T) {
	healer := &fakeHealer{err: fmt.Errorf("messages.create: %w", oracle.ErrRateLimited)}
	deps := newTestDeps(t, &fakeRunner{}, healer)
	run := engine.NewContext("a", "ws-1", "eu-west-1")
	run.LastAttempt = &engine.StageResult{Stage: "plan", Success: false}

	_, err := NewHealStage(deps).Produce(context.Background(), run)
	if err == nil {
		t.Fatal("expected error from rate-limited oracle")
	}
	if !engine.IsThrottled(err) {
		t.Errorf("expected throttled classification, got: %v", err)
	}
	var ee *engine.EngineError
	if !errors.As(err, &ee) || ee.Code != engine.ErrCodeRateLimited {
		t.Errorf("expected code %s, got: %v", engine.ErrCodeRateLimited, err)
	}
}

func TestPlanStage_TimeoutGetsTimeoutCode(t *testing.T) {
	runner := &fakeRunner{
		results: []*terraform.Result{{ExitCode: -1, TimedOut: true}},
		errs:    []error{errors.New("terraform timed out")},
	}
	deps := newTestDeps(t, runner, nil)
	run := engine.NewContext("resource {}", "ws-1", "eu-west-1")

	_, err := NewPlanStage(deps).Produce(context.Background(), run)
	if err == nil {
		t.Fatal("expected error from timed-out plan")
	}
	var ee *engine.EngineError
	if !errors.As(err, &ee) || ee.Code != engine.ErrCodeProcessTimeout {
		t.Errorf("expected code %s, got: %v", engine.ErrCodeProcessTimeout, err)
	}
}

func TestStarlarkStage_Success(t *testing.T) {
	g := &workflow.Graph{
		Metadata: workflow.Metadata{
			Name:        "custom",
			AllowCustom: true,
			Hooks: map[string]string{
				"check": "success = len(current_artifact) > 0\noutput = 'checked ' + workspace_id",
			},
		},
		Nodes: []workflow.Node{{ID: "check", Type: "verify"}},
	}
	stage := NewStarlarkStage(g, 0, zerolog.Nop())
	run := engine.NewContext("resource {}", "ws-1", "eu-west-1")
	run.Meta[engine.MetaNodeKey] = "check"

	res, err := stage.Produce(context.Background(), run)
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}
	if !res.Success {
		t.Error("expected hook success")
	}
	if res.Stdout != "checked ws-1" {
		t.Errorf("unexpected output: %q", res.Stdout)
	}
}

func TestStarlarkStage_ArtifactReplacement(t *testing.T) {
	g := &workflow.Graph{
		Metadata: workflow.Metadata{
			Name:  "custom",
			Hooks: map[string]string{"rewrite": "success = True\nartifact = current_artifact + '\\n# reviewed'"},
		},
		Nodes: []workflow.Node{{ID: "rewrite", Type: workflow.NodeCustom}},
	}
	stage := NewStarlarkStage(g, 0, zerolog.Nop())
	run := engine.NewContext("resource {}", "ws-1", "eu-west-1")
	run.Meta[engine.MetaNodeKey] = "rewrite"

	res, err := stage.Produce(context.Background(), run)
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}
	if res.Artifact != "resource {}\n# reviewed" {
		t.Errorf("artifact not derived from the input artifact: %q", res.Artifact)
	}
}

func TestStarlarkStage_MissingSuccessGlobal(t *testing.T) {
	g := &workflow.Graph{
		Metadata: workflow.Metadata{Name: "custom", Hooks: map[string]string{"bad": "x = 1"}},
		Nodes:    []workflow.Node{{ID: "bad", Type: workflow.NodeCustom}},
	}
	stage := NewStarlarkStage(g, 0, zerolog.Nop())
	run := engine.NewContext("a", "ws-1", "eu-west-1")
	run.Meta[engine.MetaNodeKey] = "bad"

	if _, err := stage.Produce(context.Background(), run); err == nil {
		t.Fatal("expected error for hook without success global")
	}
}

func TestStarlarkStage_ScriptErrorIsFatal(t *testing.T) {
	g := &workflow.Graph{
		Metadata: workflow.Metadata{Name: "custom", Hooks: map[string]string{"boom": "fail('nope')"}},
		Nodes:    []workflow.Node{{ID: "boom", Type: workflow.NodeCustom}},
	}
	stage := NewStarlarkStage(g, 0, zerolog.Nop())
	run := engine.NewContext("a", "ws-1", "eu-west-1")
	run.Meta[engine.MetaNodeKey] = "boom"

	if _, err := stage.Produce(context.Background(), run); err == nil {
		t.Fatal("expected error from failing script")
	}
}

func TestStarlarkStage_UnboundNode(t *testing.T) {
	g := &workflow.Graph{Metadata: workflow.Metadata{Name: "custom"}}
	stage := NewStarlarkStage(g, 0, zerolog.Nop())
	run := engine.NewContext("a", "ws-1", "eu-west-1")
	run.Meta[engine.MetaNodeKey] = "ghost"

	if _, err := stage.Produce(context.Background(), run); err == nil {
		t.Fatal("expected error for node with no hook")
	}
}

func TestRegister_CoversDefaultGraph(t *testing.T) {
	deps := newTestDeps(t, &fakeRunner{}, &fakeHealer{artifact: "x"})
	g := workflow.DefaultGraph()
	reg := engine.NewRegistry()

	if err := Register(reg, g, deps); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := reg.ValidateFor(g); err != nil {
		t.Errorf("registry should cover the default graph: %v", err)
	}
}

func TestRegister_NoHealerStillCoversHealNodes(t *testing.T) {
	deps := newTestDeps(t, &fakeRunner{}, nil)
	g := workflow.DefaultGraph()
	reg := engine.NewRegistry()

	if err := Register(reg, g, deps); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := reg.ValidateFor(g); err != nil {
		t.Errorf("registry should cover the default graph without a healer: %v", err)
	}
	if _, ok := reg.Lookup(workflow.NodeHeal); !ok {
		t.Fatal("heal stage must be registered even without a healer")
	}
}

func TestHealStage_NoHealerTerminatesRun(t *testing.T) {
	deps := newTestDeps(t, &fakeRunner{}, nil)
	run := engine.NewContext("a", "ws-1", "eu-west-1")
	run.LastAttempt = &engine.StageResult{Stage: "plan", Success: false}

	_, err := NewHealStage(deps).Produce(context.Background(), run)
	if err == nil {
		t.Fatal("expected error when healing is disabled")
	}
	if !engine.IsKind(err, engine.KindOracle) {
		t.Errorf("expected oracle error kind, got: %v", err)
	}
	var ee *engine.EngineError
	if !errors.As(err, &ee) || ee.Code != engine.ErrCodeOracleUnusable {
		t.Errorf("expected code %s, got: %v", engine.ErrCodeOracleUnusable, err)
	}
}
