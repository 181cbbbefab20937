package stores

import (
	"context"
	"fmt"
	"time"

	"github.com/tfmend/tfmend/pkg/engine"
)

// Recorder adapts the SQLite store to the engine's RunRecorder
// interface. The executor calls it best-effort, so every method maps
// one engine signal to one store write with no buffering. Each signal
// also lands in the run event log so history can replay the lifecycle.
type Recorder struct {
	store *SQLiteStore
}

// NewRecorder wraps a store for run persistence.
func NewRecorder(store *SQLiteStore) *Recorder {
	return &Recorder{store: store}
}

// StartRun implements engine.RunRecorder.
func (r *Recorder) StartRun(ctx context.Context, runID, graphName, workspaceID string) error {
	if err := r.store.CreateRun(ctx, &Run{
		ID:          runID,
		Graph:       graphName,
		WorkspaceID: workspaceID,
		Status:      RunStatusRunning,
		StartedAt:   time.Now(),
	}); err != nil {
		return err
	}
	return r.appendEvent(ctx, runID, EventLevelInfo,
		fmt.Sprintf("run started: graph=%s workspace=%s", graphName, workspaceID))
}

// RecordAttempt implements engine.RunRecorder.
func (r *Recorder) RecordAttempt(ctx context.Context, runID string, seq int, result *engine.StageResult) error {
	attempt := &Attempt{
		RunID:      runID,
		Seq:        seq,
		Stage:      result.Stage,
		Success:    result.Success,
		Stdout:     result.Stdout,
		Stderr:     result.Stderr,
		NoOp:       result.NoOp,
		DurationMS: result.Duration.Milliseconds(),
		CreatedAt:  time.Now(),
	}
	if result.ExitDetail != nil {
		code := *result.ExitDetail
		attempt.ExitCode = &code
	}
	if err := r.store.CreateAttempt(ctx, attempt); err != nil {
		return err
	}
	return r.appendEvent(ctx, runID, attemptLevel(result), attemptMessage(seq, result))
}

// FinishRun implements engine.RunRecorder.
func (r *Recorder) FinishRun(ctx context.Context, runID string, success bool, errMsg string) error {
	status := RunStatusCompleted
	level := EventLevelInfo
	message := "run completed"
	var msg *string
	if !success {
		status = RunStatusFailed
		level = EventLevelError
		message = "run failed"
		if errMsg != "" {
			msg = &errMsg
			message = "run failed: " + errMsg
		}
	}
	if err := r.store.UpdateRunStatus(ctx, runID, status, msg); err != nil {
		return err
	}
	return r.appendEvent(ctx, runID, level, message)
}

func (r *Recorder) appendEvent(ctx context.Context, runID string, level EventLevel, message string) error {
	return r.store.AppendEvent(ctx, &Event{
		RunID:     runID,
		Level:     level,
		Message:   message,
		Timestamp: time.Now(),
	})
}

func attemptLevel(result *engine.StageResult) EventLevel {
	if result.Success {
		return EventLevelInfo
	}
	return EventLevelWarning
}

func attemptMessage(seq int, result *engine.StageResult) string {
	outcome := "failed"
	if result.Success {
		outcome = "succeeded"
	}
	msg := fmt.Sprintf("stage %d (%s) %s", seq, result.Stage, outcome)
	if result.ExitDetail != nil {
		msg += fmt.Sprintf(" exit=%d", *result.ExitDetail)
	}
	if result.NoOp {
		msg += " (no-op)"
	}
	return msg
}
