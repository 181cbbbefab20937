package stores

import (
	"time"
)

// RunStatus represents the status of a workflow run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Run is one persisted workflow run.
type Run struct {
	ID          string     `json:"id"`
	Graph       string     `json:"graph"`
	WorkspaceID string     `json:"workspace_id"`
	Status      RunStatus  `json:"status"`
	Error       *string    `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Attempt is one persisted stage result within a run.
type Attempt struct {
	ID         int64     `json:"id"`
	RunID      string    `json:"run_id"`
	Seq        int       `json:"seq"`
	Stage      string    `json:"stage"`
	Success    bool      `json:"success"`
	ExitCode   *int      `json:"exit_code,omitempty"`
	Stdout     string    `json:"stdout"`
	Stderr     string    `json:"stderr"`
	NoOp       bool      `json:"no_op"`
	DurationMS int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// WorkspaceRecord is the persisted idempotency state of a workspace.
type WorkspaceRecord struct {
	ID               string    `json:"id"`
	LastInitSuccess  bool      `json:"last_init_success"`
	LastArtifactHash string    `json:"last_artifact_hash"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// EventLevel represents the severity level of an event.
type EventLevel string

const (
	EventLevelInfo    EventLevel = "info"
	EventLevelWarning EventLevel = "warning"
	EventLevelError   EventLevel = "error"
)

// Event is one entry in the append-only run event log.
type Event struct {
	ID        int64      `json:"id"`
	RunID     string     `json:"run_id"`
	Level     EventLevel `json:"level"`
	Message   string     `json:"message"`
	Timestamp time.Time  `json:"timestamp"`
}
