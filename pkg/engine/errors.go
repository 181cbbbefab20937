// Package engine implements the graph-driven execution core: stage
// dispatch, edge routing, context merging, and the bounded self-healing
// loop. All in-run failure is captured in the ExecutionReport; the
// executor never returns a Go error past its boundary for a run that
// started.
package engine

import (
	"errors"
	"fmt"
)

// ErrorKind identifies the failure category recorded in a report.
type ErrorKind string

const (
	// KindGraphDefinition covers a bad or missing start node and other
	// definition problems discovered at run time.
	KindGraphDefinition ErrorKind = "graph_definition"

	// KindMissingCallback means a node type had no registered handler.
	KindMissingCallback ErrorKind = "missing_callback"

	// KindUnroutable means no edge condition matched after a stage.
	KindUnroutable ErrorKind = "unroutable_state"

	// KindHealingBudget means the heal-cycle counter reached its limit,
	// or healing stalled on an identical artifact.
	KindHealingBudget ErrorKind = "healing_budget_exceeded"

	// KindStageExecution covers external process failure or timeout.
	KindStageExecution ErrorKind = "stage_execution"

	// KindOracle means the repair call failed or returned unusable
	// content.
	KindOracle ErrorKind = "oracle"
)

// ErrorClass classifies an error for retry and backoff decisions.
type ErrorClass string

const (
	// ClassTransient indicates a temporary failure that may succeed on
	// retry, such as a network timeout.
	ClassTransient ErrorClass = "transient"

	// ClassThrottled indicates rate limiting or quota exhaustion.
	ClassThrottled ErrorClass = "throttled"

	// ClassPermanent indicates a non-recoverable failure.
	ClassPermanent ErrorClass = "permanent"
)

// Error codes attached to engine errors for programmatic handling.
const (
	ErrCodeBadStart       = "BAD_START_NODE"
	ErrCodeNoCallback     = "NO_CALLBACK"
	ErrCodeNoRoute        = "NO_ROUTE"
	ErrCodeHealBudget     = "HEAL_BUDGET"
	ErrCodeHealNoop       = "HEAL_NOOP"
	ErrCodeProcessFailed  = "PROCESS_FAILED"
	ErrCodeProcessTimeout = "PROCESS_TIMEOUT"
	ErrCodeOracleFailed   = "ORACLE_FAILED"
	ErrCodeOracleUnusable = "ORACLE_UNUSABLE"
	ErrCodeCallbackFailed = "CALLBACK_FAILED"
	ErrCodeRateLimited    = "RATE_LIMITED"
)

// EngineError is a classified error with node and stage context.
// nolint:revive // EngineError is intentionally named to distinguish from standard errors
type EngineError struct {
	// Kind is the failure category.
	Kind ErrorKind `json:"kind"`

	// Class is the error classification for retry logic.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Node is the graph node being visited when the error occurred.
	Node string `json:"node,omitempty"`

	// Stage is the stage name, if applicable.
	Stage string `json:"stage,omitempty"`

	// Err is the underlying cause.
	Err error `json:"-"`

	// Details carries additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Kind, e.Message)
	if e.Node != "" {
		msg += fmt.Sprintf(" (node=%s)", e.Node)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for chain inspection.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// Is matches on kind and code so sentinel comparisons work with
// errors.Is.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	if t.Code != "" && e.Code != t.Code {
		return false
	}
	return e.Kind == t.Kind
}

// WithNode adds node context to an error.
func (e *EngineError) WithNode(node string) *EngineError {
	e.Node = node
	return e
}

// WithStage adds stage context to an error.
func (e *EngineError) WithStage(stage string) *EngineError {
	e.Stage = stage
	return e
}

// WithCode adds an error code.
func (e *EngineError) WithCode(code string) *EngineError {
	e.Code = code
	return e
}

// WithDetail adds a detail field to the error context.
func (e *EngineError) WithDetail(key string, value interface{}) *EngineError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewGraphDefinitionError reports a bad or missing start node or other
// definition problem.
func NewGraphDefinitionError(message string) *EngineError {
	return &EngineError{Kind: KindGraphDefinition, Class: ClassPermanent, Message: message, Code: ErrCodeBadStart}
}

// NewMissingCallbackError reports a node type with no registered
// handler.
func NewMissingCallbackError(nodeType string) *EngineError {
	return &EngineError{
		Kind:    KindMissingCallback,
		Class:   ClassPermanent,
		Message: fmt.Sprintf("no callback registered for node type %q", nodeType),
		Code:    ErrCodeNoCallback,
		Details: map[string]interface{}{"node_type": nodeType},
	}
}

// NewUnroutableStateError reports that no edge condition matched.
func NewUnroutableStateError(node string) *EngineError {
	return &EngineError{
		Kind:    KindUnroutable,
		Class:   ClassPermanent,
		Message: fmt.Sprintf("no edge route matched from node %q", node),
		Code:    ErrCodeNoRoute,
		Node:    node,
	}
}

// NewHealingBudgetError reports that the heal-cycle counter reached
// its limit.
func NewHealingBudgetError(limit int) *EngineError {
	return &EngineError{
		Kind:    KindHealingBudget,
		Class:   ClassPermanent,
		Message: fmt.Sprintf("max healing attempts reached (%d)", limit),
		Code:    ErrCodeHealBudget,
		Details: map[string]interface{}{"limit": limit},
	}
}

// NewHealStalledError reports a no-op heal: the oracle returned an
// artifact identical to the one that just failed, so further cycles
// cannot make progress.
func NewHealStalledError() *EngineError {
	return &EngineError{
		Kind:    KindHealingBudget,
		Class:   ClassPermanent,
		Message: "healing stalled: oracle returned an identical artifact (no-op heal)",
		Code:    ErrCodeHealNoop,
	}
}

// NewStageExecutionError wraps an external process failure or timeout.
func NewStageExecutionError(stage string, err error) *EngineError {
	return &EngineError{
		Kind:    KindStageExecution,
		Class:   ClassPermanent,
		Message: fmt.Sprintf("stage %s failed", stage),
		Code:    ErrCodeProcessFailed,
		Stage:   stage,
		Err:     err,
	}
}

// NewOracleError wraps a failed or unusable repair call.
func NewOracleError(message string, err error) *EngineError {
	return &EngineError{
		Kind:    KindOracle,
		Class:   ClassTransient,
		Message: message,
		Code:    ErrCodeOracleFailed,
		Err:     err,
	}
}

// IsKind reports whether err is an EngineError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// IsTransient reports whether err is classified transient.
func IsTransient(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ClassTransient
	}
	return false
}

// IsThrottled reports whether err is classified throttled.
func IsThrottled(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ClassThrottled
	}
	return false
}
