package policy

import (
	"time"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is for warnings that should be reviewed.
	SeverityWarning Severity = "warning"

	// SeverityError is for errors that block the operation.
	SeverityError Severity = "error"
)

// Policy represents a policy rule with its Rego code.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code.
	Rego string `json:"rego"`

	// Severity is the default severity for violations.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Tags are labels for organizing policies.
	Tags []string `json:"tags,omitempty"`

	// CreatedAt is when the policy was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the policy was last updated.
	UpdatedAt time.Time `json:"updated_at"`
}

// Violation represents a single policy violation.
type Violation struct {
	// Policy is the name of the policy that was violated.
	Policy string `json:"policy"`

	// Message is a human-readable violation message.
	Message string `json:"message"`

	// Severity is the violation severity level.
	Severity Severity `json:"severity"`
}

// Result represents the outcome of a policy evaluation.
type Result struct {
	// Allowed indicates whether the operation may proceed. Only
	// error-severity violations block.
	Allowed bool `json:"allowed"`

	// Violations lists all policy violations found.
	Violations []Violation `json:"violations,omitempty"`

	// Warnings lists evaluation problems that did not block.
	Warnings []string `json:"warnings,omitempty"`

	// EvaluatedAt is when the evaluation ran.
	EvaluatedAt time.Time `json:"evaluated_at"`
}

// GraphInput is the policy input for graph admission.
type GraphInput struct {
	Kind  string     `json:"kind"`
	Graph GraphFacts `json:"graph"`
}

// GraphFacts is the flattened view of a workflow graph that policies
// evaluate.
type GraphFacts struct {
	Name        string   `json:"name"`
	NodeTypes   []string `json:"node_types"`
	NodeCount   int      `json:"node_count"`
	EdgeCount   int      `json:"edge_count"`
	MaxAttempts int      `json:"max_attempts"`
	AllowCustom bool     `json:"allow_custom"`
}

// ArtifactInput is the policy input for artifact screening.
type ArtifactInput struct {
	Kind     string        `json:"kind"`
	Artifact ArtifactFacts `json:"artifact"`
}

// ArtifactFacts is the parsed view of a provisioning artifact.
type ArtifactFacts struct {
	Resources []ResourceRef `json:"resources"`
	Providers []string      `json:"providers"`
	Raw       string        `json:"raw"`
}

// ResourceRef identifies one resource block in an artifact.
type ResourceRef struct {
	Type string `json:"type"`
	Name string `json:"name"`
}
