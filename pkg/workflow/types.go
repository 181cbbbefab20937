// Package workflow defines the node/edge workflow graph that drives
// self-healing Terraform runs: parsing from JSON or YAML, eager
// validation, and the default init/plan/apply/heal graph.
package workflow

import (
	"fmt"
	"strings"
)

// NodeType identifies which stage callback handles a node.
type NodeType string

const (
	// NodeInit runs terraform init for the workspace.
	NodeInit NodeType = "init"

	// NodePlan runs terraform plan with a detailed exit code.
	NodePlan NodeType = "plan"

	// NodeApply runs terraform apply.
	NodeApply NodeType = "apply"

	// NodeHeal asks the repair oracle for a corrected artifact.
	NodeHeal NodeType = "heal"

	// NodeEnd terminates the run successfully.
	NodeEnd NodeType = "end"

	// NodeCustom dispatches to a caller-registered callback, typically a
	// Starlark hook carried in the graph metadata.
	NodeCustom NodeType = "custom"
)

// KnownNodeTypes lists every node type the engine dispatches natively.
func KnownNodeTypes() []NodeType {
	return []NodeType{NodeInit, NodePlan, NodeApply, NodeHeal, NodeEnd, NodeCustom}
}

// IsKnown reports whether t is one of the built-in node types.
func (t NodeType) IsKnown() bool {
	switch t {
	case NodeInit, NodePlan, NodeApply, NodeHeal, NodeEnd, NodeCustom:
		return true
	}
	return false
}

// Condition gates an edge during routing.
type Condition string

const (
	// CondAlways matches unconditionally.
	CondAlways Condition = "always"

	// CondSuccess matches when the last stage result succeeded.
	CondSuccess Condition = "success"

	// CondFailure matches when the last stage result failed.
	CondFailure Condition = "failure"
)

// IsValid reports whether c is a recognized edge condition.
func (c Condition) IsValid() bool {
	switch c {
	case CondAlways, CondSuccess, CondFailure:
		return true
	}
	return false
}

// Metadata carries graph-level settings.
type Metadata struct {
	// Name is the human-readable graph name.
	Name string `json:"name" yaml:"name" validate:"required"`

	// Start is the ID of the node execution begins at. When empty the
	// first declared node is used.
	Start string `json:"start,omitempty" yaml:"start,omitempty"`

	// MaxAttempts caps heal cycles for this graph. Zero means the
	// engine default applies.
	MaxAttempts int `json:"max_attempts,omitempty" yaml:"max_attempts,omitempty" validate:"gte=0"`

	// AllowCustom permits node types outside the built-in set; unknown
	// types then dispatch to the custom callback at run time instead of
	// being rejected during validation.
	AllowCustom bool `json:"allow_custom,omitempty" yaml:"allow_custom,omitempty"`

	// Hooks maps node IDs to Starlark scripts backing custom nodes.
	Hooks map[string]string `json:"hooks,omitempty" yaml:"hooks,omitempty"`
}

// Node is a single workflow step.
type Node struct {
	// ID is the unique node identifier within the graph.
	ID string `json:"id" yaml:"id" validate:"required"`

	// Type selects the stage callback for this node.
	Type NodeType `json:"type" yaml:"type" validate:"required"`

	// Description is optional display text.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Edge is a directed, conditionally matched transition between nodes.
// Edges are evaluated in declaration order; the first match wins.
type Edge struct {
	// From is the source node ID.
	From string `json:"from" yaml:"from" validate:"required"`

	// To is the target node ID.
	To string `json:"to" yaml:"to" validate:"required"`

	// Condition gates the transition; empty means "always".
	Condition Condition `json:"condition,omitempty" yaml:"condition,omitempty"`
}

// Graph is an immutable workflow definition. Validate must succeed
// before a graph is handed to the executor; the executor never mutates
// it.
type Graph struct {
	Metadata Metadata `json:"metadata" yaml:"metadata"`
	Nodes    []Node   `json:"nodes" yaml:"nodes" validate:"required,min=1,dive"`
	Edges    []Edge   `json:"edges" yaml:"edges" validate:"dive"`
}

// ValidationError describes a structural problem found during Validate.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid workflow graph: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("invalid workflow graph: %s", e.Message)
}

// Validate checks the structural invariants the executor relies on:
// unique node IDs, every edge referencing declared nodes, a resolvable
// start node, valid edge conditions, and known node types unless the
// graph opts into custom dispatch.
func (g *Graph) Validate() error {
	if len(g.Nodes) == 0 {
		return &ValidationError{Field: "nodes", Message: "graph declares no nodes"}
	}

	seen := make(map[string]bool, len(g.Nodes))
	for _, n := range g.Nodes {
		id := strings.TrimSpace(n.ID)
		if id == "" {
			return &ValidationError{Field: "nodes", Message: "node has empty ID"}
		}
		if seen[id] {
			return &ValidationError{Field: "nodes", Message: fmt.Sprintf("duplicate node ID %q", id)}
		}
		seen[id] = true

		if !n.Type.IsKnown() && !g.Metadata.AllowCustom {
			return &ValidationError{
				Field:   "nodes",
				Message: fmt.Sprintf("node %q has unknown type %q (set metadata.allow_custom to defer dispatch)", id, n.Type),
			}
		}
	}

	if start := g.Metadata.Start; start != "" && !seen[start] {
		return &ValidationError{Field: "metadata.start", Message: fmt.Sprintf("start node %q is not declared", start)}
	}

	for i, e := range g.Edges {
		if !seen[e.From] {
			return &ValidationError{Field: "edges", Message: fmt.Sprintf("edge %d references undeclared source node %q", i, e.From)}
		}
		if !seen[e.To] {
			return &ValidationError{Field: "edges", Message: fmt.Sprintf("edge %d references undeclared target node %q", i, e.To)}
		}
		if e.Condition != "" && !e.Condition.IsValid() {
			return &ValidationError{Field: "edges", Message: fmt.Sprintf("edge %d has unknown condition %q", i, e.Condition)}
		}
	}

	return nil
}

// StartNodeID resolves the node execution begins at: the declared start
// node, or the first declared node when metadata leaves it empty.
func (g *Graph) StartNodeID() string {
	if g.Metadata.Start != "" {
		return g.Metadata.Start
	}
	if len(g.Nodes) > 0 {
		return g.Nodes[0].ID
	}
	return ""
}

// NodeByID returns the declared node with the given ID.
func (g *Graph) NodeByID(id string) (Node, bool) {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// EdgesFrom returns the edges leaving the given node in declaration
// order. Routing tie-break depends on this ordering.
func (g *Graph) EdgesFrom(id string) []Edge {
	var out []Edge
	for _, e := range g.Edges {
		if e.From == id {
			out = append(out, e)
		}
	}
	return out
}

// NodeTypeOf returns the normalized type of the node with the given ID.
func (g *Graph) NodeTypeOf(id string) (NodeType, bool) {
	n, ok := g.NodeByID(id)
	if !ok {
		return "", false
	}
	return NodeType(strings.ToLower(string(n.Type))), true
}

// HookFor returns the Starlark hook script bound to a node ID, if any.
func (g *Graph) HookFor(nodeID string) (string, bool) {
	script, ok := g.Metadata.Hooks[nodeID]
	return script, ok
}
