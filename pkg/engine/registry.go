package engine

import (
	"fmt"

	"github.com/tfmend/tfmend/pkg/workflow"
)

// Registry maps node types to stage callbacks. Registration is a
// construction-time concern: ValidateFor lets callers reject graphs
// with unhandled node types before execution starts instead of
// discovering them mid-run.
type Registry struct {
	callbacks map[workflow.NodeType]StageCallback

	// fallback handles node types outside the registered set when a
	// graph opts into deferred dispatch.
	fallback StageCallback
}

// NewRegistry creates an empty callback registry.
func NewRegistry() *Registry {
	return &Registry{
		callbacks: make(map[workflow.NodeType]StageCallback),
	}
}

// Register binds a callback to a node type. Registering the same type
// twice is a programming error.
func (r *Registry) Register(t workflow.NodeType, cb StageCallback) error {
	if cb == nil {
		return fmt.Errorf("nil callback for node type %q", t)
	}
	if _, exists := r.callbacks[t]; exists {
		return fmt.Errorf("callback already registered for node type %q", t)
	}
	r.callbacks[t] = cb
	return nil
}

// RegisterFallback binds the callback used for node types with no
// direct registration; it backs graphs with allow_custom set.
func (r *Registry) RegisterFallback(cb StageCallback) {
	r.fallback = cb
}

// Lookup resolves the callback for a node type, falling back to the
// custom handler when one is registered.
func (r *Registry) Lookup(t workflow.NodeType) (StageCallback, bool) {
	if cb, ok := r.callbacks[t]; ok {
		return cb, true
	}
	if r.fallback != nil {
		return r.fallback, true
	}
	return nil, false
}

// ValidateFor checks that every non-end node type in the graph has a
// handler. Graphs with allow_custom skip the check for unknown types,
// deferring discovery to run time by intent.
func (r *Registry) ValidateFor(g *workflow.Graph) error {
	for _, n := range g.Nodes {
		t := workflow.NodeType(n.Type)
		if t == workflow.NodeEnd {
			continue
		}
		if _, ok := r.Lookup(t); !ok {
			if g.Metadata.AllowCustom {
				continue
			}
			return NewMissingCallbackError(string(t)).WithNode(n.ID)
		}
	}
	return nil
}
