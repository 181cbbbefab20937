package workflow

import (
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// SchemaRegistry manages CUE schemas for graph document validation.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a registry with the built-in graph schema.
func NewSchemaRegistry() *SchemaRegistry {
	sr := &SchemaRegistry{
		ctx:     cuecontext.New(),
		schemas: make(map[string]cue.Value),
	}
	// Built-in schemas are compile-time constants; a failure here is a
	// programming error surfaced on first use.
	_ = sr.RegisterSchema("graph", builtinGraphSchema)
	return sr
}

// RegisterSchema compiles and registers a CUE schema under a name.
func (sr *SchemaRegistry) RegisterSchema(name, schema string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(schema)
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	sr.schemas[name] = val
	return nil
}

// ValidateGraph validates a parsed graph against the graph schema.
func (sr *SchemaRegistry) ValidateGraph(g *Graph) error {
	sr.mu.RLock()
	schema, ok := sr.schemas["graph"]
	sr.mu.RUnlock()
	if !ok {
		return fmt.Errorf("graph schema not registered")
	}

	dataVal := sr.ctx.Encode(g)
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("failed to encode graph: %w", err)
	}

	unified := schema.LookupPath(cue.ParsePath("#Graph")).Unify(dataVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}

	return nil
}

// builtinGraphSchema constrains the wire shape of a workflow graph
// document. Structural invariants that need cross-references (dangling
// edges, duplicate IDs) are checked by Graph.Validate instead.
const builtinGraphSchema = `
#Graph: {
	metadata: {
		name:          string & !=""
		start?:        string
		max_attempts?: int & >=0
		allow_custom?: bool
		hooks?: {[string]: string}
	}

	nodes: [...#Node] & [_, ...]

	edges?: [...#Edge]
}

#Node: {
	id:           string & !=""
	type:         string & !=""
	description?: string
}

#Edge: {
	from:       string & !=""
	to:         string & !=""
	condition?: "always" | "success" | "failure" | ""
}
`
