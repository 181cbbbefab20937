package workflow

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Parser loads workflow graphs from JSON or YAML documents and
// validates them eagerly, so malformed graphs are rejected before any
// execution starts.
type Parser struct {
	validator *validator.Validate
	schemas   *SchemaRegistry
}

// NewParser creates a parser with the built-in graph schema registered.
func NewParser() *Parser {
	return &Parser{
		validator: validator.New(),
		schemas:   NewSchemaRegistry(),
	}
}

// ParseFile loads a graph from a .json, .yaml, or .yml file.
func (p *Parser) ParseFile(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read graph file %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return p.ParseJSON(data)
	case ".yaml", ".yml":
		return p.ParseYAML(data)
	default:
		return nil, fmt.Errorf("unsupported graph file extension %q (want .json, .yaml, or .yml)", filepath.Ext(path))
	}
}

// ParseJSON parses and validates a JSON graph document.
func (p *Parser) ParseJSON(data []byte) (*Graph, error) {
	var g Graph
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("failed to decode graph JSON: %w", err)
	}
	return p.finish(&g)
}

// ParseYAML parses and validates a YAML graph document.
func (p *Parser) ParseYAML(data []byte) (*Graph, error) {
	var g Graph
	if err := yaml.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("failed to decode graph YAML: %w", err)
	}
	return p.finish(&g)
}

// finish normalizes the parsed graph and runs every validation layer:
// struct tags, the CUE document schema, and the structural invariants.
func (p *Parser) finish(g *Graph) (*Graph, error) {
	normalize(g)

	if err := p.validator.Struct(g); err != nil {
		return nil, fmt.Errorf("graph failed struct validation: %w", err)
	}

	if err := p.schemas.ValidateGraph(g); err != nil {
		return nil, fmt.Errorf("graph failed schema validation: %w", err)
	}

	if err := g.Validate(); err != nil {
		return nil, err
	}

	return g, nil
}

// normalize lowercases node types and edge conditions and defaults
// empty conditions to "always" so routing never has to special-case
// the wire form.
func normalize(g *Graph) {
	for i := range g.Nodes {
		g.Nodes[i].Type = NodeType(strings.ToLower(strings.TrimSpace(string(g.Nodes[i].Type))))
	}
	for i := range g.Edges {
		c := Condition(strings.ToLower(strings.TrimSpace(string(g.Edges[i].Condition))))
		if c == "" {
			c = CondAlways
		}
		g.Edges[i].Condition = c
	}
}
