package workflow

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const validGraphJSON = `{
  "metadata": {"name": "terraform-self-healing", "start": "INIT", "max_attempts": 3},
  "nodes": [
    {"id": "INIT", "type": "init"},
    {"id": "PLAN", "type": "plan"},
    {"id": "APPLY", "type": "apply"},
    {"id": "HEAL", "type": "heal"},
    {"id": "END", "type": "end"}
  ],
  "edges": [
    {"from": "INIT", "to": "PLAN", "condition": "always"},
    {"from": "PLAN", "to": "APPLY", "condition": "success"},
    {"from": "PLAN", "to": "HEAL", "condition": "failure"},
    {"from": "APPLY", "to": "END", "condition": "success"},
    {"from": "APPLY", "to": "HEAL", "condition": "failure"},
    {"from": "HEAL", "to": "PLAN", "condition": "always"}
  ]
}`

const validGraphYAML = `
metadata:
  name: terraform-self-healing
  start: INIT
nodes:
  - id: INIT
    type: init
  - id: END
    type: end
edges:
  - from: INIT
    to: END
`

func TestParser_ParseJSON_Valid(t *testing.T) {
	p := NewParser()
	g, err := p.ParseJSON([]byte(validGraphJSON))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if g.Metadata.Name != "terraform-self-healing" {
		t.Errorf("Expected graph name terraform-self-healing, got %s", g.Metadata.Name)
	}
	if len(g.Nodes) != 5 {
		t.Errorf("Expected 5 nodes, got %d", len(g.Nodes))
	}
	if len(g.Edges) != 6 {
		t.Errorf("Expected 6 edges, got %d", len(g.Edges))
	}
	if g.StartNodeID() != "INIT" {
		t.Errorf("Expected start node INIT, got %s", g.StartNodeID())
	}
}

func TestParser_ParseYAML_DefaultsConditionToAlways(t *testing.T) {
	p := NewParser()
	g, err := p.ParseYAML([]byte(validGraphYAML))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if g.Edges[0].Condition != CondAlways {
		t.Errorf("Expected empty condition to default to always, got %s", g.Edges[0].Condition)
	}
}

func TestParser_ParseJSON_DanglingEdge(t *testing.T) {
	doc := `{
	  "metadata": {"name": "bad"},
	  "nodes": [{"id": "A", "type": "init"}],
	  "edges": [{"from": "A", "to": "MISSING"}]
	}`

	p := NewParser()
	_, err := p.ParseJSON([]byte(doc))
	if err == nil {
		t.Fatal("Expected error for edge referencing undeclared node")
	}
	if !strings.Contains(err.Error(), "MISSING") {
		t.Errorf("Expected error to name the dangling node, got: %v", err)
	}
}

func TestParser_ParseJSON_DuplicateNodeIDs(t *testing.T) {
	doc := `{
	  "metadata": {"name": "bad"},
	  "nodes": [{"id": "A", "type": "init"}, {"id": "A", "type": "end"}],
	  "edges": []
	}`

	p := NewParser()
	_, err := p.ParseJSON([]byte(doc))
	if err == nil {
		t.Fatal("Expected error for duplicate node IDs")
	}
}

func TestParser_ParseJSON_UnknownNodeTypeRejected(t *testing.T) {
	doc := `{
	  "metadata": {"name": "bad"},
	  "nodes": [{"id": "A", "type": "mystery"}, {"id": "END", "type": "end"}],
	  "edges": [{"from": "A", "to": "END"}]
	}`

	p := NewParser()
	_, err := p.ParseJSON([]byte(doc))
	if err == nil {
		t.Fatal("Expected error for unknown node type")
	}
}

func TestParser_ParseJSON_UnknownNodeTypeAllowedWhenOptedIn(t *testing.T) {
	doc := `{
	  "metadata": {"name": "custom", "allow_custom": true},
	  "nodes": [{"id": "A", "type": "mystery"}, {"id": "END", "type": "end"}],
	  "edges": [{"from": "A", "to": "END"}]
	}`

	p := NewParser()
	g, err := p.ParseJSON([]byte(doc))
	if err != nil {
		t.Fatalf("Expected no error with allow_custom, got: %v", err)
	}
	if g.Nodes[0].Type != "mystery" {
		t.Errorf("Expected node type preserved, got %s", g.Nodes[0].Type)
	}
}

func TestParser_ParseJSON_BadStartNode(t *testing.T) {
	doc := `{
	  "metadata": {"name": "bad", "start": "NOPE"},
	  "nodes": [{"id": "A", "type": "init"}],
	  "edges": []
	}`

	p := NewParser()
	_, err := p.ParseJSON([]byte(doc))
	if err == nil {
		t.Fatal("Expected error for undeclared start node")
	}
}

func TestParser_ParseFile_YAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "graph.yaml")
	if err := os.WriteFile(path, []byte(validGraphYAML), 0o644); err != nil {
		t.Fatalf("Failed to write graph file: %v", err)
	}

	p := NewParser()
	g, err := p.ParseFile(path)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(g.Nodes) != 2 {
		t.Errorf("Expected 2 nodes, got %d", len(g.Nodes))
	}
}

func TestParser_ParseFile_UnsupportedExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "graph.toml")
	if err := os.WriteFile(path, []byte(""), 0o644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	p := NewParser()
	if _, err := p.ParseFile(path); err == nil {
		t.Fatal("Expected error for unsupported extension")
	}
}

func TestGraph_StartNodeID_DefaultsToFirstNode(t *testing.T) {
	g := &Graph{
		Metadata: Metadata{Name: "n"},
		Nodes:    []Node{{ID: "first", Type: NodeInit}, {ID: "second", Type: NodeEnd}},
	}

	if got := g.StartNodeID(); got != "first" {
		t.Errorf("Expected first declared node as start, got %s", got)
	}
}

func TestGraph_EdgesFrom_PreservesDeclarationOrder(t *testing.T) {
	g := DefaultGraph()
	edges := g.EdgesFrom("PLAN")

	if len(edges) != 2 {
		t.Fatalf("Expected 2 edges from PLAN, got %d", len(edges))
	}
	if edges[0].Condition != CondSuccess || edges[1].Condition != CondFailure {
		t.Errorf("Expected success edge before failure edge, got %s then %s",
			edges[0].Condition, edges[1].Condition)
	}
}

func TestDefaultGraph_Valid(t *testing.T) {
	g := DefaultGraph()
	if err := g.Validate(); err != nil {
		t.Fatalf("Default graph should validate, got: %v", err)
	}
	if g.Metadata.MaxAttempts != DefaultMaxAttempts {
		t.Errorf("Expected max attempts %d, got %d", DefaultMaxAttempts, g.Metadata.MaxAttempts)
	}
}

func TestGraph_ToDOT(t *testing.T) {
	dot := DefaultGraph().ToDOT()
	if !strings.Contains(dot, "digraph Workflow") {
		t.Error("Expected DOT header")
	}
	if !strings.Contains(dot, `"PLAN" -> "HEAL"`) {
		t.Error("Expected PLAN -> HEAL edge in DOT output")
	}
}
