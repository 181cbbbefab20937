package workflow

import (
	"fmt"
	"strings"
)

// ToDOT renders the graph in Graphviz DOT format for visualization.
func (g *Graph) ToDOT() string {
	var sb strings.Builder

	sb.WriteString("digraph Workflow {\n")
	sb.WriteString("  rankdir=TB;\n")
	sb.WriteString("  node [shape=box, style=rounded];\n\n")

	for _, n := range g.Nodes {
		sb.WriteString(fmt.Sprintf("  %q [label=\"%s\\n%s\", fillcolor=%q, style=\"filled,rounded\"];\n",
			n.ID, n.ID, n.Type, nodeColor(n.Type)))
	}
	sb.WriteString("\n")

	for _, e := range g.Edges {
		sb.WriteString(fmt.Sprintf("  %q -> %q [%s];\n", e.From, e.To, edgeStyle(e.Condition)))
	}

	sb.WriteString("}\n")
	return sb.String()
}

func nodeColor(t NodeType) string {
	switch t {
	case NodeInit:
		return "lightblue"
	case NodePlan:
		return "lightyellow"
	case NodeApply:
		return "lightgreen"
	case NodeHeal:
		return "lightcoral"
	case NodeEnd:
		return "lightgray"
	default:
		return "white"
	}
}

func edgeStyle(c Condition) string {
	switch c {
	case CondSuccess:
		return "style=solid, color=darkgreen, label=\"success\""
	case CondFailure:
		return "style=dashed, color=red, label=\"failure\""
	default:
		return "style=solid, color=black"
	}
}
