package policy

import (
	"regexp"

	"github.com/tfmend/tfmend/pkg/workflow"
)

var (
	resourceBlockRe = regexp.MustCompile(`(?m)^\s*resource\s+"([^"]+)"\s+"([^"]+)"\s*{`)
	providerBlockRe = regexp.MustCompile(`(?m)^\s*provider\s+"([^"]+)"\s*{`)
)

// NewGraphInput flattens a workflow graph into the shape graph
// admission policies evaluate against.
func NewGraphInput(g *workflow.Graph) GraphInput {
	types := make([]string, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		types = append(types, string(n.Type))
	}

	return GraphInput{
		Kind: "graph",
		Graph: GraphFacts{
			Name:        g.Metadata.Name,
			NodeTypes:   types,
			NodeCount:   len(g.Nodes),
			EdgeCount:   len(g.Edges),
			MaxAttempts: g.Metadata.MaxAttempts,
			AllowCustom: g.Metadata.AllowCustom,
		},
	}
}

// NewArtifactInput parses resource and provider blocks out of a raw
// Terraform artifact. Parsing is regex based: the artifact may not be
// valid HCL yet, and the screen still has to run over it.
func NewArtifactInput(artifact string) ArtifactInput {
	// Empty slices stay non-nil so they marshal as [] and count()
	// over them is defined in Rego.
	resources := []ResourceRef{}
	for _, m := range resourceBlockRe.FindAllStringSubmatch(artifact, -1) {
		resources = append(resources, ResourceRef{Type: m[1], Name: m[2]})
	}

	providers := []string{}
	for _, m := range providerBlockRe.FindAllStringSubmatch(artifact, -1) {
		providers = append(providers, m[1])
	}

	return ArtifactInput{
		Kind: "artifact",
		Artifact: ArtifactFacts{
			Resources: resources,
			Providers: providers,
			Raw:       artifact,
		},
	}
}
