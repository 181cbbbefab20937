package policy

import (
	"time"
)

// Policy tags select which evaluation surface a policy applies to.
const (
	// TagGraph marks policies evaluated during graph admission.
	TagGraph = "graph"

	// TagArtifact marks policies evaluated against Terraform artifacts.
	TagArtifact = "artifact"
)

// BuiltinPolicies returns all built-in policies.
func BuiltinPolicies() []Policy {
	return []Policy{
		graphTerminationPolicy(),
		healBudgetPolicy(),
		customNodePolicy(),
		deniedResourcesPolicy(),
		artifactHygienePolicy(),
	}
}

// graphTerminationPolicy rejects graphs that can never terminate
// successfully.
func graphTerminationPolicy() Policy {
	return Policy{
		Name:        "graph-termination",
		Description: "Every workflow graph must declare an end node and at least one edge",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{TagGraph, "structure"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package tfmend.policies.termination

import rego.v1

has_end if {
	some t in input.graph.node_types
	t == "end"
}

deny contains violation if {
	input.kind == "graph"
	not has_end
	violation := {
		"message": sprintf("graph '%s' declares no end node and cannot terminate", [input.graph.name]),
		"severity": "error",
	}
}

deny contains violation if {
	input.kind == "graph"
	input.graph.node_count > 1
	input.graph.edge_count == 0
	violation := {
		"message": sprintf("graph '%s' declares %d nodes but no edges", [input.graph.name, input.graph.node_count]),
		"severity": "error",
	}
}
`,
	}
}

// healBudgetPolicy caps the per-graph heal budget.
func healBudgetPolicy() Policy {
	return Policy{
		Name:        "heal-budget",
		Description: "Caps max_attempts so a broken artifact cannot burn unbounded oracle calls",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{TagGraph, "healing"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package tfmend.policies.healbudget

import rego.v1

max_allowed := 10

deny contains violation if {
	input.kind == "graph"
	input.graph.max_attempts > max_allowed
	violation := {
		"message": sprintf("graph '%s' sets max_attempts to %d, above the allowed maximum of %d", [input.graph.name, input.graph.max_attempts, max_allowed]),
		"severity": "error",
	}
}
`,
	}
}

// customNodePolicy flags graphs that opt into custom node dispatch.
func customNodePolicy() Policy {
	return Policy{
		Name:        "custom-nodes",
		Description: "Warns when a graph enables custom node dispatch, since hooks run arbitrary Starlark",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{TagGraph, "hooks"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package tfmend.policies.customnodes

import rego.v1

deny contains violation if {
	input.kind == "graph"
	input.graph.allow_custom == true
	violation := {
		"message": sprintf("graph '%s' allows custom nodes backed by Starlark hooks", [input.graph.name]),
		"severity": "warning",
	}
}
`,
	}
}

// deniedResourcesPolicy blocks artifacts that declare resource types
// which persist credentials in Terraform state.
func deniedResourcesPolicy() Policy {
	return Policy{
		Name:        "denied-resources",
		Description: "Blocks resource types that write credentials or secrets into Terraform state",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{TagArtifact, "security"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package tfmend.policies.deniedresources

import rego.v1

denied := {
	"aws_iam_access_key",
	"aws_iam_user_login_profile",
	"aws_secretsmanager_secret_version",
}

deny contains violation if {
	input.kind == "artifact"
	some r in input.artifact.resources
	r.type in denied
	violation := {
		"message": sprintf("resource type '%s' (resource '%s') writes secrets into state and is not allowed", [r.type, r.name]),
		"severity": "error",
	}
}
`,
	}
}

// artifactHygienePolicy catches artifacts carrying markdown leftovers
// or declaring resources without a provider block.
func artifactHygienePolicy() Policy {
	return Policy{
		Name:        "artifact-hygiene",
		Description: "Flags markdown fences in artifacts and resources declared without any provider block",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{TagArtifact, "hygiene"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: "package tfmend.policies.hygiene\n\n" +
			"import rego.v1\n\n" +
			"deny contains violation if {\n" +
			"	input.kind == \"artifact\"\n" +
			"	contains(input.artifact.raw, \"```\")\n" +
			"	violation := {\n" +
			"		\"message\": \"artifact contains a markdown code fence and is not valid Terraform\",\n" +
			"		\"severity\": \"error\",\n" +
			"	}\n" +
			"}\n\n" +
			"deny contains violation if {\n" +
			"	input.kind == \"artifact\"\n" +
			"	count(input.artifact.resources) > 0\n" +
			"	count(input.artifact.providers) == 0\n" +
			"	violation := {\n" +
			"		\"message\": sprintf(\"artifact declares %d resources but no provider block\", [count(input.artifact.resources)]),\n" +
			"		\"severity\": \"warning\",\n" +
			"	}\n" +
			"}\n",
	}
}
