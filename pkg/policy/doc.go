// Package policy provides Open Policy Agent (OPA) guardrails for
// workflow runs.
//
// Policies written in Rego are evaluated at two points: graph
// admission, before a workflow graph reaches the executor, and
// artifact screening, before an oracle-produced Terraform artifact is
// written back into the workspace. Each policy declares which surface
// it applies to through its tags ("graph" or "artifact").
//
// # Usage
//
// Creating an engine preloaded with the built-in policies:
//
//	eng, err := policy.NewEngine(logger)
//	if err != nil {
//	    return err
//	}
//
//	result, err := eng.EvaluateGraph(ctx, graph)
//	if err != nil {
//	    return err
//	}
//	if !result.Allowed {
//	    for _, v := range result.Violations {
//	        fmt.Printf("policy %s: %s\n", v.Policy, v.Message)
//	    }
//	}
//
// # Built-in Policies
//
// The following policies are included by default:
//
//  1. graph-termination - Graphs must declare an end node and edges
//  2. heal-budget - Caps max_attempts on a graph
//  3. custom-nodes - Warns when Starlark hook dispatch is enabled
//  4. denied-resources - Blocks resource types that persist secrets in state
//  5. artifact-hygiene - Catches markdown fences and missing provider blocks
//
// # Custom Policies
//
// Custom policies load from .rego or .json files. Rules live under a
// deny set and receive either a graph or an artifact input,
// distinguished by input.kind:
//
//	package custom.policies.regions
//
//	import rego.v1
//
//	deny contains violation if {
//	    input.kind == "artifact"
//	    not contains(input.artifact.raw, "eu-west-1")
//	    violation := {
//	        "message": "artifacts must target eu-west-1",
//	        "severity": "error",
//	    }
//	}
//
// # Hot Reload
//
// The loader can watch policy paths and reload on change:
//
//	loader := policy.NewLoader(logger)
//	err = loader.Watch(ctx, paths, func([]policy.Policy) error {
//	    return eng.LoadPolicies(ctx, paths)
//	})
//
// Only error-severity violations deny an operation; warnings and info
// are reported but do not block.
package policy
