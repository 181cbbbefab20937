// Package engine drives self-healing Terraform workflows.
//
// A caller supplies three things to Executor.Run: a validated
// workflow.Graph, a Registry of stage callbacks keyed by node type, and
// a Context carrying the provisioning artifact. The executor walks the
// graph node by node:
//
//   - an end node terminates the run successfully
//   - any other node dispatches to its registered callback, which
//     produces a StageResult
//   - the result is appended to the attempt log and merged into the
//     context (last attempt, artifact, last plan)
//   - heal nodes count against a budget; exceeding it, or a heal that
//     returns an unchanged artifact, terminates the run
//   - routing scans the node's outgoing edges in declaration order and
//     follows the first whose condition matches
//
// All failures (definition problems, missing callbacks, unroutable
// states, exhausted healing budgets, process errors) terminate the run
// and are reported through ExecutionReport.Err as classified
// EngineError values. Run never panics or returns an error for in-run
// failures.
//
// Execution within one run is single-threaded; concurrent runs against
// the same workspace must be serialized by the caller.
package engine
