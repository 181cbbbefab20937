package workflow

// DefaultMaxAttempts is the heal budget a graph gets when its metadata
// does not declare one.
const DefaultMaxAttempts = 3

// DefaultGraph returns the built-in self-healing graph:
//
//	INIT -> PLAN
//	PLAN  success -> APPLY
//	PLAN  failure -> HEAL
//	APPLY success -> END
//	APPLY failure -> HEAL
//	HEAL  always  -> PLAN
//
// Heal cycles are bounded by the metadata max_attempts.
func DefaultGraph() *Graph {
	return &Graph{
		Metadata: Metadata{
			Name:        "terraform-self-healing",
			Start:       "INIT",
			MaxAttempts: DefaultMaxAttempts,
		},
		Nodes: []Node{
			{ID: "INIT", Type: NodeInit},
			{ID: "PLAN", Type: NodePlan},
			{ID: "APPLY", Type: NodeApply},
			{ID: "HEAL", Type: NodeHeal},
			{ID: "END", Type: NodeEnd},
		},
		Edges: []Edge{
			{From: "INIT", To: "PLAN", Condition: CondAlways},
			{From: "PLAN", To: "APPLY", Condition: CondSuccess},
			{From: "PLAN", To: "HEAL", Condition: CondFailure},
			{From: "APPLY", To: "END", Condition: CondSuccess},
			{From: "APPLY", To: "HEAL", Condition: CondFailure},
			{From: "HEAL", To: "PLAN", Condition: CondAlways},
		},
	}
}
