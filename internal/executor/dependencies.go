package executor

import (
	"blockflow/internal/models"
)

// checkDependencies decides whether a candidate block's inputs are
// satisfiable now, given its incoming connections and the live context.
// Every incoming connection must pass; the first matching rule per
// connection wins and the rule order is load-bearing:
//
//  1. error handle      — source executed AND its output carries an error
//  2. loop-end handle   — the source container has exhausted its iterations
//  3. source is router  — the router chose this edge's target
//  4. condition handle  — the condition block has executed and recorded a
//     decision (branch pruning happens in path tracking, not here)
//  5. regular           — source executed without error; sources that are
//     neither executed nor on the active path are structurally absent and
//     are ignored rather than treated as blocking
func checkDependencies(g *graph, incoming []models.Connection, ec *ExecutionContext) bool {
	for _, conn := range incoming {
		handle := conn.SourceHandle
		if handle == "" {
			handle = models.HandleSource
		}
		executed := ec.ExecutedBlocks[conn.Source]
		state := ec.BlockStates[conn.Source]

		switch {
		case handle == models.HandleError:
			if !executed || !state.HasError() {
				return false
			}

		case handle == models.HandleLoopEnd:
			// Loop bodies execute many times before completion means
			// anything, so the ordinary source-executed check does not apply.
			if !ec.CompletedLoops[conn.Source] {
				return false
			}

		case g.blocks[conn.Source].Metadata.ID == models.BlockTypeRouter:
			// Edges to non-selected targets are permanently pruned this run.
			if ec.Decisions.Router[conn.Source] != conn.Target {
				return false
			}

		case handle == models.HandleConditionTrue || handle == models.HandleConditionFalse:
			// Both branch edges become satisfiable once the decision exists;
			// only the selected branch is ever activated onto the path.
			if _, decided := ec.Decisions.Condition[conn.Source]; !decided {
				return false
			}

		default:
			if !ec.ActivePath[conn.Source] && !executed {
				continue
			}
			if !executed {
				return false
			}
			if state.HasError() {
				// A failed source blocks normal propagation; the failure must
				// be caught by an error edge instead.
				return false
			}
		}
	}
	return true
}

// CheckDependencies is the exported form over the executor's own graph,
// used by callers inspecting eligibility (debug tooling, tests).
func (e *Executor) CheckDependencies(incoming []models.Connection, ec *ExecutionContext) bool {
	return checkDependencies(e.graph, incoming, ec)
}
