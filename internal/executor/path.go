package executor

import (
	"log"

	"blockflow/internal/models"
)

// Output keys decision blocks use to report their choice to the path tracker.
const (
	outputKeySelectedRoute   = "selectedRoute"
	outputKeyConditionResult = "conditionResult"
)

// updateExecutionPaths runs after a layer settles. For every block that just
// executed it records router/condition decisions and grows the active
// execution path along the edges its outcome makes traversable. Branches that
// were not selected are simply never activated — that is the pruning.
func updateExecutionPaths(g *graph, ec *ExecutionContext, blockIDs []string) {
	for _, id := range blockIDs {
		block, ok := g.blocks[id]
		if !ok {
			continue
		}
		state := ec.BlockStates[id]

		if state.HasError() {
			activateErrorPaths(g, ec, id)
			continue
		}

		switch block.Metadata.ID {
		case models.BlockTypeRouter:
			target, _ := state.Output[outputKeySelectedRoute].(string)
			if target == "" {
				log.Printf("⚠️ [PATH] Router '%s' produced no selected route", id)
				continue
			}
			ec.Decisions.Router[id] = target
			ec.ActivePath[target] = true

		case models.BlockTypeCondition:
			decision, _ := state.Output[outputKeyConditionResult].(string)
			if decision != "true" && decision != "false" {
				log.Printf("⚠️ [PATH] Condition '%s' produced no decision", id)
				continue
			}
			ec.Decisions.Condition[id] = decision
			want := models.HandleConditionFalse
			if decision == "true" {
				want = models.HandleConditionTrue
			}
			for _, conn := range g.outgoing[id] {
				if conn.SourceHandle == want {
					ec.ActivePath[conn.Target] = true
				}
			}

		default:
			for _, conn := range g.outgoing[id] {
				if conn.SourceHandle == "" || conn.SourceHandle == models.HandleSource {
					ec.ActivePath[conn.Target] = true
				}
			}
		}

		// Containers that exhausted their iteration budget release their
		// loop-end edges.
		if ec.CompletedLoops[id] {
			for _, conn := range g.outgoing[id] {
				if conn.SourceHandle == models.HandleLoopEnd {
					ec.ActivePath[conn.Target] = true
				}
			}
		}
	}
}

// activateErrorPaths diverts the active execution path to error-handling
// blocks after a failure. A failure with no error edge leaves its downstream
// branch inert; the rest of the run continues.
func activateErrorPaths(g *graph, ec *ExecutionContext, blockID string) {
	diverted := false
	for _, conn := range g.outgoing[blockID] {
		if conn.SourceHandle == models.HandleError {
			ec.ActivePath[conn.Target] = true
			diverted = true
		}
	}
	if diverted {
		log.Printf("🚧 [PATH] Block '%s' failed, diverting to error path", blockID)
	}
}
