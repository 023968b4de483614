package executor

import (
	"blockflow/internal/models"
)

// Decisions records branch choices made by router and condition blocks during
// a run. Each entry is written once, when the deciding block completes, and
// read by the dependency resolver from then on.
type Decisions struct {
	Router    map[string]string `json:"router"`    // router block id → chosen target block id
	Condition map[string]string `json:"condition"` // condition block id → "true" | "false"
}

// StreamConfig enables incremental output streaming for selected blocks.
type StreamConfig struct {
	Enabled           bool     `json:"enabled"`
	SelectedOutputIDs []string `json:"selectedOutputIds,omitempty"`
}

// ExecutionContext is the mutable per-run state. It is owned exclusively by
// one Executor run: block goroutines never write to it directly — the
// scheduler applies their settled results between layers. Passing a context
// back into ContinueExecution is the only sanctioned re-entry path.
type ExecutionContext struct {
	RunID      string `json:"runId"`
	WorkflowID string `json:"workflowId,omitempty"`

	BlockStates    map[string]*models.BlockState `json:"blockStates"`
	ExecutedBlocks map[string]bool               `json:"executedBlocks"`
	ActivePath     map[string]bool               `json:"activeExecutionPath"`
	Decisions      Decisions                     `json:"decisions"`
	CompletedLoops map[string]bool               `json:"completedLoops"`
	BlockLogs      []models.BlockLog             `json:"blockLogs"`

	EnvVars           map[string]string `json:"envVars,omitempty"`
	WorkflowInput     map[string]any    `json:"workflowInput,omitempty"`
	WorkflowVariables map[string]any    `json:"workflowVariables,omitempty"`

	Stream StreamConfig `json:"stream,omitempty"`

	// Bindings holds iteration-scoped template values ("loop", "parallel")
	// injected by container handlers. Never serialized; each iteration gets
	// its own set.
	Bindings map[string]any `json:"-"`
}

// NewExecutionContext creates a fresh context for one run. currentBlockStates
// pre-seeds block outputs (used when resuming or overriding prior state);
// seeded blocks are marked executed and placed on the active path.
func NewExecutionContext(runID, workflowID string, currentBlockStates map[string]*models.BlockState) *ExecutionContext {
	ec := &ExecutionContext{
		RunID:          runID,
		WorkflowID:     workflowID,
		BlockStates:    make(map[string]*models.BlockState),
		ExecutedBlocks: make(map[string]bool),
		ActivePath:     make(map[string]bool),
		Decisions: Decisions{
			Router:    make(map[string]string),
			Condition: make(map[string]string),
		},
		CompletedLoops: make(map[string]bool),
	}
	for id, state := range currentBlockStates {
		copied := *state
		ec.BlockStates[id] = &copied
		if state.Executed {
			ec.ExecutedBlocks[id] = true
			ec.ActivePath[id] = true
		}
	}
	return ec
}

// forkForIteration derives a child context for one container iteration.
// Block states and decisions from the parent are copied in so member templates
// can reference outer block outputs; execution bookkeeping for the members
// themselves starts clean every iteration.
func (ec *ExecutionContext) forkForIteration(bindings map[string]any) *ExecutionContext {
	child := &ExecutionContext{
		RunID:          ec.RunID,
		WorkflowID:     ec.WorkflowID,
		BlockStates:    make(map[string]*models.BlockState, len(ec.BlockStates)),
		ExecutedBlocks: make(map[string]bool, len(ec.ExecutedBlocks)),
		ActivePath:     make(map[string]bool),
		Decisions: Decisions{
			Router:    make(map[string]string),
			Condition: make(map[string]string),
		},
		CompletedLoops:    make(map[string]bool),
		EnvVars:           ec.EnvVars,
		WorkflowInput:     ec.WorkflowInput,
		WorkflowVariables: ec.WorkflowVariables,
		Stream:            ec.Stream,
		Bindings:          bindings,
	}
	for id, state := range ec.BlockStates {
		copied := *state
		child.BlockStates[id] = &copied
	}
	for id, executed := range ec.ExecutedBlocks {
		child.ExecutedBlocks[id] = executed
	}
	return child
}

// recordBlockResult applies one settled block outcome. Called only by the
// scheduler between layer dispatches, never concurrently.
func (ec *ExecutionContext) recordBlockResult(log models.BlockLog, output map[string]any, errMsg string) {
	ec.BlockStates[log.BlockID] = &models.BlockState{
		Output:          output,
		Executed:        true,
		ExecutionTimeMs: log.DurationMs,
		Error:           errMsg,
	}
	ec.ExecutedBlocks[log.BlockID] = true
	ec.BlockLogs = append(ec.BlockLogs, log)
}

// graph is an adjacency view over a block set. The top-level run uses the
// whole workflow; loop/parallel container handlers build one over their
// member blocks.
type graph struct {
	blocks   map[string]models.Block
	incoming map[string][]models.Connection
	outgoing map[string][]models.Connection
}

func newGraph(blocks []models.Block, connections []models.Connection) *graph {
	g := &graph{
		blocks:   make(map[string]models.Block, len(blocks)),
		incoming: make(map[string][]models.Connection),
		outgoing: make(map[string][]models.Connection),
	}
	for _, b := range blocks {
		g.blocks[b.ID] = b
	}
	for _, c := range connections {
		g.incoming[c.Target] = append(g.incoming[c.Target], c)
		g.outgoing[c.Source] = append(g.outgoing[c.Source], c)
	}
	return g
}

// subgraph returns the member-only view used for container iterations:
// member blocks plus the connections whose both endpoints are members.
func (g *graph) subgraph(memberIDs []string) *graph {
	members := make(map[string]bool, len(memberIDs))
	for _, id := range memberIDs {
		members[id] = true
	}
	var blocks []models.Block
	for id := range members {
		if b, ok := g.blocks[id]; ok {
			blocks = append(blocks, b)
		}
	}
	var conns []models.Connection
	seen := make(map[string]bool)
	for id := range members {
		for _, c := range g.outgoing[id] {
			if members[c.Target] && !seen[c.Source+"→"+c.Target+"#"+c.SourceHandle] {
				seen[c.Source+"→"+c.Target+"#"+c.SourceHandle] = true
				conns = append(conns, c)
			}
		}
	}
	return newGraph(blocks, conns)
}

// entryBlocks returns the blocks with no incoming connections inside g.
func (g *graph) entryBlocks() []string {
	var entries []string
	for id := range g.blocks {
		if len(g.incoming[id]) == 0 {
			entries = append(entries, id)
		}
	}
	return entries
}
