package models

import "time"

// Block type tags carried in BlockMetadata.ID.
const (
	BlockTypeStarter   = "starter"
	BlockTypeAgent     = "agent"
	BlockTypeRouter    = "router"
	BlockTypeCondition = "condition"
	BlockTypeLoop      = "loop"
	BlockTypeParallel  = "parallel"
	BlockTypeAPI       = "api"
	BlockTypeWorkflow  = "workflow"
	BlockTypeFunction  = "function"

	BlockTypeWebhookTrigger  = "webhook_trigger"
	BlockTypeScheduleTrigger = "schedule_trigger"
	BlockTypeGenericTrigger  = "generic_trigger"
)

// TriggerBlockTypes lists the block categories that may start a run in place
// of a starter block.
var TriggerBlockTypes = map[string]bool{
	BlockTypeWebhookTrigger:  true,
	BlockTypeScheduleTrigger: true,
	BlockTypeGenericTrigger:  true,
}

// Connection source handles. The handle encodes branch semantics: which
// condition under the source block makes the edge traversable.
const (
	HandleSource         = "source"
	HandleError          = "error"
	HandleConditionTrue  = "condition-true"
	HandleConditionFalse = "condition-false"
	HandleLoopEnd        = "loop-end-source"
)

// BlockMetadata tags a block with its type and display name.
type BlockMetadata struct {
	ID   string `json:"id"` // block type tag (starter, agent, router, ...)
	Name string `json:"name,omitempty"`
}

// BlockConfig carries the execution configuration for a block.
// Params shapes are per block type and are validated at graph load.
type BlockConfig struct {
	Tool   string         `json:"tool,omitempty"`
	Params map[string]any `json:"params,omitempty"`
}

// Position represents x,y coordinates for canvas layout. Ignored by execution.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Block represents a single node in the workflow graph.
type Block struct {
	ID       string         `json:"id"`
	Position Position       `json:"position"`
	Metadata BlockMetadata  `json:"metadata"`
	Config   BlockConfig    `json:"config"`
	Inputs   map[string]any `json:"inputs,omitempty"`
	Outputs  map[string]any `json:"outputs,omitempty"`
	Enabled  bool           `json:"enabled"`
}

// IsTrigger reports whether the block can start a run without a starter block:
// either its category is a trigger type or its config carries triggerMode=true.
func (b Block) IsTrigger() bool {
	if TriggerBlockTypes[b.Metadata.ID] {
		return true
	}
	if b.Config.Params != nil {
		if mode, ok := b.Config.Params["triggerMode"].(bool); ok && mode {
			return true
		}
	}
	return false
}

// Connection is a directed edge between two blocks. SourceHandle encodes
// branch semantics; an empty handle is equivalent to "source".
type Connection struct {
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"sourceHandle,omitempty"`
	TargetHandle string `json:"targetHandle,omitempty"`
}

// Loop describes a named grouping of blocks that executes repeatedly.
type Loop struct {
	ID           string   `json:"id"`
	Nodes        []string `json:"nodes"`
	Iterations   int      `json:"iterations,omitempty"`
	LoopType     string   `json:"loopType,omitempty"` // "for" or "forEach"
	ForEachItems any      `json:"forEachItems,omitempty"`
}

// Parallel describes a named grouping of blocks whose iterations run
// concurrently across a collection or a fixed count.
type Parallel struct {
	ID           string   `json:"id"`
	Nodes        []string `json:"nodes"`
	Distribution any      `json:"distribution,omitempty"`
	Count        int      `json:"count,omitempty"`
	ParallelType string   `json:"parallelType,omitempty"` // "count" or "collection"
}

// Variable is a workflow-level variable with an optional default value.
type Variable struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Type  string `json:"type,omitempty"`
	Value any    `json:"value,omitempty"`
}

// Workflow is the immutable description of a block graph. Validated once at
// Executor construction; never mutated during a run.
type Workflow struct {
	ID          string              `json:"id,omitempty"`
	Name        string              `json:"name,omitempty"`
	Blocks      []Block             `json:"blocks"`
	Connections []Connection        `json:"connections"`
	Loops       map[string]Loop     `json:"loops,omitempty"`
	Parallels   map[string]Parallel `json:"parallels,omitempty"`
	Variables   []Variable          `json:"variables,omitempty"`
	Version     int                 `json:"version,omitempty"`
	CreatedAt   time.Time           `json:"created_at,omitempty"`
	UpdatedAt   time.Time           `json:"updated_at,omitempty"`
}

// VariableValues flattens the declared variables to a name→value map for
// template resolution.
func (w *Workflow) VariableValues() map[string]any {
	if len(w.Variables) == 0 {
		return nil
	}
	values := make(map[string]any, len(w.Variables))
	for _, v := range w.Variables {
		values[v.Name] = v.Value
	}
	return values
}

// BlockByID returns the block with the given id, if present.
func (w *Workflow) BlockByID(id string) (Block, bool) {
	for _, b := range w.Blocks {
		if b.ID == id {
			return b, true
		}
	}
	return Block{}, false
}
