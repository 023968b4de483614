package executor

import (
	"context"

	"blockflow/internal/models"
)

// ToolResult is the opaque result shape returned by the tool-execution
// collaborator. On failure Success is false and Error carries the message.
type ToolResult struct {
	Success    bool           `json:"success"`
	Output     map[string]any `json:"output,omitempty"`
	Error      string         `json:"error,omitempty"`
	DurationMs int64          `json:"durationMs"`
}

// ToolRunner executes a named tool with resolved parameters. Implementations
// may proxy to internal routes or external HTTP APIs; the executor treats the
// call as an opaque async operation.
type ToolRunner interface {
	ExecuteTool(ctx context.Context, toolID string, params map[string]any) ToolResult
}

// SessionMeta identifies a run to the logging-session collaborator.
type SessionMeta struct {
	RunID       string
	WorkflowID  string
	TriggerType string
}

// LogSession is the best-effort logging collaborator. Implementations must
// never fail the workflow run: all three methods swallow their own errors.
type LogSession interface {
	SafeStart(meta SessionMeta)
	SafeComplete(meta SessionMeta, result *models.ExecutionResult)
	SafeCompleteWithError(meta SessionMeta, err error)
}

// WorkflowLoader resolves child workflow ids for workflow-type blocks.
type WorkflowLoader interface {
	LoadWorkflow(ctx context.Context, workflowID string) (*models.Workflow, error)
}

// BlockSchema is the declared shape of a block type, owned by the block
// registry collaborator.
type BlockSchema struct {
	SubBlocks map[string]any
	Outputs   map[string]any
}

// BlockSchemaProvider looks up the declared schema for a block type. Used to
// shape handler inputs; the executor does not own the registry.
type BlockSchemaProvider interface {
	Schema(blockType string) (BlockSchema, bool)
}

// Collaborators bundles the external boundary contracts an Executor calls
// into. Tools is required for agent/api/function blocks; the rest may be nil,
// in which case the corresponding feature degrades gracefully (no-op logging,
// no child workflows).
type Collaborators struct {
	Tools     ToolRunner
	Schemas   BlockSchemaProvider
	Logs      LogSession
	Workflows WorkflowLoader
}

// noopLogSession is used when no logging collaborator is provided.
type noopLogSession struct{}

func (noopLogSession) SafeStart(SessionMeta)                             {}
func (noopLogSession) SafeComplete(SessionMeta, *models.ExecutionResult) {}
func (noopLogSession) SafeCompleteWithError(SessionMeta, error)          {}
