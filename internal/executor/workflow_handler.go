package executor

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"blockflow/internal/models"
)

// workflowHandler executes a workflow-type block by loading the referenced
// child workflow and running it to completion with its own Executor. The
// child's failure surfaces as this block's error, wrapped so the parent's
// error string identifies the child.
type workflowHandler struct{}

func (h *workflowHandler) CanHandle(block models.Block) bool {
	return block.Metadata.ID == models.BlockTypeWorkflow
}

func (h *workflowHandler) Execute(ctx context.Context, block models.Block, scope *runScope) (map[string]any, error) {
	if scope.exec.collab.Workflows == nil {
		return nil, fmt.Errorf("workflow block %s: no workflow loader configured", block.ID)
	}

	params := scope.resolvedParams(block)
	workflowID := paramString(params, "workflowId", "")
	childWorkflow, err := scope.exec.collab.Workflows.LoadWorkflow(ctx, workflowID)
	if err != nil {
		return nil, childWorkflowError(workflowID, err)
	}

	childInput, _ := params["input"].(map[string]any)
	if childInput == nil {
		childInput = map[string]any{}
	}

	child, err := newExecutor(Options{
		Workflow:          childWorkflow,
		EnvVarValues:      scope.ec.EnvVars,
		WorkflowInput:     childInput,
		WorkflowVariables: childWorkflow.VariableValues(),
	}, scope.exec.collab)
	if err != nil {
		return nil, childWorkflowError(workflowID, err)
	}

	childRunID := uuid.NewString()
	log.Printf("🪆 [WORKFLOW] Block '%s' running child workflow '%s' (run %s)", block.ID, workflowID, childRunID)

	outcome := child.Execute(ctx, childRunID)
	result, ok := outcome.(*models.ExecutionResult)
	if !ok {
		return nil, childWorkflowError(workflowID, "unexpected streaming outcome")
	}
	if !result.Success {
		return nil, childWorkflowError(workflowID, result.Error)
	}

	return map[string]any{
		"response":   result.Output,
		"childRunId": childRunID,
	}, nil
}
