package executor

import (
	"context"
	"log"

	"blockflow/internal/models"
)

// triggerHandler covers starter and trigger blocks that execute mid-graph
// (the usual case seeds them before the first layer, but an explicit start
// override can leave a secondary trigger reachable). It passes the workflow
// input through, promoting a webhook body to the top level so downstream
// templates address payload fields directly.
type triggerHandler struct{}

func (h *triggerHandler) CanHandle(block models.Block) bool {
	return block.Metadata.ID == models.BlockTypeStarter || block.IsTrigger()
}

func (h *triggerHandler) Execute(_ context.Context, block models.Block, scope *runScope) (map[string]any, error) {
	output := map[string]any{
		"input":    scope.ec.WorkflowInput,
		"response": scope.ec.WorkflowInput,
	}
	if body, ok := scope.ec.WorkflowInput["body"].(map[string]any); ok {
		for k, v := range body {
			if _, taken := output[k]; !taken {
				output[k] = v
			}
		}
	}
	log.Printf("▶️ [TRIGGER] Block '%s' (%s) emitted workflow input", block.ID, block.Metadata.ID)
	return output, nil
}
