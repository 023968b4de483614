package executor

import (
	"context"
	"fmt"
	"log"

	"blockflow/internal/models"
)

// toolForBlockType maps block categories to their default tool when the block
// config does not name one explicitly.
var toolForBlockType = map[string]string{
	models.BlockTypeAPI:      "http_request",
	models.BlockTypeFunction: "function_execute",
}

// genericHandler is the tool-dispatch fallback: api blocks, function blocks,
// and any block whose config names a tool. Registered last so the specific
// handlers always win.
type genericHandler struct{}

func (h *genericHandler) CanHandle(block models.Block) bool {
	if toolForBlockType[block.Metadata.ID] != "" {
		return true
	}
	return block.Config.Tool != ""
}

func (h *genericHandler) Execute(ctx context.Context, block models.Block, scope *runScope) (map[string]any, error) {
	if scope.exec.collab.Tools == nil {
		return nil, fmt.Errorf("block %s (%s): no tool runner configured", block.ID, block.Metadata.ID)
	}

	toolID := block.Config.Tool
	if toolID == "" {
		toolID = toolForBlockType[block.Metadata.ID]
	}
	params := scope.shapedParams(block)

	log.Printf("🔧 [TOOL] Block '%s' (%s) calling tool '%s'", block.ID, block.Metadata.ID, toolID)
	result := scope.exec.collab.Tools.ExecuteTool(ctx, toolID, params)
	if !result.Success {
		msg := ExtractErrorMessage(result.Error)
		// Failed tool calls still record a structured output so error-path
		// blocks can template over the failure.
		output := map[string]any{"error": msg}
		if status, ok := result.Output["status"]; ok {
			output["status"] = status
		}
		return output, fmt.Errorf("%s", msg)
	}

	output := result.Output
	if output == nil {
		output = map[string]any{}
	}
	return output, nil
}
