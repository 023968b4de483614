package executor

import (
	"context"
	"fmt"
	"log"

	"blockflow/internal/models"
)

const defaultAgentTool = "llm.chat"

// agentHandler executes agent blocks through the tool collaborator. The tool
// id defaults to the chat completion tool; resolved params travel through
// verbatim so prompts carry interpolated upstream outputs.
type agentHandler struct{}

func (h *agentHandler) CanHandle(block models.Block) bool {
	return block.Metadata.ID == models.BlockTypeAgent
}

func (h *agentHandler) Execute(ctx context.Context, block models.Block, scope *runScope) (map[string]any, error) {
	if scope.exec.collab.Tools == nil {
		return nil, fmt.Errorf("agent block %s: no tool runner configured", block.ID)
	}

	toolID := block.Config.Tool
	if toolID == "" {
		toolID = defaultAgentTool
	}
	params := scope.shapedParams(block)

	log.Printf("🤖 [AGENT] Block '%s' calling tool '%s'", block.ID, toolID)
	result := scope.exec.collab.Tools.ExecuteTool(ctx, toolID, params)
	if !result.Success {
		return nil, fmt.Errorf("%s", ExtractErrorMessage(result.Error))
	}

	output := result.Output
	if output == nil {
		output = map[string]any{}
	}
	if _, ok := output["response"]; !ok {
		if content, ok := output["content"]; ok {
			output["response"] = content
		}
	}
	return output, nil
}
