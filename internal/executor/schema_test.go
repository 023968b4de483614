package executor

import (
	"testing"

	"blockflow/internal/models"
)

type stubSchemas struct {
	schemas map[string]BlockSchema
}

func (s *stubSchemas) Schema(blockType string) (BlockSchema, bool) {
	schema, ok := s.schemas[blockType]
	return schema, ok
}

func TestSchemaProviderFiltersUndeclaredParams(t *testing.T) {
	var seen map[string]any
	tool := &stubTool{fn: func(_ string, params map[string]any) ToolResult {
		seen = params
		return ToolResult{Success: true, Output: map[string]any{"response": "ok"}}
	}}
	schemas := &stubSchemas{schemas: map[string]BlockSchema{
		models.BlockTypeAgent: {SubBlocks: map[string]any{"prompt": "string"}},
	}}

	wf := &models.Workflow{
		ID: "wf-shape",
		Blocks: []models.Block{
			starterBlock(),
			agentBlock("block1", map[string]any{"prompt": "hi", "debugOnly": true}),
		},
		Connections: []models.Connection{conn("starter", "block1", models.HandleSource)},
	}

	result := runToResult(t, mustExecutor(t, wf, Collaborators{Tools: tool, Schemas: schemas}), "run-shape")
	if !result.Success {
		t.Fatalf("run failed: %s", result.Error)
	}
	if seen["prompt"] != "hi" {
		t.Errorf("declared param missing: %v", seen)
	}
	if _, ok := seen["debugOnly"]; ok {
		t.Errorf("undeclared param reached the tool: %v", seen)
	}
}

func TestSchemaShapingPassthroughWithoutProvider(t *testing.T) {
	var seen map[string]any
	tool := &stubTool{fn: func(_ string, params map[string]any) ToolResult {
		seen = params
		return ToolResult{Success: true, Output: map[string]any{"response": "ok"}}
	}}

	wf := &models.Workflow{
		ID: "wf-noshape",
		Blocks: []models.Block{
			starterBlock(),
			agentBlock("block1", map[string]any{"prompt": "hi", "anything": "goes"}),
		},
		Connections: []models.Connection{conn("starter", "block1", models.HandleSource)},
	}

	result := runToResult(t, mustExecutor(t, wf, Collaborators{Tools: tool}), "run-noshape")
	if !result.Success {
		t.Fatalf("run failed: %s", result.Error)
	}
	if seen["anything"] != "goes" {
		t.Errorf("params were shaped without a provider: %v", seen)
	}
}

func TestSchemaShapingPassthroughForUnknownBlockType(t *testing.T) {
	var seen map[string]any
	tool := &stubTool{fn: func(_ string, params map[string]any) ToolResult {
		seen = params
		return ToolResult{Success: true, Output: map[string]any{"response": "ok"}}
	}}
	schemas := &stubSchemas{schemas: map[string]BlockSchema{}}

	custom := models.Block{
		ID:       "block1",
		Metadata: models.BlockMetadata{ID: "custom_tool", Name: "block1"},
		Config:   models.BlockConfig{Tool: "my_tool", Params: map[string]any{"raw": 1}},
		Enabled:  true,
	}
	wf := &models.Workflow{
		ID:          "wf-unknown",
		Blocks:      []models.Block{starterBlock(), custom},
		Connections: []models.Connection{conn("starter", "block1", models.HandleSource)},
	}

	result := runToResult(t, mustExecutor(t, wf, Collaborators{Tools: tool, Schemas: schemas}), "run-unknown")
	if !result.Success {
		t.Fatalf("run failed: %s", result.Error)
	}
	if seen["raw"] != 1 {
		t.Errorf("params for undeclared block type were shaped: %v", seen)
	}
}
