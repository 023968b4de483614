package registry

import (
	"blockflow/internal/executor"
	"blockflow/internal/models"
)

// SchemaRegistry declares the known block types and their input/output shapes.
// It backs the executor's schema collaborator and the catalog endpoint the
// builder UI reads.
type SchemaRegistry struct {
	schemas map[string]executor.BlockSchema
}

func NewSchemaRegistry() *SchemaRegistry {
	return &SchemaRegistry{schemas: builtinSchemas()}
}

// Schema implements executor.BlockSchemaProvider.
func (r *SchemaRegistry) Schema(blockType string) (executor.BlockSchema, bool) {
	s, ok := r.schemas[blockType]
	return s, ok
}

// Types lists every declared block type.
func (r *SchemaRegistry) Types() []string {
	types := make([]string, 0, len(r.schemas))
	for t := range r.schemas {
		types = append(types, t)
	}
	return types
}

func builtinSchemas() map[string]executor.BlockSchema {
	return map[string]executor.BlockSchema{
		models.BlockTypeStarter: {
			Outputs: map[string]any{"input": "json", "response": "json"},
		},
		models.BlockTypeAgent: {
			SubBlocks: map[string]any{
				"prompt":       "string",
				"messages":     "json",
				"systemPrompt": "string",
				"model":        "string",
				"temperature":  "number",
			},
			Outputs: map[string]any{"response": "string", "usage": "json"},
		},
		models.BlockTypeRouter: {
			SubBlocks: map[string]any{"input": "string", "routes": "json"},
			Outputs:   map[string]any{"selectedRoute": "string", "input": "string"},
		},
		models.BlockTypeCondition: {
			SubBlocks: map[string]any{"field": "string", "operator": "string", "value": "json"},
			Outputs:   map[string]any{"conditionResult": "string"},
		},
		models.BlockTypeLoop: {
			Outputs: map[string]any{"results": "json", "count": "number"},
		},
		models.BlockTypeParallel: {
			Outputs: map[string]any{"results": "json", "count": "number"},
		},
		models.BlockTypeAPI: {
			SubBlocks: map[string]any{
				"url":     "string",
				"method":  "string",
				"headers": "json",
				"body":    "json",
				"query":   "json",
			},
			Outputs: map[string]any{"status": "number", "body": "json", "response": "json"},
		},
		models.BlockTypeWorkflow: {
			SubBlocks: map[string]any{"workflowId": "string", "input": "json"},
			Outputs:   map[string]any{"response": "json", "childRunId": "string"},
		},
		models.BlockTypeFunction: {
			SubBlocks: map[string]any{
				"operation": "string",
				"values":    "json",
				"value":     "json",
				"separator": "string",
				"path":      "string",
			},
			Outputs: map[string]any{"response": "json"},
		},
		models.BlockTypeWebhookTrigger: {
			Outputs: map[string]any{"input": "json", "response": "json"},
		},
		models.BlockTypeScheduleTrigger: {
			SubBlocks: map[string]any{"cron": "string"},
			Outputs:   map[string]any{"input": "json", "response": "json"},
		},
		models.BlockTypeGenericTrigger: {
			Outputs: map[string]any{"input": "json", "response": "json"},
		},
	}
}
