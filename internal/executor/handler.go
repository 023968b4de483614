package executor

import (
	"context"
	"log"

	"blockflow/internal/models"
)

// handler executes one category of block. The scheduler asks each registered
// handler in order and dispatches to the first claimant, so more specific
// handlers must be registered before the generic tool fallback.
type handler interface {
	CanHandle(block models.Block) bool
	Execute(ctx context.Context, block models.Block, scope *runScope) (map[string]any, error)
}

// runScope is the slice of executor state a handler is allowed to touch
// during dispatch. Handlers read from it; all writes happen in the scheduler
// after the layer settles.
type runScope struct {
	exec  *Executor
	graph *graph
	ec    *ExecutionContext
}

// resolvedParams interpolates the block's configured params against the
// current template scope.
func (s *runScope) resolvedParams(block models.Block) map[string]any {
	return resolveParams(block.Config.Params, s.templateScope(block))
}

// shapedParams resolves the block's params and then filters them against the
// block type's declared sub-blocks from the schema collaborator. Params the
// schema does not declare are dropped so tools only see their contract.
// Without a schema provider, or for undeclared block types, params pass
// through unshaped.
func (s *runScope) shapedParams(block models.Block) map[string]any {
	params := s.resolvedParams(block)
	provider := s.exec.collab.Schemas
	if provider == nil {
		return params
	}
	schema, ok := provider.Schema(block.Metadata.ID)
	if !ok || len(schema.SubBlocks) == 0 {
		return params
	}
	shaped := make(map[string]any, len(params))
	for key, value := range params {
		if _, declared := schema.SubBlocks[key]; declared {
			shaped[key] = value
			continue
		}
		log.Printf("⚠️ [SCHEMA] Block '%s' (%s) param '%s' is not declared, dropping", block.ID, block.Metadata.ID, key)
	}
	return shaped
}

func (s *runScope) templateScope(block models.Block) map[string]any {
	return s.exec.buildScope(s.ec, s.graph, block.ID)
}

func defaultHandlers() []handler {
	return []handler{
		&triggerHandler{},
		&routerHandler{},
		&conditionHandler{},
		&loopHandler{},
		&parallelHandler{},
		&workflowHandler{},
		&agentHandler{},
		&genericHandler{},
	}
}
