package executor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"

	"blockflow/internal/models"
)

// loopHandler runs a loop container: its member subgraph executes once per
// iteration, each iteration with a fresh child context carrying the current
// item and index under the "loop" template binding. The container block itself
// completes only after the final iteration; loop-end edges release then.
type loopHandler struct{}

func (h *loopHandler) CanHandle(block models.Block) bool {
	return block.Metadata.ID == models.BlockTypeLoop
}

func (h *loopHandler) Execute(ctx context.Context, block models.Block, scope *runScope) (map[string]any, error) {
	loop, ok := scope.exec.workflow.Loops[block.ID]
	if !ok {
		return nil, fmt.Errorf("loop %s has no container definition", block.ID)
	}

	items, count, err := loopPlan(loop, scope, block)
	if err != nil {
		return nil, err
	}

	sub := scope.graph.subgraph(loop.Nodes)
	results := make([]any, 0, count)

	for i := 0; i < count; i++ {
		if scope.exec.cancelled.Load() {
			return nil, errors.New(CancelledErrorMessage)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		binding := map[string]any{"index": i}
		if items != nil {
			binding["currentItem"] = items[i]
			binding["items"] = items
		}
		child := scope.ec.forkForIteration(map[string]any{"loop": binding})
		for _, entry := range sub.entryBlocks() {
			child.ActivePath[entry] = true
		}

		log.Printf("🔁 [LOOP] Block '%s' iteration %d/%d", block.ID, i+1, count)
		if err := scope.exec.runLayers(ctx, sub, child, nil); err != nil {
			return nil, err
		}
		if msg := fatalMemberError(sub, child); msg != "" {
			return nil, fmt.Errorf("loop %s iteration %d failed: %s", block.ID, i, msg)
		}
		results = append(results, iterationOutput(child))
	}

	return map[string]any{
		"results": results,
		"count":   count,
	}, nil
}

// loopPlan determines the iteration count and, for forEach loops, the item
// slice. forEachItems may be a literal slice, a map (iterated as key/value
// pairs), or a template string resolving to either.
func loopPlan(loop models.Loop, scope *runScope, block models.Block) ([]any, int, error) {
	if loop.LoopType == "forEach" {
		items, err := forEachItems(loop.ForEachItems, scope, block)
		if err != nil {
			return nil, 0, fmt.Errorf("loop %s: %w", block.ID, err)
		}
		return items, len(items), nil
	}
	count := loop.Iterations
	if count <= 0 {
		count = 1
	}
	return nil, count, nil
}

func forEachItems(raw any, scope *runScope, block models.Block) ([]any, error) {
	if s, ok := raw.(string); ok {
		resolved := ResolvePath(scope.templateScope(block), StripTemplateBraces(s))
		if resolved == nil {
			return nil, fmt.Errorf("forEachItems %q resolved to nothing", s)
		}
		raw = resolved
	}
	switch v := raw.(type) {
	case []any:
		return v, nil
	case map[string]any:
		// Sorted keys so forEach iteration order is stable across runs.
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		items := make([]any, 0, len(v))
		for _, key := range keys {
			items = append(items, map[string]any{"key": key, "value": v[key]})
		}
		return items, nil
	default:
		return nil, fmt.Errorf("forEachItems must be a list or map, got %T", raw)
	}
}

// fatalMemberError reports the first member failure that no error edge inside
// the container caught. Caught failures are part of normal control flow.
func fatalMemberError(sub *graph, child *ExecutionContext) string {
	for _, entry := range child.BlockLogs {
		if !entry.Success && !hasErrorEdge(sub, entry.BlockID) {
			return entry.Error
		}
	}
	return ""
}

// iterationOutput is the output of the last successfully executed member, the
// same final-output rule the top-level run uses.
func iterationOutput(child *ExecutionContext) map[string]any {
	output := map[string]any{}
	for _, entry := range child.BlockLogs {
		if entry.Success && entry.Output != nil {
			output = entry.Output
		}
	}
	return output
}
