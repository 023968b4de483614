package executor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"blockflow/internal/models"
)

// parallelHandler runs a parallel container: every branch executes the member
// subgraph concurrently over its own child context, with the branch item and
// index under the "parallel" template binding. Results are collected in branch
// order regardless of completion order.
type parallelHandler struct{}

func (h *parallelHandler) CanHandle(block models.Block) bool {
	return block.Metadata.ID == models.BlockTypeParallel
}

func (h *parallelHandler) Execute(ctx context.Context, block models.Block, scope *runScope) (map[string]any, error) {
	par, ok := scope.exec.workflow.Parallels[block.ID]
	if !ok {
		return nil, fmt.Errorf("parallel %s has no container definition", block.ID)
	}

	items, count, err := parallelPlan(par, scope, block)
	if err != nil {
		return nil, err
	}
	if scope.exec.cancelled.Load() {
		return nil, errors.New(CancelledErrorMessage)
	}

	sub := scope.graph.subgraph(par.Nodes)
	results := make([]any, count)
	branchErrs := make([]error, count)
	var wg sync.WaitGroup

	log.Printf("⚡ [PARALLEL] Block '%s' dispatching %d branches", block.ID, count)
	for i := 0; i < count; i++ {
		wg.Add(1)
		go func(index int) {
			defer wg.Done()
			binding := map[string]any{"index": index}
			if items != nil {
				binding["currentItem"] = items[index]
				binding["items"] = items
			}
			child := scope.ec.forkForIteration(map[string]any{"parallel": binding})
			for _, entry := range sub.entryBlocks() {
				child.ActivePath[entry] = true
			}

			if err := scope.exec.runLayers(ctx, sub, child, nil); err != nil {
				branchErrs[index] = err
				return
			}
			if msg := fatalMemberError(sub, child); msg != "" {
				branchErrs[index] = fmt.Errorf("parallel %s branch %d failed: %s", block.ID, index, msg)
				return
			}
			results[index] = iterationOutput(child)
		}(i)
	}
	wg.Wait()

	for _, err := range branchErrs {
		if err != nil {
			return nil, err
		}
	}
	return map[string]any{
		"results": results,
		"count":   count,
	}, nil
}

// parallelPlan determines branch count and, for collection distribution, the
// item slice. A count-type parallel defaults to a single branch.
func parallelPlan(par models.Parallel, scope *runScope, block models.Block) ([]any, int, error) {
	if par.ParallelType == "collection" || par.Distribution != nil {
		items, err := forEachItems(par.Distribution, scope, block)
		if err != nil {
			return nil, 0, fmt.Errorf("parallel %s: %w", block.ID, err)
		}
		return items, len(items), nil
	}
	count := par.Count
	if count <= 0 {
		count = 1
	}
	return nil, count, nil
}
