package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"blockflow/internal/models"
)

// settledBlock is one block's outcome collected from the layer fan-out.
type settledBlock struct {
	blockID string
	output  map[string]any
	errMsg  string
	started time.Time
	ended   time.Time
}

// nextLayer computes the set of blocks eligible to run now: enabled, not yet
// executed, on the active execution path, with all dependencies satisfied.
// Blocks owned by a loop/parallel container never appear in a top-level
// layer; their container runs them. The returned order is deterministic.
func (e *Executor) nextLayer(g *graph, ec *ExecutionContext, owned map[string]string) []string {
	var layer []string
	for id, block := range g.blocks {
		if !block.Enabled || ec.ExecutedBlocks[id] || !ec.ActivePath[id] {
			continue
		}
		if owned != nil && owned[id] != "" {
			continue
		}
		if checkDependencies(g, g.incoming[id], ec) {
			layer = append(layer, id)
		}
	}
	sort.Strings(layer)
	return layer
}

// executeLayer dispatches every block in the layer concurrently and joins
// with all-settled semantics: one block's failure (or panic) never aborts its
// siblings. Outcomes are applied to the context in completion order, before
// the next layer is computed.
func (e *Executor) executeLayer(ctx context.Context, g *graph, ec *ExecutionContext, layer []string) {
	results := make(chan settledBlock, len(layer))
	var wg sync.WaitGroup

	for _, id := range layer {
		wg.Add(1)
		go func(blockID string) {
			defer wg.Done()
			block := g.blocks[blockID]

			e.trySendUpdate(models.ExecutionUpdate{
				Type:    "execution_update",
				RunID:   ec.RunID,
				BlockID: blockID,
				Status:  "running",
			})

			started := time.Now()
			output, err := e.dispatchBlock(ctx, block, g, ec)
			ended := time.Now()

			s := settledBlock{blockID: blockID, output: output, started: started, ended: ended}
			if err != nil {
				s.errMsg = ExtractErrorMessage(err)
			}
			results <- s
		}(id)
	}

	wg.Wait()
	close(results)

	for s := range results {
		block := g.blocks[s.blockID]
		entry := models.BlockLog{
			BlockID:    s.blockID,
			BlockName:  block.Metadata.Name,
			BlockType:  block.Metadata.ID,
			StartedAt:  s.started,
			EndedAt:    s.ended,
			DurationMs: s.ended.Sub(s.started).Milliseconds(),
			Success:    s.errMsg == "",
			Output:     s.output,
			Error:      s.errMsg,
		}
		ec.recordBlockResult(entry, s.output, s.errMsg)

		// A container that ran to the end of its budget releases loop-end
		// edges; path tracking reads this flag.
		if s.errMsg == "" &&
			(block.Metadata.ID == models.BlockTypeLoop || block.Metadata.ID == models.BlockTypeParallel) {
			ec.CompletedLoops[s.blockID] = true
		}

		status := "completed"
		if s.errMsg != "" {
			status = "failed"
			log.Printf("❌ [ENGINE] Block '%s' (%s) failed: %s", s.blockID, block.Metadata.ID, s.errMsg)
		}
		e.trySendUpdate(models.ExecutionUpdate{
			Type:    "execution_update",
			RunID:   ec.RunID,
			BlockID: s.blockID,
			Status:  status,
			Output:  s.output,
			Error:   s.errMsg,
		})
		e.streamBlockOutput(ec, s.blockID, s.output)
	}
}

// dispatchBlock finds the first handler claiming the block and runs it,
// converting panics into that block's error instead of crashing the process.
func (e *Executor) dispatchBlock(ctx context.Context, block models.Block, g *graph, ec *ExecutionContext) (output map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("🔥 [ENGINE] PANIC in block '%s' (%s): %v\n%s",
				block.ID, block.Metadata.ID, r, string(debug.Stack()))
			output = nil
			err = fmt.Errorf("internal panic: %v", r)
		}
	}()

	for _, h := range e.handlers {
		if h.CanHandle(block) {
			return h.Execute(ctx, block, &runScope{exec: e, graph: g, ec: ec})
		}
	}
	return nil, fmt.Errorf("no handler registered for block type: %s", block.Metadata.ID)
}

// runLayers drives a graph to exhaustion: compute a layer, dispatch it,
// advance the execution paths, repeat. Used by the top-level run and by
// container iterations. Returns the error that terminated the loop early,
// if any (cancellation, context deadline).
func (e *Executor) runLayers(ctx context.Context, g *graph, ec *ExecutionContext, owned map[string]string) error {
	for {
		if e.cancelled.Load() {
			return fmt.Errorf("%s", CancelledErrorMessage)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		layer := e.nextLayer(g, ec, owned)
		if len(layer) == 0 {
			return nil
		}
		e.executeLayer(ctx, g, ec, layer)
		updateExecutionPaths(g, ec, layer)
	}
}

// trySend attempts a non-blocking send on the status channel. A full buffer
// drops the update rather than blocking the run.
func (e *Executor) trySendUpdate(update models.ExecutionUpdate) {
	if e.extensions.StatusChan == nil {
		return
	}
	select {
	case e.extensions.StatusChan <- update:
	default:
		log.Printf("⚠️ [ENGINE] Status channel full, dropping update for block '%s' (%s)",
			update.BlockID, update.Status)
	}
}

// streamBlockOutput writes one selected block output as a JSON line onto the
// live stream, when streaming is enabled for this run.
func (e *Executor) streamBlockOutput(ec *ExecutionContext, blockID string, output map[string]any) {
	if !ec.Stream.Enabled || e.streamW == nil {
		return
	}
	selected := len(ec.Stream.SelectedOutputIDs) == 0
	for _, id := range ec.Stream.SelectedOutputIDs {
		if id == blockID {
			selected = true
			break
		}
	}
	if !selected {
		return
	}
	line, err := json.Marshal(map[string]any{"blockId": blockID, "output": output})
	if err != nil {
		return
	}
	if _, err := e.streamW.Write(append(line, '\n')); err != nil {
		log.Printf("⚠️ [STREAM] Failed to write chunk for block '%s': %v", blockID, err)
	}
}
