package executor

import (
	"context"
	"fmt"
	"io"
	"log"
	"sort"
	"sync/atomic"
	"time"

	"blockflow/internal/models"
)

// ContextExtensions carries per-run behavior switches that are not part of
// the workflow itself: streaming, debug stepping, and the status observer.
type ContextExtensions struct {
	Stream            bool
	SelectedOutputIDs []string
	DebugMode         bool
	StatusChan        chan<- models.ExecutionUpdate
}

// Options is the options-object construction surface.
type Options struct {
	Workflow           *models.Workflow
	CurrentBlockStates map[string]*models.BlockState
	EnvVarValues       map[string]string
	WorkflowInput      map[string]any
	WorkflowVariables  map[string]any
	TriggerType        string
	ContextExtensions  *ContextExtensions
}

// Executor runs one workflow graph. It is single-use per logical run: the
// per-run ExecutionContext is created inside Execute and never shared across
// concurrent Execute calls. Cancel may be called from any goroutine.
type Executor struct {
	workflow             *models.Workflow
	graph                *graph
	containerOf          map[string]string // member block id → owning container id
	initialBlockStates   map[string]*models.BlockState
	environmentVariables map[string]string
	workflowInput        map[string]any
	workflowVariables    map[string]any
	triggerType          string
	extensions           ContextExtensions

	collab   Collaborators
	handlers []handler

	cancelled   atomic.Bool
	lastContext *ExecutionContext
	streamW     *io.PipeWriter
}

// newExecutor is the canonical constructor both public forms delegate to.
// Validation runs here, exactly once, before anything can execute.
func newExecutor(opts Options, collab Collaborators) (*Executor, error) {
	if err := validateWorkflow(opts.Workflow); err != nil {
		return nil, err
	}
	if collab.Logs == nil {
		collab.Logs = noopLogSession{}
	}

	containerOf := make(map[string]string)
	for id, loop := range opts.Workflow.Loops {
		for _, member := range loop.Nodes {
			containerOf[member] = id
		}
	}
	for id, par := range opts.Workflow.Parallels {
		for _, member := range par.Nodes {
			containerOf[member] = id
		}
	}

	e := &Executor{
		workflow:             opts.Workflow,
		graph:                newGraph(opts.Workflow.Blocks, opts.Workflow.Connections),
		containerOf:          containerOf,
		initialBlockStates:   opts.CurrentBlockStates,
		environmentVariables: opts.EnvVarValues,
		workflowInput:        opts.WorkflowInput,
		workflowVariables:    opts.WorkflowVariables,
		triggerType:          opts.TriggerType,
		collab:               collab,
	}
	if opts.ContextExtensions != nil {
		e.extensions = *opts.ContextExtensions
	}
	e.handlers = defaultHandlers()
	return e, nil
}

// NewExecutorFromOptions constructs an Executor from a single options object.
func NewExecutorFromOptions(opts Options, collab Collaborators) (*Executor, error) {
	return newExecutor(opts, collab)
}

// NewExecutorFromLegacyArgs constructs an Executor from the positional
// argument form. Equivalent values produce an Executor with the same internal
// state as NewExecutorFromOptions.
func NewExecutorFromLegacyArgs(
	workflow *models.Workflow,
	currentBlockStates map[string]*models.BlockState,
	envVarValues map[string]string,
	workflowInput map[string]any,
	workflowVariables map[string]any,
	collab Collaborators,
) (*Executor, error) {
	return newExecutor(Options{
		Workflow:           workflow,
		CurrentBlockStates: currentBlockStates,
		EnvVarValues:       envVarValues,
		WorkflowInput:      workflowInput,
		WorkflowVariables:  workflowVariables,
	}, collab)
}

// Cancel converts the run to the cancelled terminal state. It is idempotent
// and safe to call from any goroutine; the scheduler observes the flag before
// dispatching each layer. In-flight tool calls are not forcibly aborted.
func (e *Executor) Cancel() {
	if e.cancelled.CompareAndSwap(false, true) {
		log.Printf("🛑 [ENGINE] Cancellation requested for workflow '%s'", e.workflow.ID)
	}
}

// IsCancelled reports whether Cancel has been called.
func (e *Executor) IsCancelled() bool {
	return e.cancelled.Load()
}

// Context returns the execution context of the most recent run, for passing
// back into ContinueExecution during debug stepping. The caller must not use
// it from two call sites concurrently.
func (e *Executor) Context() *ExecutionContext {
	return e.lastContext
}

// Execute runs the workflow to completion (or, in debug mode, to the first
// step boundary). It returns either a *models.ExecutionResult or, when
// streaming is enabled, a *models.StreamingExecution; callers discriminate
// with a type switch. startBlockID optionally overrides the seed block, used
// by trigger entrypoints.
func (e *Executor) Execute(ctx context.Context, runID string, startBlockID ...string) models.ExecutionOutcome {
	started := time.Now()
	if e.cancelled.Load() {
		return cancelledResult(started)
	}

	ec := NewExecutionContext(runID, e.workflow.ID, e.initialBlockStates)
	ec.EnvVars = e.environmentVariables
	ec.WorkflowInput = e.workflowInput
	ec.WorkflowVariables = e.workflowVariables
	ec.Stream = StreamConfig{Enabled: e.extensions.Stream, SelectedOutputIDs: e.extensions.SelectedOutputIDs}
	e.lastContext = ec

	seedID := ""
	if len(startBlockID) > 0 {
		seedID = startBlockID[0]
	}

	meta := SessionMeta{RunID: runID, WorkflowID: e.workflow.ID, TriggerType: e.triggerType}
	e.collab.Logs.SafeStart(meta)

	if e.extensions.Stream {
		pr, pw := io.Pipe()
		e.streamW = pw
		streaming := models.NewStreamingExecution(pr)
		go func() {
			result := e.run(ctx, ec, seedID, started)
			pw.Close()
			e.streamW = nil
			e.completeSession(meta, result)
			streaming.Complete(result)
		}()
		return streaming
	}

	result := e.run(ctx, ec, seedID, started)
	// A debug run with work remaining is not finished; its session completes
	// on the final ContinueExecution step.
	if !e.extensions.DebugMode || len(result.Metadata.PendingBlocks) == 0 {
		e.completeSession(meta, result)
	}
	return result
}

// ContinueExecution advances a debug-mode run by exactly one set of blocks,
// reusing the caller-supplied context. The returned result carries the next
// eligible blocks in Metadata.PendingBlocks; an empty set means the run is
// finished.
func (e *Executor) ContinueExecution(ctx context.Context, blockIDs []string, ec *ExecutionContext) *models.ExecutionResult {
	started := time.Now()
	if e.cancelled.Load() {
		return cancelledResult(started)
	}

	eligible := make(map[string]bool)
	for _, id := range e.nextLayer(e.graph, ec, e.containerOf) {
		eligible[id] = true
	}
	var layer []string
	for _, id := range blockIDs {
		if eligible[id] {
			layer = append(layer, id)
		} else {
			log.Printf("⚠️ [DEBUG] Block '%s' is not eligible this step, skipping", id)
		}
	}
	sort.Strings(layer)

	if len(layer) > 0 {
		e.executeLayer(ctx, e.graph, ec, layer)
		updateExecutionPaths(e.graph, ec, layer)
	}

	result := e.buildResult(ec, nil, started)
	if len(result.Metadata.PendingBlocks) == 0 {
		e.completeSession(SessionMeta{RunID: ec.RunID, WorkflowID: ec.WorkflowID}, result)
	}
	return result
}

// run drives the whole scheduler state machine for one context.
func (e *Executor) run(ctx context.Context, ec *ExecutionContext, seedID string, started time.Time) *models.ExecutionResult {
	if err := e.seedStartBlock(ec, seedID); err != nil {
		return &models.ExecutionResult{
			Success:  false,
			Output:   map[string]any{},
			Error:    ExtractErrorMessage(err),
			Metadata: timedMetadata(started),
		}
	}

	if e.extensions.DebugMode {
		// Debug mode never auto-advances: hand the first step back to the
		// caller, who drives the run via ContinueExecution.
		return e.buildResult(ec, nil, started)
	}

	err := e.runLayers(ctx, e.graph, ec, e.containerOf)
	return e.buildResult(ec, err, started)
}

// seedStartBlock marks the starter (or trigger) block as executed with the
// workflow input as its output, then activates its outgoing paths.
func (e *Executor) seedStartBlock(ec *ExecutionContext, seedID string) error {
	start, err := e.resolveStartBlock(seedID)
	if err != nil {
		return err
	}
	if ec.ExecutedBlocks[start.ID] {
		// Resumed contexts may already carry the seed.
		updateExecutionPaths(e.graph, ec, []string{start.ID})
		return nil
	}

	output := map[string]any{
		"input":    ec.WorkflowInput,
		"response": ec.WorkflowInput,
	}
	ec.BlockStates[start.ID] = &models.BlockState{Output: output, Executed: true}
	ec.ExecutedBlocks[start.ID] = true
	ec.ActivePath[start.ID] = true
	ec.BlockLogs = append(ec.BlockLogs, models.BlockLog{
		BlockID:   start.ID,
		BlockName: start.Metadata.Name,
		BlockType: start.Metadata.ID,
		StartedAt: time.Now(),
		EndedAt:   time.Now(),
		Success:   true,
		Output:    output,
	})
	updateExecutionPaths(e.graph, ec, []string{start.ID})
	return nil
}

// resolveStartBlock picks the seed: an explicit override, the enabled
// starter, or the first enabled trigger block.
func (e *Executor) resolveStartBlock(seedID string) (models.Block, error) {
	if seedID != "" {
		b, ok := e.graph.blocks[seedID]
		if !ok {
			return models.Block{}, fmt.Errorf("start block %q does not exist", seedID)
		}
		return b, nil
	}
	for _, b := range e.workflow.Blocks {
		if b.Enabled && b.Metadata.ID == models.BlockTypeStarter {
			return b, nil
		}
	}
	var triggers []models.Block
	for _, b := range e.workflow.Blocks {
		if b.Enabled && b.IsTrigger() {
			triggers = append(triggers, b)
		}
	}
	if len(triggers) == 0 {
		return models.Block{}, ErrNoStarterBlock
	}
	sort.Slice(triggers, func(i, j int) bool { return triggers[i].ID < triggers[j].ID })
	return triggers[0], nil
}

// buildResult assembles the terminal (or debug-intermediate) value of a run.
// A block failure that no error edge caught is fatal for the overall result.
func (e *Executor) buildResult(ec *ExecutionContext, runErr error, started time.Time) *models.ExecutionResult {
	result := &models.ExecutionResult{
		Success:  true,
		Output:   map[string]any{},
		Logs:     ec.BlockLogs,
		Metadata: timedMetadata(started),
	}

	if runErr != nil {
		result.Success = false
		result.Error = ExtractErrorMessage(runErr)
		return result
	}

	for _, entry := range ec.BlockLogs {
		if entry.Success {
			if entry.Output != nil {
				result.Output = entry.Output
			}
			continue
		}
		if !hasErrorEdge(e.graph, entry.BlockID) {
			result.Success = false
			result.Error = entry.Error
		}
	}

	if e.extensions.DebugMode {
		result.Metadata.PendingBlocks = e.nextLayer(e.graph, ec, e.containerOf)
	}
	return result
}

func (e *Executor) completeSession(meta SessionMeta, result *models.ExecutionResult) {
	if result.Success {
		e.collab.Logs.SafeComplete(meta, result)
	} else {
		e.collab.Logs.SafeCompleteWithError(meta, fmt.Errorf("%s", result.Error))
	}
}

func hasErrorEdge(g *graph, blockID string) bool {
	for _, conn := range g.outgoing[blockID] {
		if conn.SourceHandle == models.HandleError {
			return true
		}
	}
	return false
}

func cancelledResult(started time.Time) *models.ExecutionResult {
	return &models.ExecutionResult{
		Success:  false,
		Output:   map[string]any{},
		Error:    CancelledErrorMessage,
		Metadata: timedMetadata(started),
	}
}

func timedMetadata(started time.Time) models.ResultMetadata {
	ended := time.Now()
	return models.ResultMetadata{
		StartedAt:  started,
		EndedAt:    ended,
		DurationMs: ended.Sub(started).Milliseconds(),
	}
}
