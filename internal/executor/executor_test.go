package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"blockflow/internal/models"
)

// stubTool is the test double for the tool collaborator. The optional fn
// hook lets individual tests script per-block outcomes off the params.
type stubTool struct {
	calls atomic.Int32
	fn    func(toolID string, params map[string]any) ToolResult
}

func (s *stubTool) ExecuteTool(_ context.Context, toolID string, params map[string]any) ToolResult {
	s.calls.Add(1)
	if s.fn != nil {
		return s.fn(toolID, params)
	}
	return ToolResult{Success: true, Output: map[string]any{"response": "ok"}}
}

type stubLoader struct {
	workflows map[string]*models.Workflow
}

func (s *stubLoader) LoadWorkflow(_ context.Context, id string) (*models.Workflow, error) {
	if wf, ok := s.workflows[id]; ok {
		return wf, nil
	}
	return nil, fmt.Errorf("workflow %s not found", id)
}

func starterBlock() models.Block {
	return models.Block{
		ID:       "starter",
		Metadata: models.BlockMetadata{ID: models.BlockTypeStarter, Name: "Start"},
		Enabled:  true,
	}
}

func agentBlock(id string, params map[string]any) models.Block {
	return models.Block{
		ID:       id,
		Metadata: models.BlockMetadata{ID: models.BlockTypeAgent, Name: id},
		Config:   models.BlockConfig{Params: params},
		Enabled:  true,
	}
}

func typedBlock(id, blockType string, params map[string]any) models.Block {
	return models.Block{
		ID:       id,
		Metadata: models.BlockMetadata{ID: blockType, Name: id},
		Config:   models.BlockConfig{Params: params},
		Enabled:  true,
	}
}

func conn(source, target, handle string) models.Connection {
	return models.Connection{Source: source, Target: target, SourceHandle: handle}
}

func mustExecutor(t *testing.T, wf *models.Workflow, collab Collaborators) *Executor {
	t.Helper()
	ex, err := NewExecutorFromOptions(Options{Workflow: wf, WorkflowInput: map[string]any{}}, collab)
	if err != nil {
		t.Fatalf("NewExecutorFromOptions: %v", err)
	}
	return ex
}

func runToResult(t *testing.T, ex *Executor, runID string) *models.ExecutionResult {
	t.Helper()
	outcome := ex.Execute(context.Background(), runID)
	result, ok := outcome.(*models.ExecutionResult)
	if !ok {
		t.Fatalf("expected *ExecutionResult, got %T", outcome)
	}
	return result
}

func TestExecuteSimpleChain(t *testing.T) {
	tool := &stubTool{fn: func(_ string, _ map[string]any) ToolResult {
		return ToolResult{Success: true, Output: map[string]any{"response": "hello"}}
	}}
	wf := &models.Workflow{
		ID:          "wf-chain",
		Blocks:      []models.Block{starterBlock(), agentBlock("block1", nil)},
		Connections: []models.Connection{conn("starter", "block1", models.HandleSource)},
	}

	result := runToResult(t, mustExecutor(t, wf, Collaborators{Tools: tool}), "run-1")

	if !result.Success {
		t.Fatalf("run failed: %s", result.Error)
	}
	if got := result.Output["response"]; got != "hello" {
		t.Errorf("final output = %v, want hello", got)
	}
	if n := tool.calls.Load(); n != 1 {
		t.Errorf("tool calls = %d, want 1", n)
	}
	if len(result.Logs) != 2 {
		t.Errorf("log entries = %d, want 2 (starter + block1)", len(result.Logs))
	}
}

func TestConstructorFormsAreEquivalent(t *testing.T) {
	wf := &models.Workflow{
		ID:          "wf-eq",
		Blocks:      []models.Block{starterBlock(), agentBlock("block1", nil)},
		Connections: []models.Connection{conn("starter", "block1", models.HandleSource)},
	}
	input := map[string]any{"q": "x"}

	fromOpts, err := NewExecutorFromOptions(Options{Workflow: wf, WorkflowInput: input}, Collaborators{Tools: &stubTool{}})
	if err != nil {
		t.Fatalf("options form: %v", err)
	}
	fromLegacy, err := NewExecutorFromLegacyArgs(wf, nil, nil, input, nil, Collaborators{Tools: &stubTool{}})
	if err != nil {
		t.Fatalf("legacy form: %v", err)
	}

	a := runToResult(t, fromOpts, "run-a")
	b := runToResult(t, fromLegacy, "run-b")
	if a.Success != b.Success || a.Error != b.Error {
		t.Errorf("forms diverged: options=(%v,%q) legacy=(%v,%q)", a.Success, a.Error, b.Success, b.Error)
	}
	if len(a.Logs) != len(b.Logs) {
		t.Errorf("log counts diverged: %d vs %d", len(a.Logs), len(b.Logs))
	}
}

func TestRouterSelectsExactlyOneBranch(t *testing.T) {
	tool := &stubTool{}
	wf := &models.Workflow{
		ID: "wf-router",
		Blocks: []models.Block{
			starterBlock(),
			typedBlock("router", models.BlockTypeRouter, map[string]any{
				"input":  "billing",
				"routes": map[string]any{"billing": "branch-a", "support": "branch-b"},
			}),
			agentBlock("branch-a", nil),
			agentBlock("branch-b", nil),
		},
		Connections: []models.Connection{
			conn("starter", "router", models.HandleSource),
			conn("router", "branch-a", models.HandleSource),
			conn("router", "branch-b", models.HandleSource),
		},
	}

	ex := mustExecutor(t, wf, Collaborators{Tools: tool})
	result := runToResult(t, ex, "run-router")

	if !result.Success {
		t.Fatalf("run failed: %s", result.Error)
	}
	ec := ex.Context()
	if !ec.ExecutedBlocks["branch-a"] {
		t.Error("selected branch-a did not execute")
	}
	if ec.ExecutedBlocks["branch-b"] {
		t.Error("non-selected branch-b executed")
	}
	if got := ec.Decisions.Router["router"]; got != "branch-a" {
		t.Errorf("recorded decision = %q, want branch-a", got)
	}
}

func TestConditionActivatesMatchingBranchOnly(t *testing.T) {
	wf := &models.Workflow{
		ID: "wf-cond",
		Blocks: []models.Block{
			starterBlock(),
			typedBlock("cond", models.BlockTypeCondition, map[string]any{
				"field":    "{{input.flag}}",
				"operator": "equals",
				"value":    "yes",
			}),
			agentBlock("on-true", nil),
			agentBlock("on-false", nil),
		},
		Connections: []models.Connection{
			conn("starter", "cond", models.HandleSource),
			conn("cond", "on-true", models.HandleConditionTrue),
			conn("cond", "on-false", models.HandleConditionFalse),
		},
	}

	ex, err := NewExecutorFromOptions(Options{
		Workflow:      wf,
		WorkflowInput: map[string]any{"flag": "yes"},
	}, Collaborators{Tools: &stubTool{}})
	if err != nil {
		t.Fatal(err)
	}
	result := runToResult(t, ex, "run-cond")

	if !result.Success {
		t.Fatalf("run failed: %s", result.Error)
	}
	ec := ex.Context()
	if got := ec.Decisions.Condition["cond"]; got != "true" {
		t.Errorf("decision = %q, want true", got)
	}
	if !ec.ExecutedBlocks["on-true"] {
		t.Error("true branch did not execute")
	}
	if ec.ExecutedBlocks["on-false"] {
		t.Error("false branch executed despite true decision")
	}
}

func TestErrorEdgeDivertsFlow(t *testing.T) {
	tool := &stubTool{fn: func(_ string, params map[string]any) ToolResult {
		if fail, _ := params["fail"].(bool); fail {
			return ToolResult{Success: false, Error: "boom"}
		}
		return ToolResult{Success: true, Output: map[string]any{"response": "ok"}}
	}}
	wf := &models.Workflow{
		ID: "wf-err",
		Blocks: []models.Block{
			starterBlock(),
			agentBlock("flaky", map[string]any{"fail": true}),
			agentBlock("on-error", nil),
			agentBlock("on-success", nil),
		},
		Connections: []models.Connection{
			conn("starter", "flaky", models.HandleSource),
			conn("flaky", "on-success", models.HandleSource),
			conn("flaky", "on-error", models.HandleError),
		},
	}

	ex := mustExecutor(t, wf, Collaborators{Tools: tool})
	result := runToResult(t, ex, "run-err")

	if !result.Success {
		t.Fatalf("caught failure should not fail the run: %s", result.Error)
	}
	ec := ex.Context()
	if !ec.ExecutedBlocks["on-error"] {
		t.Error("error path did not execute")
	}
	if ec.ExecutedBlocks["on-success"] {
		t.Error("normal path executed despite source failure")
	}
}

func TestUncaughtBlockFailureFailsRun(t *testing.T) {
	tool := &stubTool{fn: func(_ string, _ map[string]any) ToolResult {
		return ToolResult{Success: false, Error: "upstream exploded"}
	}}
	wf := &models.Workflow{
		ID:          "wf-fatal",
		Blocks:      []models.Block{starterBlock(), agentBlock("doomed", nil)},
		Connections: []models.Connection{conn("starter", "doomed", models.HandleSource)},
	}

	result := runToResult(t, mustExecutor(t, wf, Collaborators{Tools: tool}), "run-fatal")

	if result.Success {
		t.Fatal("run succeeded despite uncaught block failure")
	}
	if result.Error != "upstream exploded" {
		t.Errorf("error = %q, want upstream exploded", result.Error)
	}
}

func TestLayerFailureDoesNotAbortSiblings(t *testing.T) {
	tool := &stubTool{fn: func(_ string, params map[string]any) ToolResult {
		if fail, _ := params["fail"].(bool); fail {
			return ToolResult{Success: false, Error: "boom"}
		}
		time.Sleep(20 * time.Millisecond)
		return ToolResult{Success: true, Output: map[string]any{"response": "slow-ok"}}
	}}
	wf := &models.Workflow{
		ID: "wf-settled",
		Blocks: []models.Block{
			starterBlock(),
			agentBlock("fast-fail", map[string]any{"fail": true}),
			agentBlock("slow-sibling", nil),
		},
		Connections: []models.Connection{
			conn("starter", "fast-fail", models.HandleSource),
			conn("starter", "slow-sibling", models.HandleSource),
		},
	}

	ex := mustExecutor(t, wf, Collaborators{Tools: tool})
	result := runToResult(t, ex, "run-settled")

	if result.Success {
		t.Fatal("uncaught failure should fail the run")
	}
	ec := ex.Context()
	if !ec.ExecutedBlocks["slow-sibling"] {
		t.Error("sibling was aborted by the failing block")
	}
	if state := ec.BlockStates["slow-sibling"]; state == nil || state.Output["response"] != "slow-ok" {
		t.Error("sibling output was not recorded")
	}
	if n := tool.calls.Load(); n != 2 {
		t.Errorf("tool calls = %d, want 2", n)
	}
}

func TestInactiveSourceDoesNotBlockJoin(t *testing.T) {
	tool := &stubTool{}
	// "orphan" has no path to it this run; the join must treat its edge as
	// structurally absent rather than waiting forever.
	wf := &models.Workflow{
		ID: "wf-join",
		Blocks: []models.Block{
			starterBlock(),
			agentBlock("active", nil),
			agentBlock("orphan", nil),
			agentBlock("join", nil),
		},
		Connections: []models.Connection{
			conn("starter", "active", models.HandleSource),
			conn("active", "join", models.HandleSource),
			conn("orphan", "join", models.HandleSource),
		},
	}

	ex := mustExecutor(t, wf, Collaborators{Tools: tool})
	result := runToResult(t, ex, "run-join")

	if !result.Success {
		t.Fatalf("run failed: %s", result.Error)
	}
	ec := ex.Context()
	if !ec.ExecutedBlocks["join"] {
		t.Error("join did not execute with an inactive source")
	}
	if ec.ExecutedBlocks["orphan"] {
		t.Error("orphan executed without being activated")
	}
}

func TestCancelBeforeExecuteReturnsSentinel(t *testing.T) {
	tool := &stubTool{}
	wf := &models.Workflow{
		ID:          "wf-cancel",
		Blocks:      []models.Block{starterBlock(), agentBlock("block1", nil)},
		Connections: []models.Connection{conn("starter", "block1", models.HandleSource)},
	}

	ex := mustExecutor(t, wf, Collaborators{Tools: tool})
	ex.Cancel()
	ex.Cancel() // idempotent

	if !ex.IsCancelled() {
		t.Fatal("IsCancelled = false after Cancel")
	}
	result := runToResult(t, ex, "run-cancel")
	if result.Success {
		t.Fatal("cancelled run reported success")
	}
	if result.Error != CancelledErrorMessage {
		t.Errorf("error = %q, want %q", result.Error, CancelledErrorMessage)
	}
	if n := tool.calls.Load(); n != 0 {
		t.Errorf("tool was invoked %d times after cancellation", n)
	}
}

func TestChildWorkflowFailureCarriesMarker(t *testing.T) {
	tool := &stubTool{fn: func(_ string, _ map[string]any) ToolResult {
		return ToolResult{Success: false, Error: "child boom"}
	}}
	childWF := &models.Workflow{
		ID:          "child-wf",
		Blocks:      []models.Block{starterBlock(), agentBlock("inner", nil)},
		Connections: []models.Connection{conn("starter", "inner", models.HandleSource)},
	}
	parentWF := &models.Workflow{
		ID: "parent-wf",
		Blocks: []models.Block{
			starterBlock(),
			typedBlock("call-child", models.BlockTypeWorkflow, map[string]any{"workflowId": "child-wf"}),
		},
		Connections: []models.Connection{conn("starter", "call-child", models.HandleSource)},
	}

	collab := Collaborators{
		Tools:     tool,
		Workflows: &stubLoader{workflows: map[string]*models.Workflow{"child-wf": childWF}},
	}
	result := runToResult(t, mustExecutor(t, parentWF, collab), "run-parent")

	if result.Success {
		t.Fatal("parent run succeeded despite failing child")
	}
	if !strings.Contains(result.Error, "error in child workflow child-wf") {
		t.Errorf("error %q lacks child workflow marker", result.Error)
	}
	if !strings.Contains(result.Error, "child boom") {
		t.Errorf("error %q lost the child's cause", result.Error)
	}
}

func TestLoopRunsMembersPerIteration(t *testing.T) {
	tool := &stubTool{}
	wf := &models.Workflow{
		ID: "wf-loop",
		Blocks: []models.Block{
			starterBlock(),
			typedBlock("looper", models.BlockTypeLoop, nil),
			agentBlock("member", nil),
			agentBlock("after", nil),
		},
		Connections: []models.Connection{
			conn("starter", "looper", models.HandleSource),
			conn("looper", "after", models.HandleLoopEnd),
		},
		Loops: map[string]models.Loop{
			"looper": {ID: "looper", Nodes: []string{"member"}, LoopType: "for", Iterations: 3},
		},
	}

	ex := mustExecutor(t, wf, Collaborators{Tools: tool})
	result := runToResult(t, ex, "run-loop")

	if !result.Success {
		t.Fatalf("run failed: %s", result.Error)
	}
	if n := tool.calls.Load(); n != 4 { // 3 member iterations + "after"
		t.Errorf("tool calls = %d, want 4", n)
	}
	ec := ex.Context()
	if !ec.CompletedLoops["looper"] {
		t.Error("loop not marked completed")
	}
	if !ec.ExecutedBlocks["after"] {
		t.Error("loop-end target did not execute")
	}
	state := ec.BlockStates["looper"]
	if state == nil {
		t.Fatal("loop block has no state")
	}
	if count, _ := state.Output["count"].(int); count != 3 {
		t.Errorf("loop count = %v, want 3", state.Output["count"])
	}
}

func TestParallelDistributesCollection(t *testing.T) {
	var seen atomic.Int32
	tool := &stubTool{fn: func(_ string, _ map[string]any) ToolResult {
		seen.Add(1)
		return ToolResult{Success: true, Output: map[string]any{"response": "branch-ok"}}
	}}
	wf := &models.Workflow{
		ID: "wf-par",
		Blocks: []models.Block{
			starterBlock(),
			typedBlock("fan", models.BlockTypeParallel, nil),
			agentBlock("worker", nil),
		},
		Connections: []models.Connection{conn("starter", "fan", models.HandleSource)},
		Parallels: map[string]models.Parallel{
			"fan": {
				ID:           "fan",
				Nodes:        []string{"worker"},
				ParallelType: "collection",
				Distribution: []any{"a", "b", "c"},
			},
		},
	}

	ex := mustExecutor(t, wf, Collaborators{Tools: tool})
	result := runToResult(t, ex, "run-par")

	if !result.Success {
		t.Fatalf("run failed: %s", result.Error)
	}
	if n := seen.Load(); n != 3 {
		t.Errorf("branch executions = %d, want 3", n)
	}
	state := ex.Context().BlockStates["fan"]
	results, _ := state.Output["results"].([]any)
	if len(results) != 3 {
		t.Fatalf("results len = %d, want 3", len(results))
	}
}

func TestDebugModeStepsThroughLayers(t *testing.T) {
	tool := &stubTool{}
	wf := &models.Workflow{
		ID:          "wf-debug",
		Blocks:      []models.Block{starterBlock(), agentBlock("block1", nil)},
		Connections: []models.Connection{conn("starter", "block1", models.HandleSource)},
	}

	ex, err := NewExecutorFromOptions(Options{
		Workflow:          wf,
		WorkflowInput:     map[string]any{},
		ContextExtensions: &ContextExtensions{DebugMode: true},
	}, Collaborators{Tools: tool})
	if err != nil {
		t.Fatal(err)
	}

	first := runToResult(t, ex, "run-debug")
	if len(first.Metadata.PendingBlocks) != 1 || first.Metadata.PendingBlocks[0] != "block1" {
		t.Fatalf("pending = %v, want [block1]", first.Metadata.PendingBlocks)
	}
	if n := tool.calls.Load(); n != 0 {
		t.Fatalf("debug mode ran blocks before ContinueExecution (calls=%d)", n)
	}

	second := ex.ContinueExecution(context.Background(), first.Metadata.PendingBlocks, ex.Context())
	if !second.Success {
		t.Fatalf("continue failed: %s", second.Error)
	}
	if len(second.Metadata.PendingBlocks) != 0 {
		t.Errorf("pending after final step = %v, want empty", second.Metadata.PendingBlocks)
	}
	if n := tool.calls.Load(); n != 1 {
		t.Errorf("tool calls = %d, want 1", n)
	}
}

func TestStreamingExecutionEmitsBlockOutputs(t *testing.T) {
	tool := &stubTool{}
	wf := &models.Workflow{
		ID:          "wf-stream",
		Blocks:      []models.Block{starterBlock(), agentBlock("block1", nil)},
		Connections: []models.Connection{conn("starter", "block1", models.HandleSource)},
	}

	ex, err := NewExecutorFromOptions(Options{
		Workflow:          wf,
		WorkflowInput:     map[string]any{},
		ContextExtensions: &ContextExtensions{Stream: true},
	}, Collaborators{Tools: tool})
	if err != nil {
		t.Fatal(err)
	}

	outcome := ex.Execute(context.Background(), "run-stream")
	streaming, ok := outcome.(*models.StreamingExecution)
	if !ok {
		t.Fatalf("expected *StreamingExecution, got %T", outcome)
	}

	raw, err := io.ReadAll(streaming.Stream)
	if err != nil {
		t.Fatalf("reading stream: %v", err)
	}
	result := streaming.Wait()
	if !result.Success {
		t.Fatalf("run failed: %s", result.Error)
	}

	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	found := false
	for _, line := range lines {
		var chunk map[string]any
		if err := json.Unmarshal([]byte(line), &chunk); err != nil {
			t.Fatalf("stream line is not JSON: %q", line)
		}
		if chunk["blockId"] == "block1" {
			found = true
		}
	}
	if !found {
		t.Error("stream carried no chunk for block1")
	}
}

func TestStatusChannelObservesLifecycle(t *testing.T) {
	tool := &stubTool{}
	updates := make(chan models.ExecutionUpdate, 16)
	wf := &models.Workflow{
		ID:          "wf-status",
		Blocks:      []models.Block{starterBlock(), agentBlock("block1", nil)},
		Connections: []models.Connection{conn("starter", "block1", models.HandleSource)},
	}

	ex, err := NewExecutorFromOptions(Options{
		Workflow:          wf,
		WorkflowInput:     map[string]any{},
		ContextExtensions: &ContextExtensions{StatusChan: updates},
	}, Collaborators{Tools: tool})
	if err != nil {
		t.Fatal(err)
	}
	if result := runToResult(t, ex, "run-status"); !result.Success {
		t.Fatalf("run failed: %s", result.Error)
	}
	close(updates)

	var statuses []string
	for u := range updates {
		if u.BlockID == "block1" {
			statuses = append(statuses, u.Status)
		}
	}
	if len(statuses) != 2 || statuses[0] != "running" || statuses[1] != "completed" {
		t.Errorf("block1 statuses = %v, want [running completed]", statuses)
	}
}

func TestContextCancellationStopsRun(t *testing.T) {
	tool := &stubTool{fn: func(_ string, _ map[string]any) ToolResult {
		time.Sleep(10 * time.Millisecond)
		return ToolResult{Success: true, Output: map[string]any{"response": "ok"}}
	}}
	wf := &models.Workflow{
		ID: "wf-ctx",
		Blocks: []models.Block{
			starterBlock(),
			agentBlock("a", nil),
			agentBlock("b", nil),
		},
		Connections: []models.Connection{
			conn("starter", "a", models.HandleSource),
			conn("a", "b", models.HandleSource),
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ex := mustExecutor(t, wf, Collaborators{Tools: tool})
	outcome := ex.Execute(ctx, "run-ctx")
	result := outcome.(*models.ExecutionResult)

	if result.Success {
		t.Fatal("run succeeded under a cancelled context")
	}
	if !strings.Contains(result.Error, "context canceled") {
		t.Errorf("error = %q, want context cancellation", result.Error)
	}
}
