package handlers

import (
	"context"
	"testing"
	"time"

	"blockflow/internal/executor"
	"blockflow/internal/logsession"
	"blockflow/internal/middleware"
	"blockflow/internal/models"
	"blockflow/internal/registry"
	"blockflow/internal/runlock"
)

func newTestExecutionHandler() *ExecutionHandler {
	return NewExecutionHandler(
		registry.NewWorkflowStore(),
		logsession.NewStore(10),
		runlock.NewManager(nil, time.Minute),
		middleware.NewExecutionLimiter(nil, 0, 0),
		runlock.NewTracker(),
		executor.Collaborators{},
		NewUpdateHub(),
	)
}

func registerTestRun(t *testing.T, h *ExecutionHandler, runID, workflowID string) {
	t.Helper()
	wf := &models.Workflow{
		ID: workflowID,
		Blocks: []models.Block{
			{
				ID:       "starter",
				Metadata: models.BlockMetadata{ID: models.BlockTypeStarter, Name: "Start"},
				Enabled:  true,
			},
			{
				ID:       "block1",
				Metadata: models.BlockMetadata{ID: models.BlockTypeAgent, Name: "block1"},
				Enabled:  true,
			},
		},
		Connections: []models.Connection{
			{Source: "starter", Target: "block1", SourceHandle: models.HandleSource},
		},
	}
	ex, err := executor.NewExecutorFromOptions(executor.Options{Workflow: wf}, executor.Collaborators{})
	if err != nil {
		t.Fatalf("NewExecutorFromOptions: %v", err)
	}
	if err := h.locks.Register(context.Background(), runID, workflowID, ex); err != nil {
		t.Fatalf("Register: %v", err)
	}
}

func TestDebugRunTeardownReleasesChannelAndLock(t *testing.T) {
	h := newTestExecutionHandler()
	registerTestRun(t, h, "run-dbg", "wf-dbg")

	updates := make(chan models.ExecutionUpdate, 4)
	h.trackDebugRun("run-dbg", "wf-dbg", updates)

	forwarderDone := make(chan struct{})
	go func() {
		h.forwardUpdates("run-dbg", updates)
		close(forwarderDone)
	}()

	h.finishDebugRun("run-dbg", "wf-dbg")

	select {
	case <-forwarderDone:
	case <-time.After(time.Second):
		t.Fatal("update forwarder still running after teardown")
	}
	if _, ok := h.locks.Get("run-dbg"); ok {
		t.Error("run lock still registered after teardown")
	}
	h.mu.Lock()
	_, tracked := h.debugRuns["run-dbg"]
	h.mu.Unlock()
	if tracked {
		t.Error("debug run still tracked after teardown")
	}
}

func TestFinishDebugRunTolerantOfUntrackedRun(t *testing.T) {
	h := newTestExecutionHandler()
	// No panic, no lock left behind.
	h.finishDebugRun("never-tracked", "wf-x")
}

func TestStaleDebugRunsAreReaped(t *testing.T) {
	h := newTestExecutionHandler()
	h.debugTTL = 10 * time.Millisecond
	registerTestRun(t, h, "run-stale", "wf-stale")

	updates := make(chan models.ExecutionUpdate, 4)
	h.trackDebugRun("run-stale", "wf-stale", updates)

	h.mu.Lock()
	h.debugRuns["run-stale"].lastStep = time.Now().Add(-time.Minute)
	h.mu.Unlock()

	h.reapStaleDebugRuns()

	select {
	case _, ok := <-updates:
		if ok {
			t.Error("reaper sent on the channel instead of closing it")
		}
	case <-time.After(time.Second):
		t.Fatal("update channel not closed by reaper")
	}
	if _, ok := h.locks.Get("run-stale"); ok {
		t.Error("reaper left the run lock registered")
	}
}

func TestTouchDebugRunKeepsItAlive(t *testing.T) {
	h := newTestExecutionHandler()
	h.debugTTL = time.Hour
	registerTestRun(t, h, "run-live", "wf-live")
	h.trackDebugRun("run-live", "wf-live", make(chan models.ExecutionUpdate, 1))

	h.touchDebugRun("run-live")
	h.reapStaleDebugRuns()

	if _, ok := h.locks.Get("run-live"); !ok {
		t.Error("fresh debug run was reaped")
	}
}
