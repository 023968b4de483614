package handlers

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"blockflow/internal/executor"
	"blockflow/internal/logsession"
	"blockflow/internal/middleware"
	"blockflow/internal/models"
	"blockflow/internal/registry"
	"blockflow/internal/runlock"
)

// ExecuteRequest is the body of POST /api/workflows/:id/execute. A workflow
// may also be supplied inline for one-off runs from the builder.
type ExecuteRequest struct {
	Workflow          *models.Workflow  `json:"workflow,omitempty"`
	Input             map[string]any    `json:"input,omitempty"`
	EnvVars           map[string]string `json:"envVars,omitempty"`
	Variables         map[string]any    `json:"variables,omitempty"`
	Stream            bool              `json:"stream,omitempty"`
	SelectedOutputIDs []string          `json:"selectedOutputIds,omitempty"`
	Debug             bool              `json:"debug,omitempty"`
	StartBlockID      string            `json:"startBlockId,omitempty"`
}

// ContinueRequest is the body of POST /api/runs/:id/continue.
type ContinueRequest struct {
	BlockIDs []string `json:"blockIds"`
}

// debugRunTTL bounds how long an idle debug run may hold its lock and update
// channel before it is reaped as abandoned.
const debugRunTTL = 15 * time.Minute

// debugRun is the per-run state a paused debug session keeps between steps:
// the update channel stays open until the last step so the forwarder can
// drain, and lastStep drives abandoned-run reaping.
type debugRun struct {
	updates    chan models.ExecutionUpdate
	workflowID string
	lastStep   time.Time
}

// ExecutionHandler wires HTTP requests to the workflow engine.
type ExecutionHandler struct {
	store    *registry.WorkflowStore
	sessions *logsession.Store
	locks    *runlock.Manager
	limiter  *middleware.ExecutionLimiter
	tracker  *runlock.Tracker
	collab   executor.Collaborators
	hub      *UpdateHub

	mu        sync.Mutex
	debugRuns map[string]*debugRun
	debugTTL  time.Duration
}

func NewExecutionHandler(
	store *registry.WorkflowStore,
	sessions *logsession.Store,
	locks *runlock.Manager,
	limiter *middleware.ExecutionLimiter,
	tracker *runlock.Tracker,
	collab executor.Collaborators,
	hub *UpdateHub,
) *ExecutionHandler {
	return &ExecutionHandler{
		store:     store,
		sessions:  sessions,
		locks:     locks,
		limiter:   limiter,
		tracker:   tracker,
		collab:    collab,
		hub:       hub,
		debugRuns: make(map[string]*debugRun),
		debugTTL:  debugRunTTL,
	}
}

// Execute handles POST /api/workflows/:id/execute.
func (h *ExecutionHandler) Execute(c *fiber.Ctx) error {
	var req ExecuteRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
		}
	}

	wf := req.Workflow
	if wf == nil {
		stored, ok := h.store.Get(c.Params("id"))
		if !ok {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Workflow not found"})
		}
		wf = stored
	}

	return h.startRun(c, wf, &req, "api")
}

// startRun is shared by the execute endpoint, webhooks, and the scheduler's
// HTTP re-entry. It owns slot acquisition and cleanup.
func (h *ExecutionHandler) startRun(c *fiber.Ctx, wf *models.Workflow, req *ExecuteRequest, trigger string) error {
	h.reapStaleDebugRuns()

	if !h.tracker.Acquire() {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "Server is shutting down"})
	}

	client, _ := c.Locals("client_id").(string)
	if client == "" {
		client = c.IP()
	}
	if !h.limiter.AcquireRun(client) {
		h.tracker.Release()
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "Too many concurrent runs"})
	}

	variables := req.Variables
	if variables == nil {
		variables = wf.VariableValues()
	}

	updates := make(chan models.ExecutionUpdate, 256)
	ex, err := executor.NewExecutorFromOptions(executor.Options{
		Workflow:          wf,
		EnvVarValues:      req.EnvVars,
		WorkflowInput:     req.Input,
		WorkflowVariables: variables,
		TriggerType:       trigger,
		ContextExtensions: &executor.ContextExtensions{
			Stream:            req.Stream,
			SelectedOutputIDs: req.SelectedOutputIDs,
			DebugMode:         req.Debug,
			StatusChan:        updates,
		},
	}, h.collab)
	if err != nil {
		h.limiter.ReleaseRun(client)
		h.tracker.Release()
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	runID := uuid.NewString()
	if err := h.locks.Register(context.Background(), runID, wf.ID, ex); err != nil {
		h.limiter.ReleaseRun(client)
		h.tracker.Release()
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	}

	go h.forwardUpdates(runID, updates)

	cleanup := func() {
		close(updates)
		h.locks.Unregister(context.Background(), runID, wf.ID)
		h.limiter.ReleaseRun(client)
		h.tracker.Release()
	}

	log.Printf("🚀 [API] Starting run %s for workflow '%s' (trigger: %s)", runID, wf.ID, trigger)
	outcome := ex.Execute(context.Background(), runID, startBlockArgs(req)...)

	switch result := outcome.(type) {
	case *models.StreamingExecution:
		go func() {
			result.Wait()
			cleanup()
		}()
		c.Set("Content-Type", "application/x-ndjson")
		c.Set("X-Run-ID", runID)
		return c.SendStream(result.Stream)

	case *models.ExecutionResult:
		if req.Debug && len(result.Metadata.PendingBlocks) > 0 {
			// Debug runs stay registered so /continue can reach the executor;
			// the update channel closes when the last step (or the reaper)
			// finishes the run.
			h.trackDebugRun(runID, wf.ID, updates)
			h.limiter.ReleaseRun(client)
			h.tracker.Release()
			return c.JSON(fiber.Map{"runId": runID, "result": result})
		}
		cleanup()
		return c.JSON(fiber.Map{"runId": runID, "result": result})

	default:
		cleanup()
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Unknown execution outcome"})
	}
}

// Continue handles POST /api/runs/:id/continue for debug stepping.
func (h *ExecutionHandler) Continue(c *fiber.Ctx) error {
	runID := c.Params("id")
	ex, ok := h.locks.Get(runID)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Run not active"})
	}

	var req ContinueRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	result := ex.ContinueExecution(context.Background(), req.BlockIDs, ex.Context())
	if len(result.Metadata.PendingBlocks) == 0 {
		h.finishDebugRun(runID, ex.Context().WorkflowID)
	} else {
		h.touchDebugRun(runID)
	}
	return c.JSON(fiber.Map{"runId": runID, "result": result})
}

// Cancel handles POST /api/runs/:id/cancel.
func (h *ExecutionHandler) Cancel(c *fiber.Ctx) error {
	runID := c.Params("id")
	if !h.locks.Cancel(runID) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Run not active"})
	}
	// A paused debug run has no in-flight Execute to release it; tear it down
	// here. Live runs clean up when Execute returns.
	h.mu.Lock()
	run, tracked := h.debugRuns[runID]
	h.mu.Unlock()
	if tracked {
		h.finishDebugRun(runID, run.workflowID)
	}
	return c.JSON(fiber.Map{"cancelled": true, "runId": runID})
}

// GetRun handles GET /api/runs/:id.
func (h *ExecutionHandler) GetRun(c *fiber.Ctx) error {
	session, ok := h.sessions.Get(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Run not found"})
	}
	return c.JSON(session)
}

// ListRuns handles GET /api/runs.
func (h *ExecutionHandler) ListRuns(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	return c.JSON(fiber.Map{"runs": h.sessions.Recent(limit)})
}

func (h *ExecutionHandler) trackDebugRun(runID, workflowID string, updates chan models.ExecutionUpdate) {
	h.mu.Lock()
	h.debugRuns[runID] = &debugRun{
		updates:    updates,
		workflowID: workflowID,
		lastStep:   time.Now(),
	}
	h.mu.Unlock()
}

func (h *ExecutionHandler) touchDebugRun(runID string) {
	h.mu.Lock()
	if run, ok := h.debugRuns[runID]; ok {
		run.lastStep = time.Now()
	}
	h.mu.Unlock()
}

// finishDebugRun releases everything a paused debug run holds: the update
// channel (terminating its forwarder) and the run lock. Safe to call for runs
// that were never tracked.
func (h *ExecutionHandler) finishDebugRun(runID, workflowID string) {
	h.mu.Lock()
	run, tracked := h.debugRuns[runID]
	delete(h.debugRuns, runID)
	h.mu.Unlock()

	if tracked {
		close(run.updates)
	}
	h.locks.Unregister(context.Background(), runID, workflowID)
}

// reapStaleDebugRuns tears down debug runs idle past the TTL. Called lazily
// from the request path so abandoned sessions cannot pin locks forever.
func (h *ExecutionHandler) reapStaleDebugRuns() {
	now := time.Now()
	type staleRun struct{ runID, workflowID string }
	var stale []staleRun

	h.mu.Lock()
	for runID, run := range h.debugRuns {
		if now.Sub(run.lastStep) > h.debugTTL {
			stale = append(stale, staleRun{runID, run.workflowID})
		}
	}
	h.mu.Unlock()

	for _, s := range stale {
		log.Printf("🧹 [API] Reaping abandoned debug run %s", s.runID)
		h.finishDebugRun(s.runID, s.workflowID)
	}
}

func (h *ExecutionHandler) forwardUpdates(runID string, updates <-chan models.ExecutionUpdate) {
	for update := range updates {
		h.hub.Broadcast(update)
	}
	log.Printf("📡 [API] Update stream closed for run %s", runID)
}

func startBlockArgs(req *ExecuteRequest) []string {
	if req.StartBlockID != "" {
		return []string{req.StartBlockID}
	}
	return nil
}
