package jobs

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"blockflow/internal/executor"
	"blockflow/internal/models"
	"blockflow/internal/registry"
	"blockflow/internal/runlock"
)

// Scheduler runs workflows with schedule-trigger blocks on their cron specs.
// It re-syncs against the workflow store every minute so saved edits take
// effect without a restart.
type Scheduler struct {
	store   *registry.WorkflowStore
	collab  executor.Collaborators
	locks   *runlock.Manager
	tracker *runlock.Tracker

	cron    *cron.Cron
	mu      sync.Mutex
	entries map[string]cron.EntryID // workflowID:blockID → entry
	stop    chan struct{}
}

func NewScheduler(store *registry.WorkflowStore, collab executor.Collaborators, locks *runlock.Manager, tracker *runlock.Tracker) *Scheduler {
	return &Scheduler{
		store:   store,
		collab:  collab,
		locks:   locks,
		tracker: tracker,
		cron:    cron.New(),
		entries: make(map[string]cron.EntryID),
		stop:    make(chan struct{}),
	}
}

// Start begins cron dispatch and the periodic store re-sync.
func (s *Scheduler) Start() {
	s.sync()
	s.cron.Start()
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.sync()
			case <-s.stop:
				return
			}
		}
	}()
	log.Println("⏰ [SCHEDULER] Started")
}

// Stop halts dispatch. Runs already started keep going; the tracker drains them.
func (s *Scheduler) Stop() {
	close(s.stop)
	<-s.cron.Stop().Done()
	log.Println("⏰ [SCHEDULER] Stopped")
}

// sync reconciles cron entries with the schedule-trigger blocks in the store.
func (s *Scheduler) sync() {
	s.mu.Lock()
	defer s.mu.Unlock()

	wanted := make(map[string]bool)
	for _, wf := range s.store.List() {
		for _, block := range wf.Blocks {
			if !block.Enabled || block.Metadata.ID != models.BlockTypeScheduleTrigger {
				continue
			}
			spec, _ := block.Config.Params["cron"].(string)
			if spec == "" {
				continue
			}
			key := wf.ID + ":" + block.ID
			wanted[key] = true
			if _, exists := s.entries[key]; exists {
				continue
			}

			workflowID, blockID := wf.ID, block.ID
			entryID, err := s.cron.AddFunc(spec, func() {
				s.fire(workflowID, blockID)
			})
			if err != nil {
				log.Printf("⚠️ [SCHEDULER] Invalid cron %q on %s: %v", spec, key, err)
				continue
			}
			s.entries[key] = entryID
			log.Printf("⏰ [SCHEDULER] Registered %s (%s)", key, spec)
		}
	}

	for key, entryID := range s.entries {
		if !wanted[key] {
			s.cron.Remove(entryID)
			delete(s.entries, key)
			log.Printf("⏰ [SCHEDULER] Removed %s", key)
		}
	}
}

// fire executes one scheduled workflow run.
func (s *Scheduler) fire(workflowID, blockID string) {
	if !s.tracker.Acquire() {
		log.Printf("⚠️ [SCHEDULER] Skipping %s, server is draining", workflowID)
		return
	}
	defer s.tracker.Release()

	wf, ok := s.store.Get(workflowID)
	if !ok {
		return
	}

	ex, err := executor.NewExecutorFromOptions(executor.Options{
		Workflow:          wf,
		WorkflowInput:     map[string]any{"scheduledAt": time.Now().UTC().Format(time.RFC3339)},
		WorkflowVariables: wf.VariableValues(),
		TriggerType:       "schedule",
	}, s.collab)
	if err != nil {
		log.Printf("❌ [SCHEDULER] Workflow %s failed validation: %v", workflowID, err)
		return
	}

	runID := uuid.NewString()
	ctx := context.Background()
	if err := s.locks.Register(ctx, runID, workflowID, ex); err != nil {
		log.Printf("⚠️ [SCHEDULER] Skipping %s: %v", workflowID, err)
		return
	}
	defer s.locks.Unregister(ctx, runID, workflowID)

	outcome := ex.Execute(ctx, runID, blockID)
	if result, ok := outcome.(*models.ExecutionResult); ok && !result.Success {
		log.Printf("❌ [SCHEDULER] Run %s of %s failed: %s", runID, workflowID, result.Error)
	}
}
