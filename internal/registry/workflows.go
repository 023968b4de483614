package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"blockflow/internal/models"
)

// WorkflowStore keeps registered workflow definitions in memory. It backs the
// CRUD endpoints, the schedule scanner, and the executor's child-workflow
// loader.
type WorkflowStore struct {
	mu        sync.RWMutex
	workflows map[string]*models.Workflow
}

func NewWorkflowStore() *WorkflowStore {
	return &WorkflowStore{workflows: make(map[string]*models.Workflow)}
}

// Save stores or replaces a workflow definition.
func (s *WorkflowStore) Save(wf *models.Workflow) error {
	if wf == nil || wf.ID == "" {
		return fmt.Errorf("workflow requires an id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	if existing, ok := s.workflows[wf.ID]; ok {
		wf.CreatedAt = existing.CreatedAt
		wf.Version = existing.Version + 1
	} else {
		wf.CreatedAt = now
		wf.Version = 1
	}
	wf.UpdatedAt = now
	s.workflows[wf.ID] = wf
	return nil
}

// Get returns the workflow with the given id.
func (s *WorkflowStore) Get(id string) (*models.Workflow, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wf, ok := s.workflows[id]
	return wf, ok
}

// Delete removes a workflow. Returns false if it did not exist.
func (s *WorkflowStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workflows[id]; !ok {
		return false
	}
	delete(s.workflows, id)
	return true
}

// List returns all workflows ordered by id.
func (s *WorkflowStore) List() []*models.Workflow {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Workflow, 0, len(s.workflows))
	for _, wf := range s.workflows {
		out = append(out, wf)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// LoadWorkflow implements executor.WorkflowLoader.
func (s *WorkflowStore) LoadWorkflow(_ context.Context, id string) (*models.Workflow, error) {
	wf, ok := s.Get(id)
	if !ok {
		return nil, fmt.Errorf("workflow %s not found", id)
	}
	return wf, nil
}
