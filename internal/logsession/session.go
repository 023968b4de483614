package logsession

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"blockflow/internal/executor"
	"blockflow/internal/logging"
	"blockflow/internal/models"
)

// Session is one recorded run lifecycle: started, then completed or failed.
type Session struct {
	ID         string                  `json:"id"`
	RunID      string                  `json:"runId"`
	WorkflowID string                  `json:"workflowId"`
	Trigger    string                  `json:"trigger,omitempty"`
	StartedAt  time.Time               `json:"startedAt"`
	EndedAt    time.Time               `json:"endedAt,omitempty"`
	Status     string                  `json:"status"` // running, completed, failed
	Error      string                  `json:"error,omitempty"`
	Result     *models.ExecutionResult `json:"result,omitempty"`
}

// Store records run sessions in memory with a bounded history. It implements
// executor.LogSession; every method is best-effort and never fails the run.
type Store struct {
	mu       sync.RWMutex
	byRun    map[string]*Session
	order    []string
	capacity int
}

func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = 500
	}
	return &Store{
		byRun:    make(map[string]*Session),
		capacity: capacity,
	}
}

// SafeStart implements executor.LogSession.
func (s *Store) SafeStart(meta executor.SessionMeta) {
	session := &Session{
		ID:         uuid.NewString(),
		RunID:      meta.RunID,
		WorkflowID: meta.WorkflowID,
		Trigger:    meta.TriggerType,
		StartedAt:  time.Now().UTC(),
		Status:     "running",
	}

	s.mu.Lock()
	if _, exists := s.byRun[meta.RunID]; !exists {
		s.byRun[meta.RunID] = session
		s.order = append(s.order, meta.RunID)
		s.evictLocked()
	}
	s.mu.Unlock()

	logging.WithRun(meta.RunID, meta.WorkflowID).Info("run started", "session_id", session.ID)
}

// SafeComplete implements executor.LogSession.
func (s *Store) SafeComplete(meta executor.SessionMeta, result *models.ExecutionResult) {
	s.finish(meta, "completed", "", result)
	logging.WithRun(meta.RunID, meta.WorkflowID).Info("run completed",
		"duration_ms", result.Metadata.DurationMs,
		"blocks", len(result.Logs),
	)
}

// SafeCompleteWithError implements executor.LogSession.
func (s *Store) SafeCompleteWithError(meta executor.SessionMeta, err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	s.finish(meta, "failed", msg, nil)
	logging.WithRun(meta.RunID, meta.WorkflowID).Error("run failed", "error", msg)
}

// Get returns the session for a run id.
func (s *Store) Get(runID string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.byRun[runID]
	return session, ok
}

// Recent returns up to n sessions, newest first.
func (s *Store) Recent(n int) []*Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n <= 0 || n > len(s.order) {
		n = len(s.order)
	}
	out := make([]*Session, 0, n)
	for i := len(s.order) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.byRun[s.order[i]])
	}
	return out
}

func (s *Store) finish(meta executor.SessionMeta, status, errMsg string, result *models.ExecutionResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.byRun[meta.RunID]
	if !ok {
		slog.Warn("completing unknown run session", "run_id", meta.RunID)
		return
	}
	session.EndedAt = time.Now().UTC()
	session.Status = status
	session.Error = errMsg
	session.Result = result
}

func (s *Store) evictLocked() {
	for len(s.order) > s.capacity {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.byRun, oldest)
	}
}
