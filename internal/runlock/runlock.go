package runlock

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"blockflow/internal/executor"
)

// Manager tracks live executors by run id so the cancel and debug endpoints
// can reach them, and optionally holds a distributed lock per workflow in
// Redis so two instances never run the same workflow concurrently.
type Manager struct {
	mu      sync.RWMutex
	active  map[string]*executor.Executor // run id → executor
	redis   *redis.Client
	lockTTL time.Duration
}

func NewManager(redisClient *redis.Client, lockTTL time.Duration) *Manager {
	return &Manager{
		active:  make(map[string]*executor.Executor),
		redis:   redisClient,
		lockTTL: lockTTL,
	}
}

// Register claims the run id and, when Redis is configured, the per-workflow
// lock. Returns an error if the workflow is already locked elsewhere.
func (m *Manager) Register(ctx context.Context, runID, workflowID string, ex *executor.Executor) error {
	if m.redis != nil {
		key := lockKey(workflowID)
		acquired, err := m.redis.SetNX(ctx, key, runID, m.lockTTL).Result()
		if err != nil {
			// Redis being down never blocks executions.
			log.Printf("⚠️ [RUNLOCK] Redis unavailable, proceeding without lock: %v", err)
		} else if !acquired {
			holder, _ := m.redis.Get(ctx, key).Result()
			return fmt.Errorf("workflow %s is already running (run %s)", workflowID, holder)
		}
	}

	m.mu.Lock()
	m.active[runID] = ex
	m.mu.Unlock()
	return nil
}

// Unregister releases the run id and its workflow lock.
func (m *Manager) Unregister(ctx context.Context, runID, workflowID string) {
	m.mu.Lock()
	delete(m.active, runID)
	m.mu.Unlock()

	if m.redis != nil {
		key := lockKey(workflowID)
		// Only the lock holder may release it.
		if holder, err := m.redis.Get(ctx, key).Result(); err == nil && holder == runID {
			if err := m.redis.Del(ctx, key).Err(); err != nil {
				log.Printf("⚠️ [RUNLOCK] Failed to release lock for workflow %s: %v", workflowID, err)
			}
		}
	}
}

// Get returns the live executor for a run id, if the run is still active.
func (m *Manager) Get(runID string) (*executor.Executor, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ex, ok := m.active[runID]
	return ex, ok
}

// Cancel requests cancellation of an active run. Returns false when the run
// is not active on this instance.
func (m *Manager) Cancel(runID string) bool {
	ex, ok := m.Get(runID)
	if !ok {
		return false
	}
	ex.Cancel()
	return true
}

// ActiveCount reports the number of runs live on this instance.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.active)
}

func lockKey(workflowID string) string {
	return "blockflow:runlock:" + workflowID
}
