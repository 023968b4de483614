package runlock

import (
	"log"
	"sync"
	"time"
)

// Tracker gates run admission during shutdown. Each run holds a slot between
// Acquire and Release; Drain closes admission and waits for the slot count to
// reach zero.
type Tracker struct {
	mu       sync.Mutex
	active   int
	draining bool
	idle     chan struct{} // non-nil only while a drain is waiting
}

func NewTracker() *Tracker {
	return &Tracker{}
}

// Acquire claims a run slot. Returns false once draining has begun.
func (t *Tracker) Acquire() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.draining {
		return false
	}
	t.active++
	return true
}

// Release returns a run slot and, when a drain is waiting on the last slot,
// signals it.
func (t *Tracker) Release() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active > 0 {
		t.active--
	}
	if t.active == 0 && t.idle != nil {
		close(t.idle)
		t.idle = nil
	}
}

// ActiveRuns reports the number of slots currently held.
func (t *Tracker) ActiveRuns() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// Drain closes admission and waits up to timeout for held slots to release.
// Returns true when the tracker went idle, false on timeout.
func (t *Tracker) Drain(timeout time.Duration) bool {
	t.mu.Lock()
	t.draining = true
	if t.active == 0 {
		t.mu.Unlock()
		log.Println("✅ [TRACKER] No active runs, drain complete")
		return true
	}
	if t.idle == nil {
		t.idle = make(chan struct{})
	}
	idle := t.idle
	remaining := t.active
	t.mu.Unlock()

	log.Printf("🔄 [TRACKER] Draining %d active run(s) (timeout: %s)...", remaining, timeout)

	select {
	case <-idle:
		log.Println("✅ [TRACKER] All active runs completed")
		return true
	case <-time.After(timeout):
		log.Printf("⚠️ [TRACKER] Drain timeout reached with %d run(s) still active", t.ActiveRuns())
		return false
	}
}

// IsDraining reports whether admission is closed.
func (t *Tracker) IsDraining() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.draining
}
