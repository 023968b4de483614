package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Tool is one executable capability addressable from workflow blocks.
type Tool interface {
	ID() string
	Execute(ctx context.Context, params map[string]any) (map[string]any, error)
}

// Cacheable marks tools whose results may be served from the result cache.
// Only side-effect-free tools should implement it.
type Cacheable interface {
	CacheTTLSeconds() int
}

// Registry is the in-process tool catalog. Registration happens at startup;
// lookups are concurrent.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. Re-registering an id replaces the previous tool.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.ID()] = t
}

// Get returns the tool with the given id.
func (r *Registry) Get(id string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[id]
	if !ok {
		return nil, fmt.Errorf("unknown tool: %s", id)
	}
	return t, nil
}

// IDs lists the registered tool ids, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.tools))
	for id := range r.tools {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
