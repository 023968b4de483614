package tools

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"blockflow/internal/executor"
)

// Runner executes registered tools on behalf of the workflow engine. It is the
// concrete executor.ToolRunner: results of cacheable tools are memoized in an
// expiring in-memory cache keyed by tool id and params.
type Runner struct {
	registry *Registry
	cache    *gocache.Cache
	timeout  time.Duration
}

func NewRunner(registry *Registry, timeout time.Duration) *Runner {
	return &Runner{
		registry: registry,
		cache:    gocache.New(5*time.Minute, 10*time.Minute),
		timeout:  timeout,
	}
}

// ExecuteTool runs one tool call and normalizes the outcome. Tool errors are
// reported in the result, never panicked or propagated as Go errors, so one
// bad call stays contained to its block.
func (r *Runner) ExecuteTool(ctx context.Context, toolID string, params map[string]any) executor.ToolResult {
	started := time.Now()

	tool, err := r.registry.Get(toolID)
	if err != nil {
		return executor.ToolResult{Success: false, Error: err.Error(), DurationMs: time.Since(started).Milliseconds()}
	}

	cacheable, _ := tool.(Cacheable)
	if cacheable != nil && cacheable.CacheTTLSeconds() <= 0 {
		cacheable = nil
	}
	var cacheKey string
	if cacheable != nil {
		cacheKey = resultCacheKey(toolID, params)
		if cached, found := r.cache.Get(cacheKey); found {
			log.Printf("📦 [TOOLS] Cache hit for '%s'", toolID)
			return executor.ToolResult{Success: true, Output: cached.(map[string]any), DurationMs: time.Since(started).Milliseconds()}
		}
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	output, err := tool.Execute(ctx, params)
	duration := time.Since(started).Milliseconds()
	if err != nil {
		return executor.ToolResult{Success: false, Output: output, Error: err.Error(), DurationMs: duration}
	}

	if cacheable != nil {
		ttl := time.Duration(cacheable.CacheTTLSeconds()) * time.Second
		r.cache.Set(cacheKey, output, ttl)
	}
	return executor.ToolResult{Success: true, Output: output, DurationMs: duration}
}

func resultCacheKey(toolID string, params map[string]any) string {
	raw, _ := json.Marshal(params)
	sum := sha256.Sum256(raw)
	return toolID + ":" + hex.EncodeToString(sum[:8])
}
