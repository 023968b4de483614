package tools

import (
	"context"
	"time"
)

// TimeNowTool reports the current time. Mostly used by function blocks that
// stamp outputs; cached briefly so bursts of blocks see a consistent value.
type TimeNowTool struct{}

func (TimeNowTool) ID() string           { return "time.now" }
func (TimeNowTool) CacheTTLSeconds() int { return 1 }

func (TimeNowTool) Execute(_ context.Context, params map[string]any) (map[string]any, error) {
	now := time.Now().UTC()
	layout := time.RFC3339
	if f, ok := params["format"].(string); ok && f != "" {
		layout = f
	}
	return map[string]any{
		"response":  now.Format(layout),
		"unix":      now.Unix(),
		"unixMilli": now.UnixMilli(),
	}, nil
}
