package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Init installs the global slog logger. Production gets JSON output for log
// aggregation, everything else the readable text handler. LOG_LEVEL overrides
// the default level (info in production, debug otherwise).
func Init() {
	production := strings.EqualFold(os.Getenv("ENVIRONMENT"), "production")

	opts := &slog.HandlerOptions{Level: resolveLevel(os.Getenv("LOG_LEVEL"), production)}
	var handler slog.Handler
	if production {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler).With("service", "blockflow"))
}

func resolveLevel(raw string, production bool) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	if production {
		return slog.LevelInfo
	}
	return slog.LevelDebug
}

// WithRun returns a logger with run context fields attached.
// Use this for all logging within a workflow run.
func WithRun(runID, workflowID string) *slog.Logger {
	return slog.With(
		"run_id", runID,
		"workflow_id", workflowID,
	)
}

// WithBlock returns a logger scoped to a specific block within a run.
func WithBlock(logger *slog.Logger, blockID, blockType string) *slog.Logger {
	return logger.With(
		"block_id", blockID,
		"block_type", blockType,
	)
}
