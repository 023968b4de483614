package models

import (
	"io"
	"time"
)

// BlockState is the recorded outcome of one block execution within a run.
// Written exactly once, by the block that just ran.
type BlockState struct {
	Output          map[string]any `json:"output"`
	Executed        bool           `json:"executed"`
	ExecutionTimeMs int64          `json:"executionTimeMs"`
	Error           string         `json:"error,omitempty"`
}

// HasError reports whether the block's recorded output carries an error.
func (s *BlockState) HasError() bool {
	return s != nil && s.Error != ""
}

// BlockLog is one entry in the per-run execution trace. Entries are appended
// in completion order, which is the order billing and tracing consume them in.
type BlockLog struct {
	BlockID    string         `json:"blockId"`
	BlockName  string         `json:"blockName,omitempty"`
	BlockType  string         `json:"blockType"`
	StartedAt  time.Time      `json:"startedAt"`
	EndedAt    time.Time      `json:"endedAt"`
	DurationMs int64          `json:"durationMs"`
	Success    bool           `json:"success"`
	Output     map[string]any `json:"output,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// ResultMetadata carries timing and, in debug mode, the blocks eligible for
// the next ContinueExecution step.
type ResultMetadata struct {
	DurationMs    int64     `json:"duration"`
	StartedAt     time.Time `json:"startTime"`
	EndedAt       time.Time `json:"endTime"`
	PendingBlocks []string  `json:"pendingBlocks,omitempty"`
}

// ExecutionResult is the terminal value of a workflow run.
type ExecutionResult struct {
	Success  bool           `json:"success"`
	Output   map[string]any `json:"output"`
	Error    string         `json:"error,omitempty"`
	Logs     []BlockLog     `json:"logs"`
	Metadata ResultMetadata `json:"metadata"`
}

// StreamingExecution pairs an incremental output stream with the final result
// of the run producing it. The result becomes available via Wait once the
// stream has been closed.
type StreamingExecution struct {
	Stream io.ReadCloser
	done   chan *ExecutionResult
}

// NewStreamingExecution wraps a live stream. The producer must call Complete
// exactly once when the underlying run finishes.
func NewStreamingExecution(stream io.ReadCloser) *StreamingExecution {
	return &StreamingExecution{
		Stream: stream,
		done:   make(chan *ExecutionResult, 1),
	}
}

// Complete publishes the final result of the streamed run.
func (s *StreamingExecution) Complete(result *ExecutionResult) {
	s.done <- result
	close(s.done)
}

// Wait blocks until the streamed run has finished and returns its result.
func (s *StreamingExecution) Wait() *ExecutionResult {
	return <-s.done
}

// ExecutionOutcome is the return type of Executor.Execute: either a plain
// *ExecutionResult or a *StreamingExecution. Callers discriminate with a type
// switch.
type ExecutionOutcome interface {
	executionOutcome()
}

func (*ExecutionResult) executionOutcome()    {}
func (*StreamingExecution) executionOutcome() {}

// ExecutionUpdate is a status event pushed to observers (websocket clients)
// while a run is in flight.
type ExecutionUpdate struct {
	Type    string         `json:"type"`
	RunID   string         `json:"runId,omitempty"`
	BlockID string         `json:"blockId,omitempty"`
	Status  string         `json:"status,omitempty"`
	Output  map[string]any `json:"output,omitempty"`
	Error   string         `json:"error,omitempty"`
}
