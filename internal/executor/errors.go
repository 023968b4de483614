package executor

import (
	"fmt"
	"strings"
)

// CancelledErrorMessage is the fixed sentinel reported when a run is
// cancelled. Cancellation is a distinct terminal outcome, not an error class.
const CancelledErrorMessage = "Workflow execution was cancelled"

// ExtractErrorMessage normalizes any failure value (error, panic payload,
// tool-reported string) to a plain message for block state and logs.
func ExtractErrorMessage(v any) string {
	var msg string
	switch e := v.(type) {
	case nil:
		return "Unknown error"
	case error:
		msg = e.Error()
	case string:
		msg = e
	default:
		msg = fmt.Sprintf("%v", e)
	}

	// A known upstream provider bug produces the literal message
	// "undefined (undefined)". It is passed through untouched so callers can
	// still match on it.
	if msg == "undefined (undefined)" {
		return msg
	}

	if strings.TrimSpace(msg) == "" {
		return "Unknown error"
	}
	return msg
}

// childWorkflowError wraps a nested run's failure so the parent's error string
// is identifiable as originating from a child workflow.
func childWorkflowError(workflowID string, cause any) error {
	return fmt.Errorf("error in child workflow %s: %s", workflowID, ExtractErrorMessage(cause))
}
