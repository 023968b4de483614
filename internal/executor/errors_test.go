package executor

import (
	"errors"
	"testing"
)

func TestExtractErrorMessage(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want string
	}{
		{"error value", errors.New("it broke"), "it broke"},
		{"string value", "plain message", "plain message"},
		{"nil", nil, "Unknown error"},
		{"empty string", "", "Unknown error"},
		{"whitespace", "   ", "Unknown error"},
		{"provider bug passthrough", "undefined (undefined)", "undefined (undefined)"},
		{"other type", 42, "42"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ExtractErrorMessage(tc.in); got != tc.want {
				t.Errorf("ExtractErrorMessage(%v) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestChildWorkflowErrorFormat(t *testing.T) {
	err := childWorkflowError("wf-123", errors.New("deep failure"))
	want := "error in child workflow wf-123: deep failure"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}
