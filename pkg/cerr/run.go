package cerr

import "errors"

// RunFailure classifies terminal run errors for the event stream.
// Plan and per-tool failures are absorbed upstream; the kinds here are the
// ones a caller can actually observe.
type RunFailureKind string

const (
	PlanGenerationFailure  RunFailureKind = "plan_generation"
	ToolExecutionFailure   RunFailureKind = "tool_execution"
	StreamExecutionFailure RunFailureKind = "stream_execution"
	ConfigurationFailure   RunFailureKind = "configuration"
)

type RunError struct {
	Kind    RunFailureKind
	Message string
	cause   error
}

func NewRunError(kind RunFailureKind, message string, cause error) *RunError {
	return &RunError{Kind: kind, Message: message, cause: cause}
}

func (e *RunError) Error() string {
	if e.cause != nil {
		return string(e.Kind) + ": " + e.Message + ": " + e.cause.Error()
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *RunError) Unwrap() error { return e.cause }

// Severity returns the severity label surfaced in the terminal error event.
func (e *RunError) Severity() string {
	switch e.Kind {
	case PlanGenerationFailure, ToolExecutionFailure:
		return "warning"
	default:
		return "error"
	}
}

// RunErrorOf pulls a RunError out of a chain, wrapping unclassified errors
// as stream failures so callers always receive a classified terminal event.
func RunErrorOf(err error) *RunError {
	var re *RunError
	if errors.As(err, &re) {
		return re
	}
	return NewRunError(StreamExecutionFailure, "agent execution interrupted", err)
}
