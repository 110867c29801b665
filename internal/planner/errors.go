package planner

import (
	"errors"
	"fmt"
)

// ErrNoCandidates is returned when no place matches the request.
var ErrNoCandidates = errors.New("no candidate places match the request")

// InvalidRequestError reports a request the caller has to correct.
type InvalidRequestError struct {
	Reason string
}

func (e *InvalidRequestError) Error() string {
	return "invalid request: " + e.Reason
}

func invalid(format string, args ...any) error {
	return &InvalidRequestError{Reason: fmt.Sprintf(format, args...)}
}

// DraftUnparseableError is returned when every draft attempt came back in a
// shape that could not be read.
type DraftUnparseableError struct {
	Attempts int
	Err      error
}

func (e *DraftUnparseableError) Error() string {
	return fmt.Sprintf("draft unparseable after %d attempts: %v", e.Attempts, e.Err)
}

func (e *DraftUnparseableError) Unwrap() error { return e.Err }

// StageError wraps a failure with the pipeline stage it happened in.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
