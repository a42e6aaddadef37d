package pushgateway

import (
	"errors"
	"fmt"
)

// RuntimeError marks a failure of one stage of a run: credentials,
// configuration, tempest, decoding or the push.
type RuntimeError struct {
	Stage string
	Err   error
}

func (e *RuntimeError) Error() string {
	if e.Stage == "" {
		return fmt.Sprintf("runtime error: %v", e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// NewRuntimeError creates a new RuntimeError
func NewRuntimeError(stage string, err error) *RuntimeError {
	return &RuntimeError{Stage: stage, Err: err}
}

// IsRuntimeError checks if the error is or wraps a RuntimeError
func IsRuntimeError(err error) bool {
	var runtimeErr *RuntimeError
	return err != nil && errors.As(err, &runtimeErr)
}
