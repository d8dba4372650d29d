package resilience

import (
	"context"
	"fmt"
	"time"
)

// CircuitOpenError is returned without invoking the operation when its
// breaker is rejecting calls.
type CircuitOpenError struct {
	OperationType string
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit breaker open for %s", e.OperationType)
}

// TimeoutError reports an attempt that did not finish within its bound.
type TimeoutError struct {
	OperationType string
	Timeout       time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("operation %s timed out after %s", e.OperationType, e.Timeout)
}

func (e *TimeoutError) Unwrap() error { return context.DeadlineExceeded }

// CanceledError reports that the caller's context ended the call.
type CanceledError struct {
	OperationType string
	Cause         error
}

func (e *CanceledError) Error() string {
	return fmt.Sprintf("operation %s canceled: %v", e.OperationType, e.Cause)
}

func (e *CanceledError) Unwrap() error { return e.Cause }
