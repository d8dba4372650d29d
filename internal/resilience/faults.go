// Package resilience runs operations under per-operation-type circuit
// breakers with bounded retries, timeouts, and an optional fallback.
//
// Errors are tagged with a FaultKind once, where they are produced, and the
// executor decides what to do from the tag alone:
//
//   - Retryable: connectivity faults. Retried and counted by the breaker.
//   - Timeout: the attempt outlived its bound. Treated like Retryable.
//   - NonRetryable: invalid input or contract violations. Returned at once.
//   - Cancellation: the caller withdrew interest. Returned at once.
package resilience

import (
	"context"
	"errors"
	"net"
	"syscall"

	"github.com/JoshuaRamirez/ACS-sub004/internal/domain"
)

// FaultKind is the recovery category of an error.
type FaultKind int

// Fault kinds.
const (
	FaultNonRetryable FaultKind = iota
	FaultRetryable
	FaultCancellation
	FaultTimeout
)

func (k FaultKind) String() string {
	switch k {
	case FaultRetryable:
		return "retryable"
	case FaultCancellation:
		return "cancellation"
	case FaultTimeout:
		return "timeout"
	default:
		return "non_retryable"
	}
}

// countsAsFailure reports whether the fault says something about the health
// of the dependency.
func (k FaultKind) countsAsFailure() bool {
	return k == FaultRetryable || k == FaultTimeout
}

// Fault tags an error with an explicit kind.
type Fault struct {
	Kind FaultKind
	Err  error
}

func (f *Fault) Error() string { return f.Err.Error() }

func (f *Fault) Unwrap() error { return f.Err }

// Transient marks err as retryable. It returns nil for a nil error.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &Fault{Kind: FaultRetryable, Err: err}
}

// Permanent marks err as non-retryable. It returns nil for a nil error.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &Fault{Kind: FaultNonRetryable, Err: err}
}

// Classifier maps an error to its fault kind.
type Classifier func(err error) FaultKind

// ClassifyFault is the default Classifier. Explicit tags win; anything it
// does not recognise is non-retryable.
func ClassifyFault(err error) FaultKind {
	if err == nil {
		return FaultNonRetryable
	}

	var fault *Fault
	if errors.As(err, &fault) {
		return fault.Kind
	}

	var canceled *CanceledError
	if errors.As(err, &canceled) || errors.Is(err, context.Canceled) {
		return FaultCancellation
	}
	var timeout *TimeoutError
	if errors.As(err, &timeout) || errors.Is(err, context.DeadlineExceeded) {
		return FaultTimeout
	}

	var open *CircuitOpenError
	if errors.As(err, &open) || domain.IsDomainError(err) {
		return FaultNonRetryable
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return FaultTimeout
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return FaultRetryable
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return FaultRetryable
	}

	return FaultNonRetryable
}
