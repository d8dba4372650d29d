package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/JoshuaRamirez/ACS-sub004/internal/clock"
	"github.com/JoshuaRamirez/ACS-sub004/internal/domain"
)

// OperationPolicy overrides the executor defaults for one operation type.
// Zero fields inherit the default.
type OperationPolicy struct {
	Breaker    *CircuitBreakerConfig
	MaxRetries *int
	Timeout    time.Duration
}

// Config holds executor-wide defaults.
type Config struct {
	Breaker    CircuitBreakerConfig
	MaxRetries int
	Timeout    time.Duration
	Backoff    BackoffConfig
	Operations map[string]OperationPolicy
}

// DefaultConfig returns three retries, a 30s per-attempt timeout, and the
// default breaker and backoff.
func DefaultConfig() Config {
	return Config{
		Breaker:    DefaultCircuitBreakerConfig(),
		MaxRetries: 3,
		Timeout:    30 * time.Second,
		Backoff:    DefaultBackoffConfig(),
	}
}

// Validate checks the defaults and every override.
func (c Config) Validate() error {
	var errs []string
	if err := c.Breaker.Validate(); err != nil {
		errs = append(errs, err.Error())
	}
	if c.MaxRetries < 0 {
		errs = append(errs, fmt.Sprintf("max retries must be non-negative, got %d", c.MaxRetries))
	}
	if c.Timeout <= 0 {
		errs = append(errs, fmt.Sprintf("timeout must be positive, got %s", c.Timeout))
	}
	for _, name := range sortedNames(c.Operations) {
		p := c.Operations[name]
		if p.Breaker != nil {
			if err := p.Breaker.Validate(); err != nil {
				errs = append(errs, name+": "+err.Error())
			}
		}
		if p.MaxRetries != nil && *p.MaxRetries < 0 {
			errs = append(errs, fmt.Sprintf("%s: max retries must be non-negative, got %d", name, *p.MaxRetries))
		}
		if p.Timeout < 0 {
			errs = append(errs, fmt.Sprintf("%s: timeout must not be negative, got %s", name, p.Timeout))
		}
	}
	if len(errs) > 0 {
		return domain.ErrValidation("invalid executor config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Option configures an Executor.
type Option func(*Executor)

// WithClock sets the clock used by breakers and backoff waits.
func WithClock(c clock.Clock) Option { return func(e *Executor) { e.clock = c } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(e *Executor) { e.logger = l } }

// WithClassifier replaces ClassifyFault.
func WithClassifier(c Classifier) Option { return func(e *Executor) { e.classify = c } }

// Executor runs operations with recovery. It owns one circuit breaker per
// operation type, created on first use.
type Executor struct {
	cfg      Config
	clock    clock.Clock
	logger   *slog.Logger
	classify Classifier

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

// NewExecutor creates an Executor.
func NewExecutor(cfg Config, opts ...Option) (*Executor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Executor{
		cfg:      cfg,
		clock:    clock.Real(),
		logger:   slog.Default(),
		classify: ClassifyFault,
		breakers: make(map[string]*CircuitBreaker),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "recovery-executor")
	return e, nil
}

// CircuitBreaker returns the breaker for operationType, creating it on first
// access.
func (e *Executor) CircuitBreaker(operationType string) *CircuitBreaker {
	e.mu.Lock()
	defer e.mu.Unlock()
	if b, ok := e.breakers[operationType]; ok {
		return b
	}
	cfg := e.cfg.Breaker
	if p, ok := e.cfg.Operations[operationType]; ok && p.Breaker != nil {
		cfg = *p.Breaker
	}
	// cfg was validated by NewExecutor.
	b, _ := NewCircuitBreaker(operationType, cfg, e.clock)
	e.breakers[operationType] = b
	return b
}

// CircuitBreakerState returns the current state for operationType.
func (e *Executor) CircuitBreakerState(operationType string) State {
	return e.CircuitBreaker(operationType).State()
}

// ResetCircuitBreaker forces the breaker for operationType closed.
func (e *Executor) ResetCircuitBreaker(operationType string) {
	e.CircuitBreaker(operationType).Reset()
	e.logger.Info("circuit breaker reset", "operation_type", operationType)
}

// CircuitBreakers returns snapshots of every breaker created so far, sorted
// by operation type.
func (e *Executor) CircuitBreakers() []BreakerSnapshot {
	e.mu.Lock()
	names := sortedNames(e.breakers)
	breakers := make([]*CircuitBreaker, len(names))
	for i, n := range names {
		breakers[i] = e.breakers[n]
	}
	e.mu.Unlock()

	out := make([]BreakerSnapshot, len(breakers))
	for i, b := range breakers {
		out[i] = b.Snapshot()
	}
	return out
}

// Report describes how a call went. Pass one with WithReport to observe it.
type Report struct {
	// Attempts counts invocations of the operation, plus one when the call
	// was canceled before the first invocation.
	Attempts     int
	Exhausted    bool
	CircuitOpen  bool
	FallbackUsed bool
	LastFault    FaultKind
	LastError    error
}

// Recoverable reports whether the call ended because recovery ran out or the
// breaker refused it, as opposed to a deterministic or canceled failure.
func (r *Report) Recoverable() bool {
	return r.Exhausted || r.CircuitOpen
}

type callConfig struct {
	maxRetries int
	timeout    time.Duration
	report     *Report
}

// CallOption overrides defaults for a single call.
type CallOption func(*callConfig)

// WithMaxRetries sets the number of retries after the first attempt.
func WithMaxRetries(n int) CallOption { return func(c *callConfig) { c.maxRetries = max(n, 0) } }

// WithTimeout bounds each attempt.
func WithTimeout(d time.Duration) CallOption {
	return func(c *callConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithReport fills r as the call proceeds.
func WithReport(r *Report) CallOption { return func(c *callConfig) { c.report = r } }

func (e *Executor) callConfig(operationType string, opts []CallOption) callConfig {
	cc := callConfig{maxRetries: e.cfg.MaxRetries, timeout: e.cfg.Timeout}
	if p, ok := e.cfg.Operations[operationType]; ok {
		if p.MaxRetries != nil {
			cc.maxRetries = *p.MaxRetries
		}
		if p.Timeout > 0 {
			cc.timeout = p.Timeout
		}
	}
	for _, opt := range opts {
		opt(&cc)
	}
	if cc.report == nil {
		cc.report = &Report{}
	}
	*cc.report = Report{}
	return cc
}

// Execute runs op under the breaker for operationType, retrying retryable
// and timeout faults up to the configured retry count. When retries run out
// or the breaker rejects the call, fallback (if non-nil) receives the last
// error and its result is returned as is. Non-retryable and cancellation
// faults are returned immediately and never reach the fallback.
func Execute[T any](
	ctx context.Context,
	e *Executor,
	operationType string,
	op func(context.Context) (T, error),
	fallback func(context.Context, error) (T, error),
	opts ...CallOption,
) (T, error) {
	var zero T
	cc := e.callConfig(operationType, opts)
	report := cc.report
	breaker := e.CircuitBreaker(operationType)
	wait := e.cfg.Backoff.newBackOff()

	finish := func(err error) (T, error) {
		report.LastError = err
		if fallback == nil {
			return zero, err
		}
		report.FallbackUsed = true
		e.logger.Info("invoking fallback", "operation_type", operationType, "error", err)
		return fallback(ctx, err)
	}

	maxAttempts := cc.maxRetries + 1
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if report.Attempts == 0 {
				report.Attempts = 1
			}
			report.LastFault = FaultCancellation
			report.LastError = &CanceledError{OperationType: operationType, Cause: context.Cause(ctx)}
			return zero, report.LastError
		}

		if err := breaker.Allow(); err != nil {
			report.CircuitOpen = true
			report.LastFault = FaultNonRetryable
			e.logger.Warn("circuit breaker rejected call", "operation_type", operationType, "attempt", attempt)
			return finish(err)
		}

		report.Attempts = attempt
		v, err := runAttempt(ctx, operationType, cc.timeout, op)
		if err == nil {
			breaker.RecordSuccess()
			report.LastError = nil
			return v, nil
		}

		kind := e.classify(err)
		report.LastFault = kind
		report.LastError = err
		if !kind.countsAsFailure() {
			breaker.Release()
			if kind != FaultCancellation {
				e.logger.Debug("operation failed permanently",
					"operation_type", operationType, "attempt", attempt, "error", err)
			}
			return zero, err
		}

		e.logger.Warn("operation attempt failed",
			"operation_type", operationType, "attempt", attempt, "fault", kind.String(), "error", err)
		if breaker.RecordFailure() == StateOpen {
			e.logger.Warn("circuit breaker open",
				"operation_type", operationType, "failure_count", breaker.FailureCount())
		}

		if attempt == maxAttempts {
			break
		}
		d := wait.NextBackOff()
		if d == backoff.Stop {
			break
		}
		if serr := sleep(ctx, e.clock, d); serr != nil {
			report.LastFault = FaultCancellation
			report.LastError = &CanceledError{OperationType: operationType, Cause: context.Cause(ctx)}
			return zero, report.LastError
		}
	}

	report.Exhausted = true
	return finish(report.LastError)
}

// Run is Execute for operations without a result.
func (e *Executor) Run(
	ctx context.Context,
	operationType string,
	op func(context.Context) error,
	fallback func(context.Context, error) error,
	opts ...CallOption,
) error {
	var fb func(context.Context, error) (struct{}, error)
	if fallback != nil {
		fb = func(ctx context.Context, err error) (struct{}, error) {
			return struct{}{}, fallback(ctx, err)
		}
	}
	_, err := Execute(ctx, e, operationType, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	}, fb, opts...)
	return err
}

type attemptResult[T any] struct {
	value T
	err   error
}

// runAttempt invokes op once, bounded by timeout and the caller's context.
// The caller's cancellation surfaces as *CanceledError and the bound as
// *TimeoutError. A panic in op becomes a non-retryable error.
func runAttempt[T any](
	ctx context.Context,
	operationType string,
	timeout time.Duration,
	op func(context.Context) (T, error),
) (T, error) {
	var zero T
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan attemptResult[T], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- attemptResult[T]{err: Permanent(fmt.Errorf("operation %s panicked: %v", operationType, r))}
			}
		}()
		v, err := op(attemptCtx)
		done <- attemptResult[T]{value: v, err: err}
	}()

	finish := func(r attemptResult[T]) (T, error) {
		if r.err != nil {
			return zero, interpretAttemptError(ctx, attemptCtx, operationType, timeout, r.err)
		}
		return r.value, nil
	}
	select {
	case r := <-done:
		return finish(r)
	case <-attemptCtx.Done():
		// A result that raced the deadline wins; it may have committed.
		select {
		case r := <-done:
			if r.err == nil {
				return r.value, nil
			}
		default:
		}
		return zero, interpretAttemptError(ctx, attemptCtx, operationType, timeout, attemptCtx.Err())
	}
}

func interpretAttemptError(
	ctx, attemptCtx context.Context,
	operationType string,
	timeout time.Duration,
	err error,
) error {
	switch {
	case ctx.Err() != nil:
		return &CanceledError{OperationType: operationType, Cause: context.Cause(ctx)}
	case attemptCtx.Err() != nil && errors.Is(err, context.DeadlineExceeded):
		return &TimeoutError{OperationType: operationType, Timeout: timeout}
	default:
		return err
	}
}

func sortedNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}
