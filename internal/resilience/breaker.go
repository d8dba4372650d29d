package resilience

import (
	"sync"
	"time"

	"github.com/JoshuaRamirez/ACS-sub004/internal/clock"
	"github.com/JoshuaRamirez/ACS-sub004/internal/domain"
)

// State is a circuit breaker state.
type State int

// Breaker states.
const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures when a breaker opens and how long it stays
// open before admitting a trial call.
type CircuitBreakerConfig struct {
	FailureThreshold   int           `yaml:"failure_threshold" json:"failure_threshold"`
	RecoveryTimeWindow time.Duration `yaml:"recovery_window" json:"recovery_window"`
}

// DefaultCircuitBreakerConfig returns the stock thresholds.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{FailureThreshold: 5, RecoveryTimeWindow: 30 * time.Second}
}

// Validate checks the configuration.
func (c CircuitBreakerConfig) Validate() error {
	if c.FailureThreshold < 1 {
		return domain.ErrValidation("failure threshold must be at least 1, got %d", c.FailureThreshold)
	}
	if c.RecoveryTimeWindow <= 0 {
		return domain.ErrValidation("recovery time window must be positive, got %s", c.RecoveryTimeWindow)
	}
	return nil
}

// BreakerSnapshot is a point-in-time copy of a breaker's state.
type BreakerSnapshot struct {
	OperationType   string               `json:"operation_type"`
	State           State                `json:"-"`
	StateName       string               `json:"state"`
	FailureCount    int                  `json:"failure_count"`
	LastFailureTime time.Time            `json:"last_failure_time,omitzero"`
	Config          CircuitBreakerConfig `json:"config"`
}

// CircuitBreaker tracks the health of one operation type. All methods are
// safe for concurrent use. The Open to HalfOpen transition is computed from
// the stored failure time on every read; there is no background timer.
type CircuitBreaker struct {
	operationType string
	cfg           CircuitBreakerConfig
	clock         clock.Clock

	mu              sync.Mutex
	state           State
	failureCount    int
	lastFailureTime time.Time
	trialInFlight   bool
}

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker(operationType string, cfg CircuitBreakerConfig, clk clock.Clock) (*CircuitBreaker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &CircuitBreaker{operationType: operationType, cfg: cfg, clock: clk}, nil
}

// OperationType returns the operation type the breaker guards.
func (b *CircuitBreaker) OperationType() string { return b.operationType }

// Config returns the breaker's configuration.
func (b *CircuitBreaker) Config() CircuitBreakerConfig { return b.cfg }

// State returns the current state, moving Open to HalfOpen once the recovery
// window has elapsed.
func (b *CircuitBreaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentLocked()
}

// FailureCount returns the number of failures recorded since the last reset.
func (b *CircuitBreaker) FailureCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failureCount
}

// LastFailureTime returns when the most recent failure was recorded.
func (b *CircuitBreaker) LastFailureTime() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastFailureTime
}

func (b *CircuitBreaker) currentLocked() State {
	if b.state == StateOpen && b.clock.Now().Sub(b.lastFailureTime) >= b.cfg.RecoveryTimeWindow {
		b.state = StateHalfOpen
		b.trialInFlight = false
	}
	return b.state
}

// Allow admits or rejects a call. Closed admits every call; Open rejects
// every call; HalfOpen admits exactly one trial until that trial reports
// back through RecordSuccess, RecordFailure, or Release.
func (b *CircuitBreaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.currentLocked() {
	case StateClosed:
		return nil
	case StateHalfOpen:
		if b.trialInFlight {
			return &CircuitOpenError{OperationType: b.operationType}
		}
		b.trialInFlight = true
		return nil
	default:
		return &CircuitOpenError{OperationType: b.operationType}
	}
}

// RecordSuccess resets the failure count. A HalfOpen breaker closes. A
// success that lands while the breaker is Open came from a call admitted
// before it tripped and leaves the state alone.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.currentLocked() {
	case StateClosed, StateHalfOpen:
		b.state = StateClosed
		b.failureCount = 0
		b.trialInFlight = false
	}
}

// RecordFailure counts a failure and returns the resulting state. Closed
// opens at the threshold; a single HalfOpen failure reopens immediately.
func (b *CircuitBreaker) RecordFailure() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	prev := b.currentLocked()
	b.failureCount++
	b.lastFailureTime = b.clock.Now()
	switch prev {
	case StateClosed:
		if b.failureCount >= b.cfg.FailureThreshold {
			b.state = StateOpen
		}
	case StateHalfOpen:
		b.state = StateOpen
		b.trialInFlight = false
	}
	return b.state
}

// Release frees a HalfOpen trial slot without changing state. It is used when
// the trial ended in a fault the breaker does not count.
func (b *CircuitBreaker) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.trialInFlight = false
}

// Reset forces the breaker closed with a zero failure count.
func (b *CircuitBreaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failureCount = 0
	b.lastFailureTime = time.Time{}
	b.trialInFlight = false
}

// Snapshot returns a consistent copy of the breaker's state.
func (b *CircuitBreaker) Snapshot() BreakerSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.currentLocked()
	return BreakerSnapshot{
		OperationType:   b.operationType,
		State:           s,
		StateName:       s.String(),
		FailureCount:    b.failureCount,
		LastFailureTime: b.lastFailureTime,
		Config:          b.cfg,
	}
}
