package resilience

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JoshuaRamirez/ACS-sub004/internal/clock"
	"github.com/JoshuaRamirez/ACS-sub004/internal/domain"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestBreaker(t *testing.T, threshold int, window time.Duration) (*CircuitBreaker, *clock.FakeClock) {
	t.Helper()
	clk := clock.Fake(epoch)
	b, err := NewCircuitBreaker("CreateUser", CircuitBreakerConfig{
		FailureThreshold:   threshold,
		RecoveryTimeWindow: window,
	}, clk)
	require.NoError(t, err)
	return b, clk
}

func TestCircuitBreakerConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     CircuitBreakerConfig
		wantErr bool
	}{
		{"default", DefaultCircuitBreakerConfig(), false},
		{"threshold one", CircuitBreakerConfig{FailureThreshold: 1, RecoveryTimeWindow: time.Second}, false},
		{"zero threshold", CircuitBreakerConfig{FailureThreshold: 0, RecoveryTimeWindow: time.Second}, true},
		{"zero window", CircuitBreakerConfig{FailureThreshold: 3}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				var verr *domain.ValidationError
				assert.ErrorAs(t, err, &verr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestBreaker_OpensAtThreshold(t *testing.T) {
	for _, k := range []int{1, 2, 5, 10} {
		b, _ := newTestBreaker(t, k, time.Minute)
		for i := 1; i < k; i++ {
			assert.Equal(t, StateClosed, b.RecordFailure(), "threshold %d after %d failures", k, i)
		}
		assert.Equal(t, StateOpen, b.RecordFailure(), "threshold %d", k)
		assert.Equal(t, StateOpen, b.State())
		assert.Equal(t, k, b.FailureCount())
		assert.Equal(t, epoch, b.LastFailureTime())
	}
}

func TestBreaker_SuccessResetsCount(t *testing.T) {
	for _, k := range []int{1, 3, 7} {
		b, _ := newTestBreaker(t, k, time.Minute)
		for range k - 1 {
			b.RecordFailure()
		}
		b.RecordSuccess()
		assert.Equal(t, 0, b.FailureCount())
		assert.Equal(t, StateClosed, b.State())
	}
}

func TestBreaker_OpenRejects(t *testing.T) {
	b, _ := newTestBreaker(t, 1, time.Minute)
	b.RecordFailure()

	err := b.Allow()
	var open *CircuitOpenError
	require.ErrorAs(t, err, &open)
	assert.Equal(t, "CreateUser", open.OperationType)
}

func TestBreaker_LazyHalfOpen(t *testing.T) {
	b, clk := newTestBreaker(t, 2, 30*time.Second)
	b.RecordFailure()
	b.RecordFailure()

	clk.Advance(29 * time.Second)
	assert.Equal(t, StateOpen, b.State())

	clk.Advance(time.Second)
	assert.Equal(t, StateHalfOpen, b.State())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b, clk := newTestBreaker(t, 3, 10*time.Second)
	for range 3 {
		b.RecordFailure()
	}
	clk.Advance(10 * time.Second)
	require.NoError(t, b.Allow())

	assert.Equal(t, StateOpen, b.RecordFailure())
	assert.Equal(t, 4, b.FailureCount())
	assert.Equal(t, epoch.Add(10*time.Second), b.LastFailureTime())

	clk.Advance(9 * time.Second)
	assert.Equal(t, StateOpen, b.State())
	clk.Advance(time.Second)
	assert.Equal(t, StateHalfOpen, b.State())
}

func TestBreaker_HalfOpenSuccessCloses(t *testing.T) {
	b, clk := newTestBreaker(t, 2, time.Second)
	b.RecordFailure()
	b.RecordFailure()
	clk.Advance(time.Second)
	require.NoError(t, b.Allow())

	b.RecordSuccess()
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, 0, b.FailureCount())
}

func TestBreaker_HalfOpenAdmitsOneTrial(t *testing.T) {
	b, clk := newTestBreaker(t, 1, time.Second)
	b.RecordFailure()
	clk.Advance(time.Second)

	require.NoError(t, b.Allow())
	var open *CircuitOpenError
	assert.ErrorAs(t, b.Allow(), &open)

	b.Release()
	assert.Equal(t, StateHalfOpen, b.State())
	assert.NoError(t, b.Allow())
}

func TestBreaker_SuccessWhileOpenKeepsOpen(t *testing.T) {
	b, _ := newTestBreaker(t, 1, time.Minute)
	b.RecordFailure()
	b.RecordSuccess()
	assert.Equal(t, StateOpen, b.State())
	assert.Equal(t, 1, b.FailureCount())
}

func TestBreaker_Reset(t *testing.T) {
	b, clk := newTestBreaker(t, 1, time.Second)
	b.RecordFailure()
	b.Reset()
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, 0, b.FailureCount())

	b.RecordFailure()
	clk.Advance(time.Second)
	require.NoError(t, b.Allow())
	b.Reset()
	assert.Equal(t, StateClosed, b.State())
	assert.NoError(t, b.Allow())
}

func TestBreaker_Snapshot(t *testing.T) {
	b, clk := newTestBreaker(t, 1, time.Second)
	b.RecordFailure()
	clk.Advance(2 * time.Second)

	s := b.Snapshot()
	assert.Equal(t, "CreateUser", s.OperationType)
	assert.Equal(t, StateHalfOpen, s.State)
	assert.Equal(t, "half_open", s.StateName)
	assert.Equal(t, 1, s.FailureCount)
	assert.Equal(t, epoch, s.LastFailureTime)
}

func TestBreaker_ConcurrentFailures(t *testing.T) {
	b, _ := newTestBreaker(t, 1000, time.Minute)

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 10 {
				b.RecordFailure()
				_ = b.State()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 500, b.FailureCount())
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_ConcurrentTrialAdmission(t *testing.T) {
	b, clk := newTestBreaker(t, 1, time.Second)
	b.RecordFailure()
	clk.Advance(time.Second)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
	)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if b.Allow() == nil {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, admitted)
}
