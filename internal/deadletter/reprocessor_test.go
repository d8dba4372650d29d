package deadletter

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JoshuaRamirez/ACS-sub004/internal/domain"
)

func unlimited() ReplayConfig {
	return ReplayConfig{Concurrency: 4, MaxAttempts: 3}
}

func park(t *testing.T, s *Store, commandType string, attempts int) *domain.FailedCommand {
	t.Helper()
	c, err := s.Park(context.Background(), "acme", commandType, "{}", attempts, errors.New("down"))
	require.NoError(t, err)
	return c
}

func TestReplay_RemovesSuccesses(t *testing.T) {
	s, _ := newTestStore(t, time.Hour)
	for range 5 {
		park(t, s, "CreateUser", 1)
	}

	var calls atomic.Int32
	res, err := NewReprocessor(s, unlimited(), discardLogger()).Replay(context.Background(), domain.DeadLetterFilter{},
		func(context.Context, domain.FailedCommand) error {
			calls.Add(1)
			return nil
		})

	require.NoError(t, err)
	assert.Equal(t, ReplayResult{Replayed: 5}, res)
	assert.Equal(t, int32(5), calls.Load())
	_, total, err := s.Peek(context.Background(), domain.DeadLetterFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestReplay_PagesPastDefaultPageSize(t *testing.T) {
	s, _ := newTestStore(t, time.Hour)
	n := domain.DefaultPageSize + 50
	for range n {
		park(t, s, "CreateUser", 1)
	}

	var calls atomic.Int32
	res, err := NewReprocessor(s, unlimited(), discardLogger()).Replay(context.Background(), domain.DeadLetterFilter{},
		func(context.Context, domain.FailedCommand) error {
			calls.Add(1)
			return nil
		})

	require.NoError(t, err)
	assert.Equal(t, ReplayResult{Replayed: n}, res)
	assert.Equal(t, int32(n), calls.Load())
	_, total, err := s.Peek(context.Background(), domain.DeadLetterFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestReplay_MixedOutcomesVisitEachEntryOnce(t *testing.T) {
	s, _ := newTestStore(t, time.Hour)
	failing := make(map[string]bool)
	for i := range 40 {
		c := park(t, s, "CreateUser", 1)
		if i%3 == 0 {
			failing[c.ID] = true
		}
	}

	var (
		mu   sync.Mutex
		seen = make(map[string]int)
	)
	filter := domain.DeadLetterFilter{Page: domain.PageRequest{Size: 7}}
	res, err := NewReprocessor(s, ReplayConfig{Concurrency: 3}, discardLogger()).Replay(context.Background(), filter,
		func(_ context.Context, c domain.FailedCommand) error {
			mu.Lock()
			seen[c.ID]++
			mu.Unlock()
			if failing[c.ID] {
				return errors.New("still down")
			}
			return nil
		})

	require.NoError(t, err)
	assert.Equal(t, ReplayResult{Replayed: 40 - len(failing), Failed: len(failing)}, res)
	assert.Len(t, seen, 40)
	for id, n := range seen {
		assert.Equal(t, 1, n, "entry %s handled more than once", id)
	}
	_, total, err := s.Peek(context.Background(), domain.DeadLetterFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(len(failing)), total)
}

func TestReplay_RecordsFailuresAndDiscards(t *testing.T) {
	s, _ := newTestStore(t, time.Hour)
	keep := park(t, s, "CreateUser", 1)
	doomed := park(t, s, "CreateGroup", 2)

	res, err := NewReprocessor(s, unlimited(), discardLogger()).Replay(context.Background(), domain.DeadLetterFilter{},
		func(context.Context, domain.FailedCommand) error { return errors.New("still down") })

	require.NoError(t, err)
	assert.Equal(t, ReplayResult{Failed: 1, Discarded: 1}, res)

	got, err := s.Get(context.Background(), keep.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.AttemptNumber)
	assert.Equal(t, "still down", got.LastError)

	_, err = s.Get(context.Background(), doomed.ID)
	var nf *domain.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestReplay_Filter(t *testing.T) {
	s, _ := newTestStore(t, time.Hour)
	park(t, s, "CreateUser", 1)
	other := park(t, s, "CreateGroup", 1)

	createUser := "CreateUser"
	var seen []string
	res, err := NewReprocessor(s, ReplayConfig{Concurrency: 1}, discardLogger()).Replay(context.Background(),
		domain.DeadLetterFilter{CommandType: &createUser},
		func(_ context.Context, c domain.FailedCommand) error {
			seen = append(seen, c.CommandType)
			return nil
		})

	require.NoError(t, err)
	assert.Equal(t, 1, res.Replayed)
	assert.Equal(t, []string{"CreateUser"}, seen)
	_, err = s.Get(context.Background(), other.ID)
	assert.NoError(t, err)
}

func TestReplay_BoundedConcurrency(t *testing.T) {
	s, _ := newTestStore(t, time.Hour)
	for range 12 {
		park(t, s, "CreateUser", 1)
	}

	var inFlight, peak atomic.Int32
	res, err := NewReprocessor(s, ReplayConfig{Concurrency: 3}, discardLogger()).Replay(context.Background(), domain.DeadLetterFilter{},
		func(context.Context, domain.FailedCommand) error {
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			inFlight.Add(-1)
			return nil
		})

	require.NoError(t, err)
	assert.Equal(t, 12, res.Replayed)
	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestReplay_RateLimited(t *testing.T) {
	s, _ := newTestStore(t, time.Hour)
	for range 3 {
		park(t, s, "CreateUser", 1)
	}

	start := time.Now()
	res, err := NewReprocessor(s, ReplayConfig{RatePerSecond: 20, Burst: 1, Concurrency: 4}, discardLogger()).
		Replay(context.Background(), domain.DeadLetterFilter{},
			func(context.Context, domain.FailedCommand) error { return nil })

	require.NoError(t, err)
	assert.Equal(t, 3, res.Replayed)
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestReplay_Canceled(t *testing.T) {
	s, _ := newTestStore(t, time.Hour)
	for range 3 {
		park(t, s, "CreateUser", 1)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewReprocessor(s, unlimited(), discardLogger()).Replay(ctx, domain.DeadLetterFilter{},
		func(context.Context, domain.FailedCommand) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)

	_, total, err := s.Peek(context.Background(), domain.DeadLetterFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
}
