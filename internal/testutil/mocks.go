// Package testutil provides shared mock implementations of domain interfaces
// for use in tests across the codebase.
package testutil

import (
	"context"
	"time"

	"github.com/JoshuaRamirez/ACS-sub004/internal/domain"
)

// === Dead Letter Repository Mock ===

// MockDeadLetterRepo implements domain.DeadLetterRepository for testing.
// Unset functions panic so unexpected calls fail loudly.
type MockDeadLetterRepo struct {
	EnqueueFn       func(ctx context.Context, c *domain.FailedCommand) (*domain.FailedCommand, error)
	GetFn           func(ctx context.Context, id string, now time.Time) (*domain.FailedCommand, error)
	PeekFn          func(ctx context.Context, filter domain.DeadLetterFilter, now time.Time) ([]domain.FailedCommand, int64, error)
	DequeueFn       func(ctx context.Context, filter domain.DeadLetterFilter, now time.Time) ([]domain.FailedCommand, error)
	RecordAttemptFn func(ctx context.Context, id string, lastError string, at time.Time) (*domain.FailedCommand, error)
	RemoveFn        func(ctx context.Context, id string) error
	PurgeExpiredFn  func(ctx context.Context, now time.Time) (int64, error)

	Enqueued []*domain.FailedCommand // collected entries for assertions
}

var _ domain.DeadLetterRepository = (*MockDeadLetterRepo)(nil)

// Enqueue implements the interface method for testing.
func (m *MockDeadLetterRepo) Enqueue(ctx context.Context, c *domain.FailedCommand) (*domain.FailedCommand, error) {
	if m.EnqueueFn != nil {
		out, err := m.EnqueueFn(ctx, c)
		if err != nil {
			return nil, err
		}
		m.Enqueued = append(m.Enqueued, c)
		return out, nil
	}
	m.Enqueued = append(m.Enqueued, c)
	return c, nil
}

// Get implements the interface method for testing.
func (m *MockDeadLetterRepo) Get(ctx context.Context, id string, now time.Time) (*domain.FailedCommand, error) {
	if m.GetFn != nil {
		return m.GetFn(ctx, id, now)
	}
	panic("unexpected call to MockDeadLetterRepo.Get")
}

// Peek implements the interface method for testing.
func (m *MockDeadLetterRepo) Peek(ctx context.Context, filter domain.DeadLetterFilter, now time.Time) ([]domain.FailedCommand, int64, error) {
	if m.PeekFn != nil {
		return m.PeekFn(ctx, filter, now)
	}
	panic("unexpected call to MockDeadLetterRepo.Peek")
}

// Dequeue implements the interface method for testing.
func (m *MockDeadLetterRepo) Dequeue(ctx context.Context, filter domain.DeadLetterFilter, now time.Time) ([]domain.FailedCommand, error) {
	if m.DequeueFn != nil {
		return m.DequeueFn(ctx, filter, now)
	}
	panic("unexpected call to MockDeadLetterRepo.Dequeue")
}

// RecordAttempt implements the interface method for testing.
func (m *MockDeadLetterRepo) RecordAttempt(ctx context.Context, id string, lastError string, at time.Time) (*domain.FailedCommand, error) {
	if m.RecordAttemptFn != nil {
		return m.RecordAttemptFn(ctx, id, lastError, at)
	}
	panic("unexpected call to MockDeadLetterRepo.RecordAttempt")
}

// Remove implements the interface method for testing.
func (m *MockDeadLetterRepo) Remove(ctx context.Context, id string) error {
	if m.RemoveFn != nil {
		return m.RemoveFn(ctx, id)
	}
	panic("unexpected call to MockDeadLetterRepo.Remove")
}

// PurgeExpired implements the interface method for testing.
func (m *MockDeadLetterRepo) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	if m.PurgeExpiredFn != nil {
		return m.PurgeExpiredFn(ctx, now)
	}
	panic("unexpected call to MockDeadLetterRepo.PurgeExpired")
}

// LastEnqueued returns the last enqueued command, or nil if none.
func (m *MockDeadLetterRepo) LastEnqueued() *domain.FailedCommand {
	if len(m.Enqueued) == 0 {
		return nil
	}
	return m.Enqueued[len(m.Enqueued)-1]
}
