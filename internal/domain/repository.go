package domain

import (
	"context"
	"time"
)

// DeadLetterRepository persists commands that exhausted recovery.
//
// Implementations treat entries whose ExpiresAt is not after now as absent:
// they are never returned by Get, Peek or Dequeue.
type DeadLetterRepository interface {
	Enqueue(ctx context.Context, c *FailedCommand) (*FailedCommand, error)
	Get(ctx context.Context, id string, now time.Time) (*FailedCommand, error)
	Peek(ctx context.Context, filter DeadLetterFilter, now time.Time) ([]FailedCommand, int64, error)
	Dequeue(ctx context.Context, filter DeadLetterFilter, now time.Time) ([]FailedCommand, error)
	RecordAttempt(ctx context.Context, id string, lastError string, at time.Time) (*FailedCommand, error)
	Remove(ctx context.Context, id string) error
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}
