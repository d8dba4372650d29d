package deadletter

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/JoshuaRamirez/ACS-sub004/internal/clock"
	"github.com/JoshuaRamirez/ACS-sub004/internal/domain"
)

// DefaultTTL is how long entries are kept when no TTL is configured.
const DefaultTTL = 7 * 24 * time.Hour

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used for failure and expiry timestamps.
func WithClock(c clock.Clock) Option { return func(s *Store) { s.clock = c } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(s *Store) { s.logger = l } }

// WithTTL sets how long new entries live.
func WithTTL(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// Store fronts a domain.DeadLetterRepository with timestamps, expiry, and
// an optional background sweep. Close stops the sweep.
type Store struct {
	repo   domain.DeadLetterRepository
	clock  clock.Clock
	logger *slog.Logger
	ttl    time.Duration

	mu     sync.Mutex
	cron   *cron.Cron
	closed bool
}

// NewStore creates a Store over repo.
func NewStore(repo domain.DeadLetterRepository, opts ...Option) *Store {
	s := &Store{
		repo:   repo,
		clock:  clock.Real(),
		logger: slog.Default(),
		ttl:    DefaultTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "dead-letter-store")
	return s
}

// TTL returns the lifetime applied to new entries.
func (s *Store) TTL() time.Duration { return s.ttl }

// Now returns the store's current time.
func (s *Store) Now() time.Time { return s.clock.Now() }

// Park records a command that exhausted recovery after attempts tries.
func (s *Store) Park(ctx context.Context, tenantID, commandType, commandData string, attempts int, cause error) (*domain.FailedCommand, error) {
	now := s.clock.Now().UTC()
	c := &domain.FailedCommand{
		ID:               domain.NewID(),
		TenantID:         tenantID,
		CommandType:      commandType,
		CommandData:      commandData,
		AttemptNumber:    max(attempts, 1),
		FirstFailureTime: now,
		LastFailureTime:  now,
		ExpiresAt:        now.Add(s.ttl),
	}
	if cause != nil {
		c.LastError = cause.Error()
	}
	return s.Enqueue(ctx, c)
}

// Enqueue stores c, filling in the ID, timestamps, and expiry when unset.
func (s *Store) Enqueue(ctx context.Context, c *domain.FailedCommand) (*domain.FailedCommand, error) {
	if c == nil {
		return nil, domain.ErrValidation("failed command is required")
	}
	rec := *c
	if rec.ID == "" {
		rec.ID = domain.NewID()
	}
	if rec.FirstFailureTime.IsZero() {
		rec.FirstFailureTime = s.clock.Now().UTC()
	}
	if rec.LastFailureTime.IsZero() {
		rec.LastFailureTime = rec.FirstFailureTime
	}
	if rec.ExpiresAt.IsZero() {
		rec.ExpiresAt = rec.FirstFailureTime.Add(s.ttl)
	}
	out, err := s.repo.Enqueue(ctx, &rec)
	if err != nil {
		return nil, err
	}
	s.logger.Info("command dead-lettered",
		"id", out.ID, "command_type", out.CommandType, "attempts", out.AttemptNumber)
	return out, nil
}

// Get returns a live entry.
func (s *Store) Get(ctx context.Context, id string) (*domain.FailedCommand, error) {
	return s.repo.Get(ctx, id, s.clock.Now())
}

// Peek lists live entries without removing them.
func (s *Store) Peek(ctx context.Context, filter domain.DeadLetterFilter) ([]domain.FailedCommand, int64, error) {
	return s.repo.Peek(ctx, filter, s.clock.Now())
}

// Dequeue removes and returns live entries.
func (s *Store) Dequeue(ctx context.Context, filter domain.DeadLetterFilter) ([]domain.FailedCommand, error) {
	return s.repo.Dequeue(ctx, filter, s.clock.Now())
}

// RecordAttempt notes another failed replay of an entry.
func (s *Store) RecordAttempt(ctx context.Context, id string, cause error) (*domain.FailedCommand, error) {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return s.repo.RecordAttempt(ctx, id, msg, s.clock.Now().UTC())
}

// Remove deletes an entry.
func (s *Store) Remove(ctx context.Context, id string) error {
	return s.repo.Remove(ctx, id)
}

// PurgeExpired deletes expired entries now.
func (s *Store) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := s.repo.PurgeExpired(ctx, s.clock.Now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("purged expired dead letters", "count", n)
	}
	return n, nil
}

// StartSweeper purges expired entries on a cron schedule such as
// "@every 1m". It may be started once.
func (s *Store) StartSweeper(schedule string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("dead letter store is closed")
	}
	if s.cron != nil {
		return domain.ErrConflict("expiry sweeper already running")
	}

	c := cron.New()
	if _, err := c.AddFunc(schedule, s.sweep); err != nil {
		return domain.ErrValidation("invalid sweep schedule %q: %v", schedule, err)
	}
	c.Start()
	s.cron = c
	s.logger.Info("expiry sweeper started", "schedule", schedule)
	return nil
}

func (s *Store) sweep() {
	if _, err := s.PurgeExpired(context.Background()); err != nil {
		s.logger.Warn("expiry sweep failed", "error", err)
	}
}

// Close stops the sweeper and waits for a running sweep to finish. It is
// safe to call more than once.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
		s.logger.Info("expiry sweeper stopped")
	}
	return nil
}
