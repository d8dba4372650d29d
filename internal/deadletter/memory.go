// Package deadletter holds commands that exhausted recovery so operators can
// inspect, replay, or discard them.
package deadletter

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/JoshuaRamirez/ACS-sub004/internal/domain"
)

// MemoryRepository is an in-process domain.DeadLetterRepository. Expired
// entries are dropped as they are encountered.
type MemoryRepository struct {
	mu      sync.Mutex
	entries map[string]*domain.FailedCommand
}

var _ domain.DeadLetterRepository = (*MemoryRepository)(nil)

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{entries: make(map[string]*domain.FailedCommand)}
}

// Enqueue stores a copy of c, assigning an ID when it has none.
func (r *MemoryRepository) Enqueue(_ context.Context, c *domain.FailedCommand) (*domain.FailedCommand, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	stored := *c
	if stored.ID == "" {
		stored.ID = domain.NewID()
	}
	if stored.LastFailureTime.IsZero() {
		stored.LastFailureTime = stored.FirstFailureTime
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[stored.ID]; exists {
		return nil, domain.ErrConflict("dead letter %q already exists", stored.ID)
	}
	r.entries[stored.ID] = &stored
	out := stored
	return &out, nil
}

// Get returns a live entry by ID.
func (r *MemoryRepository) Get(_ context.Context, id string, now time.Time) (*domain.FailedCommand, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := r.liveLocked(id, now)
	if err != nil {
		return nil, err
	}
	out := *c
	return &out, nil
}

// Peek returns a page of live entries matching filter, oldest first, with the
// total number of matches.
func (r *MemoryRepository) Peek(_ context.Context, filter domain.DeadLetterFilter, now time.Time) ([]domain.FailedCommand, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	page, total := r.pageLocked(filter, now)
	return page, total, nil
}

// Dequeue removes and returns a page of live entries matching filter.
func (r *MemoryRepository) Dequeue(_ context.Context, filter domain.DeadLetterFilter, now time.Time) ([]domain.FailedCommand, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	page, _ := r.pageLocked(filter, now)
	for _, c := range page {
		delete(r.entries, c.ID)
	}
	return page, nil
}

// RecordAttempt bumps the attempt number of a live entry.
func (r *MemoryRepository) RecordAttempt(_ context.Context, id string, lastError string, at time.Time) (*domain.FailedCommand, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := r.liveLocked(id, at)
	if err != nil {
		return nil, err
	}
	c.AttemptNumber++
	c.LastError = lastError
	c.LastFailureTime = at
	out := *c
	return &out, nil
}

// Remove deletes an entry by ID.
func (r *MemoryRepository) Remove(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[id]; !ok {
		return domain.ErrNotFound("dead letter %q not found", id)
	}
	delete(r.entries, id)
	return nil
}

// PurgeExpired deletes every expired entry and returns how many it removed.
func (r *MemoryRepository) PurgeExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, c := range r.entries {
		if c.Expired(now) {
			delete(r.entries, id)
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) liveLocked(id string, now time.Time) (*domain.FailedCommand, error) {
	c, ok := r.entries[id]
	if !ok {
		return nil, domain.ErrNotFound("dead letter %q not found", id)
	}
	if c.Expired(now) {
		delete(r.entries, id)
		return nil, domain.ErrNotFound("dead letter %q not found", id)
	}
	return c, nil
}

func (r *MemoryRepository) pageLocked(filter domain.DeadLetterFilter, now time.Time) ([]domain.FailedCommand, int64) {
	var matches []domain.FailedCommand
	for id, c := range r.entries {
		if c.Expired(now) {
			delete(r.entries, id)
			continue
		}
		if filter.Matches(c) {
			matches = append(matches, *c)
		}
	}
	slices.SortFunc(matches, func(a, b domain.FailedCommand) int {
		return cmp.Or(a.FirstFailureTime.Compare(b.FirstFailureTime), cmp.Compare(a.ID, b.ID))
	})

	total := int64(len(matches))
	offset := min(filter.Page.Offset(), len(matches))
	end := min(offset+filter.Page.Limit(), len(matches))
	return matches[offset:end], total
}
