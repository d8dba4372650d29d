package domain

import "time"

// FailedCommand is a command that exhausted recovery and was parked in the
// dead-letter store for later inspection or reprocessing.
type FailedCommand struct {
	ID               string
	TenantID         string
	CommandType      string
	CommandData      string // opaque payload, format owned by the submitter
	AttemptNumber    int
	LastError        string
	FirstFailureTime time.Time
	LastFailureTime  time.Time
	ExpiresAt        time.Time
}

// Expired reports whether the entry is past its expiry at the given instant.
func (c *FailedCommand) Expired(now time.Time) bool {
	return !c.ExpiresAt.After(now)
}

// Validate checks that the record is well-formed before it is stored.
func (c *FailedCommand) Validate() error {
	if c.CommandType == "" {
		return ErrValidation("command_type is required")
	}
	if c.AttemptNumber < 1 {
		return ErrValidation("attempt_number must be at least 1")
	}
	if c.FirstFailureTime.IsZero() {
		return ErrValidation("first_failure_time is required")
	}
	if !c.ExpiresAt.After(c.FirstFailureTime) {
		return ErrValidation("expires_at must be after first_failure_time")
	}
	return nil
}

// DeadLetterFilter selects dead-lettered commands. Nil fields match everything.
// Expired entries never match.
type DeadLetterFilter struct {
	TenantID    *string
	CommandType *string
	Page        PageRequest
}

// Matches reports whether the command satisfies the tenant and type filters.
func (f DeadLetterFilter) Matches(c *FailedCommand) bool {
	if f.TenantID != nil && c.TenantID != *f.TenantID {
		return false
	}
	if f.CommandType != nil && c.CommandType != *f.CommandType {
		return false
	}
	return true
}
