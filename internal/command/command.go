// Package command defines the commands callers submit against the graph,
// the registry that tags each command type as a query or a mutation, and the
// JSON codec used to park commands in the dead-letter store.
package command

import (
	"time"

	"github.com/JoshuaRamirez/ACS-sub004/internal/domain"
)

// Kind classifies a command as a read or a write.
type Kind int

// Command kinds.
const (
	KindQuery Kind = iota + 1
	KindMutation
)

func (k Kind) String() string {
	switch k {
	case KindQuery:
		return "query"
	case KindMutation:
		return "mutation"
	default:
		return "unknown"
	}
}

// Envelope carries the metadata common to every command.
type Envelope struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
	ActorID   string    `json:"actor_id"`
	TenantID  string    `json:"tenant_id,omitempty"`
}

// NewEnvelope returns an envelope with a fresh request ID stamped at now.
func NewEnvelope(actorID, tenantID string, now time.Time) Envelope {
	return Envelope{
		RequestID: domain.NewID(),
		Timestamp: now.UTC(),
		ActorID:   actorID,
		TenantID:  tenantID,
	}
}

// Meta returns the envelope itself. Commands embed Envelope and inherit it.
func (e Envelope) Meta() Envelope { return e }

// Command is any value that can be submitted.
type Command interface {
	CommandType() string
	Meta() Envelope
}

// UnknownCommandError is returned when a command type has not been registered.
type UnknownCommandError struct {
	CommandType string
}

func (e *UnknownCommandError) Error() string {
	return "unrecognized command type " + `"` + e.CommandType + `"`
}
