package command

import (
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"github.com/JoshuaRamirez/ACS-sub004/internal/domain"
)

// Classifier labels commands as queries or mutations.
type Classifier interface {
	Classify(cmd Command) (Kind, error)
}

type entry struct {
	kind    Kind
	factory func() Command
}

// Registry maps command type tags to their kind and a zero-value factory.
// It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Register tags commandType with kind. The factory must return a pointer to a
// zero value of the command so payloads can be decoded into it.
func (r *Registry) Register(commandType string, kind Kind, factory func() Command) error {
	if commandType == "" {
		return domain.ErrValidation("command type is required")
	}
	if kind != KindQuery && kind != KindMutation {
		return domain.ErrValidation("command %s: invalid kind %d", commandType, kind)
	}
	if factory == nil {
		return domain.ErrValidation("command %s: factory is required", commandType)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[commandType]; exists {
		return domain.ErrConflict("command type %s is already registered", commandType)
	}
	r.entries[commandType] = entry{kind: kind, factory: factory}
	return nil
}

// MustRegister is Register that panics on error, for static catalogs.
func (r *Registry) MustRegister(commandType string, kind Kind, factory func() Command) {
	if err := r.Register(commandType, kind, factory); err != nil {
		panic(err)
	}
}

// Classify returns the declared kind of cmd. Unregistered types yield an
// *UnknownCommandError rather than a default.
func (r *Registry) Classify(cmd Command) (Kind, error) {
	if cmd == nil {
		return 0, domain.ErrValidation("command is required")
	}
	return r.KindOf(cmd.CommandType())
}

// KindOf returns the declared kind of a command type tag.
func (r *Registry) KindOf(commandType string) (Kind, error) {
	r.mu.RLock()
	e, ok := r.entries[commandType]
	r.mu.RUnlock()
	if !ok {
		return 0, &UnknownCommandError{CommandType: commandType}
	}
	return e.kind, nil
}

// IsQueryCommand reports whether cmd is a registered query.
func (r *Registry) IsQueryCommand(cmd Command) bool {
	k, err := r.Classify(cmd)
	return err == nil && k == KindQuery
}

// IsMutationCommand reports whether cmd is a registered mutation.
func (r *Registry) IsMutationCommand(cmd Command) bool {
	k, err := r.Classify(cmd)
	return err == nil && k == KindMutation
}

// Types returns every registered command type, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.entries))
	for t := range r.entries {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

// Encode serializes a registered command to its JSON payload.
func (r *Registry) Encode(cmd Command) (string, error) {
	if _, err := r.Classify(cmd); err != nil {
		return "", err
	}
	data, err := json.Marshal(cmd)
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", cmd.CommandType(), err)
	}
	return string(data), nil
}

// Decode rebuilds a command from its type tag and JSON payload.
func (r *Registry) Decode(commandType, data string) (Command, error) {
	r.mu.RLock()
	e, ok := r.entries[commandType]
	r.mu.RUnlock()
	if !ok {
		return nil, &UnknownCommandError{CommandType: commandType}
	}
	cmd := e.factory()
	if err := json.Unmarshal([]byte(data), cmd); err != nil {
		return nil, domain.ErrValidation("decode %s payload: %v", commandType, err)
	}
	return cmd, nil
}
