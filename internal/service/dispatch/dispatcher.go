// Package dispatch routes commands to the graph store. Queries run directly;
// mutations run under the recovery executor, and mutations whose recovery
// runs out are parked in the dead-letter store.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"

	"github.com/JoshuaRamirez/ACS-sub004/internal/command"
	"github.com/JoshuaRamirez/ACS-sub004/internal/deadletter"
	"github.com/JoshuaRamirez/ACS-sub004/internal/domain"
	"github.com/JoshuaRamirez/ACS-sub004/internal/graph"
	"github.com/JoshuaRamirez/ACS-sub004/internal/resilience"
)

// HandlerFunc executes one command and returns its result.
type HandlerFunc func(ctx context.Context, cmd command.Command) (any, error)

// DeadLetteredError reports a mutation that exhausted recovery and was
// parked. It unwraps to the last error the operation returned.
type DeadLetteredError struct {
	ID          string
	CommandType string
	Err         error
}

func (e *DeadLetteredError) Error() string {
	return fmt.Sprintf("command %s dead-lettered as %s: %v", e.CommandType, e.ID, e.Err)
}

func (e *DeadLetteredError) Unwrap() error { return e.Err }

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(d *Dispatcher) { d.logger = l } }

// WithDeadLetters enables parking of mutations whose recovery ran out.
func WithDeadLetters(s *deadletter.Store) Option { return func(d *Dispatcher) { d.deadLetters = s } }

// WithHandler replaces the handler for one command type.
func WithHandler(commandType string, h HandlerFunc) Option {
	return func(d *Dispatcher) { d.handlers[commandType] = h }
}

// Dispatcher classifies and executes commands.
type Dispatcher struct {
	registry    *command.Registry
	executor    *resilience.Executor
	deadLetters *deadletter.Store
	handlers    map[string]HandlerFunc
	logger      *slog.Logger
}

// New creates a Dispatcher serving the built-in handlers over store.
func New(registry *command.Registry, store *graph.Store, executor *resilience.Executor, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry: registry,
		executor: executor,
		handlers: graphHandlers(store),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With("component", "dispatcher")
	return d
}

// Dispatch executes cmd and returns its result.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd command.Command) (any, error) {
	return d.dispatch(ctx, cmd, true)
}

// DispatchAs executes cmd and asserts the result type.
func DispatchAs[T any](ctx context.Context, d *Dispatcher, cmd command.Command) (T, error) {
	var zero T
	v, err := d.Dispatch(ctx, cmd)
	if err != nil {
		return zero, err
	}
	out, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("command %s returned %T, not %T", cmd.CommandType(), v, zero)
	}
	return out, nil
}

func (d *Dispatcher) dispatch(ctx context.Context, cmd command.Command, park bool) (any, error) {
	kind, err := d.registry.Classify(cmd)
	if err != nil {
		return nil, err
	}
	cmd = deref(cmd)
	h, ok := d.handlers[cmd.CommandType()]
	if !ok {
		return nil, &command.UnknownCommandError{CommandType: cmd.CommandType()}
	}

	if kind == command.KindQuery {
		v, err := h(ctx, cmd)
		if err != nil {
			return nil, err
		}
		return v, nil
	}

	var report resilience.Report
	v, err := resilience.Execute(ctx, d.executor, cmd.CommandType(),
		func(ctx context.Context) (any, error) { return h(ctx, cmd) },
		nil, resilience.WithReport(&report))
	if err == nil {
		return v, nil
	}
	if !park || d.deadLetters == nil || !report.Recoverable() {
		return nil, err
	}
	return nil, d.park(ctx, cmd, report, err)
}

func (d *Dispatcher) park(ctx context.Context, cmd command.Command, report resilience.Report, cause error) error {
	data, encErr := d.registry.Encode(cmd)
	if encErr != nil {
		d.logger.Error("cannot encode command for dead-lettering",
			"command_type", cmd.CommandType(), "error", encErr)
		return cause
	}
	tenant := cmd.Meta().TenantID
	if tenant == "" {
		tenant, _ = domain.TenantFromContext(ctx)
	}
	actor := cmd.Meta().ActorID
	if actor == "" {
		actor, _ = domain.ActorFromContext(ctx)
	}

	// The caller's context may be the reason recovery ended; parking must
	// still happen.
	fc, parkErr := d.deadLetters.Park(context.WithoutCancel(ctx), tenant, cmd.CommandType(), data, report.Attempts, cause)
	if parkErr != nil {
		d.logger.Error("dead-letter enqueue failed",
			"command_type", cmd.CommandType(), "error", parkErr)
		return errors.Join(cause, parkErr)
	}
	d.logger.Warn("command dead-lettered",
		"command_type", cmd.CommandType(),
		"request_id", cmd.Meta().RequestID,
		"actor_id", actor,
		"dead_letter_id", fc.ID,
		"attempts", report.Attempts,
		"circuit_open", report.CircuitOpen,
		"error", cause,
	)
	return &DeadLetteredError{ID: fc.ID, CommandType: cmd.CommandType(), Err: cause}
}

// Resubmit decodes a dead-lettered command and runs it again without
// parking it a second time. It satisfies deadletter.Handler.
func (d *Dispatcher) Resubmit(ctx context.Context, fc domain.FailedCommand) error {
	cmd, err := d.registry.Decode(fc.CommandType, fc.CommandData)
	if err != nil {
		return err
	}
	if fc.TenantID != "" {
		ctx = domain.WithTenant(ctx, fc.TenantID)
	}
	_, err = d.dispatch(ctx, cmd, false)
	return err
}

// deref turns *T into T so handlers switch on value types only.
func deref(cmd command.Command) command.Command {
	v := reflect.ValueOf(cmd)
	if v.Kind() == reflect.Pointer && !v.IsNil() {
		if c, ok := v.Elem().Interface().(command.Command); ok {
			return c
		}
	}
	return cmd
}
