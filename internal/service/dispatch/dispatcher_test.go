package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JoshuaRamirez/ACS-sub004/internal/clock"
	"github.com/JoshuaRamirez/ACS-sub004/internal/command"
	"github.com/JoshuaRamirez/ACS-sub004/internal/deadletter"
	"github.com/JoshuaRamirez/ACS-sub004/internal/domain"
	"github.com/JoshuaRamirez/ACS-sub004/internal/graph"
	"github.com/JoshuaRamirez/ACS-sub004/internal/resilience"
)

var epoch = time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

type fixture struct {
	dispatcher  *Dispatcher
	store       *graph.Store
	executor    *resilience.Executor
	deadLetters *deadletter.Store
	clock       *clock.FakeClock
}

func discardLogger() *slog.Logger { return slog.New(slog.DiscardHandler) }

func newFixture(t *testing.T, threshold int, opts ...Option) *fixture {
	t.Helper()
	clk := clock.Fake(epoch)
	cfg := resilience.DefaultConfig()
	cfg.Backoff = resilience.BackoffConfig{}
	cfg.MaxRetries = 2
	cfg.Timeout = time.Second
	cfg.Breaker = resilience.CircuitBreakerConfig{FailureThreshold: threshold, RecoveryTimeWindow: time.Minute}
	exec, err := resilience.NewExecutor(cfg, resilience.WithClock(clk), resilience.WithLogger(discardLogger()))
	require.NoError(t, err)

	dl := deadletter.NewStore(deadletter.NewMemoryRepository(),
		deadletter.WithClock(clk), deadletter.WithLogger(discardLogger()), deadletter.WithTTL(time.Hour))
	t.Cleanup(func() { _ = dl.Close() })

	store := graph.NewStore()
	opts = append([]Option{WithLogger(discardLogger()), WithDeadLetters(dl)}, opts...)
	return &fixture{
		dispatcher:  New(command.Catalog(), store, exec, opts...),
		store:       store,
		executor:    exec,
		deadLetters: dl,
		clock:       clk,
	}
}

func (f *fixture) parked(t *testing.T) []domain.FailedCommand {
	t.Helper()
	page, _, err := f.deadLetters.Peek(context.Background(), domain.DeadLetterFilter{})
	require.NoError(t, err)
	return page
}

func TestDispatch_MutationsAndQueries(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()

	alice, err := DispatchAs[graph.User](ctx, f.dispatcher, command.CreateUser{Name: "alice"})
	require.NoError(t, err)
	eng, err := DispatchAs[graph.Group](ctx, f.dispatcher, &command.CreateGroup{Name: "engineering"})
	require.NoError(t, err)
	backend, err := DispatchAs[graph.Group](ctx, f.dispatcher, command.CreateGroup{Name: "backend"})
	require.NoError(t, err)

	parent, err := DispatchAs[graph.Group](ctx, f.dispatcher, command.AddGroupToGroup{ParentID: eng.ID, ChildID: backend.ID})
	require.NoError(t, err)
	assert.Equal(t, []int64{backend.ID}, parent.Groups)

	_, err = f.dispatcher.Dispatch(ctx, command.AddUserToGroup{UserID: alice.ID, GroupID: backend.ID})
	require.NoError(t, err)
	_, err = f.dispatcher.Dispatch(ctx, command.AddPermissionToEntity{
		Entity: graph.GroupRef(eng.ID),
		Permission: graph.Permission{
			URI: "/api/reports", Verb: graph.VerbGET, Grant: true, Scheme: graph.SchemeAPIURIAuthorization,
		},
	})
	require.NoError(t, err)

	decision, err := DispatchAs[AccessDecision](ctx, f.dispatcher, command.CheckAccess{
		UserID: alice.ID, URI: "/api/reports", Verb: graph.VerbGET,
	})
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, graph.SchemeAPIURIAuthorization, decision.Scheme)

	groups, err := DispatchAs[[]graph.Group](ctx, f.dispatcher, command.ListGroups{})
	require.NoError(t, err)
	assert.Len(t, groups, 2)

	assert.Empty(t, f.parked(t))
}

func TestDispatch_InvariantViolationIsNotRetriedOrParked(t *testing.T) {
	calls := 0
	f := newFixture(t, 1)
	ctx := context.Background()
	store := f.store
	f.dispatcher.handlers[command.TypeAddGroupToGroup] = mutation(func(c command.AddGroupToGroup) (any, error) {
		calls++
		return nil, store.AddGroup(c.ParentID, c.ChildID)
	})

	g, err := store.CreateGroup("loop")
	require.NoError(t, err)

	_, err = f.dispatcher.Dispatch(ctx, command.AddGroupToGroup{ParentID: g.ID, ChildID: g.ID})
	var inv *domain.InvariantViolationError
	require.ErrorAs(t, err, &inv)
	assert.Equal(t, 1, calls)
	assert.Empty(t, f.parked(t))
	assert.Equal(t, resilience.StateClosed, f.executor.CircuitBreakerState(command.TypeAddGroupToGroup))
}

func TestDispatch_ExhaustedMutationIsParked(t *testing.T) {
	var calls atomic.Int32
	down := resilience.Transient(errors.New("connection refused"))
	f := newFixture(t, 10, WithHandler(command.TypeCreateUser, func(context.Context, command.Command) (any, error) {
		calls.Add(1)
		return nil, down
	}))

	cmd := command.CreateUser{
		Envelope: command.NewEnvelope("admin", "acme", epoch),
		Name:     "alice",
	}
	_, err := f.dispatcher.Dispatch(context.Background(), cmd)

	var dl *DeadLetteredError
	require.ErrorAs(t, err, &dl)
	assert.ErrorIs(t, err, down)
	assert.Equal(t, command.TypeCreateUser, dl.CommandType)
	assert.Equal(t, int32(3), calls.Load())

	parked := f.parked(t)
	require.Len(t, parked, 1)
	assert.Equal(t, dl.ID, parked[0].ID)
	assert.Equal(t, "acme", parked[0].TenantID)
	assert.Equal(t, 3, parked[0].AttemptNumber)
	assert.Equal(t, "connection refused", parked[0].LastError)
	assert.Equal(t, epoch.Add(time.Hour), parked[0].ExpiresAt)

	decoded, err := command.Catalog().Decode(parked[0].CommandType, parked[0].CommandData)
	require.NoError(t, err)
	assert.Equal(t, cmd, *decoded.(*command.CreateUser))
}

func TestDispatch_CircuitOpenIsParked(t *testing.T) {
	f := newFixture(t, 1, WithHandler(command.TypeCreateRole, func(context.Context, command.Command) (any, error) {
		return nil, resilience.Transient(errors.New("down"))
	}))
	ctx := domain.WithTenant(context.Background(), "globex")

	_, err := f.dispatcher.Dispatch(ctx, command.CreateRole{Name: "auditor"})
	var open *resilience.CircuitOpenError
	require.ErrorAs(t, err, &open)

	_, err = f.dispatcher.Dispatch(ctx, command.CreateRole{Name: "reviewer"})
	require.ErrorAs(t, err, &open)

	parked := f.parked(t)
	require.Len(t, parked, 2)
	for _, p := range parked {
		assert.Equal(t, "globex", p.TenantID)
	}
	assert.Equal(t, 1, parked[0].AttemptNumber)
}

func TestDispatch_QueriesBypassRecovery(t *testing.T) {
	var calls atomic.Int32
	f := newFixture(t, 1, WithHandler(command.TypeGetUser, func(context.Context, command.Command) (any, error) {
		calls.Add(1)
		return nil, resilience.Transient(errors.New("down"))
	}))

	for range 3 {
		_, err := f.dispatcher.Dispatch(context.Background(), command.GetUser{UserID: 1})
		require.Error(t, err)
	}
	assert.Equal(t, int32(3), calls.Load())
	assert.Empty(t, f.parked(t))
	assert.Empty(t, f.executor.CircuitBreakers())
}

func TestDispatch_QueryNotFound(t *testing.T) {
	f := newFixture(t, 5)
	_, err := f.dispatcher.Dispatch(context.Background(), command.GetUser{UserID: 42})
	var nf *domain.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

type bogusCommand struct{ command.Envelope }

func (bogusCommand) CommandType() string { return "Bogus" }

func TestDispatch_UnknownCommand(t *testing.T) {
	f := newFixture(t, 5)
	_, err := f.dispatcher.Dispatch(context.Background(), bogusCommand{})
	var unknown *command.UnknownCommandError
	assert.ErrorAs(t, err, &unknown)
}

func TestDispatch_CanceledIsNotParked(t *testing.T) {
	f := newFixture(t, 5)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.dispatcher.Dispatch(ctx, command.CreateUser{Name: "alice"})
	var canceled *resilience.CanceledError
	require.ErrorAs(t, err, &canceled)
	assert.Empty(t, f.parked(t))
	_, err = f.store.User(1)
	var nf *domain.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestDispatch_WithoutDeadLetters(t *testing.T) {
	clk := clock.Fake(epoch)
	cfg := resilience.DefaultConfig()
	cfg.Backoff = resilience.BackoffConfig{}
	exec, err := resilience.NewExecutor(cfg, resilience.WithClock(clk), resilience.WithLogger(discardLogger()))
	require.NoError(t, err)
	down := resilience.Transient(errors.New("down"))
	d := New(command.Catalog(), graph.NewStore(), exec, WithLogger(discardLogger()),
		WithHandler(command.TypeCreateUser, func(context.Context, command.Command) (any, error) { return nil, down }))

	_, err = d.Dispatch(context.Background(), command.CreateUser{Name: "alice"})
	assert.Equal(t, down, err)
}

func TestMutationHandler_SkipsWriteWhenContextDone(t *testing.T) {
	store := graph.NewStore()
	create := graphHandlers(store)[command.TypeCreateUser]
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := create(ctx, command.CreateUser{Name: "alice"})
	require.ErrorIs(t, err, context.Canceled)
	_, err = store.User(1)
	var nf *domain.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestDispatch_TimedOutAttemptDoesNotCommitLate(t *testing.T) {
	cfg := resilience.DefaultConfig()
	cfg.Backoff = resilience.BackoffConfig{}
	cfg.MaxRetries = 1
	cfg.Timeout = 20 * time.Millisecond
	exec, err := resilience.NewExecutor(cfg, resilience.WithLogger(discardLogger()))
	require.NoError(t, err)

	store := graph.NewStore()
	create := graphHandlers(store)[command.TypeCreateUser]
	var calls atomic.Int32
	lateDone := make(chan struct{})
	d := New(command.Catalog(), store, exec, WithLogger(discardLogger()),
		WithHandler(command.TypeCreateUser, func(ctx context.Context, cmd command.Command) (any, error) {
			if calls.Add(1) == 1 {
				defer close(lateDone)
				<-ctx.Done()
				time.Sleep(10 * time.Millisecond)
			}
			return create(ctx, cmd)
		}))

	v, err := d.Dispatch(context.Background(), command.CreateUser{Name: "alice"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), v.(graph.User).ID)

	<-lateDone
	assert.Equal(t, int32(2), calls.Load())
	_, err = store.User(2)
	var nf *domain.NotFoundError
	assert.ErrorAs(t, err, &nf, "the abandoned attempt must not create a second user")
}

func TestResubmit_ReplaysParkedCommand(t *testing.T) {
	var healthy atomic.Bool
	var store *graph.Store
	f := newFixture(t, 10, WithHandler(command.TypeCreateUser, func(_ context.Context, cmd command.Command) (any, error) {
		if !healthy.Load() {
			return nil, resilience.Transient(errors.New("down"))
		}
		return store.CreateUser(cmd.(command.CreateUser).Name)
	}))
	store = f.store
	ctx := context.Background()

	_, err := f.dispatcher.Dispatch(ctx, command.CreateUser{Name: "alice"})
	var dl *DeadLetteredError
	require.ErrorAs(t, err, &dl)

	replay := deadletter.NewReprocessor(f.deadLetters, deadletter.ReplayConfig{Concurrency: 1, MaxAttempts: 10}, discardLogger())

	res, err := replay.Replay(ctx, domain.DeadLetterFilter{}, f.dispatcher.Resubmit)
	require.NoError(t, err)
	assert.Equal(t, deadletter.ReplayResult{Failed: 1}, res)
	require.Len(t, f.parked(t), 1, "a failed replay must not park a second copy")
	assert.Equal(t, 4, f.parked(t)[0].AttemptNumber)

	healthy.Store(true)
	res, err = replay.Replay(ctx, domain.DeadLetterFilter{}, f.dispatcher.Resubmit)
	require.NoError(t, err)
	assert.Equal(t, deadletter.ReplayResult{Replayed: 1}, res)
	assert.Empty(t, f.parked(t))

	u, err := store.User(1)
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Name)
}

func TestResubmit_UndecodablePayload(t *testing.T) {
	f := newFixture(t, 5)
	err := f.dispatcher.Resubmit(context.Background(), domain.FailedCommand{CommandType: "Nope", CommandData: "{}"})
	var unknown *command.UnknownCommandError
	assert.ErrorAs(t, err, &unknown)
}
