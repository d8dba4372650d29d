// Package app provides application-level wiring and dependency injection
// for the access-control command core.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/JoshuaRamirez/ACS-sub004/internal/clock"
	"github.com/JoshuaRamirez/ACS-sub004/internal/command"
	"github.com/JoshuaRamirez/ACS-sub004/internal/config"
	"github.com/JoshuaRamirez/ACS-sub004/internal/db"
	"github.com/JoshuaRamirez/ACS-sub004/internal/db/repository"
	"github.com/JoshuaRamirez/ACS-sub004/internal/deadletter"
	"github.com/JoshuaRamirez/ACS-sub004/internal/domain"
	"github.com/JoshuaRamirez/ACS-sub004/internal/graph"
	"github.com/JoshuaRamirez/ACS-sub004/internal/resilience"
	"github.com/JoshuaRamirez/ACS-sub004/internal/service/dispatch"
)

// Deps holds the external dependencies that main() must provide.
type Deps struct {
	Cfg    *config.Config
	Logger *slog.Logger
	Clock  clock.Clock // nil means the wall clock
}

// App holds the fully-wired core.
type App struct {
	Registry    *command.Registry
	Graph       *graph.Store
	Executor    *resilience.Executor
	DeadLetters *deadletter.Store
	Replay      *deadletter.Reprocessor
	Dispatcher  *dispatch.Dispatcher

	pools *db.Pools // nil when dead letters are in memory
}

// New wires the graph, executor, dead-letter store, and dispatcher from
// deps. When the config enables it, the expiry sweeper is started; Close
// stops it.
func New(ctx context.Context, deps Deps) (*App, error) {
	cfg := deps.Cfg
	if cfg == nil {
		return nil, fmt.Errorf("app: config is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clk := deps.Clock
	if clk == nil {
		clk = clock.Real()
	}

	// === Dead-letter repository ===
	var (
		pools *db.Pools
		repo  domain.DeadLetterRepository
	)
	if cfg.DBPath != "" {
		p, err := db.Open(ctx, cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open dead-letter database: %w", err)
		}
		pools = p
		repo = repository.NewDeadLetterRepo(p)
		logger.Info("dead letters stored in sqlite", "path", cfg.DBPath)
	} else {
		repo = deadletter.NewMemoryRepository()
	}

	// === Recovery executor ===
	exec, err := resilience.NewExecutor(ExecutorConfig(cfg),
		resilience.WithClock(clk), resilience.WithLogger(logger))
	if err != nil {
		closePools(pools)
		return nil, err
	}

	// === Dead-letter store ===
	dl := deadletter.NewStore(repo,
		deadletter.WithClock(clk), deadletter.WithLogger(logger), deadletter.WithTTL(cfg.DeadLetterTTL))
	if cfg.SweeperEnabled() {
		if err := dl.StartSweeper(cfg.SweepSchedule); err != nil {
			closePools(pools)
			return nil, err
		}
	}

	// === Graph + dispatcher ===
	registry := command.Catalog()
	store := graph.NewStore()
	dispatcher := dispatch.New(registry, store, exec,
		dispatch.WithLogger(logger), dispatch.WithDeadLetters(dl))

	return &App{
		Registry:    registry,
		Graph:       store,
		Executor:    exec,
		DeadLetters: dl,
		Replay:      deadletter.NewReprocessor(dl, ReplayConfig(cfg), logger),
		Dispatcher:  dispatcher,
		pools:       pools,
	}, nil
}

// ReplayDeadLetters resubmits parked commands matching filter.
func (a *App) ReplayDeadLetters(ctx context.Context, filter domain.DeadLetterFilter) (deadletter.ReplayResult, error) {
	return a.Replay.Replay(ctx, filter, a.Dispatcher.Resubmit)
}

// Close stops background work and closes the database.
func (a *App) Close() error {
	err := a.DeadLetters.Close()
	if a.pools != nil {
		err = errors.Join(err, a.pools.Close())
	}
	return err
}

func closePools(p *db.Pools) {
	if p != nil {
		_ = p.Close()
	}
}

// ExecutorConfig maps the loaded config onto executor settings.
func ExecutorConfig(cfg *config.Config) resilience.Config {
	rc := resilience.Config{
		Breaker: resilience.CircuitBreakerConfig{
			FailureThreshold:   cfg.FailureThreshold,
			RecoveryTimeWindow: cfg.RecoveryWindow,
		},
		MaxRetries: cfg.MaxRetries,
		Timeout:    cfg.OperationTimeout,
		Backoff: resilience.BackoffConfig{
			InitialInterval:     cfg.RetryInitialBackoff,
			MaxInterval:         cfg.RetryMaxBackoff,
			Multiplier:          resilience.DefaultBackoffConfig().Multiplier,
			RandomizationFactor: resilience.DefaultBackoffConfig().RandomizationFactor,
		},
	}
	if len(cfg.Policies) == 0 {
		return rc
	}
	rc.Operations = make(map[string]resilience.OperationPolicy, len(cfg.Policies))
	for name, p := range cfg.Policies {
		var op resilience.OperationPolicy
		if p.FailureThreshold != nil || p.RecoveryWindow != nil {
			b := rc.Breaker
			if p.FailureThreshold != nil {
				b.FailureThreshold = *p.FailureThreshold
			}
			if p.RecoveryWindow != nil {
				b.RecoveryTimeWindow = *p.RecoveryWindow
			}
			op.Breaker = &b
		}
		op.MaxRetries = p.MaxRetries
		if p.Timeout != nil {
			op.Timeout = *p.Timeout
		}
		rc.Operations[name] = op
	}
	return rc
}

// ReplayConfig maps the loaded config onto replay settings.
func ReplayConfig(cfg *config.Config) deadletter.ReplayConfig {
	return deadletter.ReplayConfig{
		RatePerSecond: cfg.ReplayRPS,
		Burst:         cfg.ReplayBurst,
		Concurrency:   cfg.ReplayConcurrency,
		MaxAttempts:   cfg.ReplayMaxAttempts,
	}
}
