package deadletter

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/JoshuaRamirez/ACS-sub004/internal/domain"
)

// Handler resubmits one dead-lettered command. A nil error means the command
// went through and the entry can be dropped.
type Handler func(ctx context.Context, c domain.FailedCommand) error

// ReplayConfig paces and bounds a replay run.
type ReplayConfig struct {
	// RatePerSecond caps how fast entries are handed to the handler.
	// Zero or negative means unlimited.
	RatePerSecond float64
	Burst         int
	Concurrency   int
	// MaxAttempts discards an entry once its attempt number reaches it.
	// Zero keeps entries forever.
	MaxAttempts int
}

// DefaultReplayConfig returns 10 per second, one at a time per tick, four
// in flight, and ten attempts before discard.
func DefaultReplayConfig() ReplayConfig {
	return ReplayConfig{RatePerSecond: 10, Burst: 1, Concurrency: 4, MaxAttempts: 10}
}

// ReplayResult counts the outcome of a replay run.
type ReplayResult struct {
	Replayed  int `json:"replayed"`
	Failed    int `json:"failed"`
	Discarded int `json:"discarded"`
}

// Reprocessor replays dead-lettered commands through a Handler.
type Reprocessor struct {
	store  *Store
	cfg    ReplayConfig
	logger *slog.Logger
}

// NewReprocessor creates a Reprocessor.
func NewReprocessor(store *Store, cfg ReplayConfig, logger *slog.Logger) *Reprocessor {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reprocessor{store: store, cfg: cfg, logger: logger.With("component", "dead-letter-replay")}
}

func (r *Reprocessor) limiter() *rate.Limiter {
	if r.cfg.RatePerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, r.cfg.Burst)
	}
	return rate.NewLimiter(rate.Limit(r.cfg.RatePerSecond), r.cfg.Burst)
}

// Replay hands every live entry matching filter to handler, page by page.
// Successful entries are removed; failed ones have their attempt recorded and
// are discarded once they reach MaxAttempts. Handler errors do not stop the
// run; store errors and cancellation do.
func (r *Reprocessor) Replay(ctx context.Context, filter domain.DeadLetterFilter, handler Handler) (ReplayResult, error) {
	var res ReplayResult
	limiter := r.limiter()
	page := filter.Page
	for {
		f := filter
		f.Page = page
		entries, _, err := r.store.Peek(ctx, f)
		if err != nil {
			return res, err
		}
		if len(entries) == 0 {
			break
		}
		// Removed entries shift later ones forward; only kept ones are skipped.
		kept, err := r.replayPage(ctx, limiter, entries, handler, &res)
		if err != nil {
			return res, err
		}
		if len(entries) < page.Limit() {
			break
		}
		page.After = domain.Cursor{Position: page.Offset() + kept}
	}
	r.logger.Info("replay finished",
		"replayed", res.Replayed, "failed", res.Failed, "discarded", res.Discarded)
	return res, nil
}

// replayPage runs one page of entries and returns how many stayed parked.
func (r *Reprocessor) replayPage(
	ctx context.Context,
	limiter *rate.Limiter,
	entries []domain.FailedCommand,
	handler Handler,
	res *ReplayResult,
) (int, error) {
	var (
		mu   sync.Mutex
		kept int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)

	var waitErr error
	for _, entry := range entries {
		if err := limiter.Wait(gctx); err != nil {
			waitErr = err
			break
		}
		g.Go(func() error {
			herr := handler(gctx, entry)
			if herr == nil {
				if err := r.store.Remove(gctx, entry.ID); err != nil {
					return err
				}
				mu.Lock()
				res.Replayed++
				mu.Unlock()
				return nil
			}

			updated, err := r.store.RecordAttempt(gctx, entry.ID, herr)
			if err != nil {
				return err
			}
			if r.cfg.MaxAttempts > 0 && updated.AttemptNumber >= r.cfg.MaxAttempts {
				if err := r.store.Remove(gctx, entry.ID); err != nil {
					return err
				}
				r.logger.Warn("discarding dead letter after max attempts",
					"id", entry.ID, "command_type", entry.CommandType, "attempts", updated.AttemptNumber, "error", herr)
				mu.Lock()
				res.Discarded++
				mu.Unlock()
				return nil
			}
			r.logger.Debug("replay failed", "id", entry.ID, "attempts", updated.AttemptNumber, "error", herr)
			mu.Lock()
			res.Failed++
			kept++
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return kept, err
	}
	return kept, waitErr
}
