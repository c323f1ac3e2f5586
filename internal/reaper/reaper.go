package reaper

import (
	"context"
	"log/slog"
	"time"

	sl "stox_auth/internal/lib/logger"
)

// Store is the retention slice of the postgres repo.
type Store interface {
	DeleteDeadRefreshTokens(ctx context.Context, expiredBefore time.Time) (int64, error)
	DeleteExpiredResetTokens(ctx context.Context) (int64, error)
}

// Reaper sweeps long-dead credentials on an interval. Purely housekeeping:
// validation re-checks expiry and revocation at read time, so correctness
// never depends on a sweep having run.
type Reaper struct {
	log       *slog.Logger
	store     Store
	interval  time.Duration
	retention time.Duration
}

func New(log *slog.Logger, store Store, interval, retention time.Duration) *Reaper {
	return &Reaper{
		log:       log,
		store:     store,
		interval:  interval,
		retention: retention,
	}
}

// Run blocks until the context is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *Reaper) sweep(ctx context.Context) {
	const op = "reaper.sweep"

	log := r.log.With(slog.String("op", op))

	cutoff := time.Now().Add(-r.retention)

	refreshRemoved, err := r.store.DeleteDeadRefreshTokens(ctx, cutoff)
	if err != nil {
		log.Error("failed to sweep refresh tokens", sl.Err(err))
	}

	resetRemoved, err := r.store.DeleteExpiredResetTokens(ctx)
	if err != nil {
		log.Error("failed to sweep reset tokens", sl.Err(err))
	}

	if refreshRemoved > 0 || resetRemoved > 0 {
		log.Info("swept dead credentials",
			slog.Int64("refresh_tokens", refreshRemoved),
			slog.Int64("reset_tokens", resetRemoved),
		)
	}
}
