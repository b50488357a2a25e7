package persistence

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Retention prunes ledger rows older than a fixed age on a cron schedule.
type Retention struct {
	ledger *Ledger
	keep   time.Duration
	logger *slog.Logger
	cron   *cron.Cron
}

// NewRetention validates schedule (standard five-field cron or a descriptor
// such as "@daily") and returns a scheduler that is not yet running.
func NewRetention(ledger *Ledger, keep time.Duration, schedule string, logger *slog.Logger) (*Retention, error) {
	if keep <= 0 {
		return nil, fmt.Errorf("usage retention must be positive, got %s", keep)
	}
	if logger == nil {
		logger = slog.Default()
	}

	r := &Retention{
		ledger: ledger,
		keep:   keep,
		logger: logger,
		cron:   cron.New(cron.WithLocation(time.UTC)),
	}
	if _, err := r.cron.AddFunc(schedule, r.scheduledPrune); err != nil {
		return nil, fmt.Errorf("invalid usage prune schedule %q: %w", schedule, err)
	}
	return r, nil
}

// PruneOnce removes every row older than the retention window.
func (r *Retention) PruneOnce(ctx context.Context) (int64, error) {
	return r.ledger.Prune(ctx, r.ledger.now().Add(-r.keep))
}

func (r *Retention) scheduledPrune() {
	if _, err := r.PruneOnce(context.Background()); err != nil {
		r.logger.Error("scheduled usage prune failed", "error", err)
	}
}

// Run starts the schedule and blocks until ctx is cancelled. A last prune runs
// after the scheduler has stopped.
func (r *Retention) Run(ctx context.Context) error {
	r.cron.Start()
	r.logger.Debug("usage prune scheduler started", "retention", r.keep.String())

	<-ctx.Done()
	<-r.cron.Stop().Done()

	if _, err := r.PruneOnce(context.Background()); err != nil {
		r.logger.Warn("final usage prune failed", "error", err)
	}
	return nil
}
