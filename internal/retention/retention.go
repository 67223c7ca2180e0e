// Package retention physically deletes tombstoned documents once they age
// past the configured retention period. Soft deletes set _expires_at; the
// sweep removes the rows for real so collections do not grow without bound.
package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"github.com/stewones/borda-sub001/pkg/config"
	"github.com/stewones/borda-sub001/pkg/logger"
	"github.com/stewones/borda-sub001/pkg/schema"
	"github.com/stewones/borda-sub001/pkg/server/store"
)

// Sweeper runs the scheduled tombstone sweep against the server store.
type Sweeper struct {
	store  *store.Store
	reg    *schema.Registry
	cron   string
	period time.Duration
}

// New builds a sweeper from the retention config. It returns an error when
// the cron expression or period cannot be parsed.
func New(st *store.Store, reg *schema.Registry, cfg config.RetentionConfig) (*Sweeper, error) {
	cronExpr := cfg.Cron
	if cronExpr == "" {
		cronExpr = "0 3 * * *"
	}
	if !gronx.IsValid(cronExpr) {
		return nil, fmt.Errorf("invalid retention cron expression: %s", cfg.Cron)
	}
	periodStr := cfg.Period
	if periodStr == "" {
		periodStr = "720h"
	}
	period, err := time.ParseDuration(periodStr)
	if err != nil {
		return nil, fmt.Errorf("invalid retention period %q: %w", cfg.Period, err)
	}
	if period <= 0 {
		return nil, fmt.Errorf("retention period must be positive, got %s", period)
	}
	return &Sweeper{store: st, reg: reg, cron: cronExpr, period: period}, nil
}

// Start launches the scheduler goroutine and returns its cancel func.
func (s *Sweeper) Start(ctx context.Context) context.CancelFunc {
	ctx2, cancel := context.WithCancel(ctx)
	logger.Info("retention_enabled", "cron", s.cron, "period", s.period.String())
	go s.runScheduler(ctx2)
	return cancel
}

// runScheduler computes the next tick for the cron expression and sleeps
// until that time, so full cron syntax is honored without polling.
func (s *Sweeper) runScheduler(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("retention_scheduler_stopping")
			return
		default:
		}

		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(s.cron, now, false)
		if err != nil {
			logger.Error("retention_nexttick_failed", "cron", s.cron, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				logger.Info("retention_scheduler_stopping")
				return
			}
			continue
		}

		select {
		case <-time.After(time.Until(next)):
			if err := s.RunOnce(ctx); err != nil {
				logger.Error("retention_run_error", "error", err)
			}
		case <-ctx.Done():
			logger.Info("retention_scheduler_stopping")
			return
		}
	}
}

// RunOnce sweeps every registered collection, deleting documents whose
// _expires_at is older than now minus the retention period. The tombstoning
// update already notified live subscribers, so the physical delete is silent.
func (s *Sweeper) RunOnce(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-s.period)
	var total int64
	for _, name := range s.reg.Names() {
		n, err := s.store.DeleteExpiredBefore(ctx, name, cutoff)
		if err != nil {
			return fmt.Errorf("failed to sweep collection %s: %w", name, err)
		}
		if n > 0 {
			logger.Info("retention_swept", "collection", name, "deleted", n)
		}
		total += n
	}
	logger.Info("retention_run_complete", "cutoff", cutoff.Format(time.RFC3339), "deleted", total)
	return nil
}
