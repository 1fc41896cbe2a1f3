package worker

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"hearth/internal/logger"
	"hearth/internal/services"
)

// Intervals configures the cadence of each background sweep.
type Intervals struct {
	Overdue   time.Duration
	Reminder  time.Duration
	Alert     time.Duration
	Reconcile time.Duration
}

// Sweeper runs the periodic maintenance loops: overdue detection,
// payment reminders, budget alerts and reconciliation. Every loop is
// idempotent, so overlapping or repeated runs are harmless.
type Sweeper struct {
	schedules  services.ScheduleServicer
	ledgers    services.LedgerServicer
	reconciler services.Reconciler
	intervals  Intervals
}

// NewSweeper creates a Sweeper.
func NewSweeper(schedules services.ScheduleServicer, ledgers services.LedgerServicer, reconciler services.Reconciler, intervals Intervals) *Sweeper {
	return &Sweeper{schedules: schedules, ledgers: ledgers, reconciler: reconciler, intervals: intervals}
}

// Run blocks until the context is cancelled, driving all sweep loops.
func (s *Sweeper) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.loop(ctx, "overdue", s.intervals.Overdue, func() error {
			n, err := s.schedules.CheckOverdue()
			if err != nil {
				return err
			}
			if n > 0 {
				logger.Get().Infow("overdue sweep", "transitioned", n)
			}
			return nil
		})
	})

	g.Go(func() error {
		return s.loop(ctx, "reminders", s.intervals.Reminder, func() error {
			n, err := s.schedules.CheckReminders()
			if err != nil {
				return err
			}
			if n > 0 {
				logger.Get().Infow("reminder sweep", "sent", n)
			}
			return nil
		})
	})

	g.Go(func() error {
		return s.loop(ctx, "budget alerts", s.intervals.Alert, func() error {
			n, err := s.ledgers.CheckBudgetAlerts()
			if err != nil {
				return err
			}
			if n > 0 {
				logger.Get().Infow("budget alert sweep", "alerts", n)
			}
			return nil
		})
	})

	g.Go(func() error {
		return s.loop(ctx, "reconcile", s.intervals.Reconcile, func() error {
			report, err := s.reconciler.Sweep()
			if err != nil {
				return err
			}
			if report.Converged > 0 || report.Failures > 0 {
				logger.Get().Infow("reconcile sweep",
					"examined", report.Examined,
					"converged", report.Converged,
					"created", report.TransactionsCreated,
					"pruned", report.TransactionsPruned,
					"failures", report.Failures,
				)
			}
			return nil
		})
	})

	return g.Wait()
}

// loop runs fn on a ticker until ctx is done. A failing pass is logged
// and retried at the next tick rather than tearing the worker down.
func (s *Sweeper) loop(ctx context.Context, name string, interval time.Duration, fn func() error) error {
	if interval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := fn(); err != nil {
				logger.Get().Errorw("sweep failed", "sweep", name, "error", err)
			}
		}
	}
}
