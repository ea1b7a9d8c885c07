package scheduler

import (
	"context"
	"log/slog"
	"time"
)

const (
	JobReconcileCounters     = "reconcile-counters"
	JobPurgeNotifications    = "purge-notifications"
	NotificationRetention    = 90 * 24 * time.Hour
	defaultReconcileSchedule = "@every 15m"
	defaultPurgeSchedule     = "@daily"
)

// CounterReconciler repairs denormalized post counters and poll tallies.
type CounterReconciler interface {
	Reconcile(ctx context.Context) (int64, error)
}

// NotificationPurger deletes read notifications older than a given age.
type NotificationPurger interface {
	PurgeRead(ctx context.Context, age time.Duration) (int64, error)
}

// Schedules holds the cron expressions for the maintenance jobs. Empty
// fields fall back to the defaults.
type Schedules struct {
	Reconcile string
	Purge     string
}

// RegisterMaintenance adds the counter reconciliation and notification purge
// jobs.
func (s *Scheduler) RegisterMaintenance(sched Schedules, reconciler CounterReconciler, purger NotificationPurger) error {
	if sched.Reconcile == "" {
		sched.Reconcile = defaultReconcileSchedule
	}
	if sched.Purge == "" {
		sched.Purge = defaultPurgeSchedule
	}

	if reconciler != nil {
		if err := s.AddJob(JobReconcileCounters, sched.Reconcile, s.reconcileJob(reconciler)); err != nil {
			return err
		}
	}
	if purger != nil {
		if err := s.AddJob(JobPurgeNotifications, sched.Purge, s.purgeJob(purger)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) reconcileJob(r CounterReconciler) Job {
	return func(ctx context.Context) error {
		repaired, err := r.Reconcile(ctx)
		if err != nil {
			return err
		}
		if repaired > 0 {
			s.logger.Warn("counter drift repaired", slog.Int64("posts", repaired))
		}
		return nil
	}
}

func (s *Scheduler) purgeJob(p NotificationPurger) Job {
	return func(ctx context.Context) error {
		purged, err := p.PurgeRead(ctx, NotificationRetention)
		if err != nil {
			return err
		}
		s.logger.Info("notifications purged", slog.Int64("count", purged))
		return nil
	}
}
