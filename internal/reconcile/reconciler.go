// Package reconcile periodically aligns the instance registry with the
// provider's view of instance statuses. It covers instances with no active
// connection attempt; attempts in flight are owned by the coordinator.
package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/helioscrm/walink/internal/instances"
	"github.com/helioscrm/walink/internal/provider"
)

const defaultSchedule = "@every 1m"

// statusSource answers full status snapshots.
type statusSource interface {
	FetchStatuses(ctx context.Context, ids []string) ([]provider.InstanceStatus, error)
}

// Reconciler runs the scheduled snapshot sync.
type Reconciler struct {
	source   statusSource
	store    *instances.Store
	logger   *slog.Logger
	schedule string
	timeout  time.Duration
	cron     *cron.Cron
	runs     atomic.Uint64
}

// New creates a reconciler. An empty schedule means every minute.
func New(source statusSource, store *instances.Store, schedule string, logger *slog.Logger) *Reconciler {
	if schedule == "" {
		schedule = defaultSchedule
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		source:   source,
		store:    store,
		logger:   logger,
		schedule: schedule,
		timeout:  30 * time.Second,
		cron:     cron.New(),
	}
}

// Start registers the cron job and begins the schedule.
func (r *Reconciler) Start() error {
	_, err := r.cron.AddFunc(r.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		if err := r.RunOnce(ctx); err != nil {
			r.logger.Warn("reconcile run failed", "error", err)
		}
	})
	if err != nil {
		return err
	}
	r.cron.Start()
	r.logger.Info("status reconciler started", "schedule", r.schedule)
	return nil
}

// Stop halts the schedule and waits for a running job to finish.
func (r *Reconciler) Stop() {
	<-r.cron.Stop().Done()
}

// Runs reports how many reconcile passes have started.
func (r *Reconciler) Runs() uint64 {
	return r.runs.Load()
}

// RunOnce fetches one full snapshot and upserts every reported status.
// Status drift against the registry is logged before being overwritten.
func (r *Reconciler) RunOnce(ctx context.Context) error {
	r.runs.Add(1)
	statuses, err := r.source.FetchStatuses(ctx, nil)
	if err != nil {
		return err
	}

	updated := 0
	for _, st := range statuses {
		prev, err := r.store.Get(ctx, st.InstanceID)
		switch {
		case errors.Is(err, instances.ErrNotFound):
			// New to the registry; recorded below.
		case err != nil:
			return err
		case prev.Status != st.Status:
			r.logger.Info("instance status drifted",
				"instance_id", st.InstanceID,
				"stored", prev.Status,
				"reported", st.Status)
		}
		if err := r.store.SetStatus(ctx, st.InstanceID, st.Status, "reconcile"); err != nil {
			return err
		}
		updated++
	}

	r.logger.Debug("reconcile run completed", "instances", updated)
	return nil
}
