// Package controlplane holds service-level glue that is not HTTP handling:
// the retention reaper and its wiring helpers.
package controlplane

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/skylinehq/skyline/internal/postgres"
	"github.com/skylinehq/skyline/internal/taskstore"
	"github.com/skylinehq/skyline/pkg/telemetry"
)

// Reaper periodically evicts terminal tasks older than the retention window
// from the in-memory store. Evicted snapshots are archived so GET by ID
// keeps working after eviction.
type Reaper struct {
	store     taskstore.Store
	archive   postgres.TaskArchive
	retention time.Duration
	cron      *cron.Cron
	logger    *slog.Logger
}

// NewReaper creates a Reaper. archive may be nil when archiving is disabled.
func NewReaper(store taskstore.Store, archive postgres.TaskArchive, retention time.Duration, logger *slog.Logger) *Reaper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reaper{
		store:     store,
		archive:   archive,
		retention: retention,
		cron:      cron.New(),
		logger:    logger,
	}
}

// Start schedules the sweep on the given cron expression and starts the
// scheduler. Returns an error for an invalid expression.
func (r *Reaper) Start(schedule string) error {
	if _, err := r.cron.AddFunc(schedule, r.sweep); err != nil {
		return err
	}
	r.cron.Start()
	r.logger.Info("reaper started",
		slog.String("schedule", schedule),
		slog.Duration("retention", r.retention),
	)
	return nil
}

// Stop halts the scheduler and waits for a running sweep to finish.
func (r *Reaper) Stop() {
	<-r.cron.Stop().Done()
}

func (r *Reaper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	evicted := r.store.Sweep(r.retention)
	if len(evicted) == 0 {
		return
	}

	for _, snap := range evicted {
		if r.archive == nil {
			continue
		}
		if err := r.archive.Insert(ctx, snap); err != nil {
			r.logger.Error("archive evicted task",
				slog.String("task_id", snap.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	telemetry.TasksLive.Sub(float64(len(evicted)))
	telemetry.TasksEvictedTotal.Add(float64(len(evicted)))
	r.logger.Info("reaper sweep", slog.Int("evicted", len(evicted)))
}
