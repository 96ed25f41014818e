package daemon

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"vidpipe/internal/logging"
)

const maintenanceTimeout = 2 * time.Minute

// maintenance builds the cron schedule. Empty schedules disable a task.
func (d *Daemon) maintenance() (*cron.Cron, error) {
	scheduler := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	cfg := d.rt.Config.Maintenance
	tasks := []struct {
		name     string
		schedule string
		run      func(context.Context)
	}{
		{"probe", cfg.ProbeSchedule, d.probeBackends},
		{"prune", cfg.PruneSchedule, d.pruneUsage},
		{"evict", cfg.EvictSchedule, d.evictJobs},
	}
	for _, task := range tasks {
		if task.schedule == "" {
			continue
		}
		run := task.run
		if _, err := scheduler.AddFunc(task.schedule, func() {
			ctx, cancel := context.WithTimeout(context.Background(), maintenanceTimeout)
			defer cancel()
			run(ctx)
		}); err != nil {
			return nil, fmt.Errorf("schedule %s maintenance %q: %w", task.name, task.schedule, err)
		}
	}
	return scheduler, nil
}

func (d *Daemon) probeBackends(ctx context.Context) {
	if recovered := d.rt.Router.Probe(ctx); len(recovered) > 0 {
		d.logger.Info("backends recovered",
			logging.String(logging.FieldEventType, "backends_recovered"),
			logging.Any("backends", recovered),
		)
	}
}

func (d *Daemon) pruneUsage(ctx context.Context) {
	removed, err := d.rt.Ledger.Prune(ctx, time.Now())
	if err != nil {
		logging.WarnWithContext(d.logger, "usage prune failed", "usage_prune_failed",
			logging.String(logging.FieldImpact, "usage store keeps growing until the next prune"),
			logging.Error(err),
		)
		return
	}
	d.logger.Debug("usage pruned", logging.Int("records", removed))
}

func (d *Daemon) evictJobs(context.Context) {
	if evicted := d.rt.Jobs.EvictExpired(); evicted > 0 {
		d.logger.Info("expired jobs evicted",
			logging.String(logging.FieldEventType, "jobs_evicted"),
			logging.Int("count", evicted),
		)
	}
}
