package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"vidpipe/internal/logging"
	"vidpipe/internal/server"
)

// ErrAlreadyRunning reports a held daemon lock.
var ErrAlreadyRunning = errors.New("another vidpipe daemon instance is already running")

// Daemon runs the API server and maintenance schedule around a Runtime and
// enforces single-instance execution.
type Daemon struct {
	rt       *Runtime
	logger   *slog.Logger
	server   *server.Server
	lockPath string
	lock     *flock.Flock

	running atomic.Bool
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	ActiveJobs   int
	LockFilePath string
	UsageDBPath  string
}

// New constructs a daemon over rt. The log hub may be nil.
func New(rt *Runtime, hub *logging.StreamHub) (*Daemon, error) {
	if rt == nil || rt.Config == nil || rt.Jobs == nil {
		return nil, errors.New("daemon requires a built runtime")
	}
	logger := rt.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	lockPath := rt.Config.LockPath()
	srv := server.New(rt.Config, rt.Jobs,
		server.WithLogger(logger),
		server.WithBackends(rt.Router),
		server.WithLogHub(hub),
		server.WithMetrics(rt.Metrics.Handler()),
	)
	return &Daemon{
		rt:       rt,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		server:   srv,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Run acquires the lock and serves until ctx ends, then drains jobs and
// shuts the server down within the configured timeout.
func (d *Daemon) Run(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return errors.New("daemon already running")
	}
	defer d.running.Store(false)

	if err := os.MkdirAll(d.rt.Config.Paths.LogDir, 0o755); err != nil {
		return fmt.Errorf("ensure log directory: %w", err)
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return ErrAlreadyRunning
	}
	defer func() {
		if err := d.lock.Unlock(); err != nil {
			d.logger.Warn("failed to release daemon lock", logging.Error(err))
		}
	}()

	scheduler, err := d.maintenance()
	if err != nil {
		return err
	}

	d.logger.Info("vidpipe daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lockPath),
		logging.String("bind", d.rt.Config.Server.Bind),
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return d.server.Start(groupCtx)
	})
	group.Go(func() error {
		scheduler.Start()
		<-groupCtx.Done()
		<-scheduler.Stop().Done()
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		timeout := time.Duration(d.rt.Config.Server.ShutdownTimeout) * time.Second
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := d.rt.Jobs.Shutdown(shutdownCtx); err != nil {
			logging.WarnWithContext(d.logger, "jobs did not drain before shutdown", "jobs_drain_timeout",
				logging.Int("active", d.rt.Jobs.Active()),
				logging.Error(err),
			)
		}
		return d.server.Shutdown(shutdownCtx)
	})

	err = group.Wait()
	d.logger.Info("vidpipe daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	status := Status{
		Running:      d.running.Load(),
		ActiveJobs:   d.rt.Jobs.Active(),
		LockFilePath: d.lockPath,
	}
	if d.rt.Store != nil {
		status.UsageDBPath = d.rt.Store.Path()
	}
	return status
}
