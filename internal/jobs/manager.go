package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"vidpipe/internal/logging"
	"vidpipe/internal/notifications"
	"vidpipe/internal/pipeline"
	"vidpipe/internal/progress"
	"vidpipe/internal/services"
	"vidpipe/internal/services/upload"
)

// ErrNotFound reports an unknown job id.
var ErrNotFound = fmt.Errorf("%w: job", services.ErrNotFound)

// ErrShuttingDown reports a submission after Shutdown.
var ErrShuttingDown = errors.New("job manager shutting down")

// Runner executes one job. *pipeline.Orchestrator satisfies it.
type Runner interface {
	Run(ctx context.Context, job pipeline.Job, sink progress.Publisher) (pipeline.Result, error)
}

type entry struct {
	record Record
	job    pipeline.Job
	cancel context.CancelFunc
	hub    *progress.Broadcaster
	done   chan struct{}
}

// Manager runs jobs concurrently, tracks their records in memory, and fans
// their progress out to subscribers.
type Manager struct {
	runner    Runner
	notifier  notifications.Service
	logger    *slog.Logger
	now       func() time.Time
	platforms map[string]upload.Limits
	retention time.Duration
	buffer    int
	sem       *semaphore.Weighted

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	jobs   map[string]*entry
	closed bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithNotifier sets the notification service used on terminal states.
func WithNotifier(n notifications.Service) Option {
	return func(m *Manager) {
		if n != nil {
			m.notifier = n
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithMaxConcurrent bounds the number of jobs running at once.
func WithMaxConcurrent(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

// WithRetention sets how long terminal jobs stay visible.
func WithRetention(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.retention = d
		}
	}
}

// WithSubscriberBuffer sets the per-subscriber channel size.
func WithSubscriberBuffer(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.buffer = n
		}
	}
}

// WithPlatforms sets the upload limits jobs are validated against.
func WithPlatforms(platforms map[string]upload.Limits) Option {
	return func(m *Manager) {
		m.platforms = platforms
	}
}

// NewManager constructs a job manager around runner.
func NewManager(runner Runner, opts ...Option) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		runner:    runner,
		notifier:  notifications.NewService(nil),
		logger:    logging.NewNop(),
		now:       time.Now,
		retention: time.Hour,
		buffer:    16,
		sem:       semaphore.NewWeighted(2),
		ctx:       ctx,
		cancel:    cancel,
		jobs:      make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = logging.NewComponentLogger(m.logger, "jobs")
	return m
}

// Start validates job and schedules it. The returned record is in the
// pending state; progress arrives through Subscribe.
func (m *Manager) Start(job pipeline.Job) (Record, error) {
	job = job.Normalize()
	if err := job.Validate(m.platforms); err != nil {
		return Record{}, err
	}
	if strings.TrimSpace(job.ID) == "" {
		job.ID = uuid.NewString()
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return Record{}, ErrShuttingDown
	}
	if _, exists := m.jobs[job.ID]; exists {
		m.mu.Unlock()
		return Record{}, fmt.Errorf("%w: job %s already exists", services.ErrValidation, job.ID)
	}
	ctx, cancel := context.WithCancel(services.WithJobID(m.ctx, job.ID))
	now := m.now()
	e := &entry{
		record: Record{
			ID:        job.ID,
			Title:     job.Media.Title,
			Locator:   job.Media.Locator,
			Platform:  job.Upload.Platform,
			Status:    progress.StatusPending,
			CreatedAt: now,
		},
		job:    job,
		cancel: cancel,
		hub:    progress.NewBroadcaster(m.buffer),
		done:   make(chan struct{}),
	}
	m.jobs[job.ID] = e
	record := e.record
	m.wg.Add(1)
	m.mu.Unlock()

	e.hub.Publish(progress.State{Status: progress.StatusPending, At: now})
	m.logger.Info("job accepted",
		logging.String(logging.FieldEventType, "job_accepted"),
		logging.String(logging.FieldJobID, job.ID),
		logging.String("locator", job.Media.Locator),
	)

	go m.execute(ctx, e)
	return record, nil
}

func (m *Manager) execute(ctx context.Context, e *entry) {
	defer m.wg.Done()
	defer close(e.done)
	defer e.cancel()

	if err := m.sem.Acquire(ctx, 1); err != nil {
		m.finish(e, pipeline.Result{}, fmt.Errorf("%w before start: %w", pipeline.ErrCancelled, err))
		return
	}
	defer m.sem.Release(1)

	m.mu.Lock()
	e.record.Status = progress.StatusProcessing
	e.record.StartedAt = m.now()
	m.mu.Unlock()

	sink := progress.PublisherFunc(func(s progress.State) {
		m.mu.Lock()
		if s.Stage != "" {
			e.record.Stage = s.Stage
		}
		e.record.Progress = s.Progress
		if s.URL != "" {
			e.record.URL = s.URL
		}
		m.mu.Unlock()
		e.hub.Publish(s)
	})

	result, err := m.runner.Run(ctx, e.job, sink)
	m.finish(e, result, err)
}

func (m *Manager) finish(e *entry, result pipeline.Result, err error) {
	m.mu.Lock()
	rec := &e.record
	rec.FinishedAt = m.now()
	switch {
	case err == nil:
		rec.Status = progress.StatusCompleted
		rec.Progress = 100
		rec.URL = result.URL
	case errors.Is(err, pipeline.ErrCancelled):
		rec.Status = progress.StatusCancelled
	default:
		rec.Status = progress.StatusFailed
	}
	if err != nil {
		rec.Error = err.Error()
		rec.ErrorKind, rec.Hint = Classify(err)
		var gate *pipeline.CopyrightGateError
		if errors.As(err, &gate) {
			rec.Issues = slices.Clone(gate.Issues)
		}
	}
	final := *rec
	m.mu.Unlock()

	if latest, ok := e.hub.Latest(); !ok || !latest.Final() {
		e.hub.Publish(progress.State{
			Stage:    final.Stage,
			Status:   final.Status,
			Progress: final.Progress,
			Error:    final.Error,
			URL:      final.URL,
			At:       final.FinishedAt,
		})
	}
	e.hub.Close()

	logger := m.logger.With(logging.String(logging.FieldJobID, final.ID))
	switch final.Status {
	case progress.StatusCompleted:
		logger.Info("job completed",
			logging.String(logging.FieldEventType, "job_completed"),
			logging.String("url", final.URL),
		)
	case progress.StatusCancelled:
		logger.Info("job cancelled",
			logging.String(logging.FieldEventType, "job_cancelled"),
			logging.String(logging.FieldStage, string(final.Stage)),
		)
	default:
		logging.WarnWithContext(logger, "job failed", "job_failed",
			logging.String(logging.FieldStage, string(final.Stage)),
			logging.String("error_kind", final.ErrorKind),
			logging.String(logging.FieldErrorHint, final.Hint),
			logging.Error(err),
		)
	}

	// Off the job goroutine: a slow ntfy endpoint must hold neither the
	// concurrency slot nor Wait. Shutdown still waits for it through wg.
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.notify(final)
	}()
}

func (m *Manager) notify(rec Record) {
	var (
		event   notifications.Event
		payload = notifications.Payload{"jobID": rec.ID, "title": rec.Title}
	)
	switch {
	case rec.Status == progress.StatusCompleted:
		event = notifications.EventJobCompleted
		payload["url"] = rec.URL
	case rec.ErrorKind == KindContentPolicy:
		event = notifications.EventCopyrightRejected
		payload["issues"] = strings.Join(rec.Issues, ", ")
	case rec.Status == progress.StatusFailed:
		event = notifications.EventJobFailed
		payload["stage"] = string(rec.Stage)
		payload["error"] = rec.Error
	default:
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := m.notifier.Publish(ctx, event, payload); err != nil {
		logging.WarnWithContext(m.logger, "notification failed", "notification_failed",
			logging.String(logging.FieldJobID, rec.ID),
			logging.String("event", string(event)),
			logging.String(logging.FieldImpact, "operator was not notified of the job outcome"),
			logging.Error(err),
		)
	}
}

// Get returns the record for id.
func (m *Manager) Get(id string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.jobs[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return e.record, nil
}

// List returns all known jobs, newest first.
func (m *Manager) List() []Record {
	m.mu.RLock()
	out := make([]Record, 0, len(m.jobs))
	for _, e := range m.jobs {
		out = append(out, e.record)
	}
	m.mu.RUnlock()
	slices.SortFunc(out, func(a, b Record) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// Cancel requests cancellation of id. Cancelling a finished job is a no-op.
func (m *Manager) Cancel(id string) (Record, error) {
	m.mu.RLock()
	e, ok := m.jobs[id]
	m.mu.RUnlock()
	if !ok {
		return Record{}, ErrNotFound
	}
	e.cancel()
	m.logger.Info("job cancellation requested",
		logging.String(logging.FieldEventType, "job_cancel_requested"),
		logging.String(logging.FieldJobID, id),
	)
	return m.Get(id)
}

// Subscribe returns the progress stream for id and its unsubscribe func.
// The latest snapshot is replayed first; the channel closes when the job
// ends or the subscriber unsubscribes.
func (m *Manager) Subscribe(id string) (<-chan progress.State, func(), error) {
	m.mu.RLock()
	e, ok := m.jobs[id]
	m.mu.RUnlock()
	if !ok {
		return nil, nil, ErrNotFound
	}
	ch, unsubscribe := e.hub.Subscribe()
	return ch, unsubscribe, nil
}

// Wait blocks until id terminates or ctx ends.
func (m *Manager) Wait(ctx context.Context, id string) (Record, error) {
	m.mu.RLock()
	e, ok := m.jobs[id]
	m.mu.RUnlock()
	if !ok {
		return Record{}, ErrNotFound
	}
	select {
	case <-e.done:
		return m.Get(id)
	case <-ctx.Done():
		return Record{}, ctx.Err()
	}
}

// EvictExpired drops terminal jobs finished longer than the retention ago.
func (m *Manager) EvictExpired() int {
	cutoff := m.now().Add(-m.retention)
	m.mu.Lock()
	defer m.mu.Unlock()
	evicted := 0
	for id, e := range m.jobs {
		if e.record.Terminal() && !e.record.FinishedAt.IsZero() && e.record.FinishedAt.Before(cutoff) {
			delete(m.jobs, id)
			evicted++
		}
	}
	if evicted > 0 {
		m.logger.Debug("evicted expired jobs", logging.Int("count", evicted))
	}
	return evicted
}

// Active returns the number of jobs not yet terminal.
func (m *Manager) Active() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	active := 0
	for _, e := range m.jobs {
		if !e.record.Terminal() {
			active++
		}
	}
	return active
}

// Shutdown rejects new jobs, cancels running ones, and waits for them to
// finish or ctx to end.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
