package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"vidpipe/internal/logging"
	"vidpipe/internal/progress"
	"vidpipe/internal/services"
)

// StageObserver receives the outcome of every stage that ran.
type StageObserver interface {
	StageFinished(stage progress.Stage, status progress.Status, elapsed time.Duration)
}

// Result is the outcome of a successful run.
type Result struct {
	URL       string    `json:"url"`
	Artifacts Artifacts `json:"artifacts"`
}

// Orchestrator runs jobs through the stage sequence.
type Orchestrator struct {
	collab        Collaborators
	logger        *slog.Logger
	now           func() time.Time
	observer      StageObserver
	flagSensitive bool
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the orchestrator logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logging.NewComponentLogger(logger, "pipeline")
		}
	}
}

// WithClock injects the time source used for snapshots and stage timing.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithStageObserver registers a stage outcome observer.
func WithStageObserver(observer StageObserver) Option {
	return func(o *Orchestrator) {
		o.observer = observer
	}
}

// WithSensitiveCheck runs sensitive-content detection inside the copyright
// stage. Detector errors count as sensitive.
func WithSensitiveCheck(enabled bool) Option {
	return func(o *Orchestrator) {
		o.flagSensitive = enabled
	}
}

// NewOrchestrator constructs an orchestrator over the given collaborators.
func NewOrchestrator(collab Collaborators, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		collab: collab,
		logger: logging.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes job and publishes progress snapshots to sink. The job must
// already be normalized and validated. On failure the returned Result still
// carries the artifacts produced before the failing stage.
func (o *Orchestrator) Run(ctx context.Context, job Job, sink progress.Publisher) (Result, error) {
	if sink == nil {
		sink = progress.Discard
	}
	ctx = services.WithJobID(ctx, job.ID)
	logger := logging.WithContext(ctx, o.logger)

	r := &run{
		job:      job,
		produced: make(map[progress.Stage]bool, len(progress.Stages)),
	}
	r.publish = func(s progress.State) {
		if s.At.IsZero() {
			s.At = o.now()
		}
		sink.Publish(s)
	}

	logger.Info("pipeline started",
		logging.String(logging.FieldEventType, "pipeline_start"),
		logging.String("locator", job.Media.Locator),
		logging.String("platform", job.Upload.Platform),
	)
	started := o.now()

	for _, runner := range o.runners() {
		if err := ctx.Err(); err != nil {
			return o.cancelled(logger, r, runner.stage, err)
		}
		if !runner.enabled(job.Stages) {
			logger.Debug("stage disabled", logging.String(logging.FieldStage, string(runner.stage)))
			continue
		}
		if missing := r.missing(runner.requires); len(missing) > 0 {
			logger.Info("stage skipped",
				logging.String(logging.FieldEventType, "stage_skipped"),
				logging.String(logging.FieldStage, string(runner.stage)),
				logging.Any("missing", missing),
			)
			continue
		}
		if err := o.execute(ctx, r, runner); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return o.cancelled(logger, r, runner.stage, ctxErr)
			}
			return Result{Artifacts: r.artifacts}, &StageError{Stage: runner.stage, Err: err}
		}
	}

	result := Result{URL: r.artifacts.Upload.URL, Artifacts: r.artifacts}
	logger.Info("pipeline completed",
		logging.String(logging.FieldEventType, "pipeline_complete"),
		logging.String("url", result.URL),
		logging.Duration("elapsed", o.now().Sub(started)),
	)
	return result, nil
}

func (o *Orchestrator) execute(ctx context.Context, r *run, runner stageRunner) error {
	stageCtx := services.WithStage(ctx, string(runner.stage))
	logger := logging.WithContext(stageCtx, o.logger)
	started := o.now()

	logger.Info("stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.Float64("progress", r.current()),
	)
	r.publish(progress.State{Stage: runner.stage, Status: progress.StatusProcessing, Progress: r.current()})

	err := runner.run(stageCtx, r)
	elapsed := o.now().Sub(started)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		o.observe(runner.stage, progress.StatusFailed, elapsed)
		details := services.Details(err)
		event := "stage_failure"
		if errors.Is(err, ErrCopyrightRejected) {
			event = "copyright_rejected"
		}
		logging.ErrorWithContext(logger, "stage failed", event,
			logging.Error(err),
			logging.String(logging.FieldErrorHint, details.Hint),
			logging.Float64("progress", r.current()),
		)
		r.publish(progress.State{
			Stage:    runner.stage,
			Status:   progress.StatusFailed,
			Progress: r.current(),
			Error:    err.Error(),
		})
		return err
	}

	r.produced[runner.stage] = true
	reached := r.advance(progress.Checkpoint(runner.stage))
	o.observe(runner.stage, progress.StatusCompleted, elapsed)
	state := progress.State{Stage: runner.stage, Status: progress.StatusCompleted, Progress: reached}
	if runner.stage == progress.StageUpload {
		state.URL = r.artifacts.Upload.URL
	}
	r.publish(state)
	logger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Float64("progress", reached),
		logging.Duration("elapsed", elapsed),
	)
	return nil
}

func (o *Orchestrator) cancelled(logger *slog.Logger, r *run, stage progress.Stage, cause error) (Result, error) {
	o.observe(stage, progress.StatusCancelled, 0)
	logging.WarnWithContext(logger, "pipeline cancelled", "pipeline_cancelled",
		logging.String(logging.FieldStage, string(stage)),
		logging.Float64("progress", r.current()),
		logging.Error(cause),
	)
	r.publish(progress.State{
		Stage:    stage,
		Status:   progress.StatusCancelled,
		Progress: r.current(),
		Error:    ErrCancelled.Error(),
	})
	return Result{Artifacts: r.artifacts}, fmt.Errorf("%w at %s: %w", ErrCancelled, stage, cause)
}

func (o *Orchestrator) observe(stage progress.Stage, status progress.Status, elapsed time.Duration) {
	if o.observer != nil {
		o.observer.StageFinished(stage, status, elapsed)
	}
}
