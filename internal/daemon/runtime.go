package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"vidpipe/internal/config"
	"vidpipe/internal/jobs"
	"vidpipe/internal/logging"
	"vidpipe/internal/metrics"
	"vidpipe/internal/notifications"
	"vidpipe/internal/pipeline"
	"vidpipe/internal/provider"
	"vidpipe/internal/services/content"
	"vidpipe/internal/services/editor"
	"vidpipe/internal/services/llm"
	"vidpipe/internal/services/transcribe"
	"vidpipe/internal/services/tts"
	"vidpipe/internal/services/upload"
)

// Runtime holds every wired component of a vidpipe process.
type Runtime struct {
	Config       *config.Config
	Logger       *slog.Logger
	Ledger       *provider.Ledger
	Health       *provider.Health
	Router       *provider.Router
	Store        *provider.SQLiteUsageStore
	Orchestrator *pipeline.Orchestrator
	Jobs         *jobs.Manager
	Metrics      *metrics.Collector
	Notifier     notifications.Service
	Uploader     *upload.Service
}

// BuildOption adjusts Build.
type BuildOption func(*buildOptions)

type buildOptions struct {
	httpClient *http.Client
	notifier   notifications.Service
	now        func() time.Time
}

// WithHTTPClient sets the client shared by the language-model backends.
func WithHTTPClient(client *http.Client) BuildOption {
	return func(o *buildOptions) { o.httpClient = client }
}

// WithNotifier overrides the ntfy notifier built from config.
func WithNotifier(n notifications.Service) BuildOption {
	return func(o *buildOptions) { o.notifier = n }
}

// WithClock overrides the time source for quota and health tracking.
func WithClock(now func() time.Time) BuildOption {
	return func(o *buildOptions) { o.now = now }
}

// Build wires the provider router, collaborator services, orchestrator, and
// job manager from cfg. When quota.store_path is set the usage ledger is
// mirrored to sqlite and seeded from it.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...BuildOption) (*Runtime, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	o := buildOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.notifier == nil {
		o.notifier = notifications.NewService(cfg)
	}

	rt := &Runtime{Config: cfg, Logger: logger, Notifier: o.notifier}

	ledgerOpts := []provider.LedgerOption{
		provider.WithLedgerClock(o.now),
		provider.WithLedgerLogger(logging.NewComponentLogger(logger, "quota")),
	}
	if cfg.Quota.StorePath != "" {
		store, err := provider.OpenUsageStore(ctx, cfg.Quota.StorePath)
		if err != nil {
			return nil, fmt.Errorf("open usage store: %w", err)
		}
		rt.Store = store
		ledgerOpts = append(ledgerOpts, provider.WithUsageSink(store))
	}
	rt.Ledger = provider.NewLedger(provider.QuotaLimits{
		Daily:    cfg.Quota.DailyLimit,
		Monthly:  cfg.Quota.MonthlyLimit,
		ResetDay: cfg.Quota.ResetDay,
	}, ledgerOpts...)
	if rt.Store != nil {
		records, err := rt.Store.LoadSince(ctx, o.now().Add(-provider.UsageRetention))
		if err != nil {
			_ = rt.Store.Close()
			return nil, fmt.Errorf("seed usage ledger: %w", err)
		}
		rt.Ledger.Seed(records)
		logger.Info("usage ledger seeded",
			logging.String(logging.FieldEventType, "ledger_seeded"),
			logging.Int("records", len(records)),
			logging.String("path", rt.Store.Path()),
		)
	}
	rt.Health = provider.NewHealth(cfg.HealthCooldown(), o.now)

	members, err := llm.BuildPool(cfg, o.httpClient)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("build backend pool: %w", err)
	}

	rt.Metrics = metrics.New(rt.Ledger, func() int {
		if rt.Jobs == nil {
			return 0
		}
		return rt.Jobs.Active()
	})
	rt.Router = provider.NewRouter(members, rt.Ledger, rt.Health,
		provider.WithClock(o.now),
		provider.WithTemperature(cfg.Providers.Temperature),
		provider.WithTokenEstimator(provider.EstimateTokens),
		provider.WithObserver(provider.MultiObserver(rt.Metrics, newBackendAlerts(o.notifier, logger))),
		provider.WithLogger(logger),
	)

	contentSvc := content.NewService(rt.Router, cfg.Tasks, content.WithLogger(logger))
	editorSvc := editor.New(cfg.Editing, cfg.Paths.WorkDir, editor.WithLogger(logger))
	rt.Uploader = upload.NewService(cfg.Upload, upload.WithLogger(logger))
	collab := pipeline.Collaborators{
		Subtitles: transcribe.NewService(cfg.Subtitles, transcribe.WithLogger(logger)),
		Analyzer:  contentSvc,
		Segmenter: contentSvc,
		Narrator:  tts.NewService(cfg.Narration, cfg.Paths.WorkDir, tts.WithConcatenator(editorSvc.ConcatAudio), tts.WithLogger(logger)),
		Editor:    editorSvc,
		Copyright: contentSvc,
		Sensitive: contentSvc,
		Uploader:  rt.Uploader,
	}
	rt.Orchestrator = pipeline.NewOrchestrator(collab,
		pipeline.WithLogger(logger),
		pipeline.WithClock(o.now),
		pipeline.WithStageObserver(rt.Metrics),
		pipeline.WithSensitiveCheck(cfg.Copyright.FlagSensitive),
	)
	rt.Jobs = jobs.NewManager(rt.Orchestrator,
		jobs.WithLogger(logger),
		jobs.WithNotifier(o.notifier),
		jobs.WithClock(o.now),
		jobs.WithMaxConcurrent(cfg.Jobs.MaxConcurrent),
		jobs.WithRetention(cfg.JobRetention()),
		jobs.WithSubscriberBuffer(cfg.Server.SubscriberBuffer),
		jobs.WithPlatforms(rt.Uploader.Limits()),
	)
	return rt, nil
}

// Close releases the usage store.
func (rt *Runtime) Close() error {
	if rt == nil || rt.Store == nil {
		return nil
	}
	return rt.Store.Close()
}
