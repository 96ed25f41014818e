package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"time"

	"golang.org/x/time/rate"

	"vidpipe/internal/logging"
	"vidpipe/internal/services"
)

const probePrompt = "Reply with OK."

// Router routes prompts across a pool of backends.
type Router struct {
	members     []routed
	ledger      *Ledger
	health      *Health
	temperature float64
	now         func() time.Time
	estimate    TokenEstimator
	observer    Observer
	logger      *slog.Logger
}

type routed struct {
	Member
	limiter *rate.Limiter
}

// Option configures a Router.
type Option func(*Router)

// WithClock overrides the router clock.
func WithClock(now func() time.Time) Option {
	return func(r *Router) {
		if now != nil {
			r.now = now
		}
	}
}

// WithTemperature sets the default sampling temperature.
func WithTemperature(t float64) Option {
	return func(r *Router) { r.temperature = t }
}

// WithTokenEstimator overrides token estimation for backends that do not report usage.
func WithTokenEstimator(fn TokenEstimator) Option {
	return func(r *Router) {
		if fn != nil {
			r.estimate = fn
		}
	}
}

// WithObserver registers an observer for attempts, usage, and outages.
func WithObserver(o Observer) Option {
	return func(r *Router) {
		if o != nil {
			r.observer = o
		}
	}
}

// WithLogger sets the router logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRouter constructs a router over members sharing ledger and health.
func NewRouter(members []Member, ledger *Ledger, health *Health, opts ...Option) *Router {
	r := &Router{
		ledger:      ledger,
		health:      health,
		temperature: 0.7,
		now:         time.Now,
		estimate:    EstimateTokens,
		observer:    nopObserver{},
		logger:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	for _, m := range members {
		limit := rate.Inf
		if rpm := m.Descriptor.RequestsPerMinute; rpm > 0 {
			limit = rate.Every(time.Minute / time.Duration(rpm))
		}
		r.members = append(r.members, routed{Member: m, limiter: rate.NewLimiter(limit, 1)})
	}
	return r
}

// Ledger returns the shared quota ledger.
func (r *Router) Ledger() *Ledger { return r.ledger }

// Health returns the shared health tracker.
func (r *Router) Health() *Health { return r.health }

// Descriptors returns the pool in configuration order.
func (r *Router) Descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(r.members))
	for _, m := range r.members {
		out = append(out, m.Descriptor)
	}
	return out
}

// Route sends prompt to the first healthy, in-budget backend that succeeds.
func (r *Router) Route(ctx context.Context, prompt string, opts RequestOptions) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	candidates := r.candidates(opts.PreferredBackend, r.now())
	if len(candidates) == 0 {
		return Response{}, ErrNoAvailableBackends
	}

	var (
		attempted []string
		lastErr   error
	)
	for _, m := range candidates {
		id := m.Descriptor.ID
		resp, err := r.try(ctx, m, prompt, opts)
		if err == nil {
			return resp, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Response{}, ctxErr
		}
		attempted = append(attempted, id)
		lastErr = err
		r.health.MarkFailure(id, err.Error())
		r.observer.BackendDown(id, err.Error())
		logging.WarnWithContext(logging.WithContext(ctx, r.logger), "backend marked unavailable", "backend_down",
			logging.String(logging.FieldBackend, id),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check backend credentials and endpoint"),
			logging.String(logging.FieldImpact, "requests fall over to the next backend"),
		)
	}
	return Response{}, &AllBackendsExhaustedError{Attempted: attempted, Last: lastErr}
}

func (r *Router) candidates(preferred string, now time.Time) []routed {
	var out []routed
	for _, m := range r.members {
		id := m.Descriptor.ID
		if r.health.Available(id) && r.ledger.WithinBudget(id, now) {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Descriptor.Priority < out[j].Descriptor.Priority
	})
	if preferred == "" {
		return out
	}
	if idx := slices.IndexFunc(out, func(m routed) bool { return m.Descriptor.ID == preferred }); idx > 0 {
		pick := out[idx]
		out = append(out[:idx], out[idx+1:]...)
		out = append([]routed{pick}, out...)
	}
	return out
}

func (r *Router) try(ctx context.Context, m routed, prompt string, opts RequestOptions) (Response, error) {
	desc := m.Descriptor
	ctx = services.WithBackend(ctx, desc.ID)
	logger := logging.WithContext(ctx, r.logger)

	req := Request{
		Model:       desc.Model,
		Prompt:      prompt,
		Temperature: r.temperature,
		MaxTokens:   desc.MaxTokens,
	}
	if opts.Temperature != nil {
		req.Temperature = *opts.Temperature
	}
	if opts.MaxTokens > 0 && (req.MaxTokens <= 0 || opts.MaxTokens < req.MaxTokens) {
		req.MaxTokens = opts.MaxTokens
	}
	timeout := max(opts.Timeout, desc.Timeout)

	var (
		completion Completion
		attempts   int
	)
	err := desc.Retry.Do(ctx, func(ctx context.Context) error {
		if err := m.limiter.Wait(ctx); err != nil {
			return err
		}
		attempts++
		callCtx, cancel := ctx, context.CancelFunc(func() {})
		if timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, timeout)
		}
		defer cancel()

		started := time.Now()
		out, err := m.Backend.Complete(callCtx, req)
		if err == nil && out.Text == "" {
			err = services.Wrap(services.ErrExternalTool, "", desc.ID, "empty completion", nil)
		}
		if err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			err = services.Wrap(services.ErrTimeout, "", desc.ID, fmt.Sprintf("no answer within %s", timeout), err)
		}
		r.observer.AttemptFinished(desc.ID, err, time.Since(started))
		if err != nil {
			logger.Debug("backend attempt failed",
				logging.String(logging.FieldEventType, "backend_attempt_failed"),
				logging.Int("attempt", attempts),
				logging.Error(err),
			)
			return err
		}
		completion = out
		return nil
	})
	if err != nil {
		return Response{}, err
	}

	tokens := completion.TotalTokens
	if tokens <= 0 {
		tokens = r.estimate(desc.Model, prompt) + r.estimate(desc.Model, completion.Text)
	}
	r.ledger.Record(desc.ID, tokens, r.now())
	r.health.MarkSuccess(desc.ID)
	r.observer.UsageRecorded(desc.ID, tokens)
	logger.Debug("backend call succeeded",
		logging.String(logging.FieldEventType, "backend_call_succeeded"),
		logging.Int("tokens", tokens),
		logging.Int("attempts", attempts),
	)
	return Response{
		Text:      completion.Text,
		BackendID: desc.ID,
		Model:     desc.Model,
		Tokens:    tokens,
		Attempts:  attempts,
	}, nil
}

// BackendStatus is the combined health and usage view of one backend.
type BackendStatus struct {
	ID           string    `json:"id"`
	Kind         string    `json:"kind"`
	Model        string    `json:"model"`
	Priority     int       `json:"priority"`
	Available    bool      `json:"available"`
	LastError    string    `json:"lastError,omitempty"`
	FailedAt     time.Time `json:"failedAt,omitzero"`
	DailyUsed    int64     `json:"dailyUsed"`
	MonthlyUsed  int64     `json:"monthlyUsed"`
	DailyLimit   int64     `json:"dailyLimit"`
	MonthlyLimit int64     `json:"monthlyLimit"`
	WithinBudget bool      `json:"withinBudget"`
}

// Status returns every backend's health and usage at now, in priority order.
func (r *Router) Status(now time.Time) []BackendStatus {
	limits := r.ledger.Limits()
	out := make([]BackendStatus, 0, len(r.members))
	for _, m := range r.members {
		desc := m.Descriptor
		rec := r.health.Record(desc.ID)
		usage := r.ledger.Usage(desc.ID, now)
		out = append(out, BackendStatus{
			ID:           desc.ID,
			Kind:         desc.Kind,
			Model:        desc.Model,
			Priority:     desc.Priority,
			Available:    rec.Available,
			LastError:    rec.LastError,
			FailedAt:     rec.FailedAt,
			DailyUsed:    usage.Daily,
			MonthlyUsed:  usage.Monthly,
			DailyLimit:   limits.Daily,
			MonthlyLimit: limits.Monthly,
			WithinBudget: usage.Daily < limits.Daily && usage.Monthly < limits.Monthly,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}

// Reset marks backendID available again.
func (r *Router) Reset(backendID string) error {
	if !slices.ContainsFunc(r.members, func(m routed) bool { return m.Descriptor.ID == backendID }) {
		return fmt.Errorf("%w %q", ErrUnknownBackend, backendID)
	}
	r.health.Reset(backendID)
	r.logger.Info("backend reset",
		logging.String(logging.FieldEventType, "backend_reset"),
		logging.String(logging.FieldBackend, backendID),
	)
	return nil
}

// Probe sends a tiny prompt to each unavailable backend and resets those
// that answer. It returns the recovered ids.
func (r *Router) Probe(ctx context.Context) []string {
	var recovered []string
	for _, m := range r.members {
		id := m.Descriptor.ID
		if r.health.Available(id) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return recovered
		}
		probeCtx := ctx
		cancel := context.CancelFunc(func() {})
		if m.Descriptor.Timeout > 0 {
			probeCtx, cancel = context.WithTimeout(ctx, m.Descriptor.Timeout)
		}
		out, err := m.Backend.Complete(probeCtx, Request{Model: m.Descriptor.Model, Prompt: probePrompt, Temperature: 0, MaxTokens: 5})
		cancel()
		if err != nil {
			r.logger.Debug("backend probe failed",
				logging.String(logging.FieldEventType, "backend_probe_failed"),
				logging.String(logging.FieldBackend, id),
				logging.Error(err),
			)
			continue
		}
		if out.TotalTokens > 0 {
			r.ledger.Record(id, out.TotalTokens, r.now())
		}
		r.health.Reset(id)
		recovered = append(recovered, id)
		r.logger.Info("backend recovered by probe",
			logging.String(logging.FieldEventType, "backend_recovered"),
			logging.String(logging.FieldBackend, id),
		)
	}
	return recovered
}
