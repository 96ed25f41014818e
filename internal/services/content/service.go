package content

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"vidpipe/internal/config"
	"vidpipe/internal/logging"
	"vidpipe/internal/media"
	"vidpipe/internal/provider"
	"vidpipe/internal/services"
)

// Router routes prompts to a language-model backend.
type Router interface {
	Route(ctx context.Context, prompt string, opts provider.RequestOptions) (provider.Response, error)
}

// Service implements analysis, segmentation, copyright and sensitive checks.
type Service struct {
	router   Router
	catalog  Catalog
	prefs    config.Tasks
	minSplit float64
	logger   *slog.Logger
}

// Option customizes a Service.
type Option func(*Service)

// WithCatalog overrides the embedded prompt catalog.
func WithCatalog(catalog Catalog) Option {
	return func(s *Service) {
		if catalog != nil {
			s.catalog = catalog
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logging.NewComponentLogger(logger, "content")
		}
	}
}

// WithSegmentMerge merges segments shorter than minSeconds into their
// predecessor before validation. Zero disables merging.
func WithSegmentMerge(minSeconds float64) Option {
	return func(s *Service) {
		s.minSplit = minSeconds
	}
}

// NewService constructs a content service over router.
func NewService(router Router, prefs config.Tasks, opts ...Option) *Service {
	s := &Service{
		router:  router,
		catalog: DefaultCatalog(),
		prefs:   prefs,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type promptData struct {
	Title      string
	Transcript string
	Summary    string
	Topics     []string
}

func (s *Service) preferred(task string) string {
	switch task {
	case TaskAnalysis:
		return s.prefs.Analysis
	case TaskSegmentation:
		return s.prefs.Segmentation
	case TaskCopyright:
		return s.prefs.Copyright
	case TaskSensitive:
		return s.prefs.Sensitive
	default:
		return ""
	}
}

func (s *Service) ask(ctx context.Context, task string, data promptData) (string, error) {
	prompt, text, err := s.catalog.Render(task, data)
	if err != nil {
		return "", services.Wrap(services.ErrConfiguration, task, "render prompt", "", err)
	}
	temperature := prompt.Temperature
	resp, err := s.router.Route(ctx, text, provider.RequestOptions{
		PreferredBackend: s.preferred(task),
		Temperature:      &temperature,
		MaxTokens:        prompt.MaxTokens,
	})
	if err != nil {
		return "", err
	}
	logger := logging.WithContext(services.WithBackend(ctx, resp.BackendID), s.logger)
	logger.Debug("language model reply",
		logging.String("task", task),
		logging.Int("tokens", resp.Tokens),
		logging.Int("attempts", resp.Attempts),
	)
	return resp.Text, nil
}

// Analyze summarizes and classifies the transcript.
func (s *Service) Analyze(ctx context.Context, locator string, subs media.Subtitles) (media.Analysis, error) {
	transcript := subs.Transcript()
	if transcript == "" {
		return media.Analysis{}, services.Wrap(services.ErrValidation, TaskAnalysis, "transcript", "subtitles carry no text", nil)
	}
	reply, err := s.ask(ctx, TaskAnalysis, promptData{Transcript: transcript})
	if err != nil {
		return media.Analysis{}, err
	}
	fields, err := decodeObject(reply)
	if err != nil {
		return media.Analysis{}, services.Wrap(services.ErrExternalTool, TaskAnalysis, "decode reply", "", err)
	}
	analysis := media.Analysis{
		Summary:         stringField(fields, "summary"),
		Topics:          stringList(lookup(fields, "topics")),
		Sentiment:       stringField(fields, "sentiment"),
		ContentRating:   stringField(fields, "contentRating", "content_rating", "rating"),
		Recommendations: stringList(lookup(fields, "recommendations")),
	}
	if analysis.Summary == "" {
		return media.Analysis{}, services.Wrap(services.ErrExternalTool, TaskAnalysis, "decode reply", "reply has no summary", nil)
	}
	return analysis, nil
}

// Segment plans segments from the analysis. The plan is sorted by start
// and validated; invalid plans are rejected, never repaired.
func (s *Service) Segment(ctx context.Context, locator string, analysis media.Analysis) (media.SegmentPlan, error) {
	reply, err := s.ask(ctx, TaskSegmentation, promptData{Summary: analysis.Summary, Topics: analysis.Topics})
	if err != nil {
		return media.SegmentPlan{}, err
	}
	segments, err := parseSegments(reply)
	if err != nil {
		return media.SegmentPlan{}, services.Wrap(services.ErrValidation, TaskSegmentation, "decode reply", "", err)
	}
	sort.SliceStable(segments, func(i, j int) bool { return segments[i].Start < segments[j].Start })
	if s.minSplit > 0 {
		segments = media.MergeShortSegments(segments, s.minSplit)
	}
	if err := media.ValidateSegments(segments); err != nil {
		return media.SegmentPlan{}, err
	}
	return media.SegmentPlan{Segments: segments}, nil
}

// Check screens the transcript for copyright issues. An empty transcript
// has nothing to screen and passes.
func (s *Service) Check(ctx context.Context, locator, transcript string) (media.CopyrightVerdict, error) {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return media.CopyrightVerdict{IsValid: true, Confidence: 1}, nil
	}
	reply, err := s.ask(ctx, TaskCopyright, promptData{Transcript: transcript})
	if err != nil {
		return media.CopyrightVerdict{}, err
	}
	verdict, err := parseVerdict(reply)
	if err != nil {
		return media.CopyrightVerdict{}, services.Wrap(services.ErrExternalTool, TaskCopyright, "decode reply", "", err)
	}
	return verdict, nil
}

// DetectSensitive reports whether text contains sensitive content. Failures
// are reported as sensitive together with the error.
func (s *Service) DetectSensitive(ctx context.Context, text string) (bool, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return false, nil
	}
	reply, err := s.ask(ctx, TaskSensitive, promptData{Transcript: text})
	if err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, s.logger), "sensitive check failed", "sensitive_check_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "content treated as sensitive"),
		)
		return true, err
	}
	return parseSensitive(reply), nil
}
