package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cast"

	"vidpipe/internal/config"
	"vidpipe/internal/logging"
	"vidpipe/internal/media"
	"vidpipe/internal/services"
)

const stageName = "narration"

// HTTPDoer describes the HTTP client used for synthesis calls.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Concatenator joins audio parts into output.
type Concatenator func(ctx context.Context, parts []string, output string) error

// Service calls the text-to-speech API.
type Service struct {
	endpoint string
	apiKey   string
	workDir  string
	maxChunk int
	timeout  time.Duration
	defaults media.VoiceOptions
	client   HTTPDoer
	concat   Concatenator
	logger   *slog.Logger
}

// Option customizes a Service.
type Option func(*Service)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client HTTPDoer) Option {
	return func(s *Service) {
		if client != nil {
			s.client = client
		}
	}
}

// WithConcatenator sets how multi-chunk narration is joined.
func WithConcatenator(concat Concatenator) Option {
	return func(s *Service) {
		s.concat = concat
	}
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logging.NewComponentLogger(logger, "tts")
		}
	}
}

// NewService builds a TTS service from configuration.
func NewService(cfg config.Narration, workDir string, opts ...Option) *Service {
	s := &Service{
		endpoint: strings.TrimSpace(cfg.Endpoint),
		apiKey:   strings.TrimSpace(cfg.APIKey),
		workDir:  workDir,
		maxChunk: cfg.MaxChunkChars,
		timeout:  time.Duration(cfg.TimeoutSeconds) * time.Second,
		defaults: media.VoiceOptions{
			Voice:  cfg.Voice,
			Speed:  cfg.Speed,
			Pitch:  cfg.Pitch,
			Format: cfg.Format,
		},
		client: http.DefaultClient,
		logger: logging.NewNop(),
	}
	if s.maxChunk <= 0 {
		s.maxChunk = 3000
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Defaults returns the configured voice options.
func (s *Service) Defaults() media.VoiceOptions {
	return s.defaults
}

func (s *Service) resolve(voice media.VoiceOptions) media.VoiceOptions {
	if voice.Voice == "" {
		voice.Voice = s.defaults.Voice
	}
	if voice.Speed <= 0 {
		voice.Speed = s.defaults.Speed
	}
	if voice.Pitch <= 0 {
		voice.Pitch = s.defaults.Pitch
	}
	if voice.Format == "" {
		voice.Format = s.defaults.Format
	}
	return voice
}

type synthesisRequest struct {
	Text         string  `json:"text"`
	Voice        string  `json:"voice"`
	Speed        float64 `json:"speed"`
	Pitch        float64 `json:"pitch"`
	OutputFormat string  `json:"outputFormat"`
}

type chunkAudio struct {
	URL      string
	Duration time.Duration
}

// Synthesize renders text as narration audio.
func (s *Service) Synthesize(ctx context.Context, text string, voice media.VoiceOptions) (media.Narration, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return media.Narration{}, services.Wrap(services.ErrValidation, stageName, "synthesize", "narration text is empty", nil)
	}
	if s.endpoint == "" {
		return media.Narration{}, services.Wrap(services.ErrConfiguration, stageName, "synthesize", "narration.endpoint is not configured", nil)
	}
	voice = s.resolve(voice)
	chunks := media.SplitTextIntoChunks(text, s.maxChunk)
	logger := logging.WithContext(ctx, s.logger)
	logger.Debug("synthesizing narration",
		logging.Int("chunks", len(chunks)),
		logging.Int("characters", len(text)),
		logging.String("voice", voice.Voice),
	)

	parts := make([]chunkAudio, 0, len(chunks))
	var total time.Duration
	for i, chunk := range chunks {
		audio, err := s.synthesizeChunk(ctx, chunk, voice)
		if err != nil {
			return media.Narration{}, fmt.Errorf("chunk %d of %d: %w", i+1, len(chunks), err)
		}
		parts = append(parts, audio)
		total += audio.Duration
	}
	if len(parts) == 1 {
		return media.Narration{Locator: parts[0].URL, Duration: total, Format: voice.Format}, nil
	}

	locator, err := s.join(ctx, parts, voice.Format)
	if err != nil {
		return media.Narration{}, err
	}
	logger.Info("narration assembled",
		logging.String(logging.FieldEventType, "narration_assembled"),
		logging.Int("chunks", len(parts)),
		logging.Duration("duration", total),
	)
	return media.Narration{Locator: locator, Duration: total, Format: voice.Format}, nil
}

func (s *Service) synthesizeChunk(ctx context.Context, text string, voice media.VoiceOptions) (chunkAudio, error) {
	payload, err := json.Marshal(synthesisRequest{
		Text:         text,
		Voice:        voice.Voice,
		Speed:        voice.Speed,
		Pitch:        voice.Pitch,
		OutputFormat: voice.Format,
	})
	if err != nil {
		return chunkAudio{}, fmt.Errorf("encode tts request: %w", err)
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return chunkAudio{}, fmt.Errorf("build tts request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return chunkAudio{}, services.Wrap(services.ErrTransient, stageName, "synthesize", "tts request failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return chunkAudio{}, services.Wrap(services.ErrExternalTool, stageName, "synthesize",
			fmt.Sprintf("TTS API request failed: %d %s", resp.StatusCode, strings.TrimSpace(string(snippet))), nil)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return chunkAudio{}, services.Wrap(services.ErrExternalTool, stageName, "synthesize", "decode tts response", err)
	}
	url := strings.TrimSpace(cast.ToString(body["audioUrl"]))
	if url == "" {
		return chunkAudio{}, services.Wrap(services.ErrExternalTool, stageName, "synthesize", "tts response has no audioUrl", nil)
	}
	seconds := cast.ToFloat64(body["duration"])
	return chunkAudio{URL: url, Duration: time.Duration(seconds * float64(time.Second))}, nil
}

func (s *Service) join(ctx context.Context, parts []chunkAudio, format string) (string, error) {
	if s.concat == nil {
		return "", services.Wrap(services.ErrConfiguration, stageName, "concatenate", "no audio concatenator configured", nil)
	}
	dir := filepath.Join(s.workDir, "narration-"+uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create narration dir: %w", err)
	}
	local := make([]string, 0, len(parts))
	for i, part := range parts {
		path := filepath.Join(dir, fmt.Sprintf("part-%03d.%s", i, format))
		if err := s.fetch(ctx, part.URL, path); err != nil {
			return "", err
		}
		local = append(local, path)
	}
	output := filepath.Join(dir, "narration."+format)
	if err := s.concat(ctx, local, output); err != nil {
		return "", services.Wrap(services.ErrExternalTool, stageName, "concatenate", "", err)
	}
	return output, nil
}

// fetch copies a remote or local audio part to path.
func (s *Service) fetch(ctx context.Context, source, path string) error {
	if !strings.HasPrefix(source, "http://") && !strings.HasPrefix(source, "https://") {
		data, err := os.ReadFile(strings.TrimPrefix(source, "file://"))
		if err != nil {
			return services.Wrap(services.ErrNotFound, stageName, "fetch audio", source, err)
		}
		return os.WriteFile(path, data, 0o644)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return fmt.Errorf("build audio request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, stageName, "fetch audio", source, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		return services.Wrap(services.ErrExternalTool, stageName, "fetch audio", fmt.Sprintf("%s returned %d", source, resp.StatusCode), nil)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create audio part: %w", err)
	}
	if _, err := io.Copy(file, resp.Body); err != nil {
		file.Close()
		return services.Wrap(services.ErrTransient, stageName, "fetch audio", source, err)
	}
	return file.Close()
}
