package transcribe

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"

	aai "github.com/AssemblyAI/assemblyai-go-sdk"
	"github.com/google/uuid"

	"vidpipe/internal/config"
	"vidpipe/internal/logging"
	"vidpipe/internal/media"
	"vidpipe/internal/services"
)

const stageName = "subtitles"

// Transcriber is the subset of the AssemblyAI transcript API in use.
type Transcriber interface {
	TranscribeFromReader(ctx context.Context, reader io.Reader, params *aai.TranscriptOptionalParams) (aai.Transcript, error)
	TranscribeFromURL(ctx context.Context, audioURL string, params *aai.TranscriptOptionalParams) (aai.Transcript, error)
}

// Service generates subtitles.
type Service struct {
	client   Transcriber
	language string
	mergeGap float64
	maxCue   float64
	logger   *slog.Logger
}

// Option customizes a Service.
type Option func(*Service)

// WithTranscriber replaces the AssemblyAI client, for tests.
func WithTranscriber(client Transcriber) Option {
	return func(s *Service) {
		if client != nil {
			s.client = client
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logging.NewComponentLogger(logger, "transcribe")
		}
	}
}

// NewService builds the subtitle generator. Without an API key the service
// still constructs but every call fails with a configuration error.
func NewService(cfg config.Subtitles, opts ...Option) *Service {
	s := &Service{
		language: strings.TrimSpace(cfg.LanguageCode),
		mergeGap: cfg.MergeGapSeconds,
		maxCue:   cfg.MaxCueSeconds,
		logger:   logging.NewNop(),
	}
	if key := strings.TrimSpace(cfg.APIKey); key != "" {
		clientOpts := []aai.ClientOption{aai.WithAPIKey(key)}
		if base := strings.TrimSpace(cfg.BaseURL); base != "" {
			clientOpts = append(clientOpts, aai.WithBaseURL(base))
		}
		s.client = aai.NewClientWithOptions(clientOpts...).Transcripts
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Generate transcribes the media at locator. HTTP(S) locators are fetched
// by AssemblyAI; anything else is uploaded from disk.
func (s *Service) Generate(ctx context.Context, locator string) (media.Subtitles, error) {
	if s.client == nil {
		return media.Subtitles{}, services.Wrap(services.ErrConfiguration, stageName, "transcribe", "subtitles.api_key is not configured", nil)
	}
	params := &aai.TranscriptOptionalParams{
		Punctuate:  aai.Bool(true),
		FormatText: aai.Bool(true),
	}
	if s.language != "" {
		params.LanguageCode = aai.TranscriptLanguageCode(s.language)
	}

	var (
		transcript aai.Transcript
		err        error
	)
	if strings.HasPrefix(locator, "http://") || strings.HasPrefix(locator, "https://") {
		transcript, err = s.client.TranscribeFromURL(ctx, locator, params)
	} else {
		file, openErr := os.Open(locator)
		if openErr != nil {
			if errors.Is(openErr, os.ErrNotExist) {
				return media.Subtitles{}, services.Wrap(services.ErrNotFound, stageName, "open media", locator, openErr)
			}
			return media.Subtitles{}, services.Wrap(services.ErrExternalTool, stageName, "open media", locator, openErr)
		}
		defer file.Close()
		transcript, err = s.client.TranscribeFromReader(ctx, file, params)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return media.Subtitles{}, ctxErr
		}
		return media.Subtitles{}, services.Wrap(services.ErrExternalTool, stageName, "transcribe", "Failed to generate subtitles", err)
	}
	if transcript.Status == aai.TranscriptStatusError {
		return media.Subtitles{}, services.Wrap(services.ErrExternalTool, stageName, "transcribe", "Failed to generate subtitles: "+aai.ToString(transcript.Error), nil)
	}

	cues := media.SplitLong(media.MergeNearby(groupWords(transcript.Words), s.mergeGap), s.maxCue)
	id := aai.ToString(transcript.ID)
	if id == "" {
		id = "sub_" + uuid.NewString()
	}
	logging.WithContext(ctx, s.logger).Info("subtitles generated",
		logging.String(logging.FieldEventType, "subtitles_generated"),
		logging.String("transcript_id", id),
		logging.Int("words", len(transcript.Words)),
		logging.Int("cues", len(cues)),
	)
	return media.Subtitles{ID: id, Cues: cues}, nil
}

// groupWords turns millisecond word timings into sentence cues.
func groupWords(words []aai.TranscriptWord) []media.Cue {
	var (
		cues    []media.Cue
		current *media.Cue
	)
	for _, word := range words {
		text := strings.TrimSpace(aai.ToString(word.Text))
		if text == "" {
			continue
		}
		start := float64(aai.ToInt64(word.Start)) / 1000
		end := float64(aai.ToInt64(word.End)) / 1000
		if current == nil {
			current = &media.Cue{Start: start, End: end, Text: text}
		} else {
			current.End = end
			current.Text += " " + text
		}
		if strings.ContainsAny(text[len(text)-1:], ".!?") {
			cues = append(cues, *current)
			current = nil
		}
	}
	if current != nil {
		cues = append(cues, *current)
	}
	return cues
}
