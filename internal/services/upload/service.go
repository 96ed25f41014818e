package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff"

	"vidpipe/internal/config"
	"vidpipe/internal/logging"
	"vidpipe/internal/services"
)

const stageName = "upload"

// HTTPDoer describes the HTTP client used for platform calls.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Platform is one upload destination.
type Platform struct {
	Name     string
	Endpoint string
	Token    string
	Limits   Limits
}

// Service uploads files to configured platforms.
type Service struct {
	platforms  map[string]Platform
	client     HTTPDoer
	chunkSize  int64
	maxRetries int
	retryDelay time.Duration
	timeout    time.Duration
	logger     *slog.Logger
	now        func() time.Time
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

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logging.NewComponentLogger(logger, "upload")
		}
	}
}

// WithChunkSize overrides the transfer chunk size in bytes.
func WithChunkSize(size int64) Option {
	return func(s *Service) {
		if size > 0 {
			s.chunkSize = size
		}
	}
}

// WithClock injects the time source used for analytics.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService builds an upload service from the [upload] configuration.
func NewService(cfg config.Upload, opts ...Option) *Service {
	s := &Service{
		platforms:  make(map[string]Platform, len(cfg.Platforms)),
		client:     http.DefaultClient,
		chunkSize:  int64(cfg.ChunkSizeMiB) << 20,
		maxRetries: cfg.MaxRetries,
		retryDelay: time.Duration(cfg.RetryDelayMS) * time.Millisecond,
		timeout:    time.Duration(cfg.TimeoutSeconds) * time.Second,
		logger:     logging.NewNop(),
		now:        time.Now,
	}
	for name, p := range cfg.Platforms {
		s.platforms[name] = Platform{
			Name:     name,
			Endpoint: strings.TrimRight(strings.TrimSpace(p.Endpoint), "/"),
			Token:    strings.TrimSpace(p.APIKey),
			Limits: Limits{
				MaxTitleLength:       p.MaxTitleLength,
				MaxDescriptionLength: p.MaxDescriptionLength,
				MaxTags:              p.MaxTags,
			},
		}
	}
	if s.chunkSize <= 0 {
		s.chunkSize = 8 << 20
	}
	if s.maxRetries < 1 {
		s.maxRetries = 1
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Limits returns the metadata limits of every platform.
func (s *Service) Limits() map[string]Limits {
	out := make(map[string]Limits, len(s.platforms))
	for name, p := range s.platforms {
		out[name] = p.Limits
	}
	return out
}

// Upload transfers the file at locator. Transfer failures are reported as
// Result{Success: false}; preparation problems and cancellation are errors.
func (s *Service) Upload(ctx context.Context, locator string, opts Options, report ProgressFunc) (Result, error) {
	if report == nil {
		report = func(Progress) {}
	}
	logger := logging.WithContext(ctx, s.logger)
	started := s.now()
	report(Progress{Status: StatusPreparing})

	platform, ok := s.platforms[opts.Platform]
	if !ok {
		return Result{}, services.Wrap(services.ErrValidation, stageName, "resolve platform", fmt.Sprintf("unsupported platform %q", opts.Platform), nil)
	}
	if platform.Endpoint == "" {
		return Result{}, services.Wrap(services.ErrConfiguration, stageName, "resolve platform", fmt.Sprintf("platform %q has no endpoint configured", platform.Name), nil)
	}
	info, err := os.Stat(locator)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Result{}, services.Wrap(services.ErrNotFound, stageName, "stat video", locator, err)
		}
		return Result{}, services.Wrap(services.ErrExternalTool, stageName, "stat video", locator, err)
	}
	if info.IsDir() || info.Size() == 0 {
		return Result{}, services.Wrap(services.ErrValidation, stageName, "stat video", "video file is empty or a directory", nil)
	}
	file, err := os.Open(locator)
	if err != nil {
		return Result{}, services.Wrap(services.ErrExternalTool, stageName, "open video", locator, err)
	}
	defer file.Close()

	total := info.Size()
	sessionID, err := s.createSession(ctx, platform, opts, filepath.Base(locator), total)
	if err != nil {
		return s.failed(ctx, logger, report, err)
	}

	var sent int64
	chunks := 0
	buf := make([]byte, s.chunkSize)
	sampler := logging.NewProgressSampler(25)
	for sent < total {
		n, err := io.ReadFull(file, buf)
		if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
			return s.failed(ctx, logger, report, fmt.Errorf("read chunk: %w", err))
		}
		if n == 0 {
			break
		}
		if err := s.sendChunk(ctx, platform, sessionID, buf[:n], sent, total); err != nil {
			return s.failed(ctx, logger, report, err)
		}
		sent += int64(n)
		chunks++
		pct := float64(sent) / float64(total) * 100
		if sampler.ShouldLog(pct, string(StatusUploading)) {
			logger.Info("upload progress",
				logging.String(logging.FieldEventType, "upload_progress"),
				logging.String("platform", platform.Name),
				logging.Float64("percent", pct),
				logging.Int64("bytes_sent", sent),
			)
		}
		report(Progress{
			Status:        StatusUploading,
			BytesUploaded: sent,
			BytesTotal:    total,
			Percentage:    pct,
		})
	}

	report(Progress{Status: StatusProcessing, BytesUploaded: sent, BytesTotal: total, Percentage: 100})
	final, err := s.finalize(ctx, platform, sessionID)
	if err != nil {
		return s.failed(ctx, logger, report, err)
	}
	report(Progress{Status: StatusComplete, BytesUploaded: sent, BytesTotal: total, Percentage: 100})

	result := Result{
		Success:    true,
		URL:        final.URL,
		PlatformID: final.ID,
		Analytics: Analytics{
			Elapsed:  s.now().Sub(started),
			FileSize: total,
			Chunks:   chunks,
		},
	}
	logger.Info("upload complete",
		logging.String(logging.FieldEventType, "upload_complete"),
		logging.String("platform", platform.Name),
		logging.String("url", result.URL),
		logging.Int64("bytes", total),
		logging.Int("chunks", chunks),
		logging.Duration("elapsed", result.Analytics.Elapsed),
	)
	return result, nil
}

func (s *Service) failed(ctx context.Context, logger *slog.Logger, report ProgressFunc, err error) (Result, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Result{}, ctxErr
	}
	message := fmt.Sprintf("Upload failed: %v", err)
	report(Progress{Status: StatusError, Error: message})
	logging.WarnWithContext(logger, "upload failed", "upload_failed",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check the platform endpoint and token"),
		logging.String(logging.FieldImpact, "job will be marked failed"),
	)
	return Result{Success: false, Error: message}, nil
}

type sessionRequest struct {
	Filename    string   `json:"filename"`
	Size        int64    `json:"size"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags,omitempty"`
	Visibility  string   `json:"visibility"`
	Category    string   `json:"category,omitempty"`
	Language    string   `json:"language,omitempty"`
}

type sessionResponse struct {
	UploadID string `json:"upload_id"`
}

type finalizeResponse struct {
	URL string `json:"url"`
	ID  string `json:"id"`
}

func (s *Service) createSession(ctx context.Context, platform Platform, opts Options, filename string, size int64) (string, error) {
	payload, err := json.Marshal(sessionRequest{
		Filename:    filename,
		Size:        size,
		Title:       opts.Title,
		Description: opts.Description,
		Tags:        opts.Tags,
		Visibility:  opts.Visibility,
		Category:    opts.Category,
		Language:    opts.Language,
	})
	if err != nil {
		return "", fmt.Errorf("encode session request: %w", err)
	}
	var resp sessionResponse
	err = s.retry(ctx, "create session", func() error {
		return s.call(ctx, platform, http.MethodPost, platform.Endpoint+"/uploads", "application/json", payload, nil, &resp)
	})
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.UploadID) == "" {
		return "", services.Wrap(services.ErrExternalTool, stageName, "create session", "platform returned no upload id", nil)
	}
	return resp.UploadID, nil
}

func (s *Service) sendChunk(ctx context.Context, platform Platform, sessionID string, chunk []byte, offset, total int64) error {
	headers := map[string]string{
		"Content-Range": fmt.Sprintf("bytes %d-%d/%d", offset, offset+int64(len(chunk))-1, total),
	}
	url := fmt.Sprintf("%s/uploads/%s", platform.Endpoint, sessionID)
	return s.retry(ctx, "send chunk", func() error {
		return s.call(ctx, platform, http.MethodPut, url, "application/octet-stream", chunk, headers, nil)
	})
}

func (s *Service) finalize(ctx context.Context, platform Platform, sessionID string) (finalizeResponse, error) {
	var resp finalizeResponse
	url := fmt.Sprintf("%s/uploads/%s/complete", platform.Endpoint, sessionID)
	err := s.retry(ctx, "finalize", func() error {
		return s.call(ctx, platform, http.MethodPost, url, "", nil, nil, &resp)
	})
	if err != nil {
		return finalizeResponse{}, err
	}
	if strings.TrimSpace(resp.URL) == "" {
		return finalizeResponse{}, services.Wrap(services.ErrExternalTool, stageName, "finalize", "platform returned no video url", nil)
	}
	return resp, nil
}

// retry runs fn up to maxRetries times with exponential backoff. Responses
// that will not improve on retry stop the loop early.
func (s *Service) retry(ctx context.Context, op string, fn func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.retryDelay
	policy.RandomizationFactor = 0
	policy.MaxElapsedTime = 0
	bounded := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(s.maxRetries-1)), ctx)
	return backoff.RetryNotify(fn, bounded, func(err error, next time.Duration) {
		s.logger.Debug("upload request retry",
			logging.String("operation", op),
			logging.Duration("delay", next),
			logging.Error(err),
		)
	})
}

type statusError struct {
	StatusCode int
	Body       string
}

func (e *statusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("platform returned %d", e.StatusCode)
	}
	return fmt.Sprintf("platform returned %d: %s", e.StatusCode, e.Body)
}

func (e *statusError) transient() bool {
	return e.StatusCode == http.StatusRequestTimeout || e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

func (s *Service) call(ctx context.Context, platform Platform, method, url, contentType string, body []byte, headers map[string]string, out any) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("build request: %w", err))
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if platform.Token != "" {
		req.Header.Set("Authorization", "Bearer "+platform.Token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, stageName, method, url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		statusErr := &statusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
		if statusErr.transient() {
			return services.Wrap(services.ErrTransient, stageName, method, "", statusErr)
		}
		return backoff.Permanent(services.Wrap(services.ErrExternalTool, stageName, method, "", statusErr))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return backoff.Permanent(services.Wrap(services.ErrExternalTool, stageName, method, "decode response", err))
	}
	return nil
}
