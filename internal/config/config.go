package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	WorkDir string `toml:"work_dir"`
	LogDir  string `toml:"log_dir"`
}

// Server contains HTTP API settings for the daemon.
type Server struct {
	Bind                string `toml:"bind"`
	Token               string `toml:"token"`
	ShutdownTimeout     int    `toml:"shutdown_timeout"`
	MaxUploadMiB        int    `toml:"max_upload_mib"`
	SubscriberBuffer    int    `toml:"subscriber_buffer"`
	WebSocketPingPeriod int    `toml:"websocket_ping_period"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format         string `toml:"format"`
	Level          string `toml:"level"`
	StreamCapacity int    `toml:"stream_capacity"`
}

// Quota contains the per-backend token budgets.
type Quota struct {
	DailyLimit   int64  `toml:"daily_limit"`
	MonthlyLimit int64  `toml:"monthly_limit"`
	ResetDay     int    `toml:"reset_day"`
	StorePath    string `toml:"store_path"`
}

// Retry contains the exponential backoff applied to one backend.
type Retry struct {
	MaxRetries  int `toml:"max_retries"`
	BaseDelayMS int `toml:"base_delay_ms"`
	MaxDelayMS  int `toml:"max_delay_ms"`
}

// BaseDelay returns the configured base delay as a duration.
func (r Retry) BaseDelay() time.Duration {
	return time.Duration(r.BaseDelayMS) * time.Millisecond
}

// MaxDelay returns the configured delay cap as a duration.
func (r Retry) MaxDelay() time.Duration {
	return time.Duration(r.MaxDelayMS) * time.Millisecond
}

// Backend describes one interchangeable language-model endpoint.
type Backend struct {
	ID                string `toml:"id"`
	Kind              string `toml:"kind"`
	Model             string `toml:"model"`
	Endpoint          string `toml:"endpoint"`
	APIKey            string `toml:"api_key"`
	APIKeyEnv         string `toml:"api_key_env"`
	MaxTokens         int    `toml:"max_tokens"`
	TimeoutMS         int    `toml:"timeout_ms"`
	Priority          int    `toml:"priority"`
	RequestsPerMinute int    `toml:"requests_per_minute"`
	Retry             *Retry `toml:"retry"`
}

// Timeout returns the backend's per-call timeout.
func (b Backend) Timeout() time.Duration {
	return time.Duration(b.TimeoutMS) * time.Millisecond
}

// Providers contains the backend pool and router behaviour.
type Providers struct {
	HealthCooldownSeconds int       `toml:"health_cooldown_seconds"`
	Temperature           float64   `toml:"temperature"`
	Backends              []Backend `toml:"backends"`
}

// Tasks maps pipeline tasks to their preferred backend id.
type Tasks struct {
	Analysis     string `toml:"analysis"`
	Segmentation string `toml:"segmentation"`
	Copyright    string `toml:"copyright"`
	Sensitive    string `toml:"sensitive"`
}

// Subtitles contains speech-to-text settings.
type Subtitles struct {
	APIKey          string  `toml:"api_key"`
	BaseURL         string  `toml:"base_url"`
	LanguageCode    string  `toml:"language_code"`
	MergeGapSeconds float64 `toml:"merge_gap_seconds"`
	MaxCueSeconds   float64 `toml:"max_cue_seconds"`
}

// Narration contains text-to-speech settings.
type Narration struct {
	Endpoint       string  `toml:"endpoint"`
	APIKey         string  `toml:"api_key"`
	Voice          string  `toml:"voice"`
	Speed          float64 `toml:"speed"`
	Pitch          float64 `toml:"pitch"`
	Format         string  `toml:"format"`
	MaxChunkChars  int     `toml:"max_chunk_chars"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
}

// Editing contains ffmpeg assembly settings.
type Editing struct {
	FFmpegBinary string `toml:"ffmpeg_binary"`
	Width        int    `toml:"width"`
	Height       int    `toml:"height"`
	FPS          int    `toml:"fps"`
	Format       string `toml:"format"`
	Quality      int    `toml:"quality"`
}

// Copyright contains copyright gate settings.
type Copyright struct {
	FlagSensitive bool `toml:"flag_sensitive"`
}

// Platform contains one upload destination.
type Platform struct {
	Endpoint             string `toml:"endpoint"`
	APIKey               string `toml:"api_key"`
	MaxTitleLength       int    `toml:"max_title_length"`
	MaxDescriptionLength int    `toml:"max_description_length"`
	MaxTags              int    `toml:"max_tags"`
}

// Upload contains platform upload settings.
type Upload struct {
	ChunkSizeMiB   int                 `toml:"chunk_size_mib"`
	MaxRetries     int                 `toml:"max_retries"`
	RetryDelayMS   int                 `toml:"retry_delay_ms"`
	TimeoutSeconds int                 `toml:"timeout_seconds"`
	Platforms      map[string]Platform `toml:"platforms"`
}

// Jobs contains job manager limits.
type Jobs struct {
	MaxConcurrent    int `toml:"max_concurrent"`
	RetentionMinutes int `toml:"retention_minutes"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	JobCompleted   bool   `toml:"job_completed"`
	JobFailed      bool   `toml:"job_failed"`
	BackendDown    bool   `toml:"backend_down"`
}

// Maintenance contains cron schedules for daemon housekeeping.
type Maintenance struct {
	ProbeSchedule string `toml:"probe_schedule"`
	PruneSchedule string `toml:"prune_schedule"`
	EvictSchedule string `toml:"evict_schedule"`
}

// Config encapsulates all configuration values for vidpipe.
//
// Configuration sections by subsystem:
//   - Paths: work and log directories
//   - Server: daemon HTTP API
//   - Logging: log format and level
//   - Quota, Retry, Providers, Tasks: the language-model router
//   - Subtitles, Narration, Editing, Copyright, Upload: stage collaborators
//   - Jobs: concurrency and retention of in-memory job records
//   - Notifications: ntfy push notification settings
//   - Maintenance: cron schedules for probe, prune, and eviction
type Config struct {
	Paths         Paths         `toml:"paths"`
	Server        Server        `toml:"server"`
	Logging       Logging       `toml:"logging"`
	Quota         Quota         `toml:"quota"`
	Retry         Retry         `toml:"retry"`
	Providers     Providers     `toml:"providers"`
	Tasks         Tasks         `toml:"tasks"`
	Subtitles     Subtitles     `toml:"subtitles"`
	Narration     Narration     `toml:"narration"`
	Editing       Editing       `toml:"editing"`
	Copyright     Copyright     `toml:"copyright"`
	Upload        Upload        `toml:"upload"`
	Jobs          Jobs          `toml:"jobs"`
	Notifications Notifications `toml:"notifications"`
	Maintenance   Maintenance   `toml:"maintenance"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("vidpipe.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the work and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.WorkDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// LockPath returns the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.LogDir, "vidpiped.lock")
}

// HealthCooldown returns the backend recovery interval; zero keeps failed backends down.
func (c *Config) HealthCooldown() time.Duration {
	return time.Duration(c.Providers.HealthCooldownSeconds) * time.Second
}

// JobRetention returns how long terminal job records are kept in memory.
func (c *Config) JobRetention() time.Duration {
	return time.Duration(c.Jobs.RetentionMinutes) * time.Minute
}

// BackendRetry returns the retry policy for a backend, falling back to [retry].
func (c *Config) BackendRetry(b Backend) Retry {
	if b.Retry != nil {
		return *b.Retry
	}
	return c.Retry
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// SampleConfig returns the embedded sample configuration.
func SampleConfig() string {
	return sampleConfig
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
