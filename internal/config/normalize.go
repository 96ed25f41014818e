package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeServer()
	c.normalizeLogging()
	if err := c.normalizeQuota(); err != nil {
		return err
	}
	c.normalizeProviders()
	c.normalizeSubtitles()
	c.normalizeNarration()
	c.normalizeEditing()
	c.normalizeUpload()
	c.normalizeMaintenance()
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		c.Paths.WorkDir = defaultWorkDir
	}
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeServer() {
	c.Server.Bind = strings.TrimSpace(c.Server.Bind)
	if c.Server.Bind == "" {
		c.Server.Bind = defaultServerBind
	}
	c.Server.Token = strings.TrimSpace(c.Server.Token)
	c.Server.Token = envOverride(c.Server.Token, "VIDPIPE_API_TOKEN")
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = defaultShutdownTimeout
	}
	if c.Server.MaxUploadMiB <= 0 {
		c.Server.MaxUploadMiB = defaultMaxUploadMiB
	}
	if c.Server.SubscriberBuffer <= 0 {
		c.Server.SubscriberBuffer = defaultSubscriberBuffer
	}
	if c.Server.WebSocketPingPeriod <= 0 {
		c.Server.WebSocketPingPeriod = defaultWebSocketPingPeriod
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.StreamCapacity <= 0 {
		c.Logging.StreamCapacity = defaultLogStreamCapacity
	}
}

func (c *Config) normalizeQuota() error {
	c.Quota.StorePath = strings.TrimSpace(c.Quota.StorePath)
	if c.Quota.StorePath == "" {
		return nil
	}
	expanded, err := expandPath(c.Quota.StorePath)
	if err != nil {
		return fmt.Errorf("quota.store_path: %w", err)
	}
	c.Quota.StorePath = expanded
	return nil
}

func (c *Config) normalizeProviders() {
	if len(c.Providers.Backends) == 0 {
		c.Providers.Backends = DefaultBackends()
	}
	for i := range c.Providers.Backends {
		b := &c.Providers.Backends[i]
		b.ID = strings.TrimSpace(b.ID)
		b.Kind = strings.ToLower(strings.TrimSpace(b.Kind))
		if b.Kind == "" {
			b.Kind = BackendKindOpenAI
		}
		b.Model = strings.TrimSpace(b.Model)
		if b.Model == "" {
			b.Model = b.ID
		}
		b.Endpoint = strings.TrimSpace(b.Endpoint)
		if b.Endpoint == "" {
			switch b.Kind {
			case BackendKindOllama:
				b.Endpoint = defaultOllamaEndpoint
			case BackendKindOpenAI:
				b.Endpoint = defaultOpenAIEndpoint
			}
		}
		b.APIKey = strings.TrimSpace(b.APIKey)
		b.APIKeyEnv = strings.TrimSpace(b.APIKeyEnv)
		if b.APIKeyEnv == "" && b.Kind != BackendKindOllama {
			b.APIKeyEnv = defaultOpenAIKeyEnv
		}
		if b.APIKeyEnv != "" {
			b.APIKey = envOverride(b.APIKey, b.APIKeyEnv)
		}
		if b.MaxTokens <= 0 {
			b.MaxTokens = defaultBackendMaxTokens
		}
		if b.TimeoutMS <= 0 {
			b.TimeoutMS = defaultBackendTimeoutMS
		}
	}
	if c.Providers.HealthCooldownSeconds < 0 {
		c.Providers.HealthCooldownSeconds = 0
	}
	c.Tasks.Analysis = strings.TrimSpace(c.Tasks.Analysis)
	c.Tasks.Segmentation = strings.TrimSpace(c.Tasks.Segmentation)
	c.Tasks.Copyright = strings.TrimSpace(c.Tasks.Copyright)
	c.Tasks.Sensitive = strings.TrimSpace(c.Tasks.Sensitive)
}

func (c *Config) normalizeSubtitles() {
	c.Subtitles.APIKey = envOverride(c.Subtitles.APIKey, "ASSEMBLYAI_API_KEY")
	c.Subtitles.BaseURL = strings.TrimSpace(c.Subtitles.BaseURL)
	c.Subtitles.LanguageCode = strings.ToLower(strings.TrimSpace(c.Subtitles.LanguageCode))
	if c.Subtitles.LanguageCode == "" {
		c.Subtitles.LanguageCode = defaultSubtitleLanguage
	}
	if c.Subtitles.MergeGapSeconds < 0 {
		c.Subtitles.MergeGapSeconds = defaultSubtitleMergeGap
	}
	if c.Subtitles.MaxCueSeconds <= 0 {
		c.Subtitles.MaxCueSeconds = defaultSubtitleMaxCue
	}
}

func (c *Config) normalizeNarration() {
	c.Narration.Endpoint = envOverride(c.Narration.Endpoint, "TTS_API_ENDPOINT")
	c.Narration.APIKey = envOverride(c.Narration.APIKey, "TTS_API_KEY")
	c.Narration.Voice = strings.TrimSpace(c.Narration.Voice)
	if c.Narration.Voice == "" {
		c.Narration.Voice = defaultNarrationVoice
	}
	if c.Narration.Speed <= 0 {
		c.Narration.Speed = 1.0
	}
	if c.Narration.Pitch <= 0 {
		c.Narration.Pitch = 1.0
	}
	c.Narration.Format = strings.ToLower(strings.TrimSpace(c.Narration.Format))
	if c.Narration.Format == "" {
		c.Narration.Format = defaultNarrationFormat
	}
	if c.Narration.MaxChunkChars <= 0 {
		c.Narration.MaxChunkChars = defaultNarrationChunkChars
	}
	if c.Narration.TimeoutSeconds <= 0 {
		c.Narration.TimeoutSeconds = defaultNarrationTimeout
	}
}

func (c *Config) normalizeEditing() {
	c.Editing.FFmpegBinary = strings.TrimSpace(c.Editing.FFmpegBinary)
	if c.Editing.FFmpegBinary == "" {
		c.Editing.FFmpegBinary = defaultFFmpegBinary
	}
	c.Editing.Format = strings.ToLower(strings.TrimSpace(c.Editing.Format))
	if c.Editing.Format == "" {
		c.Editing.Format = defaultEditFormat
	}
	if c.Editing.Width <= 0 {
		c.Editing.Width = defaultEditWidth
	}
	if c.Editing.Height <= 0 {
		c.Editing.Height = defaultEditHeight
	}
	if c.Editing.FPS <= 0 {
		c.Editing.FPS = defaultEditFPS
	}
}

func (c *Config) normalizeUpload() {
	if c.Upload.ChunkSizeMiB <= 0 {
		c.Upload.ChunkSizeMiB = defaultUploadChunkMiB
	}
	if c.Upload.MaxRetries <= 0 {
		c.Upload.MaxRetries = defaultUploadMaxRetries
	}
	if c.Upload.RetryDelayMS <= 0 {
		c.Upload.RetryDelayMS = defaultUploadRetryDelayMS
	}
	if c.Upload.TimeoutSeconds <= 0 {
		c.Upload.TimeoutSeconds = defaultUploadTimeoutSeconds
	}

	defaults := DefaultPlatforms()
	merged := make(map[string]Platform, len(defaults)+len(c.Upload.Platforms))
	for name, platform := range defaults {
		merged[name] = platform
	}
	for rawName, platform := range c.Upload.Platforms {
		name := strings.ToLower(strings.TrimSpace(rawName))
		base := merged[name]
		platform.Endpoint = strings.TrimSpace(platform.Endpoint)
		platform.APIKey = strings.TrimSpace(platform.APIKey)
		if platform.MaxTitleLength == 0 {
			platform.MaxTitleLength = base.MaxTitleLength
		}
		if platform.MaxDescriptionLength == 0 {
			platform.MaxDescriptionLength = base.MaxDescriptionLength
		}
		if platform.MaxTags == 0 {
			platform.MaxTags = base.MaxTags
		}
		merged[name] = platform
	}
	for name, platform := range merged {
		platform.APIKey = envOverride(platform.APIKey, strings.ToUpper(name)+"_UPLOAD_TOKEN")
		merged[name] = platform
	}
	c.Upload.Platforms = merged
}

func (c *Config) normalizeMaintenance() {
	c.Maintenance.ProbeSchedule = strings.TrimSpace(c.Maintenance.ProbeSchedule)
	c.Maintenance.PruneSchedule = strings.TrimSpace(c.Maintenance.PruneSchedule)
	c.Maintenance.EvictSchedule = strings.TrimSpace(c.Maintenance.EvictSchedule)
}

// envOverride returns the trimmed value of the named environment variable when
// set and non-empty. Environment credentials win over file values.
func envOverride(current, name string) string {
	if value, ok := os.LookupEnv(name); ok {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return strings.TrimSpace(current)
}
