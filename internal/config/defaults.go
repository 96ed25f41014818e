package config

const (
	defaultConfigPath             = "~/.config/vidpipe/config.toml"
	defaultWorkDir                = "~/.local/share/vidpipe/work"
	defaultLogDir                 = "~/.local/share/vidpipe/logs"
	defaultServerBind             = "127.0.0.1:7490"
	defaultShutdownTimeout        = 10
	defaultMaxUploadMiB           = 2048
	defaultSubscriberBuffer       = 16
	defaultWebSocketPingPeriod    = 30
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
	defaultLogStreamCapacity      = 1024
	defaultQuotaDailyLimit        = 100000
	defaultQuotaMonthlyLimit      = 2000000
	defaultQuotaResetDay          = 1
	defaultRetryMaxRetries        = 3
	defaultRetryBaseDelayMS       = 1000
	defaultRetryMaxDelayMS        = 10000
	defaultHealthCooldownSeconds  = 300
	defaultTemperature            = 0.7
	defaultOpenAIEndpoint         = "https://api.openai.com/v1/chat/completions"
	defaultOpenAIKeyEnv           = "OPENAI_API_KEY"
	defaultOllamaEndpoint         = "http://127.0.0.1:11434"
	defaultBackendTimeoutMS       = 30000
	defaultBackendMaxTokens       = 4096
	defaultSubtitleMergeGap       = 0.5
	defaultSubtitleMaxCue         = 5
	defaultSubtitleLanguage       = "en"
	defaultNarrationVoice         = "en-US-Neural2-F"
	defaultNarrationFormat        = "mp3"
	defaultNarrationChunkChars    = 3000
	defaultNarrationTimeout       = 60
	defaultFFmpegBinary           = "ffmpeg"
	defaultEditWidth              = 1920
	defaultEditHeight             = 1080
	defaultEditFPS                = 30
	defaultEditFormat             = "mp4"
	defaultEditQuality            = 85
	defaultUploadChunkMiB         = 8
	defaultUploadMaxRetries       = 3
	defaultUploadRetryDelayMS     = 1000
	defaultUploadTimeoutSeconds   = 300
	defaultJobsMaxConcurrent      = 2
	defaultJobsRetentionMinutes   = 60
	defaultNotifyRequestTimeout   = 10
	defaultMaintenanceProbe       = "@every 1m"
	defaultMaintenancePrune       = "@hourly"
	defaultMaintenanceEvict       = "@every 5m"
	defaultPlatformDescriptionMax = 5000
)

// Backend kinds understood by the router wiring.
const (
	BackendKindOpenAI          = "openai"
	BackendKindLangChainOpenAI = "langchain-openai"
	BackendKindOllama          = "ollama"
)

// Upload platform names.
const (
	PlatformYouTube = "youtube"
	PlatformVimeo   = "vimeo"
	PlatformCustom  = "custom"
)

// Default returns a Config populated with repository defaults. The backend
// pool and platform table are filled during normalization so files that
// declare their own entries replace them instead of merging with them.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkDir: defaultWorkDir,
			LogDir:  defaultLogDir,
		},
		Server: Server{
			Bind:                defaultServerBind,
			ShutdownTimeout:     defaultShutdownTimeout,
			MaxUploadMiB:        defaultMaxUploadMiB,
			SubscriberBuffer:    defaultSubscriberBuffer,
			WebSocketPingPeriod: defaultWebSocketPingPeriod,
		},
		Logging: Logging{
			Format:         defaultLogFormat,
			Level:          defaultLogLevel,
			StreamCapacity: defaultLogStreamCapacity,
		},
		Quota: Quota{
			DailyLimit:   defaultQuotaDailyLimit,
			MonthlyLimit: defaultQuotaMonthlyLimit,
			ResetDay:     defaultQuotaResetDay,
		},
		Retry: Retry{
			MaxRetries:  defaultRetryMaxRetries,
			BaseDelayMS: defaultRetryBaseDelayMS,
			MaxDelayMS:  defaultRetryMaxDelayMS,
		},
		Providers: Providers{
			HealthCooldownSeconds: defaultHealthCooldownSeconds,
			Temperature:           defaultTemperature,
		},
		Tasks: Tasks{
			Analysis:     "gpt-4",
			Segmentation: "gpt-3.5-turbo",
			Copyright:    "gpt-4",
			Sensitive:    "gpt-3.5-turbo",
		},
		Subtitles: Subtitles{
			LanguageCode:    defaultSubtitleLanguage,
			MergeGapSeconds: defaultSubtitleMergeGap,
			MaxCueSeconds:   defaultSubtitleMaxCue,
		},
		Narration: Narration{
			Voice:          defaultNarrationVoice,
			Speed:          1.0,
			Pitch:          1.0,
			Format:         defaultNarrationFormat,
			MaxChunkChars:  defaultNarrationChunkChars,
			TimeoutSeconds: defaultNarrationTimeout,
		},
		Editing: Editing{
			FFmpegBinary: defaultFFmpegBinary,
			Width:        defaultEditWidth,
			Height:       defaultEditHeight,
			FPS:          defaultEditFPS,
			Format:       defaultEditFormat,
			Quality:      defaultEditQuality,
		},
		Upload: Upload{
			ChunkSizeMiB:   defaultUploadChunkMiB,
			MaxRetries:     defaultUploadMaxRetries,
			RetryDelayMS:   defaultUploadRetryDelayMS,
			TimeoutSeconds: defaultUploadTimeoutSeconds,
		},
		Jobs: Jobs{
			MaxConcurrent:    defaultJobsMaxConcurrent,
			RetentionMinutes: defaultJobsRetentionMinutes,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			JobCompleted:   true,
			JobFailed:      true,
			BackendDown:    true,
		},
		Maintenance: Maintenance{
			ProbeSchedule: defaultMaintenanceProbe,
			PruneSchedule: defaultMaintenancePrune,
			EvictSchedule: defaultMaintenanceEvict,
		},
	}
}

// DefaultBackends returns the stock backend pool used when none is configured.
func DefaultBackends() []Backend {
	return []Backend{
		{
			ID:        "gpt-4",
			Kind:      BackendKindOpenAI,
			Model:     "gpt-4",
			Endpoint:  defaultOpenAIEndpoint,
			APIKeyEnv: defaultOpenAIKeyEnv,
			MaxTokens: 8192,
			TimeoutMS: 30000,
			Priority:  1,
		},
		{
			ID:        "gpt-3.5-turbo",
			Kind:      BackendKindOpenAI,
			Model:     "gpt-3.5-turbo",
			Endpoint:  defaultOpenAIEndpoint,
			APIKeyEnv: defaultOpenAIKeyEnv,
			MaxTokens: 4096,
			TimeoutMS: 15000,
			Priority:  2,
		},
	}
}

// DefaultPlatforms returns the stock upload platform limits.
func DefaultPlatforms() map[string]Platform {
	return map[string]Platform{
		PlatformYouTube: {
			MaxTitleLength:       100,
			MaxDescriptionLength: defaultPlatformDescriptionMax,
			MaxTags:              500,
		},
		PlatformVimeo: {
			MaxTitleLength:       128,
			MaxDescriptionLength: defaultPlatformDescriptionMax,
			MaxTags:              20,
		},
		PlatformCustom: {},
	}
}
