package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"vidpipe/internal/config"
)

func validConfig() config.Config {
	cfg := config.Default()
	cfg.Providers.Backends = config.DefaultBackends()
	for i := range cfg.Providers.Backends {
		cfg.Providers.Backends[i].APIKey = "key"
	}
	return cfg
}

func TestLoadDefaultConfigUsesEnvKeyAndExpandsPaths(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "env-openai")
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantWork := filepath.Join(tempHome, ".local", "share", "vidpipe", "work")
	if cfg.Paths.WorkDir != wantWork {
		t.Fatalf("unexpected work dir: got %q want %q", cfg.Paths.WorkDir, wantWork)
	}
	if cfg.Server.Bind != "127.0.0.1:7490" {
		t.Fatalf("unexpected bind: %q", cfg.Server.Bind)
	}
	if len(cfg.Providers.Backends) != 2 {
		t.Fatalf("expected default backend pool, got %d backends", len(cfg.Providers.Backends))
	}
	for _, b := range cfg.Providers.Backends {
		if b.APIKey != "env-openai" {
			t.Fatalf("expected backend %s key from env, got %q", b.ID, b.APIKey)
		}
	}
	if cfg.Quota.DailyLimit != 100000 || cfg.Quota.MonthlyLimit != 2000000 || cfg.Quota.ResetDay != 1 {
		t.Fatalf("unexpected quota defaults: %+v", cfg.Quota)
	}
	if cfg.Retry.MaxRetries != 3 || cfg.Retry.BaseDelayMS != 1000 || cfg.Retry.MaxDelayMS != 10000 {
		t.Fatalf("unexpected retry defaults: %+v", cfg.Retry)
	}
	if _, ok := cfg.Upload.Platforms[config.PlatformYouTube]; !ok {
		t.Fatal("expected youtube platform defaults")
	}
	if cfg.LockPath() != filepath.Join(cfg.Paths.LogDir, "vidpiped.lock") {
		t.Fatalf("unexpected lock path: %q", cfg.LockPath())
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "vidpipe.toml")

	contents := `
[quota]
daily_limit = 500
monthly_limit = 9000
reset_day = 15

[providers]
health_cooldown_seconds = 0

[[providers.backends]]
id = "local"
kind = "Ollama"
model = "llama3"

[tasks]
analysis = "local"
segmentation = ""
copyright = "local"
sensitive = ""

[upload.platforms.YouTube]
endpoint = "https://uploads.example.com/yt"
max_tags = 10
`
	if err := os.WriteFile(configPath, []byte(contents), 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Quota.DailyLimit != 500 || cfg.Quota.ResetDay != 15 {
		t.Fatalf("quota override not applied: %+v", cfg.Quota)
	}
	if len(cfg.Providers.Backends) != 1 {
		t.Fatalf("expected declared backends to replace defaults, got %d", len(cfg.Providers.Backends))
	}
	local := cfg.Providers.Backends[0]
	if local.Kind != config.BackendKindOllama {
		t.Fatalf("expected kind lowercased, got %q", local.Kind)
	}
	if local.Endpoint != "http://127.0.0.1:11434" {
		t.Fatalf("expected ollama endpoint default, got %q", local.Endpoint)
	}
	if local.TimeoutMS <= 0 || local.MaxTokens <= 0 {
		t.Fatalf("expected backend defaults filled, got %+v", local)
	}
	if cfg.HealthCooldown() != 0 {
		t.Fatalf("expected zero cooldown, got %s", cfg.HealthCooldown())
	}
	yt := cfg.Upload.Platforms[config.PlatformYouTube]
	if yt.Endpoint != "https://uploads.example.com/yt" || yt.MaxTags != 10 {
		t.Fatalf("unexpected youtube platform: %+v", yt)
	}
	if yt.MaxTitleLength != 100 {
		t.Fatalf("expected youtube title limit from defaults, got %d", yt.MaxTitleLength)
	}
}

func TestEnvVarOverridesConfigFileForAPIKeys(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "vidpipe.toml")

	contents := `
[subtitles]
api_key = "file-aai"

[narration]
api_key = "file-tts"

[[providers.backends]]
id = "gpt-4"
api_key = "file-openai"
api_key_env = "CUSTOM_KEY"

[tasks]
analysis = "gpt-4"
segmentation = "gpt-4"
copyright = "gpt-4"
sensitive = "gpt-4"
`
	if err := os.WriteFile(configPath, []byte(contents), 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	t.Setenv("ASSEMBLYAI_API_KEY", "env-aai")
	t.Setenv("TTS_API_KEY", "env-tts")
	t.Setenv("CUSTOM_KEY", "env-openai")
	t.Setenv("VIMEO_UPLOAD_TOKEN", "env-vimeo")

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Subtitles.APIKey != "env-aai" {
		t.Errorf("expected AssemblyAI key from env, got %q", cfg.Subtitles.APIKey)
	}
	if cfg.Narration.APIKey != "env-tts" {
		t.Errorf("expected TTS key from env, got %q", cfg.Narration.APIKey)
	}
	if cfg.Providers.Backends[0].APIKey != "env-openai" {
		t.Errorf("expected backend key from env, got %q", cfg.Providers.Backends[0].APIKey)
	}
	if cfg.Upload.Platforms[config.PlatformVimeo].APIKey != "env-vimeo" {
		t.Errorf("expected vimeo token from env, got %q", cfg.Upload.Platforms[config.PlatformVimeo].APIKey)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "[[providers.backends]]") {
		t.Fatalf("sample config missing backend pool: %s", contents)
	}

	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	if len(cfg.Providers.Backends) != 2 {
		t.Fatalf("expected two sample backends, got %d", len(cfg.Providers.Backends))
	}
	if !strings.Contains(cfg.Paths.WorkDir, "vidpipe") {
		t.Fatalf("expected work dir to contain vidpipe, got %q", cfg.Paths.WorkDir)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	if err := func() error { cfg := validConfig(); return cfg.Validate() }(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"no backends", func(c *config.Config) { c.Providers.Backends = nil }},
		{"duplicate backend", func(c *config.Config) { c.Providers.Backends[1].ID = c.Providers.Backends[0].ID }},
		{"missing key", func(c *config.Config) { c.Providers.Backends[0].APIKey = "" }},
		{"unknown kind", func(c *config.Config) { c.Providers.Backends[0].Kind = "carrier-pigeon" }},
		{"zero daily limit", func(c *config.Config) { c.Quota.DailyLimit = 0 }},
		{"reset day", func(c *config.Config) { c.Quota.ResetDay = 32 }},
		{"negative retries", func(c *config.Config) { c.Retry.MaxRetries = -1 }},
		{"max below base", func(c *config.Config) { c.Retry.MaxDelayMS = c.Retry.BaseDelayMS - 1 }},
		{"backend retry", func(c *config.Config) {
			c.Providers.Backends[0].Retry = &config.Retry{MaxRetries: 1, BaseDelayMS: 10, MaxDelayMS: 5}
		}},
		{"unknown task backend", func(c *config.Config) { c.Tasks.Analysis = "missing" }},
		{"log format", func(c *config.Config) { c.Logging.Format = "xml" }},
		{"quality", func(c *config.Config) { c.Editing.Quality = 101 }},
		{"edit format", func(c *config.Config) { c.Editing.Format = "avi" }},
		{"concurrency", func(c *config.Config) { c.Jobs.MaxConcurrent = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error for %s", tt.name)
			}
		})
	}
}

func TestBackendRetryFallsBackToGlobal(t *testing.T) {
	cfg := validConfig()
	b := cfg.Providers.Backends[0]
	if got := cfg.BackendRetry(b); got != cfg.Retry {
		t.Fatalf("expected global retry, got %+v", got)
	}
	b.Retry = &config.Retry{MaxRetries: 1, BaseDelayMS: 5, MaxDelayMS: 50}
	if got := cfg.BackendRetry(b); got.MaxRetries != 1 || got.MaxDelay().Milliseconds() != 50 {
		t.Fatalf("expected backend override, got %+v", got)
	}
}
