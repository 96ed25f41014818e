package testsupport

import (
	"path/filepath"
	"testing"

	"vidpipe/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// The stock backend pool and platform table are filled in with placeholder
// credentials so the result passes validation.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.WorkDir = filepath.Join(base, "work")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Server.Bind = "127.0.0.1:0"
	cfgVal.Quota.StorePath = ""
	cfgVal.Subtitles.APIKey = "test"
	cfgVal.Narration.Endpoint = "http://127.0.0.1:0/tts"
	cfgVal.Narration.APIKey = "test"

	backends := config.DefaultBackends()
	for i := range backends {
		backends[i].APIKey = "test"
	}
	cfgVal.Providers.Backends = backends
	cfgVal.Upload.Platforms = config.DefaultPlatforms()

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithBackends replaces the backend pool on the test config.
func WithBackends(backends ...config.Backend) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Providers.Backends = backends
	}
}

// WithPlatformEndpoint points an upload platform at endpoint, typically an
// httptest server.
func WithPlatformEndpoint(name, endpoint string) ConfigOption {
	return func(b *configBuilder) {
		platforms := b.cfg.Upload.Platforms
		if platforms == nil {
			platforms = make(map[string]config.Platform)
		}
		platform := platforms[name]
		platform.Endpoint = endpoint
		platforms[name] = platform
		b.cfg.Upload.Platforms = platforms
	}
}

// WithToken enables bearer-token auth on the test API server.
func WithToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Server.Token = token
	}
}

// WithUsageStore enables the sqlite quota mirror inside the temp directory.
func WithUsageStore() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Quota.StorePath = filepath.Join(b.baseDir, "usage.db")
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.WorkDir)
}
