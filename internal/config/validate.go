package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.validateQuota(); err != nil {
		return err
	}
	if err := c.validateRetry("retry", c.Retry); err != nil {
		return err
	}
	if err := c.validateProviders(); err != nil {
		return err
	}
	if err := c.validateTasks(); err != nil {
		return err
	}
	if err := c.validateEditing(); err != nil {
		return err
	}
	if err := c.validateJobs(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	return nil
}

func (c *Config) validateQuota() error {
	if c.Quota.DailyLimit <= 0 || c.Quota.MonthlyLimit <= 0 {
		return errors.New("quota.daily_limit and quota.monthly_limit must be positive")
	}
	if c.Quota.ResetDay < 1 || c.Quota.ResetDay > 31 {
		return fmt.Errorf("quota.reset_day must be between 1 and 31, got %d", c.Quota.ResetDay)
	}
	return nil
}

func (c *Config) validateRetry(section string, r Retry) error {
	if r.MaxRetries < 0 {
		return fmt.Errorf("%s.max_retries must be non-negative", section)
	}
	if r.BaseDelayMS < 0 {
		return fmt.Errorf("%s.base_delay_ms must be non-negative", section)
	}
	if r.MaxDelayMS < r.BaseDelayMS {
		return fmt.Errorf("%s.max_delay_ms must be >= base_delay_ms", section)
	}
	return nil
}

func (c *Config) validateProviders() error {
	if len(c.Providers.Backends) == 0 {
		return errors.New("providers.backends must configure at least one backend")
	}
	seen := make(map[string]struct{}, len(c.Providers.Backends))
	for i, b := range c.Providers.Backends {
		label := fmt.Sprintf("providers.backends[%d]", i)
		if b.ID == "" {
			return fmt.Errorf("%s.id must be set", label)
		}
		if _, dup := seen[b.ID]; dup {
			return fmt.Errorf("%s.id %q is duplicated", label, b.ID)
		}
		seen[b.ID] = struct{}{}
		switch b.Kind {
		case BackendKindOpenAI, BackendKindLangChainOpenAI:
			if b.APIKey == "" {
				defaultPath, err := DefaultConfigPath()
				if err != nil {
					defaultPath = defaultConfigPath
				}
				return fmt.Errorf("%s: api key not configured for backend %q. Set %s or edit %s (create with 'vidpipe config init')", label, b.ID, b.APIKeyEnv, defaultPath)
			}
		case BackendKindOllama:
		default:
			return fmt.Errorf("%s.kind %q is not supported", label, b.Kind)
		}
		if b.RequestsPerMinute < 0 {
			return fmt.Errorf("%s.requests_per_minute must be non-negative", label)
		}
		if b.Retry != nil {
			if err := c.validateRetry(label+".retry", *b.Retry); err != nil {
				return err
			}
		}
	}
	if c.Providers.Temperature < 0 || c.Providers.Temperature > 2 {
		return errors.New("providers.temperature must be between 0 and 2")
	}
	return nil
}

func (c *Config) validateTasks() error {
	known := make(map[string]struct{}, len(c.Providers.Backends))
	for _, b := range c.Providers.Backends {
		known[b.ID] = struct{}{}
	}
	for name, id := range map[string]string{
		"tasks.analysis":     c.Tasks.Analysis,
		"tasks.segmentation": c.Tasks.Segmentation,
		"tasks.copyright":    c.Tasks.Copyright,
		"tasks.sensitive":    c.Tasks.Sensitive,
	} {
		if id == "" {
			continue
		}
		if _, ok := known[id]; !ok {
			return fmt.Errorf("%s references unknown backend %q", name, id)
		}
	}
	return nil
}

func (c *Config) validateEditing() error {
	if c.Editing.Quality < 0 || c.Editing.Quality > 100 {
		return errors.New("editing.quality must be between 0 and 100")
	}
	switch strings.ToLower(c.Editing.Format) {
	case "mp4", "webm":
	default:
		return fmt.Errorf("editing.format must be mp4 or webm, got %q", c.Editing.Format)
	}
	return nil
}

func (c *Config) validateJobs() error {
	if c.Jobs.MaxConcurrent < 1 {
		return errors.New("jobs.max_concurrent must be at least 1")
	}
	if c.Jobs.RetentionMinutes < 0 {
		return errors.New("jobs.retention_minutes must be non-negative")
	}
	return nil
}
