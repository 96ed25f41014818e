package llm

import (
	"fmt"
	"net/http"

	"vidpipe/internal/config"
	"vidpipe/internal/provider"
	"vidpipe/internal/services"
)

// NewBackend constructs the driver for one configured backend.
func NewBackend(b config.Backend, httpClient *http.Client) (provider.Backend, error) {
	switch b.Kind {
	case config.BackendKindOpenAI, "":
		return NewClient(Config{APIKey: b.APIKey, Endpoint: b.Endpoint, Model: b.Model}, WithHTTPClient(httpClient)), nil
	case config.BackendKindLangChainOpenAI:
		return NewLangChainOpenAIBackend(b.Endpoint, b.APIKey, b.Model)
	case config.BackendKindOllama:
		return NewOllamaBackend(b.Endpoint, b.Model)
	default:
		return nil, services.Wrap(services.ErrConfiguration, "", "backend pool", fmt.Sprintf("unsupported kind %q for %s", b.Kind, b.ID), nil)
	}
}

// Descriptor converts a configured backend into its router descriptor.
func Descriptor(cfg *config.Config, b config.Backend) provider.Descriptor {
	retry := cfg.BackendRetry(b)
	return provider.Descriptor{
		ID:                b.ID,
		Kind:              b.Kind,
		Model:             b.Model,
		Endpoint:          b.Endpoint,
		Credential:        b.APIKey,
		MaxTokens:         b.MaxTokens,
		Timeout:           b.Timeout(),
		Priority:          b.Priority,
		RequestsPerMinute: b.RequestsPerMinute,
		Retry: provider.RetryPolicy{
			MaxRetries: retry.MaxRetries,
			BaseDelay:  retry.BaseDelay(),
			MaxDelay:   retry.MaxDelay(),
		},
	}
}

// BuildPool constructs router members for every configured backend.
func BuildPool(cfg *config.Config, httpClient *http.Client) ([]provider.Member, error) {
	members := make([]provider.Member, 0, len(cfg.Providers.Backends))
	for _, b := range cfg.Providers.Backends {
		backend, err := NewBackend(b, httpClient)
		if err != nil {
			return nil, err
		}
		members = append(members, provider.Member{Descriptor: Descriptor(cfg, b), Backend: backend})
	}
	return members, nil
}
