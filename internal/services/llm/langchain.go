package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cast"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"vidpipe/internal/provider"
	"vidpipe/internal/services"
)

// LangChainBackend adapts a langchaingo model to provider.Backend.
type LangChainBackend struct {
	model llms.Model
}

// NewLangChainBackend wraps an existing langchaingo model.
func NewLangChainBackend(model llms.Model) *LangChainBackend {
	return &LangChainBackend{model: model}
}

// NewOllamaBackend builds a backend for a local Ollama server.
func NewOllamaBackend(serverURL, model string) (*LangChainBackend, error) {
	opts := []ollama.Option{ollama.WithModel(model)}
	if serverURL = strings.TrimSpace(serverURL); serverURL != "" {
		opts = append(opts, ollama.WithServerURL(serverURL))
	}
	llm, err := ollama.New(opts...)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "", "ollama", "create client", err)
	}
	return NewLangChainBackend(llm), nil
}

// NewLangChainOpenAIBackend builds a backend through langchaingo's OpenAI client.
// baseURL is the API root (for example https://api.openai.com/v1).
func NewLangChainOpenAIBackend(baseURL, token, model string) (*LangChainBackend, error) {
	opts := []openai.Option{openai.WithToken(token), openai.WithModel(model)}
	if baseURL = strings.TrimSpace(baseURL); baseURL != "" {
		opts = append(opts, openai.WithBaseURL(strings.TrimSuffix(baseURL, "/chat/completions")))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "", "langchain openai", "create client", err)
	}
	return NewLangChainBackend(llm), nil
}

// Complete implements provider.Backend.
func (b *LangChainBackend) Complete(ctx context.Context, req provider.Request) (provider.Completion, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return provider.Completion{}, services.Wrap(services.ErrValidation, "", "llm complete", "prompt required", nil)
	}
	opts := []llms.CallOption{llms.WithTemperature(req.Temperature)}
	if req.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(req.MaxTokens))
	}
	if req.Model != "" {
		opts = append(opts, llms.WithModel(req.Model))
	}
	messages := []llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, req.Prompt)}
	resp, err := b.model.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return provider.Completion{}, fmt.Errorf("%w: langchain generate: %w", services.ErrTransient, err)
	}
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
		return provider.Completion{}, &emptyContentError{Snippet: "<no choices>"}
	}
	choice := resp.Choices[0]
	text := strings.TrimSpace(choice.Content)
	if text == "" {
		return provider.Completion{}, &emptyContentError{FinishReason: choice.StopReason, Snippet: "<empty>"}
	}
	return provider.Completion{Text: text, TotalTokens: totalTokens(choice.GenerationInfo)}, nil
}

func totalTokens(info map[string]any) int {
	if info == nil {
		return 0
	}
	if total, err := cast.ToIntE(info["TotalTokens"]); err == nil && total > 0 {
		return total
	}
	prompt, _ := cast.ToIntE(info["PromptTokens"])
	completion, _ := cast.ToIntE(info["CompletionTokens"])
	return prompt + completion
}
