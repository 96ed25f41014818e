package llm

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"vidpipe/internal/provider"
	"vidpipe/internal/services"
)

// Config captures the settings for one OpenAI-compatible endpoint.
type Config struct {
	APIKey   string
	Endpoint string
	Model    string
	// SystemPrompt, when set, is sent ahead of every user prompt.
	SystemPrompt string
}

// Client calls an OpenAI-compatible chat completion endpoint. It performs a
// single request per Complete; retry and fallover belong to the router.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient constructs a client. Per-call deadlines come from the context.
func NewClient(cfg Config, opts ...Option) *Client {
	client := &Client{
		cfg: Config{
			APIKey:       strings.TrimSpace(cfg.APIKey),
			Endpoint:     strings.TrimSpace(cfg.Endpoint),
			Model:        strings.TrimSpace(cfg.Model),
			SystemPrompt: strings.TrimSpace(cfg.SystemPrompt),
		},
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.cfg.Endpoint == "" {
		client.cfg.Endpoint = "https://api.openai.com/v1/chat/completions"
	}
	return client
}

// httpStatusError is a non-2xx reply from the endpoint.
type httpStatusError struct {
	StatusCode int
	Body       string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("llm request: http %d: %s", e.StatusCode, e.Body)
}

// marker classifies the status. 401 and 403 point at the api key.
func (e *httpStatusError) marker() error {
	switch {
	case e.StatusCode == http.StatusUnauthorized, e.StatusCode == http.StatusForbidden:
		return services.ErrConfiguration
	case e.StatusCode == http.StatusRequestTimeout,
		e.StatusCode == http.StatusTooManyRequests,
		e.StatusCode >= http.StatusInternalServerError:
		return services.ErrTransient
	default:
		return services.ErrExternalTool
	}
}

// emptyContentError is a 2xx reply without usable text, usually a refusal or
// a content filter.
type emptyContentError struct {
	FinishReason string
	Refusal      string
	Snippet      string
}

func (e *emptyContentError) Error() string {
	return fmt.Sprintf("llm complete: empty content (finish_reason=%q, refusal=%q, response_snippet=%s)",
		e.FinishReason, e.Refusal, e.Snippet)
}

// Complete implements provider.Backend.
func (c *Client) Complete(ctx context.Context, req provider.Request) (provider.Completion, error) {
	prompt := strings.TrimSpace(req.Prompt)
	switch {
	case prompt == "":
		return provider.Completion{}, services.Wrap(services.ErrValidation, "", "llm complete", "prompt required", nil)
	case c.cfg.APIKey == "":
		return provider.Completion{}, services.Wrap(services.ErrConfiguration, "", "llm complete", "api key required", nil)
	}

	payload := chatCompletionRequest{
		Model:       cmp.Or(strings.TrimSpace(req.Model), c.cfg.Model),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if c.cfg.SystemPrompt != "" {
		payload.Messages = append(payload.Messages, chatMessage{Role: "system", Content: c.cfg.SystemPrompt})
	}
	payload.Messages = append(payload.Messages, chatMessage{Role: "user", Content: prompt})

	reply, raw, err := c.post(ctx, payload)
	if err != nil {
		return provider.Completion{}, err
	}
	text, finish, refusal := reply.answer()
	if text == "" {
		return provider.Completion{}, &emptyContentError{FinishReason: finish, Refusal: refusal, Snippet: snippet(string(raw))}
	}
	return provider.Completion{Text: text, TotalTokens: reply.tokens()}, nil
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatChoiceMessage struct {
	Content string `json:"content"`
	Refusal string `json:"refusal"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatChoiceMessage `json:"message"`
		// Some compatible servers answer in the streaming shape even
		// with stream=false.
		Delta        chatChoiceMessage `json:"delta"`
		Text         string            `json:"text"`
		FinishReason string            `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// answer returns the first non-blank choice text with the first finish
// reason and refusal seen along the way.
func (r chatCompletionResponse) answer() (text, finish, refusal string) {
	for _, choice := range r.Choices {
		finish = cmp.Or(finish, strings.TrimSpace(choice.FinishReason))
		refusal = cmp.Or(refusal, strings.TrimSpace(choice.Message.Refusal), strings.TrimSpace(choice.Delta.Refusal))
		text = cmp.Or(strings.TrimSpace(choice.Message.Content), strings.TrimSpace(choice.Delta.Content), strings.TrimSpace(choice.Text))
		if text != "" {
			return text, finish, refusal
		}
	}
	return "", finish, refusal
}

// tokens is the reported usage, or zero so the router estimates it.
func (r chatCompletionResponse) tokens() int {
	if r.Usage == nil {
		return 0
	}
	return cmp.Or(r.Usage.TotalTokens, r.Usage.PromptTokens+r.Usage.CompletionTokens)
}

func (c *Client) post(ctx context.Context, payload chatCompletionRequest) (chatCompletionResponse, []byte, error) {
	var reply chatCompletionResponse
	encoded, err := json.Marshal(payload)
	if err != nil {
		return reply, nil, fmt.Errorf("llm request: encode body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(encoded))
	if err != nil {
		return reply, nil, fmt.Errorf("llm request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return reply, nil, services.Wrap(services.ErrTransient, "", "llm request", "http error", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return reply, nil, services.Wrap(services.ErrTransient, "", "llm request", "read body", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		statusErr := &httpStatusError{StatusCode: resp.StatusCode, Body: snippet(string(raw))}
		return reply, raw, fmt.Errorf("%w: %w", statusErr.marker(), statusErr)
	}
	if err := json.Unmarshal(raw, &reply); err != nil {
		return reply, raw, services.Wrap(services.ErrExternalTool, "", "llm request", "decode response", err)
	}
	if reply.Error != nil {
		return reply, raw, services.Wrap(services.ErrExternalTool, "", "llm request", "api error: "+strings.TrimSpace(reply.Error.Message), nil)
	}
	return reply, raw, nil
}
