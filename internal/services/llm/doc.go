// Package llm provides the language-model drivers behind the provider router.
//
// # Drivers
//
// Client speaks the OpenAI chat completion protocol over plain HTTP and
// reports token usage from the response. LangChainBackend wraps langchaingo
// models and is used for Ollama and for OpenAI through langchaingo.
//
// Both implement provider.Backend and issue exactly one request per call;
// retries, fallover, quotas, and health belong to provider.Router.
//
// # Entry Points
//
// BuildPool: construct router members from configuration.
// NewBackend: construct a single driver by kind.
// DecodeLLMJSON: decode JSON replies, tolerating code fences and prose.
package llm
