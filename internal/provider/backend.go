package provider

import (
	"context"
	"time"
)

// Descriptor is the static description of one backend.
type Descriptor struct {
	ID                string
	Kind              string
	Model             string
	Endpoint          string
	Credential        string
	MaxTokens         int
	Timeout           time.Duration
	Priority          int
	RequestsPerMinute int
	Retry             RetryPolicy
}

// Request is one completion call sent to a backend.
type Request struct {
	Model       string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// Completion is a backend's answer. TotalTokens is zero when the backend
// does not report usage.
type Completion struct {
	Text        string
	TotalTokens int
}

// Backend is a language-model driver.
type Backend interface {
	Complete(ctx context.Context, req Request) (Completion, error)
}

// BackendFunc adapts a function to Backend.
type BackendFunc func(ctx context.Context, req Request) (Completion, error)

// Complete calls f.
func (f BackendFunc) Complete(ctx context.Context, req Request) (Completion, error) {
	return f(ctx, req)
}

// Member pairs a descriptor with its driver.
type Member struct {
	Descriptor Descriptor
	Backend    Backend
}

// RequestOptions tune a single Route call.
type RequestOptions struct {
	PreferredBackend string
	Temperature      *float64
	MaxTokens        int
	Timeout          time.Duration
}

// Response is the routed completion.
type Response struct {
	Text      string
	BackendID string
	Model     string
	Tokens    int
	Attempts  int
}

// Observer receives router events for metrics and notifications.
type Observer interface {
	AttemptFinished(backendID string, err error, elapsed time.Duration)
	UsageRecorded(backendID string, tokens int)
	BackendDown(backendID, message string)
}

type nopObserver struct{}

func (nopObserver) AttemptFinished(string, error, time.Duration) {}
func (nopObserver) UsageRecorded(string, int)                    {}
func (nopObserver) BackendDown(string, string)                   {}

type multiObserver []Observer

// MultiObserver fans router events out to every observer in order.
func MultiObserver(observers ...Observer) Observer {
	out := make(multiObserver, 0, len(observers))
	for _, o := range observers {
		if o != nil {
			out = append(out, o)
		}
	}
	return out
}

func (m multiObserver) AttemptFinished(backendID string, err error, elapsed time.Duration) {
	for _, o := range m {
		o.AttemptFinished(backendID, err, elapsed)
	}
}

func (m multiObserver) UsageRecorded(backendID string, tokens int) {
	for _, o := range m {
		o.UsageRecorded(backendID, tokens)
	}
}

func (m multiObserver) BackendDown(backendID, message string) {
	for _, o := range m {
		o.BackendDown(backendID, message)
	}
}
