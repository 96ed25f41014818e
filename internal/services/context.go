package services

import "context"

// contextKey names one run attribute carried on a context. Blank values are
// never stored, so lookups can treat "missing" and "empty" alike.
type contextKey uint8

const (
	jobIDKey contextKey = iota
	stageKey
	backendKey
	requestIDKey
)

func withValue(ctx context.Context, key contextKey, value string) context.Context {
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, key, value)
}

func lookup(ctx context.Context, key contextKey) (string, bool) {
	value, _ := ctx.Value(key).(string)
	return value, value != ""
}

// WithJobID tags ctx with the pipeline job it belongs to.
func WithJobID(ctx context.Context, id string) context.Context { return withValue(ctx, jobIDKey, id) }

// WithStage tags ctx with the running pipeline stage.
func WithStage(ctx context.Context, stage string) context.Context {
	return withValue(ctx, stageKey, stage)
}

// WithBackend tags ctx with the language-model backend serving a call.
func WithBackend(ctx context.Context, backend string) context.Context {
	return withValue(ctx, backendKey, backend)
}

// WithRequestID tags ctx with an API correlation id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return withValue(ctx, requestIDKey, id)
}

func JobIDFromContext(ctx context.Context) (string, bool) { return lookup(ctx, jobIDKey) }

func StageFromContext(ctx context.Context) (string, bool) { return lookup(ctx, stageKey) }

func BackendFromContext(ctx context.Context) (string, bool) { return lookup(ctx, backendKey) }

func RequestIDFromContext(ctx context.Context) (string, bool) { return lookup(ctx, requestIDKey) }
