package logging

import (
	"context"
	"log/slog"

	"vidpipe/internal/services"
)

// Field keys shared by every handler, the stream hub and the CLI renderer.
const (
	FieldComponent     = "component"
	FieldJobID         = "job_id"
	FieldStage         = "stage"
	FieldBackend       = "backend"
	FieldCorrelationID = "correlation_id"
	// FieldEventType classifies a line for filtering: stage_start, backend_fallover, ...
	FieldEventType = "event_type"
	// FieldErrorHint is the operator's next step.
	FieldErrorHint = "error_hint"
	// FieldImpact is what the user loses when a warning fires.
	FieldImpact = "impact"
)

// ContextFields lifts the job, stage, backend and correlation id carried by
// ctx into attributes, in that order.
func ContextFields(ctx context.Context) []Attr {
	if ctx == nil {
		return nil
	}
	lookups := []struct {
		key string
		get func(context.Context) (string, bool)
	}{
		{FieldJobID, services.JobIDFromContext},
		{FieldStage, services.StageFromContext},
		{FieldBackend, services.BackendFromContext},
		{FieldCorrelationID, services.RequestIDFromContext},
	}
	var fields []Attr
	for _, l := range lookups {
		if v, ok := l.get(ctx); ok {
			fields = append(fields, String(l.key, v))
		}
	}
	return fields
}

// WithContext binds the fields of ctx to logger.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return slog.New(logger.Handler().WithAttrs(fields))
}
