package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Markers for classifying failures across collaborators.
var (
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
)

// Wrap tags err with marker so callers can classify it with errors.Is, and
// prefixes the message with "stage: operation: message". A nil marker means
// ErrTransient.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// ErrorDetails is the user-facing breakdown of an error chain.
type ErrorDetails struct {
	Kind    string
	Message string
	Hint    string
}

// Details classifies err by marker and returns a trimmed message and hint.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{}
	}
	details := ErrorDetails{Message: strings.TrimSpace(err.Error())}
	switch {
	case errors.Is(err, context.Canceled):
		details.Kind = "cancelled"
		details.Hint = "the job was cancelled before it finished"
	case errors.Is(err, ErrValidation):
		details.Kind = "validation"
		details.Hint = "check the job options and resubmit"
	case errors.Is(err, ErrConfiguration):
		details.Kind = "configuration"
		details.Hint = "review the vidpipe configuration file"
	case errors.Is(err, ErrNotFound):
		details.Kind = "not_found"
		details.Hint = "verify the referenced media or job exists"
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		details.Kind = "timeout"
		details.Hint = "the external service did not answer in time; retry later"
	case errors.Is(err, ErrExternalTool):
		details.Kind = "external"
		details.Hint = "inspect the collaborator service logs"
	default:
		details.Kind = "transient"
		details.Hint = "retry the job; check logs if it keeps failing"
	}
	return details
}

func buildDetail(stage, operation, message string) string {
	var parts []string
	for _, part := range [...]string{stage, operation, message} {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	if parts == nil {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
