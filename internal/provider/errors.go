package provider

import (
	"errors"
	"fmt"
	"strings"

	"vidpipe/internal/services"
)

var (
	// ErrNoAvailableBackends is returned when no backend is healthy and within budget.
	ErrNoAvailableBackends = errors.New("no available backends")
	// ErrAllBackendsExhausted matches AllBackendsExhaustedError.
	ErrAllBackendsExhausted = errors.New("all backends exhausted")
	// ErrUnknownBackend is returned for ids absent from the pool.
	ErrUnknownBackend = fmt.Errorf("%w: unknown backend", services.ErrNotFound)
)

// RetryExhaustedError reports that one backend used up its attempts.
type RetryExhaustedError struct {
	Attempts int
	Err      error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("retry exhausted after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RetryExhaustedError) Unwrap() error { return e.Err }

// AllBackendsExhaustedError reports that every candidate failed.
type AllBackendsExhaustedError struct {
	Attempted []string
	Last      error
}

func (e *AllBackendsExhaustedError) Error() string {
	return fmt.Sprintf("all backends exhausted (%s): %v", strings.Join(e.Attempted, ", "), e.Last)
}

func (e *AllBackendsExhaustedError) Unwrap() error { return e.Last }

// Is lets errors.Is match ErrAllBackendsExhausted.
func (e *AllBackendsExhaustedError) Is(target error) bool {
	return target == ErrAllBackendsExhausted
}
