package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"vidpipe/internal/progress"
	"vidpipe/internal/services"
)

var (
	// ErrCancelled marks runs ended by context cancellation.
	ErrCancelled = errors.New("pipeline cancelled")
	// ErrCopyrightRejected marks runs stopped by the copyright gate.
	ErrCopyrightRejected = errors.New("copyright check rejected content")
)

// StageError wraps the failure of one stage.
type StageError struct {
	Stage progress.Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// CopyrightGateError reports content rejected by the copyright check.
type CopyrightGateError struct {
	Issues     []string
	Confidence float64
}

func (e *CopyrightGateError) Error() string {
	if len(e.Issues) == 0 {
		return "Copyright check failed"
	}
	return "Copyright check failed: " + strings.Join(e.Issues, ", ")
}

// Is lets errors.Is match ErrCopyrightRejected.
func (e *CopyrightGateError) Is(target error) bool {
	return target == ErrCopyrightRejected
}

// ValidationError lists every problem found in a job before it starts.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid job: " + strings.Join(e.Problems, "; ")
}

// Is lets errors.Is match services.ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == services.ErrValidation
}
