package jobs

import (
	"errors"
	"time"

	"vidpipe/internal/pipeline"
	"vidpipe/internal/progress"
	"vidpipe/internal/services"
)

// Error kinds reported for failed jobs.
const (
	KindContentPolicy = "content_policy"
	KindCancelled     = "cancelled"
	KindValidation    = "validation"
	KindSystem        = "system"
)

// Record is the externally visible state of one job.
type Record struct {
	ID         string          `json:"id"`
	Title      string          `json:"title,omitempty"`
	Locator    string          `json:"locator"`
	Platform   string          `json:"platform"`
	Status     progress.Status `json:"status"`
	Stage      progress.Stage  `json:"stage,omitempty"`
	Progress   float64         `json:"progress"`
	URL        string          `json:"url,omitempty"`
	Error      string          `json:"error,omitempty"`
	ErrorKind  string          `json:"errorKind,omitempty"`
	Issues     []string        `json:"issues,omitempty"`
	Hint       string          `json:"hint,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
	StartedAt  time.Time       `json:"startedAt,omitzero"`
	FinishedAt time.Time       `json:"finishedAt,omitzero"`
}

// Terminal reports whether the job has stopped.
func (r Record) Terminal() bool {
	switch r.Status {
	case progress.StatusCompleted, progress.StatusFailed, progress.StatusCancelled:
		return true
	default:
		return false
	}
}

// Classify maps a run error onto a reported kind and hint. Content-policy
// rejections are separated from system faults so callers can tell a
// rejected video from a broken pipeline.
func Classify(err error) (kind, hint string) {
	if err == nil {
		return "", ""
	}
	switch {
	case errors.Is(err, pipeline.ErrCopyrightRejected):
		return KindContentPolicy, "revise the content or review the reported issues"
	case errors.Is(err, pipeline.ErrCancelled):
		return KindCancelled, "the job was cancelled before it finished"
	case errors.Is(err, services.ErrValidation):
		return KindValidation, services.Details(err).Hint
	default:
		return KindSystem, services.Details(err).Hint
	}
}
