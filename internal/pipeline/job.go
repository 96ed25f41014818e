package pipeline

import (
	"strings"

	"vidpipe/internal/media"
	"vidpipe/internal/services/upload"
)

// Media identifies the input video.
type Media struct {
	Locator     string `json:"locator"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
}

// Stages enables the optional stages. Editing and upload have no flag.
type Stages struct {
	Subtitles    bool `json:"subtitles"`
	Analysis     bool `json:"analysis"`
	Segmentation bool `json:"segmentation"`
	Narration    bool `json:"narration"`
	Copyright    bool `json:"copyright"`
}

// AllStages enables every optional stage.
func AllStages() Stages {
	return Stages{Subtitles: true, Analysis: true, Segmentation: true, Narration: true, Copyright: true}
}

// Job is the immutable input of one run.
type Job struct {
	ID     string             `json:"id,omitempty"`
	Media  Media              `json:"media"`
	Stages Stages             `json:"stages"`
	Upload upload.Options     `json:"upload"`
	Voice  media.VoiceOptions `json:"voice"`
	Edit   media.EditOptions  `json:"edit"`
}

// Normalize returns a copy with trimmed fields and sanitized upload
// metadata. Empty upload title and description fall back to the media's.
func (j Job) Normalize() Job {
	out := j
	out.Media.Locator = strings.TrimSpace(j.Media.Locator)
	out.Media.Title = strings.TrimSpace(j.Media.Title)
	out.Media.Description = strings.TrimSpace(j.Media.Description)
	if strings.TrimSpace(out.Upload.Title) == "" {
		out.Upload.Title = out.Media.Title
	}
	if strings.TrimSpace(out.Upload.Description) == "" {
		out.Upload.Description = out.Media.Description
	}
	out.Upload = out.Upload.Sanitize()
	return out
}

// Validate checks the job against the platform table. It returns a
// *ValidationError listing every problem, or nil.
func (j Job) Validate(platforms map[string]upload.Limits) error {
	var problems []string
	if j.Media.Locator == "" {
		problems = append(problems, "media locator is required")
	}
	problems = append(problems, j.Upload.Check(platforms)...)
	if q := j.Edit.Quality; q < 0 || q > 100 {
		problems = append(problems, "edit quality must be between 0 and 100")
	}
	if s := j.Voice.Speed; s < 0 {
		problems = append(problems, "voice speed must not be negative")
	}
	if len(problems) == 0 {
		return nil
	}
	return &ValidationError{Problems: problems}
}
