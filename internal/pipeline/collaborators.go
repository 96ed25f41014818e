package pipeline

import (
	"context"

	"vidpipe/internal/media"
	"vidpipe/internal/services/upload"
)

// SubtitleGenerator transcribes the media into timed cues.
type SubtitleGenerator interface {
	Generate(ctx context.Context, locator string) (media.Subtitles, error)
}

// ContentAnalyzer summarizes and classifies the media from its subtitles.
type ContentAnalyzer interface {
	Analyze(ctx context.Context, locator string, subs media.Subtitles) (media.Analysis, error)
}

// Segmenter plans ordered, non-overlapping segments.
type Segmenter interface {
	Segment(ctx context.Context, locator string, analysis media.Analysis) (media.SegmentPlan, error)
}

// Narrator synthesizes narration audio from text.
type Narrator interface {
	Synthesize(ctx context.Context, text string, voice media.VoiceOptions) (media.Narration, error)
}

// Editor assembles the final video and returns its locator.
type Editor interface {
	Assemble(ctx context.Context, locator string, subs media.Subtitles, narration media.Narration, plan media.SegmentPlan, opts media.EditOptions) (string, error)
}

// CopyrightChecker decides whether the content may be published.
type CopyrightChecker interface {
	Check(ctx context.Context, locator, transcript string) (media.CopyrightVerdict, error)
}

// SensitiveDetector flags sensitive content in a transcript.
type SensitiveDetector interface {
	DetectSensitive(ctx context.Context, text string) (bool, error)
}

// Uploader publishes the finished video.
type Uploader interface {
	Upload(ctx context.Context, locator string, opts upload.Options, report upload.ProgressFunc) (upload.Result, error)
}

// Collaborators bundles the services a run depends on. Editor and Uploader
// are always required; the others only when their stage is enabled.
type Collaborators struct {
	Subtitles SubtitleGenerator
	Analyzer  ContentAnalyzer
	Segmenter Segmenter
	Narrator  Narrator
	Editor    Editor
	Copyright CopyrightChecker
	Sensitive SensitiveDetector
	Uploader  Uploader
}
