package media

import (
	"strings"
	"time"
)

// Cue is one timed subtitle line. Times are seconds from the start of the media.
type Cue struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Duration returns the cue length in seconds.
func (c Cue) Duration() float64 {
	return c.End - c.Start
}

// Subtitles is the output of the subtitle stage.
type Subtitles struct {
	ID   string `json:"id"`
	Cues []Cue  `json:"cues"`
}

// IsZero reports whether the subtitles carry no cues.
func (s Subtitles) IsZero() bool {
	return s.ID == "" && len(s.Cues) == 0
}

// Transcript joins the cue texts into a single space-separated transcript.
func (s Subtitles) Transcript() string {
	parts := make([]string, 0, len(s.Cues))
	for _, cue := range s.Cues {
		if text := strings.TrimSpace(cue.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

// Analysis is the output of the analysis stage.
type Analysis struct {
	Summary         string   `json:"summary"`
	Topics          []string `json:"topics"`
	Sentiment       string   `json:"sentiment"`
	ContentRating   string   `json:"contentRating"`
	Recommendations []string `json:"recommendations"`
}

// IsZero reports whether the analysis is empty.
func (a Analysis) IsZero() bool {
	return a.Summary == "" && len(a.Topics) == 0 && a.Sentiment == "" &&
		a.ContentRating == "" && len(a.Recommendations) == 0
}

// Segment is one planned section of the edited output.
type Segment struct {
	Start       float64 `json:"start"`
	End         float64 `json:"end"`
	Type        string  `json:"type"`
	Description string  `json:"description"`
}

// Duration returns the segment length in seconds.
func (s Segment) Duration() float64 {
	return s.End - s.Start
}

// SegmentPlan is the output of the segmentation stage.
type SegmentPlan struct {
	Segments []Segment `json:"segments"`
}

// IsZero reports whether the plan has no segments.
func (p SegmentPlan) IsZero() bool {
	return len(p.Segments) == 0
}

// Narration is the output of the narration stage.
type Narration struct {
	Locator  string        `json:"locator"`
	Duration time.Duration `json:"duration"`
	Format   string        `json:"format"`
}

// IsZero reports whether no narration audio exists.
func (n Narration) IsZero() bool {
	return n.Locator == ""
}

// VoiceOptions control text-to-speech synthesis.
type VoiceOptions struct {
	Voice  string  `json:"voice,omitempty"`
	Speed  float64 `json:"speed,omitempty"`
	Pitch  float64 `json:"pitch,omitempty"`
	Format string  `json:"format,omitempty"`
}

// CopyrightVerdict is the copyright checker's answer.
type CopyrightVerdict struct {
	IsValid    bool     `json:"isValid"`
	Issues     []string `json:"issues"`
	Confidence float64  `json:"confidence"`
}
