package media

import (
	"math"
	"time"
)

// EditOptions control how the editor assembles the output.
type EditOptions struct {
	Width   int    `json:"width,omitempty"`
	Height  int    `json:"height,omitempty"`
	FPS     int    `json:"fps,omitempty"`
	Format  string `json:"format,omitempty"`
	Quality int    `json:"quality,omitempty"`
	// BurnSubtitles renders cues into the video instead of muxing a track.
	BurnSubtitles bool `json:"burnSubtitles,omitempty"`
}

// WithDefaults fills zero fields from fallback.
func (o EditOptions) WithDefaults(fallback EditOptions) EditOptions {
	if o.Width <= 0 {
		o.Width = fallback.Width
	}
	if o.Height <= 0 {
		o.Height = fallback.Height
	}
	if o.FPS <= 0 {
		o.FPS = fallback.FPS
	}
	if o.Format == "" {
		o.Format = fallback.Format
	}
	if o.Quality <= 0 {
		o.Quality = fallback.Quality
	}
	return o
}

// CRF maps quality 1..100 onto the encoder's constant rate factor.
func (o EditOptions) CRF() int {
	q := min(max(o.Quality, 0), 100)
	return (100 - q) / 5
}

// EstimateBitrate returns the expected video bitrate in bits per second.
func (o EditOptions) EstimateBitrate() int64 {
	pixels := float64(o.Width * o.Height)
	return int64(math.Round(pixels * (float64(o.Quality) / 100 * 0.2) * float64(o.FPS)))
}

// EstimateSize returns the expected output size in bytes for duration.
func (o EditOptions) EstimateSize(duration time.Duration) int64 {
	return int64(math.Round(float64(o.EstimateBitrate()) * duration.Seconds() / 8))
}
