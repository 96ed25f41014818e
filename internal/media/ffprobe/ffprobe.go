package ffprobe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/spf13/cast"
)

var commandContext = exec.CommandContext

// Result represents the parsed output from an ffprobe inspection.
type Result struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
}

// Stream describes a single stream in the media container.
type Stream struct {
	Index      int    `json:"index"`
	CodecName  string `json:"codec_name"`
	CodecType  string `json:"codec_type"`
	Duration   string `json:"duration"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	RFrameRate string `json:"r_frame_rate"`
}

// Format captures container-level metadata.
type Format struct {
	Filename   string `json:"filename"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
	FormatName string `json:"format_name"`
}

// Inspect runs ffprobe against path and decodes the JSON response.
func Inspect(ctx context.Context, binary, path string) (Result, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffprobe"
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return Result{}, errors.New("ffprobe inspect: empty path")
	}

	cmd := commandContext(ctx, binary, "-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", path)
	output, err := cmd.Output()
	if err != nil {
		return Result{}, fmt.Errorf("ffprobe inspect %s: %w", path, err)
	}
	return Parse(output)
}

// Parse decodes raw ffprobe JSON.
func Parse(payload []byte) (Result, error) {
	var result Result
	if err := json.Unmarshal(payload, &result); err != nil {
		return Result{}, fmt.Errorf("ffprobe parse: %w", err)
	}
	return result, nil
}

// HasVideo reports whether any video stream is present.
func (r Result) HasVideo() bool {
	_, ok := r.firstOfType("video")
	return ok
}

// HasAudio reports whether any audio stream is present.
func (r Result) HasAudio() bool {
	_, ok := r.firstOfType("audio")
	return ok
}

// DurationSeconds returns the container duration, falling back to the
// longest stream duration. Unparseable values count as zero.
func (r Result) DurationSeconds() float64 {
	if d, err := cast.ToFloat64E(strings.TrimSpace(r.Format.Duration)); err == nil && d > 0 {
		return d
	}
	longest := 0.0
	for _, stream := range r.Streams {
		if d, err := cast.ToFloat64E(strings.TrimSpace(stream.Duration)); err == nil && d > longest {
			longest = d
		}
	}
	return longest
}

// SizeBytes returns the reported container size, or 0 when unavailable.
func (r Result) SizeBytes() int64 {
	size, err := cast.ToInt64E(strings.TrimSpace(r.Format.Size))
	if err != nil || size < 0 {
		return 0
	}
	return size
}

// Resolution returns the first video stream's dimensions.
func (r Result) Resolution() (int, int) {
	stream, ok := r.firstOfType("video")
	if !ok {
		return 0, 0
	}
	return stream.Width, stream.Height
}

// FrameRate returns the first video stream's frame rate, parsing the
// rational "num/den" form ffprobe reports.
func (r Result) FrameRate() float64 {
	stream, ok := r.firstOfType("video")
	if !ok {
		return 0
	}
	num, den, found := strings.Cut(stream.RFrameRate, "/")
	n, err := cast.ToFloat64E(num)
	if err != nil {
		return 0
	}
	if !found {
		return n
	}
	d, err := cast.ToFloat64E(den)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}

func (r Result) firstOfType(codecType string) (Stream, bool) {
	for _, stream := range r.Streams {
		if strings.EqualFold(stream.CodecType, codecType) {
			return stream, true
		}
	}
	return Stream{}, false
}
