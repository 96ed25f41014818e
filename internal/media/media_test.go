package media_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"vidpipe/internal/media"
	"vidpipe/internal/services"
)

func TestMergeNearbyJoinsCloseCues(t *testing.T) {
	cues := []media.Cue{
		{Start: 0, End: 1, Text: "hello"},
		{Start: 1.3, End: 2, Text: "world"},
		{Start: 4, End: 5, Text: "again"},
	}
	merged := media.MergeNearby(cues, 0.5)
	if len(merged) != 2 {
		t.Fatalf("expected 2 cues, got %d: %+v", len(merged), merged)
	}
	if merged[0].Text != "hello world" || merged[0].End != 2 {
		t.Fatalf("unexpected merged cue: %+v", merged[0])
	}
	if cues[0].Text != "hello" {
		t.Fatal("input cues were modified")
	}
	if media.MergeNearby(nil, 0.5) != nil {
		t.Fatal("expected nil for empty input")
	}
}

func TestSplitLongDistributesWords(t *testing.T) {
	cues := []media.Cue{{Start: 10, End: 22, Text: "one two three four five six"}}
	split := media.SplitLong(cues, 5)
	if len(split) != 3 {
		t.Fatalf("expected 3 parts, got %d: %+v", len(split), split)
	}
	if split[0].Text != "one two" || split[2].Text != "five six" {
		t.Fatalf("unexpected word distribution: %+v", split)
	}
	if split[0].Start != 10 || split[2].End != 22 {
		t.Fatalf("unexpected bounds: %+v", split)
	}
	for i := 1; i < len(split); i++ {
		if split[i].Start != split[i-1].End {
			t.Fatalf("parts not contiguous: %+v", split)
		}
	}
}

func TestFormatClockAndSRT(t *testing.T) {
	tests := []struct {
		seconds float64
		want    string
	}{
		{0, "00:00:00,000"},
		{61.5, "00:01:01,500"},
		{3723.042, "01:02:03,042"},
		{-3, "00:00:00,000"},
	}
	for _, tt := range tests {
		if got := media.FormatClock(tt.seconds); got != tt.want {
			t.Fatalf("FormatClock(%v) = %q, want %q", tt.seconds, got, tt.want)
		}
	}

	srt := media.RenderSRT([]media.Cue{{Start: 1, End: 2.25, Text: " hi "}})
	want := "1\n00:00:01,000 --> 00:00:02,250\nhi\n\n"
	if srt != want {
		t.Fatalf("unexpected srt:\n%q\nwant\n%q", srt, want)
	}
}

func TestValidateSegments(t *testing.T) {
	overlapping := []media.Segment{{Start: 0, End: 10, Type: "a"}, {Start: 5, End: 12, Type: "b"}}
	err := media.ValidateSegments(overlapping)
	if err == nil || !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for overlap, got %v", err)
	}

	adjacent := []media.Segment{{Start: 0, End: 10, Type: "a"}, {Start: 10, End: 20, Type: "b"}}
	if err := media.ValidateSegments(adjacent); err != nil {
		t.Fatalf("expected adjacent segments to be valid, got %v", err)
	}

	zero := []media.Segment{{Start: 3, End: 3}}
	if err := media.ValidateSegments(zero); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for zero duration, got %v", err)
	}
}

func TestMergeShortSegments(t *testing.T) {
	segments := []media.Segment{
		{Start: 0, End: 10, Type: "intro"},
		{Start: 10, End: 12, Type: "blip"},
		{Start: 12, End: 30, Type: "main"},
	}
	merged := media.MergeShortSegments(segments, media.MinSegmentSeconds)
	if len(merged) != 2 {
		t.Fatalf("expected 2 segments, got %+v", merged)
	}
	if merged[0].End != 12 || merged[1].Type != "main" {
		t.Fatalf("unexpected merge: %+v", merged)
	}
}

func TestSplitTextIntoChunks(t *testing.T) {
	text := "First sentence here. Second one! Third? trailing words"
	chunks := media.SplitTextIntoChunks(text, 25)
	for _, c := range chunks {
		if len(c) > 25 {
			t.Fatalf("chunk exceeds limit: %q", c)
		}
	}
	joined := strings.Join(chunks, " ")
	if joined != text {
		t.Fatalf("chunks lost text: %q", joined)
	}

	long := strings.Repeat("word ", 20)
	for _, c := range media.SplitTextIntoChunks(long, 12) {
		if len(c) > 12 {
			t.Fatalf("word split chunk exceeds limit: %q", c)
		}
	}

	if got := media.SplitTextIntoChunks("short", 3000); len(got) != 1 || got[0] != "short" {
		t.Fatalf("unexpected single chunk: %v", got)
	}
	if media.SplitTextIntoChunks("   ", 10) != nil {
		t.Fatal("expected nil for blank text")
	}
}

func TestEditOptionsEstimates(t *testing.T) {
	opts := media.EditOptions{Quality: 85}.WithDefaults(media.EditOptions{Width: 1920, Height: 1080, FPS: 30, Format: "mp4", Quality: 50})
	if opts.Quality != 85 || opts.Width != 1920 || opts.Format != "mp4" {
		t.Fatalf("unexpected defaults: %+v", opts)
	}
	if opts.CRF() != 3 {
		t.Fatalf("expected crf 3, got %d", opts.CRF())
	}
	wantBitrate := int64(1920 * 1080 * 30 * 0.17)
	if got := opts.EstimateBitrate(); got < wantBitrate-1 || got > wantBitrate+1 {
		t.Fatalf("unexpected bitrate %d want ~%d", got, wantBitrate)
	}
	if size := opts.EstimateSize(8 * time.Second); size != opts.EstimateBitrate() {
		t.Fatalf("expected 8s size to equal bitrate in bytes, got %d", size)
	}
}

func TestSubtitlesTranscript(t *testing.T) {
	subs := media.Subtitles{ID: "x", Cues: []media.Cue{{Text: " a "}, {Text: ""}, {Text: "b"}}}
	if subs.Transcript() != "a b" {
		t.Fatalf("unexpected transcript %q", subs.Transcript())
	}
	if (media.Subtitles{}).IsZero() != true || subs.IsZero() {
		t.Fatal("IsZero mismatch")
	}
}
