package media

import (
	"fmt"
	"math"
	"strings"
)

// MergeNearby joins consecutive cues whose gap is at most maxGap seconds.
// The input is not modified.
func MergeNearby(cues []Cue, maxGap float64) []Cue {
	if len(cues) == 0 {
		return nil
	}
	merged := make([]Cue, 0, len(cues))
	current := cues[0]
	for _, next := range cues[1:] {
		if next.Start-current.End <= maxGap {
			current.Text = strings.TrimSpace(current.Text + " " + next.Text)
			if next.End > current.End {
				current.End = next.End
			}
			continue
		}
		merged = append(merged, current)
		current = next
	}
	return append(merged, current)
}

// SplitLong breaks cues longer than maxDuration seconds into equal parts,
// distributing the words evenly across them.
func SplitLong(cues []Cue, maxDuration float64) []Cue {
	if maxDuration <= 0 {
		return append([]Cue(nil), cues...)
	}
	out := make([]Cue, 0, len(cues))
	for _, cue := range cues {
		duration := cue.Duration()
		if duration <= maxDuration {
			out = append(out, cue)
			continue
		}
		words := strings.Fields(cue.Text)
		parts := int(math.Ceil(duration / maxDuration))
		if len(words) < parts {
			parts = max(len(words), 1)
		}
		partDuration := duration / float64(parts)
		perPart := int(math.Ceil(float64(len(words)) / float64(parts)))
		for i := 0; i < parts; i++ {
			lo := min(i*perPart, len(words))
			hi := min(lo+perPart, len(words))
			end := cue.Start + float64(i+1)*partDuration
			if i == parts-1 {
				end = cue.End
			}
			out = append(out, Cue{
				Start: cue.Start + float64(i)*partDuration,
				End:   end,
				Text:  strings.Join(words[lo:hi], " "),
			})
		}
	}
	return out
}

// FormatClock renders seconds as an SRT timestamp (HH:MM:SS,mmm).
func FormatClock(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	totalMillis := int64(math.Round(seconds * 1000))
	hours := totalMillis / 3_600_000
	minutes := (totalMillis % 3_600_000) / 60_000
	secs := (totalMillis % 60_000) / 1000
	millis := totalMillis % 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, secs, millis)
}

// RenderSRT renders cues as an SRT document.
func RenderSRT(cues []Cue) string {
	var b strings.Builder
	for i, cue := range cues {
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n", i+1, FormatClock(cue.Start), FormatClock(cue.End), strings.TrimSpace(cue.Text))
	}
	return b.String()
}
