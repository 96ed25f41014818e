package media

import (
	"fmt"

	"vidpipe/internal/services"
)

// MinSegmentSeconds is the shortest segment MergeShortSegments keeps on its own.
const MinSegmentSeconds = 5.0

// ValidateSegments checks that segments have positive duration and are
// chronologically ordered without overlap. Violations are reported, never repaired.
func ValidateSegments(segments []Segment) error {
	for i, seg := range segments {
		if seg.End <= seg.Start {
			return services.Wrap(services.ErrValidation, "segmentation", "validate",
				fmt.Sprintf("segment %d has non-positive duration (%.3f-%.3f)", i+1, seg.Start, seg.End), nil)
		}
		if i > 0 && seg.Start < segments[i-1].End {
			return services.Wrap(services.ErrValidation, "segmentation", "validate",
				fmt.Sprintf("segment %d starts at %.3f before segment %d ends at %.3f", i+1, seg.Start, i, segments[i-1].End), nil)
		}
	}
	return nil
}

// MergeShortSegments folds segments shorter than minDuration into their
// predecessor. Input must already be valid.
func MergeShortSegments(segments []Segment, minDuration float64) []Segment {
	if len(segments) == 0 {
		return nil
	}
	out := make([]Segment, 0, len(segments))
	for _, seg := range segments {
		if len(out) > 0 && seg.Duration() < minDuration {
			last := &out[len(out)-1]
			last.End = seg.End
			continue
		}
		out = append(out, seg)
	}
	return out
}
