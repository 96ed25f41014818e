// Package media defines the immutable artifacts passed between pipeline
// stages and the pure helpers that shape them.
//
// Artifacts:
//   - Subtitles: timed cues produced by speech-to-text
//   - Analysis: summary, topics, sentiment, rating, recommendations
//   - SegmentPlan: ordered, non-overlapping segments for editing
//   - Narration: synthesized audio locator and duration
//
// Helpers cover cue merging and splitting, SRT rendering, segment
// validation, narration text chunking, and encoder estimates derived from
// EditOptions. Stage collaborators live in internal/services; the pipeline
// orchestrator threads these values between them.
package media
