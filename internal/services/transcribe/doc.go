// Package transcribe generates subtitles with the AssemblyAI speech-to-text
// API. Word timings are grouped into sentence cues, cues separated by short
// gaps are merged, and long cues are split so no cue exceeds the configured
// maximum duration.
package transcribe
