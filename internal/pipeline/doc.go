// Package pipeline sequences the processing stages of one media job.
//
// The Orchestrator runs subtitles, analysis, segmentation, narration,
// editing, copyright and upload in that order. Editing and upload always
// run; every other stage runs only when its flag is set and the artifacts
// it depends on were produced earlier in the same run. Each running stage
// publishes a processing snapshot followed by a completed snapshot at its
// checkpoint, so overall progress never decreases.
//
// Any stage failure ends the run: a failed snapshot carrying the error is
// published at the last progress reached and a *StageError is returned.
// The copyright stage is a hard gate; rejected content never reaches
// upload. Cancelling the context ends the run with a cancelled snapshot and
// ErrCancelled.
//
// Collaborators (speech-to-text, language-model analysis, text-to-speech,
// editing, upload) are consumed through the small interfaces declared in
// collaborators.go so runs can be tested with in-memory fakes.
package pipeline
