// Package services defines shared utilities consumed by the pipeline stages
// and the external collaborator integrations.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, stage names, backend IDs, and
//     correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that let callers classify
//     failures (validation vs external tool vs transient) without string
//     matching.
//   - Details, which turns any error chain into a short user-facing message
//     and remediation hint for API responses and notifications.
//
// Use these helpers when wiring new collaborators so operational behaviour
// (error handling, observability, retries) stays uniform across the pipeline.
package services
