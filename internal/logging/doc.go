// Package logging assembles structured slog loggers and formatting helpers used
// across vidpipe services.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so stage code can automatically
// tag log lines with job IDs, stages, backends, and correlation IDs. A bounded
// StreamHub mirrors log records for the daemon's long-poll log endpoint, and a
// no-op logger is provided for tests and wiring code that cannot fail.
//
// Prefer these constructors over hand-rolled slog setup so new components emit
// data with the same shape and routing guarantees as the rest of the system.
package logging
