// Package daemon coordinates the long-running vidpipe process.
//
// Build wires configuration into the collaborator services, the provider
// router, the orchestrator, and the job manager. Daemon adds the process
// lifecycle on top: a flock-based lock to prevent multiple instances, the
// HTTP API, and cron-driven maintenance (backend probes, usage pruning, job
// eviction).
//
// Keep orchestration logic here: individual stages live in their service
// packages while the daemon focuses on startup, shutdown, and high level
// coordination.
package daemon
