// Package provider routes language-model prompts across a pool of
// interchangeable backends.
//
// A Router composes three shared components:
//   - Ledger: rolling per-backend token usage with daily and monthly budgets
//   - Health: per-backend availability with optional cool-down recovery
//   - RetryPolicy: bounded exponential backoff against a single backend
//
// Route filters the pool to healthy, in-budget backends, orders them by
// preference then priority, retries each through its RetryPolicy, and falls
// over to the next candidate when one is exhausted. Ledger and Health own
// their own locks and are safe to share across concurrent jobs.
//
// Backends are drivers implementing Backend; concrete drivers live in
// internal/services/llm. SQLiteUsageStore optionally mirrors the ledger so
// budgets survive restarts.
package provider
