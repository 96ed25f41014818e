// Package config loads, normalizes, and validates vidpipe configuration data.
//
// It supplies repository defaults (including the default language-model
// backend pool, quota budgets, and retry policy), expands user paths, reads
// TOML files, and honours environment fallbacks such as OPENAI_API_KEY and
// ASSEMBLYAI_API_KEY. The Config type centralizes every knob the daemon and
// CLI need so collaborators and the provider router are wired from one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
