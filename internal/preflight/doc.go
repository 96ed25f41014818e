// Package preflight checks the host before the pipeline runs: ffmpeg and
// ffprobe on PATH, writable work and log directories, and credentials for
// every backend, the speech services, and each upload platform.
//
// Checks never fail hard; callers decide whether a failed Result is fatal.
// The daemon logs failures at startup and `vidpipe doctor` renders them.
package preflight
