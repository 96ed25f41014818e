// Package ffprobe wraps ffprobe JSON output for the editing and upload
// collaborators: duration of narration tracks, output resolution and frame
// rate checks, and file size for upload analytics.
package ffprobe
