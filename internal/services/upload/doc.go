// Package upload publishes finished videos to a hosting platform.
//
// Each platform is an HTTP endpoint speaking a small resumable protocol:
// create an upload session with the video metadata, send the file in
// fixed-size chunks (each chunk retried with exponential backoff), then
// finalize the session to obtain the public URL. Progress is reported through
// a callback with the statuses preparing, uploading, processing, complete
// and error.
//
// Options.Check enforces per-platform metadata limits and Options.Sanitize
// strips markup from user-provided text before it leaves the process.
package upload
