// Package tts synthesizes narration through an HTTP text-to-speech API.
//
// Text longer than the configured chunk size is split on sentence
// boundaries and synthesized chunk by chunk. A single chunk returns the
// API's audio URL directly; multiple chunks are downloaded into the work
// directory and joined by a Concatenator (ffmpeg in production).
package tts
