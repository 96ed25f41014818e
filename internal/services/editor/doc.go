// Package editor assembles the final video with ffmpeg.
//
// Assemble probes the source with ffprobe, keeps only the planned segments
// when a segment plan exists, scales and pads to the requested frame,
// replaces the soundtrack with narration when present, and either burns the
// subtitles into the picture or muxes them as a text track. Output is
// written to a temporary file in the work directory and renamed into place
// once ffmpeg succeeds.
//
// ConcatAudio joins narration parts with ffmpeg's concat demuxer.
package editor
