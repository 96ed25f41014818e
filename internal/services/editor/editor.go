package editor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"vidpipe/internal/config"
	"vidpipe/internal/logging"
	"vidpipe/internal/media"
	"vidpipe/internal/media/ffprobe"
	"vidpipe/internal/services"
)

const stageName = "editing"

// CommandRunner executes an external command.
type CommandRunner func(ctx context.Context, name string, args ...string) error

// Prober inspects a media file.
type Prober func(ctx context.Context, path string) (ffprobe.Result, error)

// Editor drives ffmpeg.
type Editor struct {
	ffmpeg   string
	workDir  string
	defaults media.EditOptions
	run      CommandRunner
	probe    Prober
	logger   *slog.Logger
}

// Option customizes an Editor.
type Option func(*Editor)

// WithCommandRunner replaces command execution, for tests.
func WithCommandRunner(run CommandRunner) Option {
	return func(e *Editor) {
		if run != nil {
			e.run = run
		}
	}
}

// WithProber replaces media inspection, for tests.
func WithProber(probe Prober) Option {
	return func(e *Editor) {
		if probe != nil {
			e.probe = probe
		}
	}
}

// WithLogger sets the editor logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Editor) {
		if logger != nil {
			e.logger = logging.NewComponentLogger(logger, "editor")
		}
	}
}

// New constructs an editor from the [editing] configuration.
func New(cfg config.Editing, workDir string, opts ...Option) *Editor {
	binary := strings.TrimSpace(cfg.FFmpegBinary)
	if binary == "" {
		binary = "ffmpeg"
	}
	e := &Editor{
		ffmpeg:  binary,
		workDir: workDir,
		defaults: media.EditOptions{
			Width:   cfg.Width,
			Height:  cfg.Height,
			FPS:     cfg.FPS,
			Format:  cfg.Format,
			Quality: cfg.Quality,
		},
		run:    runCommand,
		logger: logging.NewNop(),
	}
	probeBinary := FFprobeBinary(binary)
	e.probe = func(ctx context.Context, path string) (ffprobe.Result, error) {
		return ffprobe.Inspect(ctx, probeBinary, path)
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// FFprobeBinary locates ffprobe next to the configured ffmpeg.
func FFprobeBinary(ffmpeg string) string {
	dir, name := filepath.Split(ffmpeg)
	probe := strings.Replace(name, "ffmpeg", "ffprobe", 1)
	if probe == name {
		probe = "ffprobe"
	}
	return filepath.Join(dir, probe)
}

// Assemble renders the edited video and returns its path.
func (e *Editor) Assemble(ctx context.Context, locator string, subs media.Subtitles, narration media.Narration, plan media.SegmentPlan, opts media.EditOptions) (string, error) {
	if _, err := os.Stat(locator); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", services.Wrap(services.ErrNotFound, stageName, "stat source", locator, err)
		}
		return "", services.Wrap(services.ErrExternalTool, stageName, "stat source", locator, err)
	}
	opts = opts.WithDefaults(e.defaults)
	probe, err := e.probe(ctx, locator)
	if err != nil {
		return "", services.Wrap(services.ErrExternalTool, stageName, "ffprobe", locator, err)
	}
	if !probe.HasVideo() {
		return "", services.Wrap(services.ErrValidation, stageName, "ffprobe", "source has no video stream", nil)
	}
	if err := os.MkdirAll(e.workDir, 0o755); err != nil {
		return "", fmt.Errorf("create work dir: %w", err)
	}

	base := strings.TrimSuffix(filepath.Base(locator), filepath.Ext(locator))
	ext := "." + opts.Format
	output := filepath.Join(e.workDir, base+"-edited"+ext)
	tmp := filepath.Join(e.workDir, ".edit-"+base+".tmp"+ext)

	var srtPath string
	if len(subs.Cues) > 0 {
		srtPath = filepath.Join(e.workDir, base+".srt")
		if err := os.WriteFile(srtPath, []byte(media.RenderSRT(subs.Cues)), 0o644); err != nil {
			return "", fmt.Errorf("write subtitles: %w", err)
		}
	}

	args := assembleArgs(assembleInput{
		source:    locator,
		narration: narration.Locator,
		srt:       srtPath,
		hasAudio:  probe.HasAudio(),
		plan:      plan,
		opts:      opts,
		output:    tmp,
	})
	logger := logging.WithContext(ctx, e.logger)
	logger.Debug("executing ffmpeg",
		logging.String("source", locator),
		logging.Int("segments", len(plan.Segments)),
		logging.Bool("narration", narration.Locator != ""),
		logging.Bool("subtitles", srtPath != ""),
		logging.Int("crf", opts.CRF()),
	)
	started := time.Now()
	if err := e.run(ctx, e.ffmpeg, args...); err != nil {
		_ = os.Remove(tmp)
		return "", services.Wrap(services.ErrExternalTool, stageName, "ffmpeg", "", err)
	}
	info, err := os.Stat(tmp)
	if err != nil {
		return "", services.Wrap(services.ErrExternalTool, stageName, "ffmpeg", "ffmpeg did not produce output", err)
	}
	if err := os.Rename(tmp, output); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("move edited output: %w", err)
	}

	duration := time.Duration(probe.DurationSeconds() * float64(time.Second))
	logger.Info("video assembled",
		logging.String(logging.FieldEventType, "edit_complete"),
		logging.String("output", output),
		logging.Int64("bytes", info.Size()),
		logging.Int64("estimated_bytes", opts.EstimateSize(duration)),
		logging.Duration("elapsed", time.Since(started)),
	)
	return output, nil
}

type assembleInput struct {
	source    string
	narration string
	srt       string
	hasAudio  bool
	plan      media.SegmentPlan
	opts      media.EditOptions
	output    string
}

func assembleArgs(in assembleInput) []string {
	args := []string{"-y", "-hide_banner", "-loglevel", "error", "-i", in.source}
	next := 1
	narrationIndex, srtIndex := -1, -1
	if in.narration != "" {
		args = append(args, "-i", in.narration)
		narrationIndex = next
		next++
	}
	if in.srt != "" && !in.opts.BurnSubtitles {
		args = append(args, "-i", in.srt)
		srtIndex = next
	}

	selection := segmentSelection(in.plan)
	var video []string
	if selection != "" {
		video = append(video, fmt.Sprintf("select='%s'", selection), "setpts=N/FRAME_RATE/TB")
	}
	video = append(video,
		fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease", in.opts.Width, in.opts.Height),
		fmt.Sprintf("pad=%d:%d:(ow-iw)/2:(oh-ih)/2", in.opts.Width, in.opts.Height),
		fmt.Sprintf("fps=%d", in.opts.FPS),
	)
	if in.srt != "" && in.opts.BurnSubtitles {
		video = append(video, "subtitles="+escapeFilterPath(in.srt))
	}
	args = append(args, "-map", "0:v:0", "-vf", strings.Join(video, ","))

	switch {
	case narrationIndex >= 0:
		args = append(args, "-map", strconv.Itoa(narrationIndex)+":a:0", "-shortest")
	case in.hasAudio:
		args = append(args, "-map", "0:a:0")
		if selection != "" {
			args = append(args, "-af", fmt.Sprintf("aselect='%s',asetpts=N/SR/TB", selection))
		}
	}
	if srtIndex >= 0 {
		args = append(args, "-map", strconv.Itoa(srtIndex)+":s:0", "-c:s", subtitleCodec(in.opts.Format))
	}

	crf := strconv.Itoa(in.opts.CRF())
	if in.opts.Format == "webm" {
		args = append(args, "-c:v", "libvpx-vp9", "-crf", crf, "-b:v", "0", "-c:a", "libopus")
	} else {
		args = append(args, "-c:v", "libx264", "-crf", crf, "-preset", "medium", "-c:a", "aac")
	}
	return append(args, in.output)
}

func segmentSelection(plan media.SegmentPlan) string {
	parts := make([]string, 0, len(plan.Segments))
	for _, seg := range plan.Segments {
		parts = append(parts, fmt.Sprintf("between(t,%s,%s)", formatSeconds(seg.Start), formatSeconds(seg.End)))
	}
	return strings.Join(parts, "+")
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func subtitleCodec(format string) string {
	if format == "webm" {
		return "webvtt"
	}
	return "mov_text"
}

func escapeFilterPath(path string) string {
	r := strings.NewReplacer(`\`, `\\`, `:`, `\:`, `'`, `\'`)
	return r.Replace(path)
}

// ConcatAudio joins parts into output without re-encoding.
func (e *Editor) ConcatAudio(ctx context.Context, parts []string, output string) error {
	if len(parts) == 0 {
		return services.Wrap(services.ErrValidation, "narration", "concatenate", "no audio parts", nil)
	}
	var list strings.Builder
	for _, part := range parts {
		abs, err := filepath.Abs(part)
		if err != nil {
			return fmt.Errorf("resolve audio part: %w", err)
		}
		fmt.Fprintf(&list, "file '%s'\n", strings.ReplaceAll(abs, "'", `'\''`))
	}
	listPath := output + ".txt"
	if err := os.WriteFile(listPath, []byte(list.String()), 0o644); err != nil {
		return fmt.Errorf("write concat list: %w", err)
	}
	defer os.Remove(listPath)
	if err := e.run(ctx, e.ffmpeg, "-y", "-hide_banner", "-loglevel", "error", "-f", "concat", "-safe", "0", "-i", listPath, "-c", "copy", output); err != nil {
		return fmt.Errorf("ffmpeg concat: %w", err)
	}
	return nil
}

func runCommand(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}
