package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"vidpipe/internal/config"
)

// Options describes logger construction parameters.
type Options struct {
	Level  string
	Format string
	// OutputPaths receive every record. "stdout" and "stderr" name the
	// standard streams; anything else is opened for append. Empty means stdout.
	OutputPaths []string
	// ErrorOutputPaths additionally receive error-level records. Paths that
	// already appear in OutputPaths are skipped.
	ErrorOutputPaths []string
	Development      bool
	// Hub, when set, receives a copy of every record that passes the level filter.
	Hub *StreamHub
}

// New constructs a slog logger using the provided options.
func New(opts Options) (*slog.Logger, error) {
	levelVar := new(slog.LevelVar)
	levelVar.Set(parseLevel(opts.Level))
	addSource := opts.Development || levelVar.Level() <= slog.LevelDebug

	build, err := handlerFactory(opts.Format)
	if err != nil {
		return nil, err
	}

	outputs := opts.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}
	out, err := openWriters(outputs, nil)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = os.Stdout
	}
	handler := build(out, levelVar, addSource)

	if extra, err := openWriters(opts.ErrorOutputPaths, outputs); err != nil {
		return nil, err
	} else if extra != nil {
		errLevel := new(slog.LevelVar)
		errLevel.Set(max(slog.LevelError, levelVar.Level()))
		handler = &errorSplitHandler{all: handler, errs: build(extra, errLevel, addSource)}
	}

	if opts.Hub != nil {
		handler = newStreamHandler(handler, opts.Hub)
	}
	return slog.New(handler), nil
}

// NewFromConfig logs to stdout and, when a log directory is configured, to
// vidpipe.log inside it. The hub may be nil when no log streaming is needed.
func NewFromConfig(cfg *config.Config, hub *StreamHub) (*slog.Logger, error) {
	if cfg == nil {
		return New(Options{Level: "info", Format: "console", Hub: hub})
	}
	outputs := []string{"stdout"}
	if cfg.Paths.LogDir != "" {
		outputs = append(outputs, filepath.Join(cfg.Paths.LogDir, "vidpipe.log"))
	}
	return New(Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: outputs,
		Hub:         hub,
	})
}

type handlerBuilder func(w io.Writer, lvl *slog.LevelVar, addSource bool) slog.Handler

func handlerFactory(format string) (handlerBuilder, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "console":
		return newConsoleHandler, nil
	case "json":
		return newJSONHandler, nil
	default:
		return nil, fmt.Errorf("log format: unsupported value %q", format)
	}
}

// parseLevel accepts slog's names (with offsets such as "warn+2") plus the
// aliases "warning" and "fatal". Anything unrecognised is info.
func parseLevel(level string) slog.Level {
	switch name := strings.ToLower(strings.TrimSpace(level)); name {
	case "warning":
		return slog.LevelWarn
	case "fatal":
		return slog.LevelError
	default:
		var parsed slog.Level
		if err := parsed.UnmarshalText([]byte(name)); err != nil {
			return slog.LevelInfo
		}
		return parsed
	}
}

// openWriters opens every distinct path not listed in skip. It returns nil
// when nothing is left to open.
func openWriters(paths, skip []string) (io.Writer, error) {
	var (
		seen    = make(map[string]bool)
		writers []io.Writer
	)
	for _, path := range paths {
		path = strings.TrimSpace(path)
		if path == "" || seen[path] || slices.Contains(skip, path) {
			continue
		}
		seen[path] = true
		w, err := openSink(path)
		if err != nil {
			return nil, err
		}
		writers = append(writers, w)
	}
	switch len(writers) {
	case 0:
		return nil, nil
	case 1:
		return writers[0], nil
	default:
		return io.MultiWriter(writers...), nil
	}
}

func openSink(path string) (io.Writer, error) {
	switch path {
	case "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory for %s: %w", path, err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o664)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	return file, nil
}

// errorSplitHandler copies error-level records to a second handler.
type errorSplitHandler struct {
	all  slog.Handler
	errs slog.Handler
}

func (h *errorSplitHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.all.Enabled(ctx, level) || h.errs.Enabled(ctx, level)
}

func (h *errorSplitHandler) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	if h.all.Enabled(ctx, record.Level) {
		errs = append(errs, h.all.Handle(ctx, record.Clone()))
	}
	if h.errs.Enabled(ctx, record.Level) {
		errs = append(errs, h.errs.Handle(ctx, record))
	}
	return errors.Join(errs...)
}

func (h *errorSplitHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &errorSplitHandler{all: h.all.WithAttrs(attrs), errs: h.errs.WithAttrs(attrs)}
}

func (h *errorSplitHandler) WithGroup(name string) slog.Handler {
	return &errorSplitHandler{all: h.all.WithGroup(name), errs: h.errs.WithGroup(name)}
}
