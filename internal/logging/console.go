package logging

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// consoleHandler renders one human-readable line per record:
//
//	15:04:05.000 WARN  router: backend failed [job 0f5c6a9e | copyright | gpt-4] attempt=2 hint="check the key"
//
// Job, stage, and backend are lifted into the bracket so lines about the
// same run line up; the error hint always trails the other attributes.
type consoleHandler struct {
	mu        *sync.Mutex
	out       io.Writer
	level     *slog.LevelVar
	preset    []slog.Attr
	groups    []string
	addSource bool
}

func newConsoleHandler(w io.Writer, lvl *slog.LevelVar, addSource bool) slog.Handler {
	return &consoleHandler{mu: &sync.Mutex{}, out: w, level: lvl, addSource: addSource}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// lineFields is a record's attributes split by role.
type lineFields struct {
	component string
	job       string
	stage     string
	backend   string
	hint      string
	rest      []field
}

type field struct {
	key   string
	value slog.Value
}

func (f *lineFields) add(key string, value slog.Value) {
	switch key {
	case FieldComponent:
		if f.component == "" {
			f.component = valueText(value)
		}
	case FieldJobID:
		f.job = shortJobID(valueText(value))
	case FieldStage:
		f.stage = valueText(value)
	case FieldBackend:
		f.backend = valueText(value)
	case FieldErrorHint:
		f.hint = valueText(value)
	case "":
	default:
		f.rest = append(f.rest, field{key: key, value: value})
	}
}

// walkAttr flattens groups into dotted keys and visits every leaf.
func walkAttr(prefix []string, attr slog.Attr, visit func(key string, value slog.Value)) {
	if attr.Equal(slog.Attr{}) {
		return
	}
	value := attr.Value.Resolve()
	if value.Kind() == slog.KindGroup {
		next := prefix
		if attr.Key != "" {
			next = append(cloneStrings(prefix), attr.Key)
		}
		for _, child := range value.Group() {
			walkAttr(next, child, visit)
		}
		return
	}
	key := attr.Key
	if len(prefix) > 0 {
		key = strings.Join(append(cloneStrings(prefix), key), ".")
	}
	visit(key, value)
}

func (f *lineFields) context() string {
	parts := make([]string, 0, 3)
	if f.job != "" {
		parts = append(parts, "job "+f.job)
	}
	if f.stage != "" {
		parts = append(parts, f.stage)
	}
	if f.backend != "" {
		parts = append(parts, f.backend)
	}
	if len(parts) == 0 {
		return ""
	}
	return "[" + strings.Join(parts, " | ") + "]"
}

func (h *consoleHandler) Handle(_ context.Context, record slog.Record) error {
	if record.Level < h.level.Level() {
		return nil
	}

	var fields lineFields
	for _, attr := range h.preset {
		walkAttr(h.groups, attr, fields.add)
	}
	record.Attrs(func(attr slog.Attr) bool {
		walkAttr(h.groups, attr, fields.add)
		return true
	})

	ts := record.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	var buf bytes.Buffer
	buf.Grow(160)
	buf.WriteString(ts.Local().Format("15:04:05.000"))
	fmt.Fprintf(&buf, " %-5s ", levelLabel(record.Level))
	if fields.component != "" {
		buf.WriteString(fields.component)
		buf.WriteString(": ")
	}
	msg := strings.TrimSpace(record.Message)
	if msg == "" {
		msg = "(no message)"
	}
	buf.WriteString(msg)
	if ctx := fields.context(); ctx != "" {
		buf.WriteByte(' ')
		buf.WriteString(ctx)
	}
	if h.addSource {
		if src := record.Source(); src != nil {
			fmt.Fprintf(&buf, " (%s:%d)", filepath.Base(src.File), src.Line)
		}
	}
	for _, f := range fields.rest {
		buf.WriteByte(' ')
		buf.WriteString(f.key)
		buf.WriteByte('=')
		buf.WriteString(quoteIfNeeded(valueText(f.value)))
	}
	if fields.hint != "" {
		buf.WriteString(" hint=")
		buf.WriteString(strconv.Quote(fields.hint))
	}
	buf.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.out.Write(buf.Bytes())
	return err
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.preset = append(append([]slog.Attr(nil), h.preset...), attrs...)
	return &clone
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	clone := *h
	clone.groups = append(cloneStrings(h.groups), name)
	return &clone
}

func cloneStrings(in []string) []string {
	return append([]string(nil), in...)
}

func shortJobID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// valueText renders v without quoting.
func valueText(v slog.Value) string {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindDuration:
		return v.Duration().Round(time.Millisecond).String()
	case slog.KindTime:
		return v.Time().UTC().Format(time.RFC3339)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		return fmt.Sprint(v.Any())
	default:
		return v.String()
	}
}

func quoteIfNeeded(s string) string {
	if s == "" || strings.ContainsFunc(s, func(r rune) bool { return r <= ' ' || r == '=' || r == '"' }) {
		return strconv.Quote(s)
	}
	return s
}

func levelLabel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	case level >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}
