package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vidpipe/internal/config"
	"vidpipe/internal/logging"
	"vidpipe/internal/services"
)

func TestNewFromConfigWritesLogFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()

	logger, err := logging.NewFromConfig(&cfg, nil)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("hello from config")

	content, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, "vidpipe.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), "hello from config") {
		t.Fatalf("expected message in log file, got %q", content)
	}
}

func TestConsoleLoggerOmitsCallerForInfo(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-info.log")
	logger, err := logging.New(logging.Options{
		Format:           "console",
		Level:            "info",
		OutputPaths:      []string{logPath},
		ErrorOutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("message without caller")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if strings.Contains(string(content), ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", content)
	}
}

func TestConsoleLoggerIncludesCallerForDebug(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-debug.log")
	logger, err := logging.New(logging.Options{
		Format:           "console",
		Level:            "debug",
		OutputPaths:      []string{logPath},
		ErrorOutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("message with caller")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), ".go:") {
		t.Fatalf("expected caller information in debug logs, got %q", content)
	}
}

func TestConsoleLoggerRendersRunContext(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "component.log")
	logger, err := logging.New(logging.Options{Level: "info", OutputPaths: []string{logPath}, ErrorOutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logging.NewComponentLogger(logger, "router").
		With(logging.String(logging.FieldJobID, "0f5c6a9e-1111-2222-3333-444455556666")).
		Warn("backend failed",
			logging.String(logging.FieldBackend, "gpt-4"),
			logging.String(logging.FieldStage, "copyright"),
			logging.String(logging.FieldErrorHint, "check the api key"),
			logging.Int("attempt", 2),
		)

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := string(content)
	if !strings.Contains(line, "WARN  router: backend failed [job 0f5c6a9e | copyright | gpt-4]") {
		t.Fatalf("expected component prefix and run context, got %q", line)
	}
	if !strings.HasSuffix(strings.TrimSpace(line), `attempt=2 hint="check the api key"`) {
		t.Fatalf("expected attrs followed by hint, got %q", line)
	}
}

func TestJSONLoggerRenamesKeys(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "json.log")
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", OutputPaths: []string{logPath}, ErrorOutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("json message", logging.String("k", "v"))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var payload map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(content), &payload); err != nil {
		t.Fatalf("decode json line: %v", err)
	}
	if payload["msg"] != "json message" || payload["level"] != "info" || payload["k"] != "v" {
		t.Fatalf("unexpected payload: %v", payload)
	}
	if _, ok := payload["ts"]; !ok {
		t.Fatalf("expected ts key, got %v", payload)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestNewPublishesToHub(t *testing.T) {
	hub := logging.NewStreamHub(8)
	logPath := filepath.Join(t.TempDir(), "hub.log")
	logger, err := logging.New(logging.Options{Level: "info", OutputPaths: []string{logPath}, ErrorOutputPaths: []string{logPath}, Hub: hub})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Debug("filtered")
	logger.Info("kept")

	events, _ := hub.Tail(logging.Query{Limit: 10})
	if len(events) != 1 || events[0].Message != "kept" {
		t.Fatalf("expected only info event in hub, got %+v", events)
	}
}

func TestWithContextAddsFields(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithJobID(ctx, "job-123")
	ctx = services.WithStage(ctx, "editing")
	ctx = services.WithRequestID(ctx, "req-xyz")

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	logging.WithContext(ctx, logger).Info("contextual log")

	var payload map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &payload); err != nil {
		t.Fatalf("decode json line: %v", err)
	}
	want := map[string]string{
		logging.FieldJobID:         "job-123",
		logging.FieldStage:         "editing",
		logging.FieldCorrelationID: "req-xyz",
	}
	for key, value := range want {
		if payload[key] != value {
			t.Fatalf("field %s = %v, want %s", key, payload[key], value)
		}
	}
}

func TestProgressSamplerBuckets(t *testing.T) {
	sampler := logging.NewProgressSampler(10)
	if !sampler.ShouldLog(0, "upload") {
		t.Fatal("expected first event to log")
	}
	if sampler.ShouldLog(5, "upload") {
		t.Fatal("expected same bucket to be suppressed")
	}
	if !sampler.ShouldLog(12, "upload") {
		t.Fatal("expected new bucket to log")
	}
	if !sampler.ShouldLog(12, "editing") {
		t.Fatal("expected stage change to log")
	}
	sampler.Reset()
	if !sampler.ShouldLog(12, "editing") {
		t.Fatal("expected log after reset")
	}
}

func TestErrorOutputPathsReceiveOnlyErrors(t *testing.T) {
	dir := t.TempDir()
	allPath := filepath.Join(dir, "all.log")
	errPath := filepath.Join(dir, "errors.log")
	logger, err := logging.New(logging.Options{
		Format:           "json",
		Level:            "info",
		OutputPaths:      []string{allPath},
		ErrorOutputPaths: []string{errPath, allPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("routine")
	logger.Error("broken")

	all, err := os.ReadFile(allPath)
	if err != nil {
		t.Fatalf("read all log: %v", err)
	}
	if got := strings.Count(string(all), "\n"); got != 2 {
		t.Fatalf("all log has %d lines, want 2 (no duplicates): %q", got, all)
	}
	errs, err := os.ReadFile(errPath)
	if err != nil {
		t.Fatalf("read error log: %v", err)
	}
	if strings.Contains(string(errs), "routine") || !strings.Contains(string(errs), "broken") {
		t.Fatalf("error log should hold only the error record, got %q", errs)
	}
}
