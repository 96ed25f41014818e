package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vidpipe/internal/config"
	"vidpipe/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckBinary(t *testing.T) {
	present := filepath.Join(t.TempDir(), "ffmpeg")
	if err := os.WriteFile(present, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	if r := CheckBinary("FFmpeg", present, false); !r.Passed {
		t.Fatalf("expected stub to resolve, got %s", r.Detail)
	}
	r := CheckBinary("FFprobe", "clearly-not-present-binary", false)
	if r.Passed || !strings.Contains(r.Detail, "not found") {
		t.Fatalf("unexpected result for missing binary: %+v", r)
	}
	if r := CheckBinary("Empty", "  ", true); r.Passed || !r.Optional {
		t.Fatalf("unexpected result for empty command: %+v", r)
	}
}

func TestCheckCredentialNeverEchoesSecret(t *testing.T) {
	r := CheckCredential("Backend primary", "sk-live-123", "")
	if !r.Passed || strings.Contains(r.Detail, "sk-live") {
		t.Fatalf("unexpected result: %+v", r)
	}
	r = CheckCredential("Backend primary", "", "export OPENAI_API_KEY")
	if r.Passed || !strings.Contains(r.Detail, "OPENAI_API_KEY") {
		t.Fatalf("expected hint in detail, got %+v", r)
	}
}

func TestCheckEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusMethodNotAllowed)
	}))
	defer srv.Close()

	if r := CheckEndpoint(context.Background(), "Platform", srv.URL, "good-key"); !r.Passed {
		t.Fatalf("expected pass, got: %s", r.Detail)
	}
	r := CheckEndpoint(context.Background(), "Platform", srv.URL, "bad-key")
	if r.Passed || !strings.Contains(r.Detail, "auth failed") {
		t.Fatalf("expected auth failure, got %+v", r)
	}
	if r := CheckEndpoint(context.Background(), "Platform", "", "key"); r.Passed {
		t.Fatal("expected failure for missing endpoint")
	}
}

func TestCheckEndpointUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	r := CheckEndpoint(context.Background(), "Platform", url, "key")
	if r.Passed || !strings.Contains(r.Detail, "unreachable") {
		t.Fatalf("expected unreachable, got %+v", r)
	}
}

func TestRunAllFlagsMissingBackendKey(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithBackends(
		config.Backend{ID: "primary", Kind: "openai", Model: "m", APIKey: "k"},
		config.Backend{ID: "fallback", Kind: "anthropic", Model: "m", APIKeyEnv: "FALLBACK_KEY"},
	))
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure dirs: %v", err)
	}

	results := RunAll(context.Background(), cfg, Options{})
	byName := make(map[string]Result, len(results))
	for _, r := range results {
		byName[r.Name] = r
	}
	if !byName["Work directory"].Passed || !byName["Log directory"].Passed {
		t.Fatalf("expected directories to pass: %+v", results)
	}
	if !byName["Backend primary"].Passed {
		t.Fatalf("expected primary to pass: %+v", byName["Backend primary"])
	}
	fallback := byName["Backend fallback"]
	if fallback.Passed || !strings.Contains(fallback.Detail, "FALLBACK_KEY") {
		t.Fatalf("expected fallback failure with env hint: %+v", fallback)
	}

	found := false
	for _, r := range Failed(results) {
		if r.Optional {
			t.Fatalf("optional check reported as failure: %+v", r)
		}
		if r.Name == "Backend fallback" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected fallback in failed checks")
	}
}
