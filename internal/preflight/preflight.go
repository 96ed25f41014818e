package preflight

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"vidpipe/internal/config"
	"vidpipe/internal/services/editor"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name     string
	Passed   bool
	Optional bool
	Detail   string
}

// Options tunes RunAll.
type Options struct {
	// Network enables endpoint reachability probes. Without it only local
	// state and credential presence are checked.
	Network bool
}

// RunAll executes every applicable check for cfg.
func RunAll(ctx context.Context, cfg *config.Config, opts Options) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Work directory", cfg.Paths.WorkDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}

	ffmpeg := strings.TrimSpace(cfg.Editing.FFmpegBinary)
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	results = append(results,
		CheckBinary("FFmpeg", ffmpeg, false),
		CheckBinary("FFprobe", editor.FFprobeBinary(ffmpeg), false),
	)

	for _, b := range cfg.Providers.Backends {
		results = append(results, CheckCredential(fmt.Sprintf("Backend %s", b.ID), b.APIKey, apiKeyHint(b)))
	}
	results = append(results,
		optional(CheckCredential("Subtitles (AssemblyAI)", cfg.Subtitles.APIKey, "set subtitles.api_key or ASSEMBLYAI_API_KEY")),
		optional(CheckCredential("Narration", cfg.Narration.APIKey, "set narration.api_key")),
	)

	names := make([]string, 0, len(cfg.Upload.Platforms))
	for name := range cfg.Upload.Platforms {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		platform := cfg.Upload.Platforms[name]
		label := fmt.Sprintf("Platform %s", name)
		if opts.Network {
			results = append(results, CheckEndpoint(ctx, label, platform.Endpoint, platform.APIKey))
			continue
		}
		results = append(results, CheckCredential(label, platform.APIKey, "set upload.platforms."+name+".api_key"))
	}
	if opts.Network && strings.TrimSpace(cfg.Narration.Endpoint) != "" {
		results = append(results, optional(CheckEndpoint(ctx, "Narration endpoint", cfg.Narration.Endpoint, cfg.Narration.APIKey)))
	}
	return results
}

// Failed returns the required checks that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed && !r.Optional {
			out = append(out, r)
		}
	}
	return out
}

func optional(r Result) Result {
	r.Optional = true
	return r
}

func apiKeyHint(b config.Backend) string {
	if env := strings.TrimSpace(b.APIKeyEnv); env != "" {
		return "export " + env
	}
	return "set api_key for backend " + b.ID
}
