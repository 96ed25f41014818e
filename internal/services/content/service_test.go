package content

import (
	"context"
	"errors"
	"strings"
	"testing"

	"vidpipe/internal/config"
	"vidpipe/internal/media"
	"vidpipe/internal/provider"
	"vidpipe/internal/services"
)

type fakeRouter struct {
	reply   string
	err     error
	prompts []string
	opts    []provider.RequestOptions
}

func (r *fakeRouter) Route(_ context.Context, prompt string, opts provider.RequestOptions) (provider.Response, error) {
	r.prompts = append(r.prompts, prompt)
	r.opts = append(r.opts, opts)
	if r.err != nil {
		return provider.Response{}, r.err
	}
	return provider.Response{Text: r.reply, BackendID: "gpt-4", Tokens: 42, Attempts: 1}, nil
}

var testPrefs = config.Tasks{Analysis: "gpt-4", Segmentation: "gpt-3.5-turbo", Copyright: "gpt-4", Sensitive: "gpt-3.5-turbo"}

func testSubtitles() media.Subtitles {
	return media.Subtitles{ID: "s", Cues: []media.Cue{{Start: 0, End: 2, Text: "Welcome to the show."}}}
}

func TestAnalyzeDecodesLenientReply(t *testing.T) {
	router := &fakeRouter{reply: "```json\n{\"summary\": \"A show intro\", \"topics\": \"intro, hosting\", \"sentiment\": \"positive\", \"content_rating\": \"G\", \"recommendations\": [\"add music\"]}\n```"}
	svc := NewService(router, testPrefs)

	analysis, err := svc.Analyze(context.Background(), "/media/a.mp4", testSubtitles())
	if err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}
	if analysis.Summary != "A show intro" || analysis.ContentRating != "G" {
		t.Fatalf("unexpected analysis %+v", analysis)
	}
	if len(analysis.Topics) != 2 || analysis.Topics[1] != "hosting" {
		t.Fatalf("unexpected topics %v", analysis.Topics)
	}
	if len(analysis.Recommendations) != 1 {
		t.Fatalf("unexpected recommendations %v", analysis.Recommendations)
	}
	if !strings.Contains(router.prompts[0], "Welcome to the show.") {
		t.Fatalf("prompt missing transcript: %s", router.prompts[0])
	}
	opts := router.opts[0]
	if opts.PreferredBackend != "gpt-4" || opts.Temperature == nil || *opts.Temperature != 0.7 {
		t.Fatalf("unexpected request options %+v", opts)
	}
}

func TestAnalyzeRejectsEmptyTranscript(t *testing.T) {
	svc := NewService(&fakeRouter{}, testPrefs)
	_, err := svc.Analyze(context.Background(), "/media/a.mp4", media.Subtitles{})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestAnalyzePropagatesRouterErrors(t *testing.T) {
	svc := NewService(&fakeRouter{err: provider.ErrNoAvailableBackends}, testPrefs)
	_, err := svc.Analyze(context.Background(), "/media/a.mp4", testSubtitles())
	if !errors.Is(err, provider.ErrNoAvailableBackends) {
		t.Fatalf("expected router error, got %v", err)
	}
}

func TestSegmentParsesSortsAndValidates(t *testing.T) {
	router := &fakeRouter{reply: `{"segments": [
		{"start": "10", "end": "00:00:30", "type": "Main_Content", "description": "body"},
		{"start": 0, "end": 10, "type": "intro"}
	]}`}
	svc := NewService(router, testPrefs)

	plan, err := svc.Segment(context.Background(), "/media/a.mp4", media.Analysis{Summary: "s", Topics: []string{"a", "b"}})
	if err != nil {
		t.Fatalf("Segment returned error: %v", err)
	}
	if len(plan.Segments) != 2 || plan.Segments[0].Type != "intro" || plan.Segments[1].End != 30 {
		t.Fatalf("unexpected plan %+v", plan)
	}
	if plan.Segments[0].Description != defaultSegmentDescription || plan.Segments[1].Type != "main_content" {
		t.Fatalf("unexpected segment fields %+v", plan.Segments)
	}
	if !strings.Contains(router.prompts[0], "Topics: a, b") {
		t.Fatalf("prompt missing topics: %s", router.prompts[0])
	}
	if router.opts[0].PreferredBackend != "gpt-3.5-turbo" {
		t.Fatalf("unexpected preference %q", router.opts[0].PreferredBackend)
	}
}

func TestSegmentRejectsOverlap(t *testing.T) {
	router := &fakeRouter{reply: `{"segments": [{"start": 0, "end": 10}, {"start": 5, "end": 15}]}`}
	svc := NewService(router, testPrefs)
	_, err := svc.Segment(context.Background(), "/media/a.mp4", media.Analysis{Summary: "s"})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCheckParsesJSONAndTextVerdicts(t *testing.T) {
	tests := []struct {
		name       string
		reply      string
		valid      bool
		issues     []string
		confidence float64
	}{
		{"json", `{"isValid": false, "confidence": 80, "issues": ["trademark"]}`, false, []string{"trademark"}, 0.8},
		{"json fraction", `{"isValid": "true", "confidence": 0.95, "issues": []}`, true, nil, 0.95},
		{"text", "INVALID\nConfidence: 70\nIssues:\n- song lyrics\n- brand name", false, []string{"song lyrics", "brand name"}, 0.7},
		{"text valid", "VALID\nConfidence: 100\nIssues:", true, nil, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(&fakeRouter{reply: tt.reply}, testPrefs)
			verdict, err := svc.Check(context.Background(), "/media/a.mp4", "some transcript")
			if err != nil {
				t.Fatalf("Check returned error: %v", err)
			}
			if verdict.IsValid != tt.valid || verdict.Confidence != tt.confidence {
				t.Fatalf("unexpected verdict %+v", verdict)
			}
			if strings.Join(verdict.Issues, "|") != strings.Join(tt.issues, "|") {
				t.Fatalf("unexpected issues %v", verdict.Issues)
			}
		})
	}
}

func TestCheckRejectsUnreadableReply(t *testing.T) {
	svc := NewService(&fakeRouter{reply: "I cannot tell"}, testPrefs)
	_, err := svc.Check(context.Background(), "/media/a.mp4", "transcript")
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
}

func TestDetectSensitive(t *testing.T) {
	tests := []struct {
		reply string
		want  bool
	}{
		{"SAFE - nothing sensitive here", false},
		{"SENSITIVE: graphic violence", true},
		{"This may be sensitive", true},
		{"All clear", false},
	}
	for _, tt := range tests {
		svc := NewService(&fakeRouter{reply: tt.reply}, testPrefs)
		got, err := svc.DetectSensitive(context.Background(), "text")
		if err != nil {
			t.Fatalf("DetectSensitive returned error: %v", err)
		}
		if got != tt.want {
			t.Fatalf("reply %q: expected %v, got %v", tt.reply, tt.want, got)
		}
	}

	svc := NewService(&fakeRouter{err: errors.New("down")}, testPrefs)
	got, err := svc.DetectSensitive(context.Background(), "text")
	if err == nil || !got {
		t.Fatalf("expected failure to count as sensitive, got %v %v", got, err)
	}
}

func TestParseCatalogRejectsMissingTemplate(t *testing.T) {
	if _, err := ParseCatalog([]byte("analysis:\n  temperature: 0.5\n")); err == nil {
		t.Fatal("expected error for prompt without template")
	}
	catalog := DefaultCatalog()
	for _, task := range []string{TaskAnalysis, TaskSegmentation, TaskCopyright, TaskSensitive} {
		if _, _, err := catalog.Render(task, promptData{Transcript: "x"}); err != nil {
			t.Fatalf("render %s: %v", task, err)
		}
	}
}
