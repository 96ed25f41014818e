package transcribe

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	aai "github.com/AssemblyAI/assemblyai-go-sdk"

	"vidpipe/internal/config"
	"vidpipe/internal/services"
)

type fakeTranscriber struct {
	transcript aai.Transcript
	err        error
	uploaded   string
	url        string
	language   aai.TranscriptLanguageCode
}

func (f *fakeTranscriber) TranscribeFromReader(_ context.Context, reader io.Reader, params *aai.TranscriptOptionalParams) (aai.Transcript, error) {
	data, _ := io.ReadAll(reader)
	f.uploaded = string(data)
	f.language = params.LanguageCode
	return f.transcript, f.err
}

func (f *fakeTranscriber) TranscribeFromURL(_ context.Context, audioURL string, params *aai.TranscriptOptionalParams) (aai.Transcript, error) {
	f.url = audioURL
	f.language = params.LanguageCode
	return f.transcript, f.err
}

func word(text string, startMS, endMS int64) aai.TranscriptWord {
	return aai.TranscriptWord{Text: aai.String(text), Start: aai.Int64(startMS), End: aai.Int64(endMS)}
}

func testConfig() config.Subtitles {
	return config.Subtitles{LanguageCode: "en", MergeGapSeconds: 0.5, MaxCueSeconds: 5}
}

func TestGenerateGroupsMergesAndSplits(t *testing.T) {
	fake := &fakeTranscriber{transcript: aai.Transcript{
		ID:     aai.String("tr-1"),
		Status: aai.TranscriptStatusCompleted,
		Words: []aai.TranscriptWord{
			word("Hello", 0, 400),
			word("there.", 500, 900),
			word("Second", 3000, 3500),
			word("sentence", 3600, 6000),
			word("runs", 6100, 8000),
			word("long.", 8100, 10000),
		},
	}}
	svc := NewService(testConfig(), WithTranscriber(fake))

	path := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(path, []byte("media"), 0o644); err != nil {
		t.Fatalf("write media: %v", err)
	}
	subs, err := svc.Generate(context.Background(), path)
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if subs.ID != "tr-1" || fake.uploaded != "media" || fake.language != "en" {
		t.Fatalf("unexpected call: id=%q uploaded=%q lang=%q", subs.ID, fake.uploaded, fake.language)
	}
	if len(subs.Cues) != 3 {
		t.Fatalf("expected 3 cues, got %+v", subs.Cues)
	}
	if subs.Cues[0].Text != "Hello there." || subs.Cues[0].End != 0.9 {
		t.Fatalf("unexpected first cue %+v", subs.Cues[0])
	}
	for _, cue := range subs.Cues {
		if cue.Duration() > 5 {
			t.Fatalf("cue exceeds max duration: %+v", cue)
		}
	}
}

func TestGenerateUsesURLForRemoteMedia(t *testing.T) {
	fake := &fakeTranscriber{transcript: aai.Transcript{Status: aai.TranscriptStatusCompleted}}
	svc := NewService(testConfig(), WithTranscriber(fake))

	subs, err := svc.Generate(context.Background(), "https://cdn.example/video.mp4")
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if fake.url != "https://cdn.example/video.mp4" {
		t.Fatalf("expected URL transcription, got %q", fake.url)
	}
	if subs.ID == "" || len(subs.Cues) != 0 {
		t.Fatalf("unexpected subtitles %+v", subs)
	}
}

func TestGenerateErrors(t *testing.T) {
	if _, err := NewService(testConfig()).Generate(context.Background(), "x"); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}

	svc := NewService(testConfig(), WithTranscriber(&fakeTranscriber{}))
	if _, err := svc.Generate(context.Background(), filepath.Join(t.TempDir(), "missing.mp4")); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	failed := NewService(testConfig(), WithTranscriber(&fakeTranscriber{transcript: aai.Transcript{
		Status: aai.TranscriptStatusError,
		Error:  aai.String("audio too short"),
	}}))
	_, err := failed.Generate(context.Background(), "https://cdn.example/a.mp4")
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
}
