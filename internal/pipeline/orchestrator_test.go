package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"vidpipe/internal/media"
	"vidpipe/internal/progress"
	"vidpipe/internal/services"
	"vidpipe/internal/services/upload"
)

type recordingSink struct {
	mu     sync.Mutex
	states []progress.State
}

func (s *recordingSink) Publish(state progress.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = append(s.states, state)
}

func (s *recordingSink) all() []progress.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]progress.State(nil), s.states...)
}

func (s *recordingSink) last() progress.State {
	states := s.all()
	return states[len(states)-1]
}

type fakeServices struct {
	calls []string

	subsErr      error
	analysisErr  error
	segments     []media.Segment
	narrationFn  func(ctx context.Context) error
	verdict      media.CopyrightVerdict
	checked      string
	sensitive    bool
	sensitiveErr error
	uploadResult upload.Result
	uploadErr    error
	uploadSteps  []float64
}

func newFakeServices() *fakeServices {
	return &fakeServices{
		segments:     []media.Segment{{Start: 0, End: 10, Type: "intro"}, {Start: 10, End: 30, Type: "main"}},
		verdict:      media.CopyrightVerdict{IsValid: true, Confidence: 0.9},
		uploadResult: upload.Result{Success: true, URL: "https://videos.example/v1"},
		uploadSteps:  []float64{0, 50, 100},
	}
}

func (f *fakeServices) Generate(_ context.Context, locator string) (media.Subtitles, error) {
	f.calls = append(f.calls, "subtitles")
	if f.subsErr != nil {
		return media.Subtitles{}, f.subsErr
	}
	return media.Subtitles{ID: "s1", Cues: []media.Cue{{Start: 0, End: 2, Text: "hello world"}}}, nil
}

func (f *fakeServices) Analyze(_ context.Context, _ string, subs media.Subtitles) (media.Analysis, error) {
	f.calls = append(f.calls, "analysis")
	if f.analysisErr != nil {
		return media.Analysis{}, f.analysisErr
	}
	return media.Analysis{Summary: "summary of " + subs.Transcript(), Topics: []string{"greeting"}}, nil
}

func (f *fakeServices) Segment(context.Context, string, media.Analysis) (media.SegmentPlan, error) {
	f.calls = append(f.calls, "segmentation")
	return media.SegmentPlan{Segments: f.segments}, nil
}

func (f *fakeServices) Synthesize(ctx context.Context, text string, _ media.VoiceOptions) (media.Narration, error) {
	f.calls = append(f.calls, "narration")
	if f.narrationFn != nil {
		if err := f.narrationFn(ctx); err != nil {
			return media.Narration{}, err
		}
	}
	return media.Narration{Locator: "/tmp/narration.mp3", Duration: time.Second, Format: "mp3"}, nil
}

func (f *fakeServices) Assemble(_ context.Context, locator string, subs media.Subtitles, narration media.Narration, plan media.SegmentPlan, _ media.EditOptions) (string, error) {
	f.calls = append(f.calls, "editing")
	return locator + ".edited.mp4", nil
}

func (f *fakeServices) Check(_ context.Context, locator, _ string) (media.CopyrightVerdict, error) {
	f.calls = append(f.calls, "copyright")
	f.checked = locator
	return f.verdict, nil
}

func (f *fakeServices) DetectSensitive(context.Context, string) (bool, error) {
	f.calls = append(f.calls, "sensitive")
	return f.sensitive, f.sensitiveErr
}

func (f *fakeServices) Upload(_ context.Context, locator string, _ upload.Options, report upload.ProgressFunc) (upload.Result, error) {
	f.calls = append(f.calls, "upload")
	for _, pct := range f.uploadSteps {
		report(upload.Progress{Status: upload.StatusUploading, Percentage: pct})
	}
	return f.uploadResult, f.uploadErr
}

func (f *fakeServices) collaborators() Collaborators {
	return Collaborators{
		Subtitles: f,
		Analyzer:  f,
		Segmenter: f,
		Narrator:  f,
		Editor:    f,
		Copyright: f,
		Sensitive: f,
		Uploader:  f,
	}
}

func testJob(stages Stages) Job {
	return Job{
		ID:     "job-1",
		Media:  Media{Locator: "/media/input.mp4", Title: "Demo"},
		Stages: stages,
		Upload: upload.Options{Platform: "custom", Title: "Demo", Visibility: upload.VisibilityPrivate},
	}
}

func assertMonotonic(t *testing.T, states []progress.State) {
	t.Helper()
	prev := 0.0
	for i, s := range states {
		if s.Progress < prev || s.Progress < 0 || s.Progress > 100 {
			t.Fatalf("progress not monotonic at %d: %+v", i, states)
		}
		prev = s.Progress
	}
}

func TestRunAllStagesReachesCompletion(t *testing.T) {
	fakes := newFakeServices()
	sink := &recordingSink{}
	orch := NewOrchestrator(fakes.collaborators())

	result, err := orch.Run(context.Background(), testJob(AllStages()), sink)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if result.URL != "https://videos.example/v1" {
		t.Fatalf("unexpected url %q", result.URL)
	}
	want := "subtitles,analysis,segmentation,narration,editing,copyright,upload"
	if got := strings.Join(fakes.calls, ","); got != want {
		t.Fatalf("unexpected call order %s", got)
	}

	states := sink.all()
	assertMonotonic(t, states)
	final := states[len(states)-1]
	if final.Status != progress.StatusCompleted || final.Progress != 100 || final.URL == "" {
		t.Fatalf("unexpected final state %+v", final)
	}

	checkpoints := map[progress.Stage]float64{}
	sawHalfUpload := false
	for _, s := range states {
		if s.Status == progress.StatusCompleted {
			checkpoints[s.Stage] = s.Progress
		}
		if s.Stage == progress.StageUpload && s.Status == progress.StatusProcessing && s.Progress == 95 {
			sawHalfUpload = true
		}
	}
	for _, stage := range progress.Stages {
		if checkpoints[stage] != progress.Checkpoint(stage) {
			t.Fatalf("stage %s completed at %v", stage, checkpoints[stage])
		}
	}
	if !sawHalfUpload {
		t.Fatalf("expected 50%% upload to publish 95, got %+v", states)
	}
	if result.Artifacts.Edited != "/media/input.mp4.edited.mp4" {
		t.Fatalf("unexpected edited locator %q", result.Artifacts.Edited)
	}
}

func TestRunEditingOnlyStartsAtZero(t *testing.T) {
	fakes := newFakeServices()
	sink := &recordingSink{}
	orch := NewOrchestrator(fakes.collaborators())

	if _, err := orch.Run(context.Background(), testJob(Stages{}), sink); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if got := strings.Join(fakes.calls, ","); got != "editing,upload" {
		t.Fatalf("unexpected calls %s", got)
	}
	states := sink.all()
	first := states[0]
	if first.Stage != progress.StageEditing || first.Status != progress.StatusProcessing || first.Progress != 0 {
		t.Fatalf("unexpected first state %+v", first)
	}
	if states[1].Stage != progress.StageEditing || states[1].Progress != 75 {
		t.Fatalf("expected editing to complete at 75, got %+v", states[1])
	}
	assertMonotonic(t, states)
	if last := sink.last(); last.Progress != 100 || last.Status != progress.StatusCompleted {
		t.Fatalf("unexpected final state %+v", last)
	}
}

func TestRunSkipsStagesWithoutPrerequisites(t *testing.T) {
	fakes := newFakeServices()
	orch := NewOrchestrator(fakes.collaborators())
	stages := Stages{Analysis: true, Segmentation: true, Narration: true, Copyright: true}

	if _, err := orch.Run(context.Background(), testJob(stages), &recordingSink{}); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if got := strings.Join(fakes.calls, ","); got != "editing,upload" {
		t.Fatalf("stages without prerequisites should be skipped, calls=%s", got)
	}
}

func TestRunCopyrightRejectionStopsBeforeUpload(t *testing.T) {
	fakes := newFakeServices()
	fakes.verdict = media.CopyrightVerdict{IsValid: false, Issues: []string{"trademark"}, Confidence: 0.8}
	sink := &recordingSink{}
	orch := NewOrchestrator(fakes.collaborators())

	_, err := orch.Run(context.Background(), testJob(AllStages()), sink)
	if !errors.Is(err, ErrCopyrightRejected) {
		t.Fatalf("expected copyright rejection, got %v", err)
	}
	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != progress.StageCopyright {
		t.Fatalf("expected copyright StageError, got %v", err)
	}
	var gate *CopyrightGateError
	if !errors.As(err, &gate) || gate.Confidence != 0.8 {
		t.Fatalf("expected gate error details, got %v", err)
	}
	for _, call := range fakes.calls {
		if call == "upload" {
			t.Fatal("upload must not run after rejection")
		}
	}
	last := sink.last()
	if last.Status != progress.StatusFailed || last.Progress != 75 {
		t.Fatalf("unexpected final state %+v", last)
	}
	if !strings.Contains(last.Error, "Copyright check failed: trademark") {
		t.Fatalf("unexpected error text %q", last.Error)
	}
}

func TestRunSensitiveContentFailsGate(t *testing.T) {
	fakes := newFakeServices()
	fakes.sensitiveErr = errors.New("moderation unavailable")
	orch := NewOrchestrator(fakes.collaborators(), WithSensitiveCheck(true))

	_, err := orch.Run(context.Background(), testJob(AllStages()), &recordingSink{})
	var gate *CopyrightGateError
	if !errors.As(err, &gate) || len(gate.Issues) != 1 || gate.Issues[0] != "sensitive content" {
		t.Fatalf("expected sensitive gate failure, got %v", err)
	}
}

func TestRunCopyrightVetsEditedOutput(t *testing.T) {
	fakes := newFakeServices()
	orch := NewOrchestrator(fakes.collaborators())

	result, err := orch.Run(context.Background(), testJob(AllStages()), &recordingSink{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if fakes.checked != result.Artifacts.Edited || fakes.checked != "/media/input.mp4.edited.mp4" {
		t.Fatalf("copyright checked %q, edited output is %q", fakes.checked, result.Artifacts.Edited)
	}
}

func TestRunSensitiveIssueDoesNotAliasCheckerSlice(t *testing.T) {
	fakes := newFakeServices()
	issues := make([]string, 1, 4)
	issues[0] = "music"
	fakes.verdict = media.CopyrightVerdict{IsValid: true, Issues: issues, Confidence: 0.9}
	fakes.sensitive = true
	orch := NewOrchestrator(fakes.collaborators(), WithSensitiveCheck(true))

	_, err := orch.Run(context.Background(), testJob(AllStages()), &recordingSink{})
	var gate *CopyrightGateError
	if !errors.As(err, &gate) || len(gate.Issues) != 2 || gate.Issues[1] != "sensitive content" {
		t.Fatalf("expected sensitive gate failure, got %v", err)
	}
	if spare := issues[:2][1]; spare != "" {
		t.Fatalf("checker's backing array was written: %q", spare)
	}
}

func TestRunStageFailureKeepsReachedProgress(t *testing.T) {
	fakes := newFakeServices()
	fakes.analysisErr = services.Wrap(services.ErrTransient, "analysis", "route", "all backends exhausted", nil)
	sink := &recordingSink{}
	orch := NewOrchestrator(fakes.collaborators())

	result, err := orch.Run(context.Background(), testJob(AllStages()), sink)
	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != progress.StageAnalysis {
		t.Fatalf("expected analysis StageError, got %v", err)
	}
	last := sink.last()
	if last.Status != progress.StatusFailed || last.Progress != 15 || last.Error == "" {
		t.Fatalf("unexpected final state %+v", last)
	}
	if result.Artifacts.Subtitles.IsZero() {
		t.Fatal("expected produced subtitles to be returned on failure")
	}
	assertMonotonic(t, sink.all())
}

func TestRunRejectsInvalidSegments(t *testing.T) {
	fakes := newFakeServices()
	fakes.segments = []media.Segment{{Start: 0, End: 10}, {Start: 5, End: 15}}
	orch := NewOrchestrator(fakes.collaborators())

	_, err := orch.Run(context.Background(), testJob(AllStages()), &recordingSink{})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRunUnsuccessfulUploadFails(t *testing.T) {
	fakes := newFakeServices()
	fakes.uploadResult = upload.Result{Success: false, Error: "Upload failed: quota exceeded"}
	fakes.uploadSteps = []float64{0, 40}
	sink := &recordingSink{}
	orch := NewOrchestrator(fakes.collaborators())

	_, err := orch.Run(context.Background(), testJob(Stages{}), sink)
	if err == nil || !strings.Contains(err.Error(), "Upload failed: quota exceeded") {
		t.Fatalf("expected upload failure, got %v", err)
	}
	last := sink.last()
	if last.Stage != progress.StageUpload || last.Status != progress.StatusFailed || last.Progress != 94 {
		t.Fatalf("unexpected final state %+v", last)
	}
}

func TestRunCancellationEndsCancelled(t *testing.T) {
	fakes := newFakeServices()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fakes.narrationFn = func(ctx context.Context) error {
		cancel()
		<-ctx.Done()
		return ctx.Err()
	}
	sink := &recordingSink{}
	orch := NewOrchestrator(fakes.collaborators())

	_, err := orch.Run(ctx, testJob(AllStages()), sink)
	if !errors.Is(err, ErrCancelled) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	last := sink.last()
	if last.Status != progress.StatusCancelled || last.Stage != progress.StageNarration || last.Progress != 45 {
		t.Fatalf("unexpected final state %+v", last)
	}
	for _, call := range fakes.calls {
		if call == "editing" {
			t.Fatal("no stage should run after cancellation")
		}
	}
}

func TestRunMissingCollaboratorIsConfigurationError(t *testing.T) {
	fakes := newFakeServices()
	collab := fakes.collaborators()
	collab.Subtitles = nil
	orch := NewOrchestrator(collab)

	_, err := orch.Run(context.Background(), testJob(AllStages()), nil)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

type recordingObserver struct {
	outcomes []string
}

func (o *recordingObserver) StageFinished(stage progress.Stage, status progress.Status, _ time.Duration) {
	o.outcomes = append(o.outcomes, string(stage)+":"+string(status))
}

func TestRunNotifiesStageObserver(t *testing.T) {
	fakes := newFakeServices()
	observer := &recordingObserver{}
	orch := NewOrchestrator(fakes.collaborators(), WithStageObserver(observer))

	if _, err := orch.Run(context.Background(), testJob(Stages{Subtitles: true}), nil); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	want := "subtitles:completed,editing:completed,upload:completed"
	if got := strings.Join(observer.outcomes, ","); got != want {
		t.Fatalf("unexpected outcomes %s", got)
	}
}
