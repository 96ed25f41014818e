package pipeline

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"vidpipe/internal/media"
	"vidpipe/internal/progress"
	"vidpipe/internal/services"
	"vidpipe/internal/services/upload"
)

// Artifacts holds everything a run produced. Skipped stages leave zero values.
type Artifacts struct {
	Subtitles media.Subtitles        `json:"subtitles"`
	Analysis  media.Analysis         `json:"analysis"`
	Plan      media.SegmentPlan      `json:"plan"`
	Narration media.Narration        `json:"narration"`
	Edited    string                 `json:"edited,omitempty"`
	Verdict   media.CopyrightVerdict `json:"verdict"`
	Upload    upload.Result          `json:"upload"`
}

// run is the mutable state threaded through one execution.
type run struct {
	job       Job
	artifacts Artifacts
	produced  map[progress.Stage]bool
	publish   func(progress.State)

	mu       sync.Mutex
	progress float64
	sealed   bool
}

func (r *run) missing(stages []progress.Stage) []progress.Stage {
	var out []progress.Stage
	for _, s := range stages {
		if !r.produced[s] {
			out = append(out, s)
		}
	}
	return out
}

// advance moves progress forward and never back.
func (r *run) advance(value float64) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = min(max(r.progress, value), 100)
	return r.progress
}

func (r *run) current() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.progress
}

// reportUpload publishes rescaled upload progress. Reports after the
// uploader returned are dropped.
func (r *run) reportUpload(p upload.Progress) {
	if p.Status == upload.StatusError {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	next := min(max(r.progress, progress.UploadProgress(p.Percentage)), 100)
	if r.sealed || next == r.progress {
		return
	}
	r.progress = next
	r.publish(progress.State{Stage: progress.StageUpload, Status: progress.StatusProcessing, Progress: next})
}

func (r *run) seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

type stageRunner struct {
	stage    progress.Stage
	enabled  func(Stages) bool
	requires []progress.Stage
	run      func(context.Context, *run) error
}

func always(Stages) bool { return true }

func missingCollaborator(stage progress.Stage, name string) error {
	return services.Wrap(services.ErrConfiguration, string(stage), "resolve collaborator", name+" is not configured", nil)
}

func (o *Orchestrator) runners() []stageRunner {
	return []stageRunner{
		{
			stage:   progress.StageSubtitles,
			enabled: func(s Stages) bool { return s.Subtitles },
			run:     o.runSubtitles,
		},
		{
			stage:    progress.StageAnalysis,
			enabled:  func(s Stages) bool { return s.Analysis },
			requires: []progress.Stage{progress.StageSubtitles},
			run:      o.runAnalysis,
		},
		{
			stage:    progress.StageSegmentation,
			enabled:  func(s Stages) bool { return s.Segmentation },
			requires: []progress.Stage{progress.StageAnalysis},
			run:      o.runSegmentation,
		},
		{
			stage:    progress.StageNarration,
			enabled:  func(s Stages) bool { return s.Narration },
			requires: []progress.Stage{progress.StageAnalysis},
			run:      o.runNarration,
		},
		{
			stage:   progress.StageEditing,
			enabled: always,
			run:     o.runEditing,
		},
		{
			stage:    progress.StageCopyright,
			enabled:  func(s Stages) bool { return s.Copyright },
			requires: []progress.Stage{progress.StageSubtitles},
			run:      o.runCopyright,
		},
		{
			stage:   progress.StageUpload,
			enabled: always,
			run:     o.runUpload,
		},
	}
}

func (o *Orchestrator) runSubtitles(ctx context.Context, r *run) error {
	if o.collab.Subtitles == nil {
		return missingCollaborator(progress.StageSubtitles, "subtitle generator")
	}
	subs, err := o.collab.Subtitles.Generate(ctx, r.job.Media.Locator)
	if err != nil {
		return err
	}
	r.artifacts.Subtitles = subs
	return nil
}

func (o *Orchestrator) runAnalysis(ctx context.Context, r *run) error {
	if o.collab.Analyzer == nil {
		return missingCollaborator(progress.StageAnalysis, "content analyzer")
	}
	analysis, err := o.collab.Analyzer.Analyze(ctx, r.job.Media.Locator, r.artifacts.Subtitles)
	if err != nil {
		return err
	}
	r.artifacts.Analysis = analysis
	return nil
}

func (o *Orchestrator) runSegmentation(ctx context.Context, r *run) error {
	if o.collab.Segmenter == nil {
		return missingCollaborator(progress.StageSegmentation, "segmenter")
	}
	plan, err := o.collab.Segmenter.Segment(ctx, r.job.Media.Locator, r.artifacts.Analysis)
	if err != nil {
		return err
	}
	if err := media.ValidateSegments(plan.Segments); err != nil {
		return err
	}
	r.artifacts.Plan = plan
	return nil
}

func (o *Orchestrator) runNarration(ctx context.Context, r *run) error {
	if o.collab.Narrator == nil {
		return missingCollaborator(progress.StageNarration, "narrator")
	}
	narration, err := o.collab.Narrator.Synthesize(ctx, r.artifacts.Analysis.Summary, r.job.Voice)
	if err != nil {
		return err
	}
	r.artifacts.Narration = narration
	return nil
}

func (o *Orchestrator) runEditing(ctx context.Context, r *run) error {
	if o.collab.Editor == nil {
		return missingCollaborator(progress.StageEditing, "editor")
	}
	edited, err := o.collab.Editor.Assemble(ctx, r.job.Media.Locator, r.artifacts.Subtitles, r.artifacts.Narration, r.artifacts.Plan, r.job.Edit)
	if err != nil {
		return err
	}
	r.artifacts.Edited = edited
	return nil
}

func (o *Orchestrator) runCopyright(ctx context.Context, r *run) error {
	if o.collab.Copyright == nil {
		return missingCollaborator(progress.StageCopyright, "copyright checker")
	}
	// The gate vets the file that will be published.
	target := r.artifacts.Edited
	if target == "" {
		target = r.job.Media.Locator
	}
	transcript := r.artifacts.Subtitles.Transcript()
	verdict, err := o.collab.Copyright.Check(ctx, target, transcript)
	if err != nil {
		return err
	}
	if o.flagSensitive && o.collab.Sensitive != nil {
		sensitive, err := o.collab.Sensitive.DetectSensitive(ctx, transcript)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil || sensitive {
			verdict.IsValid = false
			verdict.Issues = append(slices.Clone(verdict.Issues), "sensitive content")
		}
	}
	r.artifacts.Verdict = verdict
	if !verdict.IsValid {
		return &CopyrightGateError{Issues: verdict.Issues, Confidence: verdict.Confidence}
	}
	return nil
}

func (o *Orchestrator) runUpload(ctx context.Context, r *run) error {
	if o.collab.Uploader == nil {
		return missingCollaborator(progress.StageUpload, "uploader")
	}
	source := r.artifacts.Edited
	if source == "" {
		source = r.job.Media.Locator
	}
	result, err := o.collab.Uploader.Upload(ctx, source, r.job.Upload, r.reportUpload)
	r.seal()
	if err != nil {
		return err
	}
	r.artifacts.Upload = result
	if !result.Success {
		message := result.Error
		if message == "" {
			message = "Upload failed"
		}
		return services.Wrap(services.ErrExternalTool, string(progress.StageUpload), "", message, nil)
	}
	if result.URL == "" {
		return fmt.Errorf("%w: upload succeeded without a url", services.ErrExternalTool)
	}
	return nil
}
