package pipeline

import (
	"errors"
	"strings"
	"testing"

	"vidpipe/internal/config"
	"vidpipe/internal/services"
	"vidpipe/internal/services/upload"
)

func TestJobNormalizeFillsUploadMetadata(t *testing.T) {
	job := Job{
		Media:  Media{Locator: " /media/a.mp4 ", Title: "<b>Title</b>", Description: "About"},
		Upload: upload.Options{Platform: "YouTube"},
	}.Normalize()

	if job.Media.Locator != "/media/a.mp4" {
		t.Fatalf("locator not trimmed: %q", job.Media.Locator)
	}
	if job.Upload.Title != "Title" || job.Upload.Description != "About" {
		t.Fatalf("unexpected upload metadata %+v", job.Upload)
	}
	if job.Upload.Platform != "youtube" || job.Upload.Visibility != upload.VisibilityPrivate {
		t.Fatalf("unexpected upload defaults %+v", job.Upload)
	}
}

func TestJobValidate(t *testing.T) {
	limits := upload.LimitsFromConfig(config.Upload{Platforms: config.DefaultPlatforms()})
	valid := Job{
		Media:  Media{Locator: "/media/a.mp4"},
		Upload: upload.Options{Platform: "youtube", Title: "ok", Visibility: upload.VisibilityPublic},
	}
	if err := valid.Validate(limits); err != nil {
		t.Fatalf("expected valid job, got %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Job)
		want   string
	}{
		{"missing locator", func(j *Job) { j.Media.Locator = "" }, "media locator is required"},
		{"unknown platform", func(j *Job) { j.Upload.Platform = "myspace" }, "unsupported platform"},
		{"bad visibility", func(j *Job) { j.Upload.Visibility = "friends" }, "visibility must be one of"},
		{"title too long", func(j *Job) { j.Upload.Title = strings.Repeat("t", 101) }, "title exceeds"},
		{"bad quality", func(j *Job) { j.Edit.Quality = 120 }, "edit quality"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := valid
			tt.mutate(&job)
			err := job.Validate(limits)
			if !errors.Is(err, services.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			var verr *ValidationError
			if !errors.As(err, &verr) || !strings.Contains(strings.Join(verr.Problems, ";"), tt.want) {
				t.Fatalf("expected problem %q, got %v", tt.want, err)
			}
		})
	}
}
