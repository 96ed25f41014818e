package main

import (
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"vidpipe/internal/daemon"
	"vidpipe/internal/jobs"
	"vidpipe/internal/logging"
	"vidpipe/internal/pipeline"
	"vidpipe/internal/progress"
	"vidpipe/internal/server"
)

type runOptions struct {
	title       string
	description string
	platform    string
	visibility  string
	category    string
	tags        []string
	skip        []string
	voice       string
	quality     int
}

var optionalStages = []string{"subtitles", "analysis", "segmentation", "narration", "copyright"}

func (o runOptions) stages() (pipeline.Stages, error) {
	stages := pipeline.AllStages()
	for _, raw := range o.skip {
		name := strings.ToLower(strings.TrimSpace(raw))
		switch name {
		case "subtitles":
			stages.Subtitles = false
		case "analysis":
			stages.Analysis = false
		case "segmentation":
			stages.Segmentation = false
		case "narration":
			stages.Narration = false
		case "copyright":
			stages.Copyright = false
		case "":
		default:
			return stages, fmt.Errorf("unknown stage %q (optional stages: %s)", raw, strings.Join(optionalStages, ", "))
		}
	}
	return stages, nil
}

func (o runOptions) request(locator string) (server.JobRequest, error) {
	stages, err := o.stages()
	if err != nil {
		return server.JobRequest{}, err
	}
	title := strings.TrimSpace(o.title)
	if title == "" {
		base := filepath.Base(locator)
		title = strings.TrimSuffix(base, filepath.Ext(base))
	}
	req := server.JobRequest{Stages: &stages}
	req.Media.Locator = locator
	req.Media.Title = title
	req.Media.Description = o.description
	req.Upload.Platform = o.platform
	req.Upload.Visibility = o.visibility
	req.Upload.Category = o.category
	req.Upload.Tags = slices.Clone(o.tags)
	req.Voice.Voice = o.voice
	req.Edit.Quality = o.quality
	return req, nil
}

func (o *runOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.title, "title", "", "Upload title (defaults to the file name)")
	cmd.Flags().StringVar(&o.description, "description", "", "Upload description")
	cmd.Flags().StringVar(&o.platform, "platform", "youtube", "Destination platform")
	cmd.Flags().StringVar(&o.visibility, "visibility", "private", "Visibility: public, unlisted, or private")
	cmd.Flags().StringVar(&o.category, "category", "", "Platform category")
	cmd.Flags().StringSliceVar(&o.tags, "tag", nil, "Upload tag (repeatable)")
	cmd.Flags().StringSliceVar(&o.skip, "skip", nil, "Optional stage to skip (repeatable)")
	cmd.Flags().StringVar(&o.voice, "voice", "", "Narration voice")
	cmd.Flags().IntVar(&o.quality, "quality", 0, "Output quality 1-100 (defaults to editing.quality)")
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run <media>",
		Short: "Process one file locally without a daemon",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			locator, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			req, err := opts.request(locator)
			if err != nil {
				return err
			}

			// Console logs would tear the progress bar, so a local run logs to file.
			logger, err := logging.New(logging.Options{
				Level:       cfg.Logging.Level,
				Format:      "json",
				OutputPaths: []string{filepath.Join(cfg.Paths.LogDir, "vidpipe-run.log")},
			})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			rt, err := daemon.Build(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			rec, err := rt.Jobs.Start(req.Job())
			if err != nil {
				return err
			}
			updates, unsubscribe, err := rt.Jobs.Subscribe(rec.ID)
			if err != nil {
				return err
			}
			defer unsubscribe()

			out := cmd.OutOrStdout()
			reporter := newRunReporter(out, isTerminal(out))
			for {
				select {
				case <-cmd.Context().Done():
					_, _ = rt.Jobs.Cancel(rec.ID)
				case state, ok := <-updates:
					if !ok {
						reporter.finish()
						final, err := rt.Jobs.Wait(cmd.Context(), rec.ID)
						if err != nil {
							return err
						}
						return reportOutcome(out, final)
					}
					reporter.update(state)
					continue
				}
				// Cancellation requested; keep draining until the job closes its stream.
				for state := range updates {
					reporter.update(state)
				}
				reporter.finish()
				final, err := rt.Jobs.Get(rec.ID)
				if err != nil {
					return err
				}
				return reportOutcome(out, final)
			}
		},
	}
	opts.bind(cmd)
	return cmd
}

// runReporter draws a progress bar on terminals and plain lines otherwise.
type runReporter struct {
	out  io.Writer
	bar  *progressbar.ProgressBar
	last string
}

func newRunReporter(out io.Writer, tty bool) *runReporter {
	r := &runReporter{out: out}
	if tty {
		r.bar = progressbar.NewOptions(100,
			progressbar.OptionSetWriter(out),
			progressbar.OptionSetDescription("Pending"),
			progressbar.OptionSetWidth(30),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetPredictTime(false),
			progressbar.OptionEnableColorCodes(true),
		)
	}
	return r
}

func (r *runReporter) update(state progress.State) {
	label := fmt.Sprintf("%s (%s)", stageLabel(state.Stage), state.Status)
	if r.bar != nil {
		r.bar.Describe(label)
		_ = r.bar.Set(int(state.Progress))
		return
	}
	line := fmt.Sprintf("%-14s %-10s %s", stageLabel(state.Stage), state.Status, percent(state.Progress))
	if line == r.last {
		return
	}
	r.last = line
	fmt.Fprintln(r.out, line)
}

func (r *runReporter) finish() {
	if r.bar != nil {
		_ = r.bar.Finish()
		fmt.Fprintln(r.out)
	}
}

func reportOutcome(out io.Writer, rec jobs.Record) error {
	switch rec.Status {
	case progress.StatusCompleted:
		fmt.Fprintf(out, "Published: %s\n", rec.URL)
		return nil
	case progress.StatusCancelled:
		return fmt.Errorf("job %s cancelled at %s", rec.ID, stageLabel(rec.Stage))
	default:
		msg := fmt.Sprintf("job %s failed at %s: %s", rec.ID, stageLabel(rec.Stage), rec.Error)
		if len(rec.Issues) > 0 {
			msg += "\n  issues: " + strings.Join(rec.Issues, "; ")
		}
		if rec.Hint != "" {
			msg += "\n  hint: " + rec.Hint
		}
		return fmt.Errorf("%s", msg)
	}
}
