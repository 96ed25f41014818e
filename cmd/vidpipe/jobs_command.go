package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"vidpipe/internal/jobs"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Submit and inspect jobs on a running daemon",
	}
	cmd.AddCommand(newJobsListCommand(ctx))
	cmd.AddCommand(newJobsShowCommand(ctx))
	cmd.AddCommand(newJobsSubmitCommand(ctx))
	cmd.AddCommand(newJobsCancelCommand(ctx))
	return cmd
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	var (
		status string
		limit  int
	)
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List jobs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			records, err := client.ListJobs(cmd.Context(), status, limit)
			if err != nil {
				return wrapAPIError(err)
			}
			out := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintln(out, "No jobs")
				return nil
			}
			fmt.Fprintln(out, renderJobTable(records, isTerminal(out)))
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Only show jobs with this status")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of jobs to show")
	return cmd
}

func renderJobTable(records []jobs.Record, colorize bool) string {
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		title := rec.Title
		if title == "" {
			title = filepath.Base(rec.Locator)
		}
		rows = append(rows, []string{
			shortID(rec.ID),
			title,
			statusLabel(rec.Status, colorize),
			stageLabel(rec.Stage),
			percent(rec.Progress),
			ago(rec.CreatedAt),
		})
	}
	return renderTable(
		[]string{"ID", "Title", "Status", "Stage", "Progress", "Created"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func newJobsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			rec, err := client.GetJob(cmd.Context(), args[0])
			if err != nil {
				return wrapAPIError(err)
			}
			out := cmd.OutOrStdout()
			printJob(out, rec, isTerminal(out))
			return nil
		},
	}
}

func printJob(out io.Writer, rec jobs.Record, colorize bool) {
	fmt.Fprintf(out, "ID:        %s\n", rec.ID)
	fmt.Fprintf(out, "Title:     %s\n", orDash(rec.Title))
	fmt.Fprintf(out, "Media:     %s\n", rec.Locator)
	fmt.Fprintf(out, "Platform:  %s\n", orDash(rec.Platform))
	fmt.Fprintf(out, "Status:    %s\n", statusLabel(rec.Status, colorize))
	fmt.Fprintf(out, "Stage:     %s (%s)\n", stageLabel(rec.Stage), percent(rec.Progress))
	fmt.Fprintf(out, "Created:   %s\n", ago(rec.CreatedAt))
	if !rec.FinishedAt.IsZero() {
		fmt.Fprintf(out, "Finished:  %s\n", ago(rec.FinishedAt))
	}
	if rec.URL != "" {
		fmt.Fprintf(out, "URL:       %s\n", rec.URL)
	}
	if rec.Error != "" {
		fmt.Fprintf(out, "Error:     %s\n", rec.Error)
		fmt.Fprintf(out, "Kind:      %s\n", orDash(rec.ErrorKind))
	}
	for _, issue := range rec.Issues {
		fmt.Fprintf(out, "  - %s\n", issue)
	}
	if rec.Hint != "" {
		fmt.Fprintf(out, "Hint:      %s\n", rec.Hint)
	}
}

func newJobsSubmitCommand(ctx *commandContext) *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "submit <media>",
		Short: "Queue a file on the daemon",
		Long: "Queue a file on the daemon. The path is resolved on the daemon's host, " +
			"so it must be visible there.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			locator := strings.TrimSpace(args[0])
			if abs, err := filepath.Abs(locator); err == nil {
				locator = abs
			}
			req, err := opts.request(locator)
			if err != nil {
				return err
			}
			created, err := client.Submit(cmd.Context(), req)
			if err != nil {
				return wrapAPIError(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Queued job %s (%s)\n", created.ID, created.Status)
			return nil
		},
	}
	opts.bind(cmd)
	return cmd
}

func newJobsCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			rec, err := client.CancelJob(cmd.Context(), args[0])
			if err != nil {
				return wrapAPIError(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cancellation requested for %s (%s at %s)\n",
				rec.ID, rec.Status, stageLabel(rec.Stage))
			return nil
		},
	}
}
