package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"vidpipe/internal/apiclient"
	"vidpipe/internal/logging"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var (
		lines     int
		follow    bool
		component string
		jobID     string
	)
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recent daemon log events",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			query := apiclient.LogQuery{
				Limit:     lines,
				Tail:      true,
				Component: component,
				JobID:     jobID,
			}
			for {
				resp, err := client.Logs(cmd.Context(), query)
				if err != nil {
					if cmd.Context().Err() != nil {
						return nil
					}
					return wrapAPIError(err)
				}
				for _, evt := range resp.Events {
					printLogEvent(out, evt)
				}
				if !follow {
					return nil
				}
				query.Since = resp.Next
				query.Tail = false
				query.Follow = true
			}
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of recent events to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep streaming new events")
	cmd.Flags().StringVar(&component, "component", "", "Only show events from this component")
	cmd.Flags().StringVar(&jobID, "job", "", "Only show events for this job")
	return cmd
}

func printLogEvent(out io.Writer, evt logging.LogEvent) {
	var b strings.Builder
	b.WriteString(evt.Timestamp.Local().Format("15:04:05"))
	b.WriteByte(' ')
	fmt.Fprintf(&b, "%-5s", strings.ToUpper(evt.Level))
	if evt.Component != "" {
		b.WriteString(" [" + evt.Component + "]")
	}
	if evt.JobID != "" {
		b.WriteString(" " + shortID(evt.JobID))
	}
	b.WriteString(" " + evt.Message)
	keys := make([]string, 0, len(evt.Fields))
	for k := range evt.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%s", k, evt.Fields[k])
	}
	fmt.Fprintln(out, b.String())
}
