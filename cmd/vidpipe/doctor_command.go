package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"vidpipe/internal/preflight"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	var network bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check binaries, directories, and credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			results := preflight.RunAll(cmd.Context(), cfg, preflight.Options{Network: network})
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderPreflight(results, isTerminal(out)))
			if failed := preflight.Failed(results); len(failed) > 0 {
				return fmt.Errorf("%d required check(s) failed", len(failed))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&network, "network", false, "Also probe upload and narration endpoints")
	return cmd
}

func renderPreflight(results []preflight.Result, colorize bool) string {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		state := "ok"
		switch {
		case r.Passed:
		case r.Optional:
			state = "warn"
		default:
			state = "fail"
		}
		if colorize {
			switch state {
			case "ok":
				state = text.FgGreen.Sprint(state)
			case "warn":
				state = text.FgYellow.Sprint(state)
			default:
				state = text.FgRed.Sprint(state)
			}
		}
		rows = append(rows, []string{r.Name, state, r.Detail})
	}
	return renderTable([]string{"Check", "Status", "Detail"}, rows, nil)
}
