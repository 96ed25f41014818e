package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"vidpipe/internal/provider"
	"vidpipe/internal/server"
)

func newBackendsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backends",
		Short: "Show language-model backend health and usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			statuses, err := client.Backends(cmd.Context())
			if err != nil {
				return wrapAPIError(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderBackendTable(statuses))
			return nil
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "reset <id>",
		Short: "Mark a backend available again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			status, err := client.ResetBackend(cmd.Context(), args[0])
			if err != nil {
				return wrapAPIError(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Backend %s available: %s\n", status.ID, yesNo(status.Available))
			return nil
		},
	})
	return cmd
}

func renderBackendTable(statuses []provider.BackendStatus) string {
	rows := make([][]string, 0, len(statuses))
	for _, s := range statuses {
		health := "up"
		if !s.Available {
			health = "down " + ago(s.FailedAt)
		}
		rows = append(rows, []string{
			s.ID,
			s.Kind,
			s.Model,
			strconv.Itoa(s.Priority),
			health,
			tokens(s.DailyUsed),
			tokens(s.MonthlyUsed),
			yesNo(s.WithinBudget),
		})
	}
	return renderTable(
		[]string{"ID", "Kind", "Model", "Priority", "Health", "Today", "Month", "Budget"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignRight, alignRight, alignLeft},
	)
}

func newQuotaCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "quota",
		Short: "Show token usage against the daily and monthly budgets",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			view, err := client.Quota(cmd.Context())
			if err != nil {
				return wrapAPIError(err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Daily limit:   %s tokens (since %s)\n", tokens(view.DailyLimit), view.DayStart.Format("2006-01-02"))
			fmt.Fprintf(out, "Monthly limit: %s tokens (window from %s, resets on day %d)\n",
				tokens(view.MonthlyLimit), view.WindowStart.Format("2006-01-02"), view.ResetDay)
			if len(view.Backends) == 0 {
				return nil
			}
			fmt.Fprintln(out, renderQuotaTable(view))
			return nil
		},
	}
}

func renderQuotaTable(view server.QuotaView) string {
	rows := make([][]string, 0, len(view.Backends))
	for _, b := range view.Backends {
		rows = append(rows, []string{
			b.ID,
			tokens(b.DailyUsed),
			share(b.DailyUsed, view.DailyLimit),
			tokens(b.MonthlyUsed),
			share(b.MonthlyUsed, view.MonthlyLimit),
			yesNo(b.WithinBudget),
		})
	}
	return renderTable(
		[]string{"Backend", "Today", "%", "Month", "%", "Budget"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight, alignLeft},
	)
}

func share(used, limit int64) string {
	if limit <= 0 {
		return "-"
	}
	return percent(float64(used) / float64(limit) * 100)
}
