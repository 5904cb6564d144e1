package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"timelens/internal/ipc"
)

func newBatchesCommand(ctx *commandContext) *cobra.Command {
	var statusFlags []string

	cmd := &cobra.Command{
		Use:   "batches",
		Short: "List analysis batches",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Batches(statusFlags)
				if err != nil {
					return err
				}
				if len(resp.Batches) == 0 {
					fmt.Fprintln(out, "No batches")
					return nil
				}

				rows := make([][]string, 0, len(resp.Batches))
				for _, batch := range resp.Batches {
					detail := batch.ErrorMessage
					if len(detail) > 60 {
						detail = detail[:57] + "..."
					}
					rows = append(rows, []string{
						fmt.Sprintf("%d", batch.ID),
						batch.SpanStart.Local().Format("2006-01-02 15:04"),
						formatSpan(batch.SpanEnd.Sub(batch.SpanStart)),
						batch.Status,
						detail,
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"ID", "Span start", "Length", "Status", "Detail"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVar(&statusFlags, "status", nil, "Filter by status (processing, completed, failed)")
	return cmd
}

func formatSpan(d time.Duration) string {
	minutes := int(d.Minutes())
	if minutes < 60 {
		return fmt.Sprintf("%dm", minutes)
	}
	return fmt.Sprintf("%dh%02dm", minutes/60, minutes%60)
}
