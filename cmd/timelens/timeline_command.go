package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"timelens/internal/ipc"
)

func newTimelineCommand(ctx *commandContext) *cobra.Command {
	var dateFlag string
	var fromFlag string
	var toFlag string

	cmd := &cobra.Command{
		Use:   "timeline",
		Short: "Show the activity timeline for a window (default: today)",
		RunE: func(cmd *cobra.Command, args []string) error {
			from, to, err := resolveTimelineWindow(dateFlag, fromFlag, toFlag)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Timeline(from, to)
				if err != nil {
					return err
				}
				if len(resp.Cards) == 0 {
					fmt.Fprintln(out, "No activity in the selected window")
					return nil
				}

				rows := make([][]string, 0, len(resp.Cards))
				for _, card := range resp.Cards {
					rows = append(rows, []string{
						card.StartTime.Local().Format("15:04"),
						card.EndTime.Local().Format("15:04"),
						card.Category,
						card.Title,
						formatAppSites(card.AppSites),
						fmt.Sprintf("%d", card.ProductivityScore),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Start", "End", "Category", "Title", "Apps/Sites", "Score"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
				))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&dateFlag, "date", "", "Day to show (YYYY-MM-DD)")
	cmd.Flags().StringVar(&fromFlag, "from", "", "Window start (RFC3339)")
	cmd.Flags().StringVar(&toFlag, "to", "", "Window end (RFC3339)")
	return cmd
}

// resolveTimelineWindow turns the --date or --from/--to flags into a concrete
// window. With no flags the window is the current local day.
func resolveTimelineWindow(date, from, to string) (time.Time, time.Time, error) {
	date = strings.TrimSpace(date)
	from = strings.TrimSpace(from)
	to = strings.TrimSpace(to)

	if date != "" && (from != "" || to != "") {
		return time.Time{}, time.Time{}, fmt.Errorf("--date cannot be combined with --from/--to")
	}

	if from != "" || to != "" {
		if from == "" || to == "" {
			return time.Time{}, time.Time{}, fmt.Errorf("--from and --to must be given together")
		}
		start, err := time.Parse(time.RFC3339, from)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("parse --from: %w", err)
		}
		end, err := time.Parse(time.RFC3339, to)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("parse --to: %w", err)
		}
		if !end.After(start) {
			return time.Time{}, time.Time{}, fmt.Errorf("--to must be after --from")
		}
		return start, end, nil
	}

	day := time.Now()
	if date != "" {
		parsed, err := time.ParseInLocation("2006-01-02", date, time.Local)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("parse --date: %w", err)
		}
		day = parsed
	}
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.Local)
	return start, start.AddDate(0, 0, 1), nil
}

func formatAppSites(sites []ipc.AppSite) string {
	if len(sites) == 0 {
		return ""
	}
	names := make([]string, 0, len(sites))
	for _, site := range sites {
		names = append(names, site.Name)
		if len(names) == 3 {
			break
		}
	}
	label := strings.Join(names, ", ")
	if len(sites) > 3 {
		label += fmt.Sprintf(" (+%d)", len(sites)-3)
	}
	return label
}
