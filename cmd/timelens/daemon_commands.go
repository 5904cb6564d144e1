package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"timelens/internal/ipc"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "Daemon management",
	}
	daemonCmd.AddCommand(newDaemonStatusCommand(ctx))
	return daemonCmd
}

func newDaemonStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			return ctx.withClient(func(client *ipc.Client) error {
				status, err := client.Status()
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Running:      %s\n", yesNo(status.Running))
				fmt.Fprintf(out, "Capture:      %s\n", status.Capture)
				if status.CaptureError != "" {
					fmt.Fprintf(out, "Capture err:  %s\n", status.CaptureError)
				}
				fmt.Fprintf(out, "PID:          %d\n", status.PID)
				fmt.Fprintf(out, "Database:     %s\n", status.DatabasePath)
				fmt.Fprintf(out, "Lock:         %s\n", status.LockPath)

				keys := make([]string, 0, len(status.Stats))
				for key := range status.Stats {
					keys = append(keys, key)
				}
				sort.Strings(keys)
				for _, key := range keys {
					fmt.Fprintf(out, "%-20s %d\n", key+":", status.Stats[key])
				}
				return nil
			})
		},
	}
}
