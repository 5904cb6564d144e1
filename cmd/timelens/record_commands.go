package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"timelens/internal/ipc"
)

func newRecordCommand(ctx *commandContext) *cobra.Command {
	recordCmd := &cobra.Command{
		Use:   "record",
		Short: "Control screen recording",
	}

	recordCmd.AddCommand(newRecordActionCommand(ctx, "start", "Start screen recording",
		func(client *ipc.Client) (*ipc.RecordResponse, error) { return client.RecordStart() }))
	recordCmd.AddCommand(newRecordActionCommand(ctx, "pause", "Pause recording, discarding the partial segment",
		func(client *ipc.Client) (*ipc.RecordResponse, error) { return client.RecordPause() }))
	recordCmd.AddCommand(newRecordActionCommand(ctx, "resume", "Resume recording on a fresh segment boundary",
		func(client *ipc.Client) (*ipc.RecordResponse, error) { return client.RecordResume() }))
	recordCmd.AddCommand(newRecordActionCommand(ctx, "stop", "Stop recording, flushing the partial segment",
		func(client *ipc.Client) (*ipc.RecordResponse, error) { return client.RecordStop() }))

	return recordCmd
}

func newRecordActionCommand(ctx *commandContext, use, short string, action func(*ipc.Client) (*ipc.RecordResponse, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := action(client)
				if err != nil {
					return err
				}
				if resp.Message != "" {
					return fmt.Errorf("%s", resp.Message)
				}
				fmt.Fprintf(out, "Recording %s\n", resp.State)
				return nil
			})
		},
	}
}
