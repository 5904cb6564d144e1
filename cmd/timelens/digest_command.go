package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"timelens/internal/ipc"
)

func newDigestCommand(ctx *commandContext) *cobra.Command {
	digestCmd := &cobra.Command{
		Use:   "digest",
		Short: "Digest utilities",
	}

	testCmd := &cobra.Command{
		Use:   "test <period>",
		Short: "Send a digest immediately, bypassing the schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.DigestTest(args[0])
				if err != nil {
					return err
				}
				if !resp.Sent {
					return fmt.Errorf("digest test failed: %s", resp.Message)
				}
				fmt.Fprintf(out, "Test digest for %s sent\n", args[0])
				return nil
			})
		},
	}
	digestCmd.AddCommand(testCmd)
	return digestCmd
}
