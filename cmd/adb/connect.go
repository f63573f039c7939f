package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(disconnectCmd)
}

var connectCmd = &cobra.Command{
	Use:   "connect host:port",
	Short: "Ask the host server to connect to a TCP device",
	Args:  exactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := serverClient().Connect(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "connected to %s\n", args[0])
		return nil
	},
}

var disconnectCmd = &cobra.Command{
	Use:   "disconnect host:port",
	Short: "Ask the host server to drop a TCP device",
	Args:  exactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := serverClient().Disconnect(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "disconnected %s\n", args[0])
		return nil
	},
}
