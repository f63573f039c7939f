package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(shellCmd)
	rootCmd.AddCommand(tcpipCmd)
}

var shellCmd = &cobra.Command{
	Use:   "shell command [arg...]",
	Short: "Run a shell command on the device",
	Args:  minimumArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := dialDevice(cmd.Context())
		if err != nil {
			return err
		}
		defer client.Close()

		out, err := client.RunShell(cmd.Context(), strings.Join(args, " "))
		if len(out) > 0 {
			cmd.OutOrStdout().Write(out)
		}
		return err
	},
}

var tcpipCmd = &cobra.Command{
	Use:   "tcpip port",
	Short: "Restart the device daemon listening on TCP",
	Args:  exactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		port, err := strconv.Atoi(args[0])
		if err != nil || port < 1 || port > 65535 {
			return usageError{fmt.Errorf("invalid port %q", args[0])}
		}

		client, err := dialDevice(cmd.Context())
		if err != nil {
			return err
		}
		defer client.Close()

		reply, err := client.TCPIP(cmd.Context(), port)
		if reply != "" {
			fmt.Fprintln(cmd.OutOrStdout(), reply)
		}
		return err
	},
}
