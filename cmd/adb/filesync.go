package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(pushCmd)
	rootCmd.AddCommand(pullCmd)
	rootCmd.AddCommand(lsCmd)
}

var pushCmd = &cobra.Command{
	Use:   "push local remote",
	Short: "Copy a local file to the device",
	Args:  exactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := dialDevice(cmd.Context())
		if err != nil {
			return err
		}
		defer client.Close()

		if err := client.Push(cmd.Context(), args[0], args[1]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", args[0], args[1])
		return nil
	},
}

var pullCmd = &cobra.Command{
	Use:   "pull remote local",
	Short: "Copy a device file to the local machine",
	Args:  exactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := dialDevice(cmd.Context())
		if err != nil {
			return err
		}
		defer client.Close()

		if err := client.Pull(cmd.Context(), args[0], args[1]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", args[0], args[1])
		return nil
	},
}

var lsCmd = &cobra.Command{
	Use:   "ls remote-dir",
	Short: "List a device directory",
	Args:  exactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := dialDevice(cmd.Context())
		if err != nil {
			return err
		}
		defer client.Close()

		entries, err := client.List(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		for _, e := range entries {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %10d %s %s\n",
				e.Mode, e.Size, e.MTime.Format("2006-01-02 15:04"), e.Name)
		}
		return nil
	},
}
