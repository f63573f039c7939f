package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/droidlink/droidlink/pkg/auth"
)

func init() {
	rootCmd.AddCommand(keygenCmd)
}

var keygenCmd = &cobra.Command{
	Use:   "keygen [path]",
	Short: "Generate a new authentication key pair",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ""
		if len(args) == 1 {
			path = args[0]
		} else {
			p, err := auth.DefaultKeyPath()
			if err != nil {
				return err
			}
			path = p
		}

		if _, err := auth.GenerateKey(path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s and %s.pub\n", path, path)
		return nil
	},
}
