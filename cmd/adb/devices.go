package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

var devicesLong bool

func init() {
	rootCmd.AddCommand(devicesCmd)
	devicesCmd.Flags().BoolVarP(&devicesLong, "long", "l", false, "include device annotations")
}

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List devices known to the host server",
	Args:  exactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		rows, err := serverClient().Devices(cmd.Context(), devicesLong)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "List of devices attached")
		for _, row := range rows {
			line := row.Serial + "\t" + row.State
			if devicesLong && len(row.Properties) > 0 {
				keys := make([]string, 0, len(row.Properties))
				for k := range row.Properties {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				parts := make([]string, 0, len(keys))
				for _, k := range keys {
					parts = append(parts, k+":"+row.Properties[k])
				}
				line += " " + strings.Join(parts, " ")
			}
			fmt.Fprintln(out, line)
		}
		return nil
	},
}

var serverVersionCmd = &cobra.Command{
	Use:   "server-version",
	Short: "Print the host server's internal version",
	Args:  exactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := serverClient().Version(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d\n", v)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serverVersionCmd)
}
