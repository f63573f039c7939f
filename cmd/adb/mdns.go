package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/droidlink/droidlink/pkg/discovery"
)

var mdnsTimeout time.Duration

func init() {
	rootCmd.AddCommand(mdnsCmd)
	mdnsCmd.Flags().DurationVar(&mdnsTimeout, "timeout", discovery.DefaultBrowseTimeout, "browse duration")
}

var mdnsCmd = &cobra.Command{
	Use:   "mdns",
	Short: "Browse the local network for device services",
	Args:  exactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		resolver, err := discovery.NewResolver(discovery.ResolverConfig{
			BrowseTimeout: mdnsTimeout,
			LoggerFactory: loggerFactory(),
		})
		if err != nil {
			return err
		}

		services, err := resolver.BrowseAll(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for svc := range services {
			target := svc.ConnectTarget()
			if target == "" {
				target = "-"
			}
			fmt.Fprintf(out, "%s\t%s\t%s\n",
				svc.InstanceName, svc.ServiceType.ServiceString(), target)
			if name := svc.Text["name"]; name != "" {
				fmt.Fprintf(out, "\tname=%s\n", name)
			}
		}
		return nil
	},
}
