package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newEndpointsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "endpoints",
		Short: "List the backend endpoints the client calls",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			api := a.client.API()
			urls := make(map[string]string, len(api.Endpoints))
			for _, name := range api.Names() {
				url, err := api.URL(name)
				if err != nil {
					return err
				}
				urls[name] = url
			}

			if a.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), urls)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, name := range api.Names() {
				fmt.Fprintf(tw, "%s\t%s\n", name, urls[name])
			}
			return tw.Flush()
		},
	}
}
