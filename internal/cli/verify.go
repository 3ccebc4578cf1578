package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newVerifyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Verify the API token (OBZ_API_TOKEN) with the backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := a.client.VerifyAPIToken(cmd.Context())
			if err != nil {
				return err
			}
			if a.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), info)
			}
			if info.UserID != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "API token is valid (user %s)\n", info.UserID)
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "API token is valid")
			}
			return nil
		},
	}
}
