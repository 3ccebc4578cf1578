package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/obz-ai/obz/pkg/client"
	"github.com/spf13/cobra"
)

func newUploadImageCmd(a *app) *cobra.Command {
	var metadata map[string]string

	cmd := &cobra.Command{
		Use:   "upload-image <file>",
		Short: "Upload an image to the configured project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			projectID, err := a.requireProject()
			if err != nil {
				return err
			}
			content, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read image: %w", err)
			}

			res, err := a.client.UploadImage(cmd.Context(), client.ImageUpload{
				ProjectID: projectID,
				Filename:  filepath.Base(args[0]),
				Content:   content,
				Metadata:  metadata,
			})
			if err != nil {
				return err
			}

			if a.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), res)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Uploaded %s as %s\n", filepath.Base(args[0]), res.ID)
			return nil
		},
	}

	cmd.Flags().StringToStringVar(&metadata, "meta", nil, "Image metadata as key=value pairs")
	return cmd
}
