package cli

import (
	"fmt"

	"github.com/obz-ai/obz/internal/config"
	"github.com/obz-ai/obz/pkg/client"
	"github.com/spf13/cobra"
)

func newInitCmd(a *app) *cobra.Command {
	var name, description string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a project and write the workspace config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			project, err := a.client.InitProject(cmd.Context(), client.InitProjectRequest{
				Name:        name,
				Description: description,
			})
			if err != nil {
				return err
			}

			cfg := a.cfg
			cfg.ProjectID = project.ID
			cfg.ProjectName = project.Name
			if cfg.ProjectName == "" {
				cfg.ProjectName = name
			}
			path := a.configPath
			if path == "" {
				path = config.DefaultPath
			}
			if err := config.Save(path, cfg); err != nil {
				return err
			}
			a.logger.Info("[Init] Project initialized", "project_id", project.ID, "config", path)

			if a.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), project)
			}
			verb := "Opened"
			if project.Created {
				verb = "Created"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s project %s (%s), config written to %s\n", verb, cfg.ProjectName, project.ID, path)
			return nil
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "Project name")
	cmd.Flags().StringVar(&description, "description", "", "Project description")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}
