package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/obz-ai/obz/pkg/client"
	"github.com/spf13/cobra"
)

func newLogCmd(a *app) *cobra.Command {
	var (
		name       string
		step       int
		metricArgs []string
		params     map[string]string
	)

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Send metrics and parameters for the configured project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			projectID, err := a.requireProject()
			if err != nil {
				return err
			}
			metrics, err := parseMetrics(metricArgs)
			if err != nil {
				return err
			}
			if len(metrics) == 0 && len(params) == 0 {
				return fmt.Errorf("nothing to log: pass --metric and/or --param")
			}

			id, err := a.client.Log(cmd.Context(), client.LogEntry{
				ProjectID: projectID,
				Name:      name,
				Step:      step,
				Metrics:   metrics,
				Params:    params,
			})
			if err != nil {
				return err
			}

			if a.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), map[string]string{"id": id})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged entry %s\n", id)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Name of the run or stage")
	cmd.Flags().IntVar(&step, "step", 0, "Training step or epoch")
	cmd.Flags().StringArrayVarP(&metricArgs, "metric", "m", nil, "Metric as key=value (repeatable)")
	cmd.Flags().StringToStringVar(&params, "param", nil, "Parameters as key=value pairs")
	return cmd
}

func parseMetrics(args []string) (map[string]float64, error) {
	metrics := make(map[string]float64, len(args))
	for _, arg := range args {
		key, raw, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid metric %q: expected key=value", arg)
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid metric %q: %w", arg, err)
		}
		metrics[key] = v
	}
	return metrics, nil
}
