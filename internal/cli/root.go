// Package cli implements the obz command line.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/obz-ai/obz/internal/config"
	"github.com/obz-ai/obz/pkg/client"
	"github.com/obz-ai/obz/pkg/logging"
	"github.com/spf13/cobra"
)

var (
	Version     = "0.1.0"
	BuildCommit = "unknown"
	BuildDate   = "unknown"
)

// app is the state shared by all subcommands of one invocation.
type app struct {
	configPath string
	jsonOutput bool
	verbose    bool

	cfg    config.Config
	logs   *logging.Registry
	logger *slog.Logger
	client *client.Client
}

// Execute runs the obz command line until ctx is cancelled.
func Execute(ctx context.Context) error {
	cmd, a := newRootCmd()
	defer a.close()
	return cmd.ExecuteContext(ctx)
}

// newRootCmd builds the command tree. Each call returns an independent tree.
func newRootCmd() (*cobra.Command, *app) {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "obz",
		Short: "obz - monitoring client for computer vision models",
		Long: `obz sends project, reference and inference data from training and
inference jobs to the obz backend, and projects embeddings to 2-D
for drift inspection.`,
		Version:           fmt.Sprintf("%s (%s, %s)", Version, BuildCommit, BuildDate),
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", config.DefaultPath, "Path to the workspace config file")
	rootCmd.PersistentFlags().BoolVar(&a.jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(
		newEndpointsCmd(a),
		newVerifyCmd(a),
		newInitCmd(a),
		newProjectCmd(a),
		newLogCmd(a),
		newUploadImageCmd(a),
	)
	return rootCmd, a
}

// close releases the log files. Safe to call more than once.
func (a *app) close() error {
	if a.logs == nil {
		return nil
	}
	return a.logs.Close()
}

// setup loads .env and the workspace config, configures logging and builds the client.
func (a *app) setup(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	logCfg := logging.DefaultConfig(cfg.LogDir)
	logCfg.Console = cmd.ErrOrStderr()
	if a.verbose {
		logCfg.Root.Level = "DEBUG"
		for name, lc := range logCfg.Loggers {
			lc.Level = "DEBUG"
			logCfg.Loggers[name] = lc
		}
	}
	logs, err := logging.Setup(logCfg)
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Failed to configure logging: %v\n", err)
		a.logger = logging.Fallback()
		slog.SetDefault(a.logger)
	} else {
		a.logs = logs
		a.logger = logs.Root()
		slog.SetDefault(a.logger)
	}

	clientCfg := cfg.ClientConfig()
	clientCfg.Logger = a.named(logging.LoggerClient)
	a.client = client.New(clientCfg)
	return nil
}

// named returns a component logger, or the fallback logger when setup failed.
func (a *app) named(name string) *slog.Logger {
	if a.logs == nil {
		return a.logger
	}
	return a.logs.Logger(name)
}

func (a *app) requireProject() (string, error) {
	if a.cfg.ProjectID == "" {
		return "", fmt.Errorf("no project configured: run 'obz init --name <project>' first")
	}
	return a.cfg.ProjectID, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
