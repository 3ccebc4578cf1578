// Package config loads the obz workspace configuration (.obz/config.yaml).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/obz-ai/obz/pkg/client"
	"github.com/obz-ai/obz/pkg/projector"
	"gopkg.in/yaml.v3"
)

// Dir is the per-workspace state directory. It also holds the log files.
const Dir = ".obz"

// DefaultPath is where `obz init` writes the configuration.
var DefaultPath = filepath.Join(Dir, "config.yaml")

// Config is the workspace configuration.
type Config struct {
	BackendURL string        `yaml:"backend_url"`
	APIToken   string        `yaml:"api_token,omitempty"`
	Timeout    time.Duration `yaml:"timeout"`

	ProjectID   string `yaml:"project_id,omitempty"`
	ProjectName string `yaml:"project_name,omitempty"`

	LogDir string `yaml:"log_dir"`

	Projector ProjectorConfig      `yaml:"projector"`
	Breaker   client.BreakerConfig `yaml:"breaker"`
}

// ProjectorConfig sets the output dimensionality of the two reducers.
type ProjectorConfig struct {
	PCAComponents  int `yaml:"pca_components"`
	UMAPComponents int `yaml:"umap_components"`
}

// DefaultConfig returns a configuration for the hosted backend.
func DefaultConfig() Config {
	return Config{
		BackendURL: client.DefaultBaseURL,
		Timeout:    30 * time.Second,
		LogDir:     Dir,
		Projector: ProjectorConfig{
			PCAComponents:  projector.DefaultComponents,
			UMAPComponents: projector.DefaultComponents,
		},
		Breaker: client.DefaultBreakerConfig(),
	}
}

// Load reads the YAML file at path on top of DefaultConfig, using strict
// parsing, then applies environment overrides (OBZ_BACKEND_URL,
// OBZ_API_TOKEN). An empty path, or a missing file at DefaultPath, yields
// the defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		file, err := os.Open(path)
		switch {
		case errors.Is(err, os.ErrNotExist) && path == DefaultPath:
		case err != nil:
			return cfg, fmt.Errorf("failed to open config: %w", err)
		default:
			defer file.Close()
			decoder := yaml.NewDecoder(file)
			decoder.KnownFields(true)
			if err := decoder.Decode(&cfg); err != nil {
				return cfg, fmt.Errorf("YAML syntax error in config: %w", err)
			}
		}
	}

	if v := os.Getenv("OBZ_BACKEND_URL"); v != "" {
		cfg.BackendURL = v
	}
	if v := os.Getenv("OBZ_API_TOKEN"); v != "" {
		cfg.APIToken = v
	}
	return cfg, cfg.Validate()
}

// Validate checks values that would otherwise fail later and less clearly.
func (c Config) Validate() error {
	if c.BackendURL == "" {
		return errors.New("backend_url must not be empty")
	}
	if c.Projector.PCAComponents <= 0 || c.Projector.UMAPComponents <= 0 {
		return fmt.Errorf("projector components must be positive, got pca=%d umap=%d",
			c.Projector.PCAComponents, c.Projector.UMAPComponents)
	}
	return nil
}

// Save writes cfg to path, creating parent directories. The API token is
// never written; it belongs in the environment or .env.
func Save(path string, cfg Config) error {
	cfg.APIToken = ""
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ClientConfig converts the workspace configuration into a client.Config.
func (c Config) ClientConfig() client.Config {
	api := client.APIConfig{BaseURL: c.BackendURL, Endpoints: client.DefaultEndpoints()}
	return client.Config{
		API:      api,
		APIToken: c.APIToken,
		Timeout:  c.Timeout,
		Breaker:  c.Breaker,
	}
}
