package client

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"
)

// DefaultBaseURL is the hosted obz backend. Override with OBZ_BACKEND_URL,
// e.g. "http://127.0.0.1:8000/api" for a local backend.
const DefaultBaseURL = "https://obz-app-828364999243.europe-central2.run.app/api"

// Endpoint names understood by APIConfig.URL.
const (
	EndpointAuth              = "auth"
	EndpointInitProject       = "init_project"
	EndpointUploadImage       = "upload_image"
	EndpointCreateRefEntry    = "create_ref_entry"
	EndpointUploadRefFeatures = "upload_ref_features"
	EndpointLog               = "log"
)

// ErrUnknownEndpoint is returned by APIConfig.URL for names missing from Endpoints.
var ErrUnknownEndpoint = errors.New("unknown endpoint")

// APIConfig maps endpoint names to paths under a backend base URL.
type APIConfig struct {
	BaseURL   string            `yaml:"base_url" json:"base_url"`
	Endpoints map[string]string `yaml:"endpoints" json:"endpoints"`
}

// DefaultEndpoints returns the backend routes used by the client.
func DefaultEndpoints() map[string]string {
	return map[string]string{
		EndpointAuth:              "/python_client/auth/verify-api-token/",
		EndpointInitProject:       "/python_client/project/init-project/",
		EndpointUploadImage:       "/python_client/logs/upload_image/",
		EndpointCreateRefEntry:    "/python_client/ref_logs/create_ref_entry/",
		EndpointUploadRefFeatures: "/python_client/ref_logs/upload_ref_features/",
		EndpointLog:               "/python_client/logs/log/",
	}
}

// DefaultAPIConfig returns the default endpoints with the base URL taken
// from OBZ_BACKEND_URL, falling back to DefaultBaseURL.
func DefaultAPIConfig() APIConfig {
	base := os.Getenv("OBZ_BACKEND_URL")
	if base == "" {
		base = DefaultBaseURL
	}
	return APIConfig{
		BaseURL:   base,
		Endpoints: DefaultEndpoints(),
	}
}

// URL returns the absolute URL of the named endpoint.
func (c APIConfig) URL(name string) (string, error) {
	path, ok := c.Endpoints[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownEndpoint, name)
	}
	return strings.TrimSuffix(c.BaseURL, "/") + path, nil
}

// Names returns the configured endpoint names in sorted order.
func (c APIConfig) Names() []string {
	names := make([]string, 0, len(c.Endpoints))
	for name := range c.Endpoints {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BreakerConfig controls the circuit breaker in front of the backend.
type BreakerConfig struct {
	Enabled bool `yaml:"enabled"`

	// MaxRequests is the number of trial requests allowed while half-open.
	MaxRequests uint32 `yaml:"max_requests"`

	// Interval is the cyclic period at which counts are cleared while closed.
	Interval time.Duration `yaml:"interval"`

	// Timeout is how long the breaker stays open before going half-open.
	Timeout time.Duration `yaml:"timeout"`

	// MinRequests and FailureRatio decide when the breaker trips.
	MinRequests  uint32  `yaml:"min_requests"`
	FailureRatio float64 `yaml:"failure_ratio"`
}

// DefaultBreakerConfig returns the breaker settings used when none are given.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Enabled:      true,
		MaxRequests:  1,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		MinRequests:  3,
		FailureRatio: 0.6,
	}
}

// Config holds everything needed to build a Client.
type Config struct {
	API      APIConfig
	APIToken string
	Timeout  time.Duration
	Breaker  BreakerConfig

	// HTTPClient overrides the default http.Client (Timeout is then ignored).
	HTTPClient *http.Client

	// Logger receives request diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns a Config for the default backend with the token
// taken from OBZ_API_TOKEN.
func DefaultConfig() Config {
	return Config{
		API:      DefaultAPIConfig(),
		APIToken: os.Getenv("OBZ_API_TOKEN"),
		Timeout:  30 * time.Second,
		Breaker:  DefaultBreakerConfig(),
	}
}
