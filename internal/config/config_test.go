package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/obz-ai/obz/pkg/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("OBZ_BACKEND_URL", "")
	t.Setenv("OBZ_API_TOKEN", "")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.Equal(t, client.DefaultBaseURL, cfg.BackendURL)
	assert.Equal(t, 2, cfg.Projector.PCAComponents)
}

func TestLoadMissingDefaultPath(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load(DefaultPath)
	require.NoError(t, err)
	assert.Equal(t, Dir, cfg.LogDir)

	_, err = Load("does-not-exist.yaml")
	assert.Error(t, err)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
backend_url: http://127.0.0.1:8000/api
timeout: 5s
project_id: p-7
projector:
  pca_components: 3
  umap_components: 2
breaker:
  enabled: false
`), 0o644))

	t.Setenv("OBZ_BACKEND_URL", "")
	t.Setenv("OBZ_API_TOKEN", "secret")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:8000/api", cfg.BackendURL)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, "p-7", cfg.ProjectID)
	assert.Equal(t, 3, cfg.Projector.PCAComponents)
	assert.False(t, cfg.Breaker.Enabled)
	assert.Equal(t, "secret", cfg.APIToken)

	t.Setenv("OBZ_BACKEND_URL", "http://override/api")
	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://override/api", cfg.BackendURL)

	cc := cfg.ClientConfig()
	url, err := cc.API.URL(client.EndpointAuth)
	require.NoError(t, err)
	assert.Equal(t, "http://override/api/python_client/auth/verify-api-token/", url)
	assert.Equal(t, "secret", cc.APIToken)
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backend: nope\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsInvalidComponents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("projector:\n  pca_components: 0\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveOmitsToken(t *testing.T) {
	t.Setenv("OBZ_BACKEND_URL", "")
	t.Setenv("OBZ_API_TOKEN", "")
	path := filepath.Join(t.TempDir(), Dir, "config.yaml")

	cfg := DefaultConfig()
	cfg.APIToken = "secret"
	cfg.ProjectID = "p-1"
	cfg.ProjectName = "mnist"
	require.NoError(t, Save(path, cfg))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "secret")

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "p-1", loaded.ProjectID)
	assert.Equal(t, "mnist", loaded.ProjectName)
	assert.Empty(t, loaded.APIToken)
}
