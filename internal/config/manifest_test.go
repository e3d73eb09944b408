package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeManifest(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadManifestJSON(t *testing.T) {
	path := writeManifest(t, "harbor.json", `{
		"name": "dev fleet",
		"mcpServers": {
			"weather": {
				"command": "weather-server",
				"args": ["--fast"],
				"env": {"REGION": "eu-north"},
				"secretRefs": {"API_KEY": "env:WEATHER_TOKEN"},
				"excludeComponents": ["internal_debug"],
				"roots": ["file:///data"],
				"weight": 10
			},
			"planner": {
				"url": "http://127.0.0.1:9100/sse",
				"lazy": true,
				"declaredTools": ["plan"]
			}
		}
	}`)

	manifest, err := LoadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, "dev fleet", manifest.Name)

	descriptors := manifest.Descriptors()
	require.Len(t, descriptors, 2)

	// Sorted by ID.
	assert.Equal(t, "planner", descriptors[0].ID)
	assert.Equal(t, "weather", descriptors[1].ID)

	weather := descriptors[1]
	assert.Equal(t, "weather-server", weather.Command)
	assert.Equal(t, []string{"--fast"}, weather.Args)
	assert.Equal(t, "env:WEATHER_TOKEN", weather.SecretRefs["API_KEY"])
	assert.Equal(t, []string{"internal_debug"}, weather.ExcludeComponents)
	assert.Equal(t, 10, weather.Weight)

	planner := descriptors[0]
	assert.True(t, planner.Lazy)
	assert.Equal(t, []string{"plan"}, planner.DeclaredTools)
}

func TestLoadManifestYAML(t *testing.T) {
	path := writeManifest(t, "harbor.yaml", `
name: yaml fleet
mcpServers:
  files:
    command: file-server
    roots:
      - file:///workspace
    timeoutSeconds: 10
`)

	manifest, err := LoadManifest(path)
	require.NoError(t, err)

	descriptors := manifest.Descriptors()
	require.Len(t, descriptors, 1)
	assert.Equal(t, "files", descriptors[0].ID)
	require.NotNil(t, descriptors[0].TimeoutSeconds)
	assert.Equal(t, int64(10), *descriptors[0].TimeoutSeconds)
}

func TestLoadManifestErrors(t *testing.T) {
	_, err := LoadManifest(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	empty := writeManifest(t, "empty.json", `{"mcpServers": {}}`)
	_, err = LoadManifest(empty)
	assert.ErrorContains(t, err, "declares no servers")

	malformed := writeManifest(t, "bad.json", `{`)
	_, err = LoadManifest(malformed)
	assert.ErrorContains(t, err, "failed to parse")
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "harbor.json", cfg.ManifestPath)
	assert.Equal(t, 30, cfg.HandshakeTimeout)
	assert.Nil(t, cfg.EncryptionKey)

	t.Setenv("HARBOR_ENCRYPTION_KEY", "not hex")
	_, err = Load()
	assert.Error(t, err)
}
