package settingsfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	settings, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, "ffmpeg", settings.Processing.Concatenator)
	assert.Equal(t, 30.0, settings.Client.SegmentDuration)
}

func TestLoad_OverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.toml")
	contents := `
[client]
nodes = ["http://a:1", "http://b:2"]
slots = [2, 1]
segment_duration = 45.5

[processing]
concatenator = "MKVMERGE"
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))

	settings, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"http://a:1", "http://b:2"}, settings.Client.Nodes)
	assert.Equal(t, []int{2, 1}, settings.Client.Slots)
	assert.Equal(t, 45.5, settings.Client.SegmentDuration)
	assert.Equal(t, "mkvmerge", settings.Processing.Concatenator)
}

func TestLoadManifest_MissingFileHasNoNodes(t *testing.T) {
	manifest, err := LoadManifest(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Empty(t, manifest.Nodes)
	assert.True(t, manifest.Constellation.AutoRegister)
}

func TestLoadManifest_ParsesNodes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nodes.toml")
	contents := `
[constellation]
url = "http://localhost:3030"
auto_register = true

[[nodes]]
name = "node-1"
address = "http://10.0.0.5:50051"
enabled = true
tags = { zone = "rack-a" }

[nodes.capabilities]
max_concurrent_chunks = 4
supported_encoders = ["libx264"]
cpu_cores = 8
memory_gb = 16.0
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))

	manifest, err := LoadManifest(path)
	require.NoError(t, err)
	require.Len(t, manifest.Nodes, 1)
	assert.Equal(t, "node-1", manifest.Nodes[0].Name)
	assert.Equal(t, "rack-a", manifest.Nodes[0].Tags["zone"])
	assert.Equal(t, 4, manifest.Nodes[0].Capabilities.MaxConcurrentChunks)
}
