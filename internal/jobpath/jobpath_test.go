package jobpath

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHash_Deterministic(t *testing.T) {
	h1 := Hash("/a/b.mkv", "out.mkv")
	h2 := Hash("/a/b.mkv", "out.mkv")
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 16)
}

func TestHash_DistinctInputs(t *testing.T) {
	h1 := Hash("/a/b.mkv", "out.mkv")
	h2 := Hash("/a/c.mkv", "out.mkv")
	assert.NotEqual(t, h1, h2)
}

func TestNew_Layout(t *testing.T) {
	l := New("/tmp/base", "/a/b.mkv", "out.mkv")
	assert.Equal(t, Hash("/a/b.mkv", "out.mkv"), l.Hash)
	assert.Contains(t, l.JobDir, "ferris_swarm_jobs")
	assert.Contains(t, l.SegmentsDir, "segments")
	assert.Contains(t, l.EncodedChunksDir, "encoded_chunks")
}

func TestCreateAndCleanup(t *testing.T) {
	dir := t.TempDir()
	l := New(dir, "/a/b.mkv", "out.mkv")

	require.NoError(t, l.Create())
	assert.DirExists(t, l.SegmentsDir)
	assert.DirExists(t, l.EncodedChunksDir)

	require.NoError(t, l.Cleanup())
	assert.NoDirExists(t, l.JobDir)
}

func TestEncodedChunkPath(t *testing.T) {
	l := New("/tmp/base", "/a/b.mkv", "out.mkv")
	assert.Equal(t, l.EncodedChunksDir+"/encoded_chunk_3.mkv", l.EncodedChunkPath(3))
}
