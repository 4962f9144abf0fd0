package muxer

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

// installFakeTool puts a shell-script stand-in for binaryName on PATH
// that writes its last argument as the output file and exits 0.
func installFakeTool(t *testing.T, binaryName string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake tool script requires a POSIX shell")
	}

	dir := t.TempDir()
	script := `#!/bin/sh
out=""
for arg in "$@"; do
  out="$arg"
done
printf 'merged' > "$out"
exit 0
`
	path := filepath.Join(dir, binaryName)
	require.NoError(t, os.WriteFile(path, []byte(script), 0755))
	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))
}

func setupChunksAndSidecar(t *testing.T, n int) ([]string, string) {
	t.Helper()
	dir := t.TempDir()
	paths := make([]string, n)
	for i := 0; i < n; i++ {
		path := filepath.Join(dir, fmt.Sprintf("encoded_chunk_%d.mkv", i))
		require.NoError(t, os.WriteFile(path, []byte("chunk"), 0644))
		paths[i] = path
	}
	sidecar := filepath.Join(dir, "non_video_streams.mkv")
	require.NoError(t, os.WriteFile(sidecar, []byte("sidecar"), 0644))
	return paths, sidecar
}

func TestMux_ConcatBackend(t *testing.T) {
	installFakeTool(t, "ffmpeg")
	chunks, sidecar := setupChunksAndSidecar(t, 3)
	scratch := t.TempDir()
	output := filepath.Join(scratch, "out.mkv")

	err := Mux(BackendConcat, chunks, sidecar, output, scratch, 3)
	require.NoError(t, err)
	require.FileExists(t, output)
	require.NoFileExists(t, filepath.Join(scratch, "concat_manifest.txt"))
}

func TestMux_MergeBackend(t *testing.T) {
	installFakeTool(t, "mkvmerge")
	chunks, sidecar := setupChunksAndSidecar(t, 2)
	scratch := t.TempDir()
	output := filepath.Join(scratch, "out.mkv")

	err := Mux(BackendMerge, chunks, sidecar, output, scratch, 2)
	require.NoError(t, err)
	require.FileExists(t, output)
}

func TestMux_SegmentCountMismatchFailsFast(t *testing.T) {
	chunks, sidecar := setupChunksAndSidecar(t, 2)
	scratch := t.TempDir()

	err := Mux(BackendConcat, chunks, sidecar, filepath.Join(scratch, "out.mkv"), scratch, 3)
	require.Error(t, err)
	require.Contains(t, err.Error(), "segment count mismatch")
}

func TestMux_MissingSegmentFailsFast(t *testing.T) {
	chunks, sidecar := setupChunksAndSidecar(t, 2)
	require.NoError(t, os.Remove(chunks[0]))
	scratch := t.TempDir()

	err := Mux(BackendConcat, chunks, sidecar, filepath.Join(scratch, "out.mkv"), scratch, 2)
	require.Error(t, err)
}

func TestMux_MissingSidecarFailsFast(t *testing.T) {
	chunks, sidecar := setupChunksAndSidecar(t, 2)
	require.NoError(t, os.Remove(sidecar))
	scratch := t.TempDir()

	err := Mux(BackendConcat, chunks, sidecar, filepath.Join(scratch, "out.mkv"), scratch, 2)
	require.Error(t, err)
}

func TestMux_UnknownBackend(t *testing.T) {
	chunks, sidecar := setupChunksAndSidecar(t, 1)
	scratch := t.TempDir()

	err := Mux(Backend("bogus"), chunks, sidecar, filepath.Join(scratch, "out.mkv"), scratch, 1)
	require.Error(t, err)
}
