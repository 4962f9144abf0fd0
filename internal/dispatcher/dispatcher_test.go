package dispatcher

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/master-of-zen/ferris-swarm/internal/rpc"
	"github.com/master-of-zen/ferris-swarm/internal/swarm"
)

// newFakeNode starts an httptest server that behaves like a node's
// EncodeChunk endpoint, optionally failing the first `failFirst` requests
// for a given chunk index before succeeding.
func newFakeNode(t *testing.T, failIndexes map[int32]*int32, failFirst int32) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc(rpc.EncodeChunkPath, func(w http.ResponseWriter, r *http.Request) {
		var req rpc.EncodeChunkRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		if counter, tracked := failIndexes[req.ChunkIndex]; tracked {
			if atomic.AddInt32(counter, 1) <= failFirst {
				w.WriteHeader(http.StatusOK)
				_ = json.NewEncoder(w).Encode(rpc.EncodeChunkResponse{
					ChunkIndex:   req.ChunkIndex,
					Success:      false,
					ErrorMessage: "simulated transient encode failure",
				})
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(rpc.EncodeChunkResponse{
			ChunkIndex:       req.ChunkIndex,
			Success:          true,
			EncodedChunkData: append([]byte("encoded:"), req.ChunkData...),
		})
	})

	return httptest.NewServer(mux)
}

func writeSourceChunks(t *testing.T, dir string, n int) []swarm.Chunk {
	t.Helper()
	chunks := make([]swarm.Chunk, n)
	for i := 0; i < n; i++ {
		path := filepath.Join(dir, fmt.Sprintf("chunk_%d.mkv", i))
		require.NoError(t, os.WriteFile(path, []byte("source-data"), 0644))
		chunks[i] = swarm.Chunk{Index: i, SourcePath: path, EncoderParameters: []string{"--crf", "30"}}
	}
	return chunks
}

// TestRun_AllChunksCompleteInOrder exercises invariant 1 from spec.md §8:
// the completed-chunk index set equals {0..total-1} with no gaps or
// duplicates, regardless of how many nodes or slots processed them.
func TestRun_AllChunksCompleteInOrder(t *testing.T) {
	dir := t.TempDir()
	encodedDir := t.TempDir()
	chunks := writeSourceChunks(t, dir, 3)

	server := newFakeNode(t, nil, 0)
	defer server.Close()

	nodes, err := InitializeNodeConnections([]string{server.URL, server.URL}, []int{2, 1})
	require.NoError(t, err)

	d := New(nodes, chunks, Config{EncodedChunksDir: encodedDir})
	completed, err := d.Run(t.Context())
	require.NoError(t, err)
	require.Len(t, completed, 3)

	for i, c := range completed {
		require.Equal(t, i, c.Index)
		require.True(t, c.Completed())
	}
}

// TestRun_TransientFailureRetriesAndSucceeds mirrors scenario S2: three
// chunks, two nodes with slots [2,1], one transient failure that resolves
// after a single re-queue.
func TestRun_TransientFailureRetriesAndSucceeds(t *testing.T) {
	dir := t.TempDir()
	encodedDir := t.TempDir()
	chunks := writeSourceChunks(t, dir, 3)

	var failCounter int32
	server := newFakeNode(t, map[int32]*int32{1: &failCounter}, 1)
	defer server.Close()

	nodes, err := InitializeNodeConnections([]string{server.URL, server.URL}, []int{2, 1})
	require.NoError(t, err)

	d := New(nodes, chunks, Config{EncodedChunksDir: encodedDir, MaxAttempts: 3})
	completed, err := d.Run(t.Context())
	require.NoError(t, err)
	require.Len(t, completed, 3)

	indexes := map[int]bool{}
	for _, c := range completed {
		indexes[c.Index] = true
	}
	require.Equal(t, map[int]bool{0: true, 1: true, 2: true}, indexes)
}

// TestRun_ExhaustedAttemptsReportsFailure verifies a chronically failing
// chunk is surfaced as a failure once it exceeds MaxAttempts, rather than
// retried forever.
func TestRun_ExhaustedAttemptsReportsFailure(t *testing.T) {
	dir := t.TempDir()
	encodedDir := t.TempDir()
	chunks := writeSourceChunks(t, dir, 1)

	var failCounter int32
	server := newFakeNode(t, map[int32]*int32{0: &failCounter}, 1000)
	defer server.Close()

	nodes, err := InitializeNodeConnections([]string{server.URL}, []int{1})
	require.NoError(t, err)

	d := New(nodes, chunks, Config{EncodedChunksDir: encodedDir, MaxAttempts: 2})
	completed, err := d.Run(t.Context())
	require.Error(t, err)
	require.Empty(t, completed)
}

func TestInitializeNodeConnections_MismatchedLengths(t *testing.T) {
	_, err := InitializeNodeConnections([]string{"http://a"}, []int{1, 2})
	require.Error(t, err)
}

func TestInitializeNodeConnections_Empty(t *testing.T) {
	_, err := InitializeNodeConnections(nil, nil)
	require.Error(t, err)
}
