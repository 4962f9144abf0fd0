package dispatcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/master-of-zen/ferris-swarm/internal/rpc"
	"github.com/master-of-zen/ferris-swarm/internal/swarm"
)

// sendChunkForEncoding reads the chunk's source bytes from disk, issues a
// single EncodeChunk RPC to node, and on success writes the encoded bytes
// to encodedChunksDir/encoded_chunk_<index>.mkv (spec.md §4.2 step 3).
func sendChunkForEncoding(ctx context.Context, node *NodeConnection, chunk swarm.Chunk, encodedChunksDir string) (swarm.Chunk, error) {
	sourceData, err := os.ReadFile(chunk.SourcePath)
	if err != nil {
		return chunk, fmt.Errorf("failed to read chunk source data from %s: %w", chunk.SourcePath, err)
	}

	reqBody := rpc.EncodeChunkRequest{
		ChunkData:         sourceData,
		ChunkIndex:        int32(chunk.Index),
		EncoderParameters: chunk.EncoderParameters,
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return chunk, fmt.Errorf("failed to marshal encode request for chunk %d: %w", chunk.Index, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, node.Address+rpc.EncodeChunkPath, bytes.NewReader(payload))
	if err != nil {
		return chunk, fmt.Errorf("failed to build request for chunk %d: %w", chunk.Index, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := node.httpClient.Do(httpReq)
	if err != nil {
		return chunk, fmt.Errorf("RPC call to encode chunk %d at %s failed: %w", chunk.Index, node.Address, err)
	}
	defer func() { _ = resp.Body.Close() }()

	limited := io.LimitReader(resp.Body, rpc.MaxMessageSizeBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return chunk, fmt.Errorf("failed to read response for chunk %d: %w", chunk.Index, err)
	}
	if len(body) > rpc.MaxMessageSizeBytes {
		return chunk, fmt.Errorf("response for chunk %d exceeded %d bytes", chunk.Index, rpc.MaxMessageSizeBytes)
	}

	if resp.StatusCode != http.StatusOK {
		return chunk, fmt.Errorf("node %s returned HTTP %d for chunk %d: %s", node.Address, resp.StatusCode, chunk.Index, string(body))
	}

	var respBody rpc.EncodeChunkResponse
	if err := json.Unmarshal(body, &respBody); err != nil {
		return chunk, fmt.Errorf("failed to decode response for chunk %d: %w", chunk.Index, err)
	}

	if !respBody.Success {
		return chunk, fmt.Errorf("node %s reported failure for chunk %d: %s", node.Address, chunk.Index, respBody.ErrorMessage)
	}

	encodedPath := chunk.EncodedChunkPath(encodedChunksDir)
	if err := os.WriteFile(encodedPath, respBody.EncodedChunkData, 0644); err != nil {
		return chunk, fmt.Errorf("failed to write encoded chunk %d to %s: %w", chunk.Index, encodedPath, err)
	}

	result := chunk
	result.EncodedPath = encodedPath
	return result, nil
}
