// Package rpc defines the wire contract for the node's single EncodeChunk
// endpoint: a JSON body posted over HTTP, capped at 1 GiB in both
// directions (spec.md §4.4, §6). See DESIGN.md's "Node RPC transport"
// entry for why this isn't gRPC.
package rpc

import "time"

const (
	// EncodeChunkPath is the node's one RPC endpoint.
	EncodeChunkPath = "/rpc/encode_chunk"

	// HealthPath answers liveness checks for discovery (spec.md §4.8).
	HealthPath = "/api/health"

	// MaxMessageSizeBytes bounds both the request and response body.
	MaxMessageSizeBytes = 1 << 30 // 1 GiB

	// ConnectTimeout bounds TCP connection establishment to a node.
	ConnectTimeout = 10 * time.Second
)

// EncodeChunkRequest carries one chunk's raw bytes and encode arguments.
type EncodeChunkRequest struct {
	ChunkData         []byte   `json:"chunk_data"`
	ChunkIndex        int32    `json:"chunk_index"`
	EncoderParameters []string `json:"encoder_parameters"`
}

// EncodeChunkResponse carries the encoded result, or a failure reason.
type EncodeChunkResponse struct {
	EncodedChunkData []byte `json:"encoded_chunk_data"`
	ChunkIndex       int32  `json:"chunk_index"`
	Success          bool   `json:"success"`
	ErrorMessage     string `json:"error_message,omitempty"`
}
