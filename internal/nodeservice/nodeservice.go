// Package nodeservice implements the node's single EncodeChunk RPC: write
// received bytes to scratch, shell out to the configured external
// encoder, and return the result (spec.md §4.4).
package nodeservice

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/master-of-zen/ferris-swarm/internal/rpc"
)

// ReceivedChunksDirName and EncodedChunksDirName are the scratch
// subdirectories under a node's temp dir, exported so callers (e.g. a
// stale-file janitor) can target the same paths without duplicating them.
const (
	ReceivedChunksDirName = "received_chunks"
	EncodedChunksDirName  = "locally_encoded"
)

// Handler serves the node's encoding RPC over HTTP.
type Handler struct {
	scratchDir    string
	encoderBinary string
	logger        *logrus.Logger
}

// NewHandler builds a Handler rooted at scratchDir, invoking
// encoderBinary (e.g. "ffmpeg") for every chunk.
func NewHandler(scratchDir, encoderBinary string, logger *logrus.Logger) *Handler {
	return &Handler{scratchDir: scratchDir, encoderBinary: encoderBinary, logger: logger}
}

// RegisterRoutes wires the node's HTTP surface onto r.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc(rpc.EncodeChunkPath, h.handleEncodeChunk).Methods(http.MethodPost)
	r.HandleFunc(rpc.HealthPath, h.handleHealth).Methods(http.MethodGet)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// handleEncodeChunk implements spec.md §4.4's per-call algorithm.
func (h *Handler) handleEncodeChunk(w http.ResponseWriter, r *http.Request) {
	limited := http.MaxBytesReader(w, r.Body, rpc.MaxMessageSizeBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		h.logger.WithError(err).Error("failed to read encode_chunk request body")
		writeFailure(w, 0, fmt.Sprintf("failed to read request body: %v", err))
		return
	}
	if len(body) > rpc.MaxMessageSizeBytes {
		writeFailure(w, 0, "request body exceeded maximum message size")
		return
	}

	var req rpc.EncodeChunkRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.logger.WithError(err).Error("failed to decode encode_chunk request")
		writeFailure(w, 0, fmt.Sprintf("failed to decode request: %v", err))
		return
	}

	result, err := h.encodeChunk(r.Context(), req)
	if err != nil {
		h.logger.WithFields(logrus.Fields{"chunk_index": req.ChunkIndex}).WithError(err).Error("chunk encode failed")
		writeFailure(w, req.ChunkIndex, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(rpc.EncodeChunkResponse{
		EncodedChunkData: result,
		ChunkIndex:       req.ChunkIndex,
		Success:          true,
	})
}

// encodeChunk ensures scratch subdirectories exist, writes the received
// bytes, invokes the external encoder, and reads back the encoded result.
// Both scratch files are unconditionally removed before returning, even
// on error (spec.md §4.4 step 6).
func (h *Handler) encodeChunk(ctx context.Context, req rpc.EncodeChunkRequest) ([]byte, error) {
	receivedDir := filepath.Join(h.scratchDir, ReceivedChunksDirName)
	encodedDir := filepath.Join(h.scratchDir, EncodedChunksDirName)
	for _, dir := range []string{receivedDir, encodedDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create scratch directory %s: %w", dir, err)
		}
	}

	receivedPath := filepath.Join(receivedDir, fmt.Sprintf("chunk_%d_received.mkv", req.ChunkIndex))
	encodedPath := filepath.Join(encodedDir, fmt.Sprintf("chunk_%d_encoded.mkv", req.ChunkIndex))
	defer h.cleanupScratch(receivedPath, encodedPath)

	if err := os.WriteFile(receivedPath, req.ChunkData, 0644); err != nil {
		return nil, fmt.Errorf("failed to write received chunk %d: %w", req.ChunkIndex, err)
	}

	args := append(append([]string{"-i", receivedPath}, req.EncoderParameters...), encodedPath)
	cmd := exec.CommandContext(ctx, h.encoderBinary, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("encoder failed for chunk %d: %w\noutput: %s", req.ChunkIndex, err, string(output))
	}

	encoded, err := os.ReadFile(encodedPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read encoded chunk %d: %w", req.ChunkIndex, err)
	}

	return encoded, nil
}

// cleanupScratch unconditionally removes both scratch files for one call,
// logging (not failing) on deletion error (spec.md §4.4 step 6).
func (h *Handler) cleanupScratch(paths ...string) {
	for _, path := range paths {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			h.logger.WithError(err).WithField("path", path).Warn("failed to clean up scratch file")
		}
	}
}

func writeFailure(w http.ResponseWriter, chunkIndex int32, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(rpc.EncodeChunkResponse{
		ChunkIndex:   chunkIndex,
		Success:      false,
		ErrorMessage: message,
	})
}
