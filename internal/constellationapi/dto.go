package constellationapi

import (
	"time"

	"github.com/google/uuid"

	"github.com/master-of-zen/ferris-swarm/internal/swarm"
)

// nodeRegistrationRequest is the body of POST /api/nodes (spec.md §6).
type nodeRegistrationRequest struct {
	Address      string                 `json:"address" validate:"required"`
	Capabilities swarm.NodeCapabilities `json:"capabilities"`
}

// clientRegistrationRequest is the body of POST /api/clients.
type clientRegistrationRequest struct {
	Address string `json:"address" validate:"required"`
}

// heartbeatRequest is the shared body of the node/client heartbeat PUTs.
type heartbeatRequest struct {
	ID          uuid.UUID `json:"id" validate:"required"`
	Status      string    `json:"status" validate:"required"`
	CurrentLoad float64   `json:"current_load,omitempty"`
}

// createJobRequest is the body of POST /api/jobs.
type createJobRequest struct {
	ClientID          uuid.UUID `json:"client_id" validate:"required"`
	VideoFile         string    `json:"video_file" validate:"required"`
	EncoderParameters []string  `json:"encoder_parameters"`
}

// jobUpdateRequest is the body of PUT /api/jobs/:id.
type jobUpdateRequest struct {
	Status              *string    `json:"status,omitempty"`
	TotalChunks         *uint32    `json:"total_chunks,omitempty"`
	CompletedChunks     *uint32    `json:"completed_chunks,omitempty"`
	FailedChunks        *uint32    `json:"failed_chunks,omitempty"`
	ErrorMessage        *string    `json:"error_message,omitempty"`
	EstimatedCompletion *time.Time `json:"estimated_completion,omitempty"`
}

// chunkUpdateRequest is the body of PUT /api/chunks/:id.
type chunkUpdateRequest struct {
	Status          string `json:"status" validate:"required"`
	ProgressPercent uint8  `json:"progress_percent"`
	ErrorMessage    string `json:"error_message,omitempty"`
}

type registeredResponse struct {
	NodeID uuid.UUID `json:"node_id"`
	Status string    `json:"status"`
}

type clientRegisteredResponse struct {
	ClientID uuid.UUID `json:"client_id"`
	Status   string    `json:"status"`
}

type jobCreatedResponse struct {
	JobID  uuid.UUID `json:"job_id"`
	Status string    `json:"status"`
}

type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type statusCountsResponse struct {
	Service string `json:"service"`
	Nodes   int    `json:"nodes"`
	Clients int    `json:"clients"`
	Jobs    int    `json:"jobs"`
	Chunks  int    `json:"chunks"`
}

type healthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
