// Package swarm defines the shared entities of the ferris-swarm fleet:
// the dispatch unit (Chunk) and the constellation registry's node,
// client, job and chunk-assignment records.
package swarm

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Chunk is the unit of work dispatched to a node for encoding.
type Chunk struct {
	Index              int      // 0-based ordinal within a job, unique per job
	SourcePath         string   // input segment on client disk
	EncodedPath        string   // filled once the encoded result has been received
	EncoderParameters  []string // ordered list of encoder CLI arguments
	Attempts           int      // number of EncodeChunk attempts made so far
}

// Completed reports whether this chunk carries an encoded result.
func (c Chunk) Completed() bool {
	return c.EncodedPath != ""
}

// EncodedChunkPath is where the dispatcher saves a received encoded chunk.
func (c Chunk) EncodedChunkPath(encodedChunksDir string) string {
	return filepath.Join(encodedChunksDir, fmt.Sprintf("encoded_chunk_%d.mkv", c.Index))
}

// NodeStatus is the lifecycle state of a registered node.
type NodeStatus string

const (
	NodeOnline  NodeStatus = "online"
	NodeBusy    NodeStatus = "busy"
	NodeOffline NodeStatus = "offline"
	NodeError   NodeStatus = "error"
)

// NodeCapabilities describes what a node can do and how much of it at once.
type NodeCapabilities struct {
	MaxConcurrentChunks int      `json:"max_concurrent_chunks"`
	SupportedEncoders   []string `json:"supported_encoders"`
	CPUCores            int      `json:"cpu_cores"`
	MemoryGB            float64  `json:"memory_gb"`
}

// Node is a registered encoding worker.
type Node struct {
	ID              uuid.UUID        `json:"id"`
	Address         string           `json:"address"`
	Status          NodeStatus       `json:"status"`
	ErrorMessage    string           `json:"error_message,omitempty"`
	Capabilities    NodeCapabilities `json:"capabilities"`
	LastHeartbeat   time.Time        `json:"last_heartbeat"`
	CurrentChunks   []uuid.UUID      `json:"current_chunks"`
	TotalProcessed  uint64           `json:"total_processed"`
	TotalFailed     uint64           `json:"total_failed"`
}

// ClientStatus is the lifecycle state of a registered client.
type ClientStatus string

const (
	ClientConnected    ClientStatus = "connected"
	ClientProcessing   ClientStatus = "processing"
	ClientDisconnected ClientStatus = "disconnected"
)

// Client is a registered dispatcher session.
type Client struct {
	ID            uuid.UUID    `json:"id"`
	Address       string       `json:"address"`
	Status        ClientStatus `json:"status"`
	LastHeartbeat time.Time    `json:"last_heartbeat"`
	// ActiveJobs stores job IDs only. Earlier revisions copied whole Job
	// records into this slice, which let the client's view of a job drift
	// from the job map's; jobs live exactly once, keyed by ID, in the job map.
	ActiveJobs []uuid.UUID `json:"active_jobs"`
}

// JobStatus is the lifecycle state of a client job.
type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobInProgress JobStatus = "in_progress"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobCancelled  JobStatus = "cancelled"
)

// Job tracks one client's end-to-end transcode request.
type Job struct {
	ID                   uuid.UUID  `json:"id"`
	ClientID             uuid.UUID  `json:"client_id"`
	VideoFile            string     `json:"video_file"`
	TotalChunks          uint32     `json:"total_chunks"`
	CompletedChunks      uint32     `json:"completed_chunks"`
	FailedChunks         uint32     `json:"failed_chunks"`
	Status               JobStatus  `json:"status"`
	ErrorMessage         string     `json:"error_message,omitempty"`
	StartedAt            time.Time  `json:"started_at"`
	EstimatedCompletion  *time.Time `json:"estimated_completion,omitempty"`
	EncoderParameters    []string   `json:"encoder_parameters"`
}

// Terminal reports whether the job has reached a terminal status.
func (j Job) Terminal() bool {
	switch j.Status {
	case JobCompleted, JobFailed, JobCancelled:
		return true
	default:
		return false
	}
}

// ChunkAssignmentStatus is the lifecycle state of a dispatched chunk.
type ChunkAssignmentStatus string

const (
	ChunkAssigned   ChunkAssignmentStatus = "assigned"
	ChunkInProgress ChunkAssignmentStatus = "in_progress"
	ChunkCompleted  ChunkAssignmentStatus = "completed"
	ChunkFailed     ChunkAssignmentStatus = "failed"
	ChunkCancelled  ChunkAssignmentStatus = "cancelled"
)

// Terminal reports whether the assignment has reached a terminal status.
func (s ChunkAssignmentStatus) Terminal() bool {
	switch s {
	case ChunkCompleted, ChunkFailed, ChunkCancelled:
		return true
	default:
		return false
	}
}

// ChunkAssignment records one node's attempt at encoding one chunk of one job.
type ChunkAssignment struct {
	ID              uuid.UUID             `json:"id"`
	JobID           uuid.UUID             `json:"job_id"`
	ChunkIndex      uint32                `json:"chunk_index"`
	NodeID          uuid.UUID             `json:"node_id"`
	Status          ChunkAssignmentStatus `json:"status"`
	ErrorMessage    string                `json:"error_message,omitempty"`
	AssignedAt      time.Time             `json:"assigned_at"`
	StartedAt       *time.Time            `json:"started_at,omitempty"`
	CompletedAt     *time.Time            `json:"completed_at,omitempty"`
	ProgressPercent uint8                 `json:"progress_percent"`
}

// SystemStats are the dashboard's derived, point-in-time counters.
type SystemStats struct {
	TotalNodes             uint32  `json:"total_nodes"`
	ActiveNodes            uint32  `json:"active_nodes"`
	TotalClients           uint32  `json:"total_clients"`
	ActiveJobs             uint32  `json:"active_jobs"`
	TotalChunksProcessed   uint64  `json:"total_chunks_processed"`
	AverageChunkTimeSecs   float64 `json:"average_chunk_time_seconds"`
	SystemLoad             float64 `json:"system_load"`
}

// DashboardData is the full snapshot served by GET /api/dashboard/data and
// pushed over the WebSocket feed.
type DashboardData struct {
	Nodes       map[uuid.UUID]Node             `json:"nodes"`
	Clients     map[uuid.UUID]Client           `json:"clients"`
	Jobs        map[uuid.UUID]Job              `json:"jobs"`
	Chunks      map[uuid.UUID]ChunkAssignment  `json:"chunks"`
	Stats       SystemStats                    `json:"stats"`
	LastUpdated time.Time                      `json:"last_updated"`
}
