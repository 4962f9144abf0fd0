// Package registry is the constellation's in-memory fleet state: nodes,
// clients, jobs, and chunk assignments, each guarded by its own
// reader-writer lock (spec.md §4.6).
package registry

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/master-of-zen/ferris-swarm/internal/swarm"
)

// Config carries the timeouts the liveness sweeper enforces.
type Config struct {
	NodeTimeout   time.Duration
	ClientTimeout time.Duration
}

// DefaultConfig matches spec.md §4.6's defaults.
func DefaultConfig() Config {
	return Config{
		NodeTimeout:   120 * time.Second,
		ClientTimeout: 300 * time.Second,
	}
}

// Registry holds the fleet's four maps, each behind its own RWMutex so
// that reads of one entity never block writes to another.
type Registry struct {
	cfg Config
	log *logrus.Logger

	nodesMu sync.RWMutex
	nodes   map[uuid.UUID]swarm.Node

	clientsMu sync.RWMutex
	clients   map[uuid.UUID]swarm.Client

	jobsMu sync.RWMutex
	jobs   map[uuid.UUID]swarm.Job

	chunksMu sync.RWMutex
	chunks   map[uuid.UUID]swarm.ChunkAssignment
}

// New builds an empty registry.
func New(cfg Config, log *logrus.Logger) *Registry {
	return &Registry{
		cfg:     cfg,
		log:     log,
		nodes:   make(map[uuid.UUID]swarm.Node),
		clients: make(map[uuid.UUID]swarm.Client),
		jobs:    make(map[uuid.UUID]swarm.Job),
		chunks:  make(map[uuid.UUID]swarm.ChunkAssignment),
	}
}

// RegisterNode allocates a UUID and inserts a new Online node record.
func (r *Registry) RegisterNode(address string, capabilities swarm.NodeCapabilities) uuid.UUID {
	id := uuid.New()
	node := swarm.Node{
		ID:            id,
		Address:       address,
		Status:        swarm.NodeOnline,
		Capabilities:  capabilities,
		LastHeartbeat: time.Now(),
		CurrentChunks: []uuid.UUID{},
	}

	r.nodesMu.Lock()
	r.nodes[id] = node
	r.nodesMu.Unlock()

	r.log.WithFields(logrus.Fields{"node_id": id, "address": address}).Info("registered node")
	return id
}

// RegisterClient allocates a UUID and inserts a new Connected client record.
func (r *Registry) RegisterClient(address string) uuid.UUID {
	id := uuid.New()
	client := swarm.Client{
		ID:            id,
		Address:       address,
		Status:        swarm.ClientConnected,
		LastHeartbeat: time.Now(),
		ActiveJobs:    []uuid.UUID{},
	}

	r.clientsMu.Lock()
	r.clients[id] = client
	r.clientsMu.Unlock()

	r.log.WithFields(logrus.Fields{"client_id": id, "address": address}).Info("registered client")
	return id
}

// NodeHeartbeat updates a node's last-seen timestamp and status. Reports
// false if the node is unknown (caller should respond 404).
func (r *Registry) NodeHeartbeat(id uuid.UUID, status swarm.NodeStatus) bool {
	r.nodesMu.Lock()
	defer r.nodesMu.Unlock()

	node, ok := r.nodes[id]
	if !ok {
		r.log.WithField("node_id", id).Warn("heartbeat for unknown node")
		return false
	}
	node.LastHeartbeat = time.Now()
	node.Status = status
	r.nodes[id] = node
	return true
}

// ClientHeartbeat updates a client's last-seen timestamp and status.
// Reports false if the client is unknown.
func (r *Registry) ClientHeartbeat(id uuid.UUID, status swarm.ClientStatus) bool {
	r.clientsMu.Lock()
	defer r.clientsMu.Unlock()

	client, ok := r.clients[id]
	if !ok {
		r.log.WithField("client_id", id).Warn("heartbeat for unknown client")
		return false
	}
	client.LastHeartbeat = time.Now()
	client.Status = status
	r.clients[id] = client
	return true
}

// CreateJob allocates a UUID, inserts the job as Queued, and appends it
// to the owning client's ActiveJobs.
func (r *Registry) CreateJob(clientID uuid.UUID, videoFile string, encoderParameters []string) uuid.UUID {
	jobID := uuid.New()
	job := swarm.Job{
		ID:                jobID,
		ClientID:          clientID,
		VideoFile:         videoFile,
		Status:            swarm.JobQueued,
		StartedAt:         time.Now(),
		EncoderParameters: encoderParameters,
	}

	r.jobsMu.Lock()
	r.jobs[jobID] = job
	r.jobsMu.Unlock()

	r.clientsMu.Lock()
	if client, ok := r.clients[clientID]; ok {
		client.ActiveJobs = append(client.ActiveJobs, jobID)
		r.clients[clientID] = client
	}
	r.clientsMu.Unlock()

	r.log.WithFields(logrus.Fields{"job_id": jobID, "client_id": clientID}).Info("created job")
	return jobID
}

// JobUpdate carries the mutable fields update_job may patch.
type JobUpdate struct {
	Status              *swarm.JobStatus
	TotalChunks         *uint32
	CompletedChunks     *uint32
	FailedChunks        *uint32
	ErrorMessage        *string
	EstimatedCompletion *time.Time
}

// UpdateJob patches the given fields of a job. Reports false if unknown.
func (r *Registry) UpdateJob(id uuid.UUID, update JobUpdate) bool {
	r.jobsMu.Lock()
	defer r.jobsMu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return false
	}
	if update.Status != nil {
		job.Status = *update.Status
	}
	if update.TotalChunks != nil {
		job.TotalChunks = *update.TotalChunks
	}
	if update.CompletedChunks != nil {
		job.CompletedChunks = *update.CompletedChunks
	}
	if update.FailedChunks != nil {
		job.FailedChunks = *update.FailedChunks
	}
	if update.ErrorMessage != nil {
		job.ErrorMessage = *update.ErrorMessage
	}
	if update.EstimatedCompletion != nil {
		job.EstimatedCompletion = update.EstimatedCompletion
	}
	r.jobs[id] = job
	return true
}

// AssignChunk allocates a ChunkAssignment for one (job, chunk index, node)
// triple. Reports (id, false) if the node is unknown.
func (r *Registry) AssignChunk(jobID uuid.UUID, chunkIndex uint32, nodeID uuid.UUID) (uuid.UUID, bool) {
	r.nodesMu.Lock()
	if _, ok := r.nodes[nodeID]; !ok {
		r.nodesMu.Unlock()
		r.log.WithField("node_id", nodeID).Warn("assign chunk to unknown node")
		return uuid.UUID{}, false
	}

	assignmentID := uuid.New()
	assignment := swarm.ChunkAssignment{
		ID:         assignmentID,
		JobID:      jobID,
		ChunkIndex: chunkIndex,
		NodeID:     nodeID,
		Status:     swarm.ChunkAssigned,
		AssignedAt: time.Now(),
	}

	node := r.nodes[nodeID]
	node.CurrentChunks = append(node.CurrentChunks, assignmentID)
	r.nodes[nodeID] = node
	r.nodesMu.Unlock()

	r.chunksMu.Lock()
	r.chunks[assignmentID] = assignment
	r.chunksMu.Unlock()

	r.log.WithFields(logrus.Fields{"chunk_id": assignmentID, "node_id": nodeID}).Info("assigned chunk")
	return assignmentID, true
}

// ChunkUpdate carries the fields update_chunk may patch.
type ChunkUpdate struct {
	Status          swarm.ChunkAssignmentStatus
	ProgressPercent uint8
	ErrorMessage    string
}

// UpdateChunk patches status and progress, stamping StartedAt on the
// first transition to in-progress and CompletedAt on the first terminal
// transition. Reports false if the chunk is unknown.
func (r *Registry) UpdateChunk(id uuid.UUID, update ChunkUpdate) bool {
	r.chunksMu.Lock()
	defer r.chunksMu.Unlock()

	chunk, ok := r.chunks[id]
	if !ok {
		return false
	}

	chunk.Status = update.Status
	chunk.ProgressPercent = update.ProgressPercent
	chunk.ErrorMessage = update.ErrorMessage

	now := time.Now()
	if update.Status == swarm.ChunkInProgress && chunk.StartedAt == nil {
		chunk.StartedAt = &now
	}
	if update.Status.Terminal() && chunk.CompletedAt == nil {
		chunk.CompletedAt = &now
	}

	r.chunks[id] = chunk
	return true
}

// Sweep marks nodes and clients stale past their configured timeouts as
// Offline/Disconnected. It never deletes entries (spec.md §4.6).
func (r *Registry) Sweep() {
	now := time.Now()

	r.nodesMu.Lock()
	for id, node := range r.nodes {
		if node.Status != swarm.NodeOffline && now.Sub(node.LastHeartbeat) > r.cfg.NodeTimeout {
			node.Status = swarm.NodeOffline
			r.nodes[id] = node
			r.log.WithField("node_id", id).Warn("marked node offline due to timeout")
		}
	}
	r.nodesMu.Unlock()

	r.clientsMu.Lock()
	for id, client := range r.clients {
		if client.Status != swarm.ClientDisconnected && now.Sub(client.LastHeartbeat) > r.cfg.ClientTimeout {
			client.Status = swarm.ClientDisconnected
			r.clients[id] = client
			r.log.WithField("client_id", id).Warn("marked client disconnected due to timeout")
		}
	}
	r.clientsMu.Unlock()
}

// RunSweeper blocks, running Sweep every interval until stop is closed.
func (r *Registry) RunSweeper(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.Sweep()
		case <-stop:
			return
		}
	}
}

// HasNodeWithAddress reports whether any registered node already has the
// given address, for the nodes-manifest auto-registration pass (spec.md
// §4.7), which must never create duplicate entries.
func (r *Registry) HasNodeWithAddress(address string) bool {
	r.nodesMu.RLock()
	defer r.nodesMu.RUnlock()

	for _, node := range r.nodes {
		if node.Address == address {
			return true
		}
	}
	return false
}

// Snapshot clones all four maps and computes derived statistics. Not
// globally atomic: each map is cloned under its own lock, so a snapshot
// may mix slightly different moments across entities — tolerated per
// spec.md §5 ("snapshots are advisory").
func (r *Registry) Snapshot() swarm.DashboardData {
	nodes := r.cloneNodes()
	clients := r.cloneClients()
	jobs := r.cloneJobs()
	chunks := r.cloneChunks()

	return swarm.DashboardData{
		Nodes:       nodes,
		Clients:     clients,
		Jobs:        jobs,
		Chunks:      chunks,
		Stats:       calculateStats(nodes, clients, jobs, chunks),
		LastUpdated: time.Now(),
	}
}

func (r *Registry) cloneNodes() map[uuid.UUID]swarm.Node {
	r.nodesMu.RLock()
	defer r.nodesMu.RUnlock()
	out := make(map[uuid.UUID]swarm.Node, len(r.nodes))
	for k, v := range r.nodes {
		out[k] = v
	}
	return out
}

func (r *Registry) cloneClients() map[uuid.UUID]swarm.Client {
	r.clientsMu.RLock()
	defer r.clientsMu.RUnlock()
	out := make(map[uuid.UUID]swarm.Client, len(r.clients))
	for k, v := range r.clients {
		out[k] = v
	}
	return out
}

func (r *Registry) cloneJobs() map[uuid.UUID]swarm.Job {
	r.jobsMu.RLock()
	defer r.jobsMu.RUnlock()
	out := make(map[uuid.UUID]swarm.Job, len(r.jobs))
	for k, v := range r.jobs {
		out[k] = v
	}
	return out
}

func (r *Registry) cloneChunks() map[uuid.UUID]swarm.ChunkAssignment {
	r.chunksMu.RLock()
	defer r.chunksMu.RUnlock()
	out := make(map[uuid.UUID]swarm.ChunkAssignment, len(r.chunks))
	for k, v := range r.chunks {
		out[k] = v
	}
	return out
}

// calculateStats derives SystemStats from a point-in-time clone of all
// four maps (spec.md §4.6 "Dashboard snapshot").
func calculateStats(
	nodes map[uuid.UUID]swarm.Node,
	clients map[uuid.UUID]swarm.Client,
	jobs map[uuid.UUID]swarm.Job,
	chunks map[uuid.UUID]swarm.ChunkAssignment,
) swarm.SystemStats {
	var activeNodes uint32
	var totalProcessed uint64
	for _, n := range nodes {
		if n.Status == swarm.NodeOnline || n.Status == swarm.NodeBusy {
			activeNodes++
		}
		totalProcessed += n.TotalProcessed
	}

	var activeJobs uint32
	for _, j := range jobs {
		if j.Status == swarm.JobInProgress || j.Status == swarm.JobQueued {
			activeJobs++
		}
	}

	var totalChunkSeconds float64
	var completedWithTimestamps int
	for _, c := range chunks {
		if c.Status == swarm.ChunkCompleted && c.StartedAt != nil && c.CompletedAt != nil {
			totalChunkSeconds += c.CompletedAt.Sub(*c.StartedAt).Seconds()
			completedWithTimestamps++
		}
	}

	var averageChunkTime float64
	if completedWithTimestamps > 0 {
		averageChunkTime = totalChunkSeconds / float64(completedWithTimestamps)
	}

	totalNodes := uint32(len(nodes))
	systemLoad := float64(activeNodes) / float64(max(totalNodes, 1))

	return swarm.SystemStats{
		TotalNodes:           totalNodes,
		ActiveNodes:          activeNodes,
		TotalClients:         uint32(len(clients)),
		ActiveJobs:           activeJobs,
		TotalChunksProcessed: totalProcessed,
		AverageChunkTimeSecs: averageChunkTime,
		SystemLoad:           systemLoad,
	}
}
