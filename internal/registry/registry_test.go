package registry

import (
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/master-of-zen/ferris-swarm/internal/swarm"
)

func newTestRegistry() *Registry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return New(DefaultConfig(), log)
}

func TestRegisterNode_AssignsUUIDAndOnlineStatus(t *testing.T) {
	r := newTestRegistry()
	id := r.RegisterNode("10.0.0.5:9000", swarm.NodeCapabilities{CPUCores: 8})

	snap := r.Snapshot()
	node, ok := snap.Nodes[id]
	require.True(t, ok)
	require.Equal(t, swarm.NodeOnline, node.Status)
	require.Equal(t, "10.0.0.5:9000", node.Address)
}

func TestNodeHeartbeat_UnknownNodeReturnsFalse(t *testing.T) {
	r := newTestRegistry()
	require.False(t, r.NodeHeartbeat(uuid.New(), swarm.NodeOnline))
}

func TestNodeHeartbeat_UpdatesStatusAndTimestamp(t *testing.T) {
	r := newTestRegistry()
	id := r.RegisterNode("addr", swarm.NodeCapabilities{})

	require.True(t, r.NodeHeartbeat(id, swarm.NodeBusy))
	snap := r.Snapshot()
	require.Equal(t, swarm.NodeBusy, snap.Nodes[id].Status)
}

func TestCreateJob_AppendsToClientActiveJobs(t *testing.T) {
	r := newTestRegistry()
	clientID := r.RegisterClient("client-addr")
	jobID := r.CreateJob(clientID, "input.mkv", []string{"-crf", "24"})

	snap := r.Snapshot()
	require.Equal(t, swarm.JobQueued, snap.Jobs[jobID].Status)
	require.Contains(t, snap.Clients[clientID].ActiveJobs, jobID)
}

func TestUpdateChunk_StampsStartedAndCompletedOnce(t *testing.T) {
	r := newTestRegistry()
	nodeID := r.RegisterNode("addr", swarm.NodeCapabilities{})
	chunkID, ok := r.AssignChunk(uuid.New(), 0, nodeID)
	require.True(t, ok)

	require.True(t, r.UpdateChunk(chunkID, ChunkUpdate{Status: swarm.ChunkInProgress, ProgressPercent: 10}))
	snap := r.Snapshot()
	firstStart := snap.Chunks[chunkID].StartedAt
	require.NotNil(t, firstStart)

	require.True(t, r.UpdateChunk(chunkID, ChunkUpdate{Status: swarm.ChunkInProgress, ProgressPercent: 50}))
	snap = r.Snapshot()
	require.Equal(t, *firstStart, *snap.Chunks[chunkID].StartedAt)

	require.True(t, r.UpdateChunk(chunkID, ChunkUpdate{Status: swarm.ChunkCompleted, ProgressPercent: 100}))
	snap = r.Snapshot()
	require.NotNil(t, snap.Chunks[chunkID].CompletedAt)
}

func TestAssignChunk_UnknownNodeFails(t *testing.T) {
	r := newTestRegistry()
	_, ok := r.AssignChunk(uuid.New(), 0, uuid.New())
	require.False(t, ok)
}

func TestSweep_MarksStaleNodesOfflineAndClientsDisconnected(t *testing.T) {
	r := New(Config{NodeTimeout: time.Millisecond, ClientTimeout: time.Millisecond}, logrus.New())
	nodeID := r.RegisterNode("addr", swarm.NodeCapabilities{})
	clientID := r.RegisterClient("client-addr")

	time.Sleep(5 * time.Millisecond)
	r.Sweep()

	snap := r.Snapshot()
	require.Equal(t, swarm.NodeOffline, snap.Nodes[nodeID].Status)
	require.Equal(t, swarm.ClientDisconnected, snap.Clients[clientID].Status)
}

func TestSweep_NeverDeletesEntries(t *testing.T) {
	r := New(Config{NodeTimeout: time.Millisecond, ClientTimeout: time.Millisecond}, logrus.New())
	nodeID := r.RegisterNode("addr", swarm.NodeCapabilities{})

	time.Sleep(5 * time.Millisecond)
	r.Sweep()

	snap := r.Snapshot()
	_, exists := snap.Nodes[nodeID]
	require.True(t, exists)
}

func TestSnapshot_ComputesSystemLoadAndAverageChunkTime(t *testing.T) {
	r := newTestRegistry()
	nodeA := r.RegisterNode("a", swarm.NodeCapabilities{})
	r.RegisterNode("b", swarm.NodeCapabilities{})
	require.True(t, r.NodeHeartbeat(nodeA, swarm.NodeBusy))

	chunkID, ok := r.AssignChunk(uuid.New(), 0, nodeA)
	require.True(t, ok)
	require.True(t, r.UpdateChunk(chunkID, ChunkUpdate{Status: swarm.ChunkInProgress}))
	require.True(t, r.UpdateChunk(chunkID, ChunkUpdate{Status: swarm.ChunkCompleted, ProgressPercent: 100}))

	snap := r.Snapshot()
	require.Equal(t, uint32(2), snap.Stats.TotalNodes)
	require.Equal(t, uint32(2), snap.Stats.ActiveNodes)
	require.InDelta(t, 1.0, snap.Stats.SystemLoad, 0.0001)
	require.GreaterOrEqual(t, snap.Stats.AverageChunkTimeSecs, 0.0)
}

func TestHasNodeWithAddress(t *testing.T) {
	r := newTestRegistry()
	require.False(t, r.HasNodeWithAddress("10.0.0.1:9000"))
	r.RegisterNode("10.0.0.1:9000", swarm.NodeCapabilities{})
	require.True(t, r.HasNodeWithAddress("10.0.0.1:9000"))
}
