package constellationapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/master-of-zen/ferris-swarm/internal/registry"
	"github.com/master-of-zen/ferris-swarm/internal/swarm"
)

func newTestLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestServer(t *testing.T) (*httptest.Server, *registry.Registry) {
	t.Helper()
	reg := registry.New(registry.DefaultConfig(), newTestLogger())
	h := NewHandler(reg, time.Hour, newTestLogger())
	r := mux.NewRouter()
	h.RegisterRoutes(r)
	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return server, reg
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func putJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPut, url, bytes.NewReader(data))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestHandleRegisterNode_ReturnsNodeID(t *testing.T) {
	server, reg := newTestServer(t)

	resp := postJSON(t, server.URL+"/api/nodes", nodeRegistrationRequest{
		Address:      "http://node:9000",
		Capabilities: swarm.NodeCapabilities{CPUCores: 4},
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body registeredResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "registered", body.Status)
	require.True(t, reg.HasNodeWithAddress("http://node:9000"))
}

func TestHandleRegisterNode_MissingAddressFails(t *testing.T) {
	server, _ := newTestServer(t)

	resp := postJSON(t, server.URL+"/api/nodes", nodeRegistrationRequest{})
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleNodeHeartbeat_UnknownNodeReturns404(t *testing.T) {
	server, _ := newTestServer(t)

	resp := putJSON(t, server.URL+"/api/nodes/"+uuid.New().String()+"/heartbeat", heartbeatRequest{
		ID:     uuid.New(),
		Status: "online",
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandleNodeHeartbeat_KnownNodeUpdates(t *testing.T) {
	server, reg := newTestServer(t)
	id := reg.RegisterNode("http://node:9000", swarm.NodeCapabilities{})

	resp := putJSON(t, server.URL+"/api/nodes/"+id.String()+"/heartbeat", heartbeatRequest{
		ID:     id,
		Status: "busy",
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHandleCreateJobAndUpdateJob(t *testing.T) {
	server, reg := newTestServer(t)
	clientID := reg.RegisterClient("http://client:1")

	resp := postJSON(t, server.URL+"/api/jobs", createJobRequest{
		ClientID:  clientID,
		VideoFile: "input.mkv",
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var created jobCreatedResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))

	status := "in_progress"
	totalChunks := uint32(5)
	updateResp := putJSON(t, server.URL+"/api/jobs/"+created.JobID.String(), jobUpdateRequest{
		Status:      &status,
		TotalChunks: &totalChunks,
	})
	defer updateResp.Body.Close()
	require.Equal(t, http.StatusOK, updateResp.StatusCode)

	snap := reg.Snapshot()
	require.Equal(t, swarm.JobInProgress, snap.Jobs[created.JobID].Status)
	require.Equal(t, uint32(5), snap.Jobs[created.JobID].TotalChunks)
}

func TestHandleUpdateChunk_UnknownReturns404(t *testing.T) {
	server, _ := newTestServer(t)

	resp := putJSON(t, server.URL+"/api/chunks/"+uuid.New().String(), chunkUpdateRequest{
		Status: "completed",
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandleDashboardData_ReturnsSnapshot(t *testing.T) {
	server, reg := newTestServer(t)
	reg.RegisterNode("http://node:1", swarm.NodeCapabilities{})

	resp, err := http.Get(server.URL + "/api/dashboard/data")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var data swarm.DashboardData
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&data))
	require.Len(t, data.Nodes, 1)
}

func TestHandleHealth(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/api/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body healthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "healthy", body.Status)
	require.Equal(t, "constellation", body.Service)
}

func TestHandleStatus_ReportsCounts(t *testing.T) {
	server, reg := newTestServer(t)
	reg.RegisterNode("http://node:1", swarm.NodeCapabilities{})
	reg.RegisterClient("http://client:1")

	resp, err := http.Get(server.URL + "/api/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body statusCountsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, 1, body.Nodes)
	require.Equal(t, 1, body.Clients)
}

func TestHandleDashboardHTML_ServesPage(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, resp.Header.Get("Content-Type"), "text/html")
}

func TestHandleStaticAssets_ServesJS(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/static/dashboard.js")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
