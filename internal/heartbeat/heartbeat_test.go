package heartbeat

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/master-of-zen/ferris-swarm/internal/swarm"
)

func newTestLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestRegister_StoresNodeID(t *testing.T) {
	wantID := uuid.New()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/nodes", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)

		var body struct {
			Address      string                 `json:"address"`
			Capabilities swarm.NodeCapabilities `json:"capabilities"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "http://node:9000", body.Address)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"node_id": wantID, "status": "registered"})
	}))
	defer server.Close()

	svc := New(Config{
		ConstellationURL: server.URL,
		Address:          "http://node:9000",
		Capabilities:     swarm.NodeCapabilities{CPUCores: 4},
	}, newTestLogger())

	gotID, err := svc.Register(context.Background())
	require.NoError(t, err)
	require.Equal(t, wantID, gotID)
	require.Equal(t, wantID, svc.NodeID())
}

func TestRegister_NonSuccessStatusFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	svc := New(Config{ConstellationURL: server.URL, Address: "http://node:9000"}, newTestLogger())
	_, err := svc.Register(context.Background())
	require.Error(t, err)
}

func TestRun_SendsPeriodicHeartbeats(t *testing.T) {
	nodeID := uuid.New()
	var heartbeatCount int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/nodes":
			_ = json.NewEncoder(w).Encode(map[string]any{"node_id": nodeID})
		case r.Method == http.MethodPut:
			atomic.AddInt32(&heartbeatCount, 1)
			_ = json.NewEncoder(w).Encode(map[string]any{"status": "updated"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	svc := New(Config{
		ConstellationURL: server.URL,
		Address:          "http://node:9000",
		Interval:         5 * time.Millisecond,
	}, newTestLogger())

	_, err := svc.Register(context.Background())
	require.NoError(t, err)

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		svc.Run(context.Background(), stop, nil)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&heartbeatCount) >= 2
	}, time.Second, 5*time.Millisecond)

	close(stop)
	<-done
}

func TestRun_ReregistersAfterHeartbeatFailure(t *testing.T) {
	firstNodeID := uuid.New()
	secondNodeID := uuid.New()
	var registrations, heartbeats int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/nodes":
			n := atomic.AddInt32(&registrations, 1)
			id := firstNodeID
			if n > 1 {
				id = secondNodeID
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"node_id": id})
		case r.Method == http.MethodPut:
			n := atomic.AddInt32(&heartbeats, 1)
			if n == 1 {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"status": "updated"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	svc := New(Config{
		ConstellationURL: server.URL,
		Address:          "http://node:9000",
		Interval:         5 * time.Millisecond,
	}, newTestLogger())

	_, err := svc.Register(context.Background())
	require.NoError(t, err)
	require.Equal(t, firstNodeID, svc.NodeID())

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		svc.Run(context.Background(), stop, nil)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return svc.NodeID() == secondNodeID
	}, time.Second, 5*time.Millisecond)

	close(stop)
	<-done
}
