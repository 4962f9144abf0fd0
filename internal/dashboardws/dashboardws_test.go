package dashboardws

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/master-of-zen/ferris-swarm/internal/swarm"
)

type fakeSource struct{ snap swarm.DashboardData }

func (f fakeSource) Snapshot() swarm.DashboardData { return f.snap }

func newTestLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestHandler_PushesDashboardUpdates(t *testing.T) {
	source := fakeSource{snap: swarm.DashboardData{Stats: swarm.SystemStats{TotalNodes: 2}}}
	h := NewHandler(source, 10*time.Millisecond, newTestLogger())

	server := httptest.NewServer(http.HandlerFunc(h.ServeHTTP))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var got update
	require.NoError(t, conn.ReadJSON(&got))
	require.Equal(t, "dashboard_update", got.Type)
	require.Equal(t, uint32(2), got.Data.Stats.TotalNodes)
}

func TestHandler_ClosesWhenClientDisconnects(t *testing.T) {
	source := fakeSource{}
	h := NewHandler(source, 5*time.Millisecond, newTestLogger())

	finished := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.ServeHTTP(w, r)
		close(finished)
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)

	require.NoError(t, conn.ReadJSON(&update{}))
	require.NoError(t, conn.Close())

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not return after the client disconnected")
	}
}

func TestHandler_AcceptsControlMessages(t *testing.T) {
	source := fakeSource{}
	h := NewHandler(source, 5*time.Millisecond, newTestLogger())

	server := httptest.NewServer(http.HandlerFunc(h.ServeHTTP))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(inbound{Type: "subscribe", Topic: "nodes"}))
	require.NoError(t, conn.WriteJSON(inbound{Type: "ping"}))

	var got update
	require.NoError(t, conn.ReadJSON(&got))
	require.Equal(t, "dashboard_update", got.Type)
}
