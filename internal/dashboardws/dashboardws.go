// Package dashboardws pushes periodic dashboard snapshots to connected
// WebSocket clients and accepts a small set of control messages back
// (spec.md §4.6 "WebSocket push").
package dashboardws

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/master-of-zen/ferris-swarm/internal/swarm"
)

// SnapshotSource supplies the dashboard data pushed to every client.
type SnapshotSource interface {
	Snapshot() swarm.DashboardData
}

// update is the envelope pushed to every connected client.
type update struct {
	Type string              `json:"type"`
	Data swarm.DashboardData `json:"data"`
}

// inbound is a best-effort parse of client-sent control messages.
type inbound struct {
	Type  string `json:"type"`
	Topic string `json:"topic"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler upgrades a connection and drives its send/receive task pair.
type Handler struct {
	source          SnapshotSource
	refreshInterval time.Duration
	log             *logrus.Logger
}

// NewHandler builds a dashboardws.Handler. refreshInterval defaults to 1s
// (spec.md §4.6's `refresh_interval_ms` default) when zero.
func NewHandler(source SnapshotSource, refreshInterval time.Duration, log *logrus.Logger) *Handler {
	if refreshInterval <= 0 {
		refreshInterval = time.Second
	}
	return &Handler{source: source, refreshInterval: refreshInterval, log: log}
}

// ServeHTTP upgrades the request and blocks until the connection ends.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Error("failed to upgrade websocket connection")
		return
	}
	defer func() { _ = conn.Close() }()

	h.log.Info("new dashboard websocket connection established")

	done := make(chan struct{})
	go h.receiveLoop(conn, done)
	h.sendLoop(conn, done)

	h.log.Info("dashboard websocket connection closed")
}

// sendLoop pushes a dashboard_update message every refreshInterval until
// either the send fails or done is closed by the receive loop.
func (h *Handler) sendLoop(conn *websocket.Conn, done chan struct{}) {
	ticker := time.NewTicker(h.refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			msg := update{Type: "dashboard_update", Data: h.source.Snapshot()}
			if err := conn.WriteJSON(msg); err != nil {
				h.log.WithError(err).Debug("websocket send failed, client disconnected")
				closeOnce(done)
				return
			}
		}
	}
}

// receiveLoop parses inbound text frames, recognizing ping,
// request_update, and subscribe; anything else is logged and ignored.
// Closes done when the peer closes or errors, so sendLoop also exits.
func (h *Handler) receiveLoop(conn *websocket.Conn, done chan struct{}) {
	defer closeOnce(done)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			h.log.WithError(err).Debug("websocket connection closed")
			return
		}

		var msg inbound
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		switch msg.Type {
		case "ping":
			h.log.Debug("received ping from websocket client")
		case "request_update":
			h.log.Debug("manual update requested via websocket")
		case "subscribe":
			h.log.WithField("topic", msg.Topic).Debug("client subscribed to topic")
		default:
			h.log.WithField("type", msg.Type).Warn("unknown websocket message type")
		}
	}
}

func closeOnce(done chan struct{}) {
	select {
	case <-done:
	default:
		close(done)
	}
}
