// Package heartbeat implements the node side of auto-registration: it
// registers the node with a constellation and keeps sending it heartbeats
// on a fixed cadence, re-registering when heartbeats start failing
// (spec.md §4.5).
package heartbeat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/master-of-zen/ferris-swarm/internal/swarm"
)

const (
	registerTimeout   = 10 * time.Second
	heartbeatTimeout  = 5 * time.Second
	reregisterBackoff = 60 * time.Second
)

// Config configures a Service's target constellation and reporting cadence.
type Config struct {
	ConstellationURL string
	Address          string
	Capabilities     swarm.NodeCapabilities
	Interval         time.Duration
}

// Service registers this node with a constellation and maintains a
// heartbeat against it, re-registering whenever heartbeats fail.
type Service struct {
	cfg    Config
	client *http.Client
	log    *logrus.Logger

	nodeID uuid.UUID
}

// New builds a Service. Register performs the one-time registration and
// Run starts heartbeating; New does neither.
func New(cfg Config, log *logrus.Logger) *Service {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	return &Service{
		cfg:    cfg,
		client: &http.Client{},
		log:    log,
	}
}

// Register sends this node's address and capabilities to the
// constellation and stores the assigned node ID.
func (s *Service) Register(ctx context.Context) (uuid.UUID, error) {
	registration := struct {
		Address      string                 `json:"address"`
		Capabilities swarm.NodeCapabilities `json:"capabilities"`
	}{Address: s.cfg.Address, Capabilities: s.cfg.Capabilities}

	body, err := json.Marshal(registration)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to encode registration: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, registerTimeout)
	defer cancel()

	url := s.cfg.ConstellationURL + "/api/nodes"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to build registration request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to send registration request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return uuid.Nil, fmt.Errorf("registration failed with status %d", resp.StatusCode)
	}

	var parsed struct {
		NodeID uuid.UUID `json:"node_id"`
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to read registration response: %w", err)
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return uuid.Nil, fmt.Errorf("failed to parse registration response: %w", err)
	}

	s.nodeID = parsed.NodeID
	s.log.WithFields(logrus.Fields{"node_id": s.nodeID, "constellation": s.cfg.ConstellationURL}).Info("registered with constellation")
	return s.nodeID, nil
}

// sendHeartbeat PUTs the node's current status and load.
func (s *Service) sendHeartbeat(ctx context.Context, currentLoad float64) error {
	payload := struct {
		ID          uuid.UUID        `json:"id"`
		Status      swarm.NodeStatus `json:"status"`
		CurrentLoad float64          `json:"current_load"`
	}{ID: s.nodeID, Status: swarm.NodeOnline, CurrentLoad: currentLoad}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode heartbeat: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, heartbeatTimeout)
	defer cancel()

	url := fmt.Sprintf("%s/api/nodes/%s/heartbeat", s.cfg.ConstellationURL, s.nodeID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build heartbeat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send heartbeat: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("heartbeat failed with status %d", resp.StatusCode)
	}
	return nil
}

// LoadFunc reports the node's current load, in [0,1], for a heartbeat.
type LoadFunc func() float64

// Run sends heartbeats every cfg.Interval until stop is closed. On
// failure it retries next tick; if a tick's heartbeat fails it attempts
// one re-registration immediately, and if that also fails it pauses for
// reregisterBackoff before the next tick (spec.md §4.5).
func (s *Service) Run(ctx context.Context, stop <-chan struct{}, loadFn LoadFunc) {
	if loadFn == nil {
		loadFn = func() float64 { return 0 }
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.log.WithFields(logrus.Fields{"node_id": s.nodeID, "interval": s.cfg.Interval}).Info("starting heartbeat service")

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.sendHeartbeat(ctx, loadFn()); err != nil {
				s.log.WithError(err).Warn("heartbeat failed")

				if _, reregisterErr := s.Register(ctx); reregisterErr != nil {
					s.log.WithError(reregisterErr).Error("re-registration failed")
					select {
					case <-time.After(reregisterBackoff):
					case <-stop:
						return
					case <-ctx.Done():
						return
					}
				}
			} else {
				s.log.WithField("node_id", s.nodeID).Debug("heartbeat sent successfully")
			}
		}
	}
}

// NodeID returns the ID assigned at registration, or uuid.Nil if Register
// has not yet succeeded.
func (s *Service) NodeID() uuid.UUID {
	return s.nodeID
}
