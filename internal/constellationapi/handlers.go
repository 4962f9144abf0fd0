// Package constellationapi is the constellation's HTTP surface: node and
// client registration, heartbeats, job and chunk updates, the dashboard
// snapshot and its WebSocket feed, and static dashboard assets (spec.md
// §6, §4.6).
package constellationapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/master-of-zen/ferris-swarm/internal/dashboardws"
	"github.com/master-of-zen/ferris-swarm/internal/registry"
	"github.com/master-of-zen/ferris-swarm/internal/swarm"
)

const serviceName = "constellation"

// Version is reported by /api/health. Overridable at link time via
// -ldflags "-X .../constellationapi.Version=...".
var Version = "dev"

// Handler serves the constellation's HTTP API.
type Handler struct {
	reg       *registry.Registry
	validator *validator.Validate
	log       *logrus.Logger
	ws        *dashboardws.Handler
}

// NewHandler builds a Handler backed by reg. refreshInterval configures
// the dashboard WebSocket's push cadence.
func NewHandler(reg *registry.Registry, refreshInterval time.Duration, log *logrus.Logger) *Handler {
	return &Handler{
		reg:       reg,
		validator: validator.New(),
		log:       log,
		ws:        dashboardws.NewHandler(reg, refreshInterval, log),
	}
}

// RegisterRoutes wires every path in spec.md §6's HTTP surface table.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/nodes", h.handleRegisterNode).Methods(http.MethodPost)
	api.HandleFunc("/nodes/{id}/heartbeat", h.handleNodeHeartbeat).Methods(http.MethodPut)
	api.HandleFunc("/clients", h.handleRegisterClient).Methods(http.MethodPost)
	api.HandleFunc("/clients/{id}/heartbeat", h.handleClientHeartbeat).Methods(http.MethodPut)
	api.HandleFunc("/jobs", h.handleCreateJob).Methods(http.MethodPost)
	api.HandleFunc("/jobs/{id}", h.handleUpdateJob).Methods(http.MethodPut)
	api.HandleFunc("/chunks/{id}", h.handleUpdateChunk).Methods(http.MethodPut)
	api.HandleFunc("/dashboard/data", h.handleDashboardData).Methods(http.MethodGet)
	api.HandleFunc("/status", h.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/health", h.handleHealth).Methods(http.MethodGet)

	r.HandleFunc("/ws", h.ws.ServeHTTP)
	r.HandleFunc("/", h.handleDashboardHTML).Methods(http.MethodGet)
	r.PathPrefix("/static/").Handler(http.StripPrefix("/static/", http.FileServer(http.FS(staticAssets))))
}

func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return false
	}
	return true
}

func (h *Handler) handleRegisterNode(w http.ResponseWriter, r *http.Request) {
	var req nodeRegistrationRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	id := h.reg.RegisterNode(req.Address, req.Capabilities)
	h.writeJSON(w, http.StatusOK, registeredResponse{NodeID: id, Status: "registered"})
}

func (h *Handler) handleRegisterClient(w http.ResponseWriter, r *http.Request) {
	var req clientRegistrationRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	id := h.reg.RegisterClient(req.Address)
	h.writeJSON(w, http.StatusOK, clientRegisteredResponse{ClientID: id, Status: "registered"})
}

func (h *Handler) handleNodeHeartbeat(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req heartbeatRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	if !h.reg.NodeHeartbeat(id, swarm.NodeStatus(req.Status)) {
		h.writeError(w, http.StatusNotFound, "unknown node", "NOT_FOUND")
		return
	}
	h.writeJSON(w, http.StatusOK, statusResponse{Status: "updated"})
}

func (h *Handler) handleClientHeartbeat(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req heartbeatRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	if !h.reg.ClientHeartbeat(id, swarm.ClientStatus(req.Status)) {
		h.writeError(w, http.StatusNotFound, "unknown client", "NOT_FOUND")
		return
	}
	h.writeJSON(w, http.StatusOK, statusResponse{Status: "updated"})
}

func (h *Handler) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	id := h.reg.CreateJob(req.ClientID, req.VideoFile, req.EncoderParameters)
	h.writeJSON(w, http.StatusOK, jobCreatedResponse{JobID: id, Status: "created"})
}

func (h *Handler) handleUpdateJob(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req jobUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}

	update := registry.JobUpdate{
		TotalChunks:         req.TotalChunks,
		CompletedChunks:     req.CompletedChunks,
		FailedChunks:        req.FailedChunks,
		ErrorMessage:        req.ErrorMessage,
		EstimatedCompletion: req.EstimatedCompletion,
	}
	if req.Status != nil {
		status := swarm.JobStatus(*req.Status)
		update.Status = &status
	}

	if !h.reg.UpdateJob(id, update) {
		h.writeError(w, http.StatusNotFound, "unknown job", "NOT_FOUND")
		return
	}
	h.writeJSON(w, http.StatusOK, statusResponse{Status: "updated"})
}

func (h *Handler) handleUpdateChunk(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req chunkUpdateRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	update := registry.ChunkUpdate{
		Status:          swarm.ChunkAssignmentStatus(req.Status),
		ProgressPercent: req.ProgressPercent,
		ErrorMessage:    req.ErrorMessage,
	}
	if !h.reg.UpdateChunk(id, update) {
		h.writeError(w, http.StatusNotFound, "unknown chunk", "NOT_FOUND")
		return
	}
	h.writeJSON(w, http.StatusOK, statusResponse{Status: "updated"})
}

func (h *Handler) handleDashboardData(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.reg.Snapshot())
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := h.reg.Snapshot()
	h.writeJSON(w, http.StatusOK, statusCountsResponse{
		Service: serviceName,
		Nodes:   len(snap.Nodes),
		Clients: len(snap.Clients),
		Jobs:    len(snap.Jobs),
		Chunks:  len(snap.Chunks),
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, healthResponse{Status: "healthy", Service: serviceName, Version: Version})
}

func (h *Handler) pathUUID(w http.ResponseWriter, r *http.Request, key string) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)[key])
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid id", "INVALID_ID")
		return uuid.UUID{}, false
	}
	return id, true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.WithError(err).Warn("failed to write response body")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message, code string) {
	h.writeJSON(w, status, errorResponse{Error: message, Code: code})
}
