package main

import (
	"encoding/json"
	"net/http"
	"sync/atomic"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	_ "github.com/ruaan-deysel/intelgpu/cmd/gpu-broadcast/docs"
	"github.com/ruaan-deysel/intelgpu"
)

// server exposes REST, WebSocket, Prometheus, and Swagger UI endpoints over
// the latest sampled GpuStats snapshot.
type server struct {
	router *mux.Router
	hub    *wsHub
	latest atomic.Value // intelgpu.GpuStats
}

func newServer(hub *wsHub) *server {
	s := &server{router: mux.NewRouter(), hub: hub}
	s.setupRoutes()
	return s
}

func (s *server) setupRoutes() {
	s.router.HandleFunc("/metrics", promhttp.Handler().ServeHTTP).Methods(http.MethodGet)
	s.router.PathPrefix("/swagger/").Handler(httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
		httpSwagger.DeepLinking(true),
	))

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	api.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	api.HandleFunc("/clients", s.handleClients).Methods(http.MethodGet)
	api.HandleFunc("/ws", s.hub.handleWebSocket).Methods(http.MethodGet)
}

// record stores the most recently sampled snapshot for REST consumers.
func (s *server) record(stats intelgpu.GpuStats) {
	s.latest.Store(stats)
}

// handleHealth godoc
//
//	@Summary		Health check
//	@Tags			Stats
//	@Router			/health [get]
func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleStats godoc
//
//	@Summary		Current GPU telemetry snapshot
//	@Description	Returns the most recently sampled GpuStats, or 503 if no sample has completed yet.
//	@Tags			Stats
//	@Produce		json
//	@Success		200	{object}	intelgpu.GpuStats
//	@Router			/stats [get]
func (s *server) handleStats(w http.ResponseWriter, _ *http.Request) {
	v := s.latest.Load()
	if v == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no sample yet"})
		return
	}
	writeJSON(w, http.StatusOK, v.(intelgpu.GpuStats))
}

// handleClients godoc
//
//	@Summary		Active Quick Sync clients
//	@Description	Lists the processes currently consuming the video or video-enhance engines, by PID.
//	@Tags			Clients
//	@Produce		json
//	@Router			/clients [get]
func (s *server) handleClients(w http.ResponseWriter, _ *http.Request) {
	clients, err := intelgpu.FindQuicksyncClients()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, clients)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
