// Package health implements the server's liveness and stats surface:
// GET /healthz for process liveness and GET /stats for a JSON snapshot of
// every registered stream, merged from the former separate API service.
package health

import (
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/Q0R1Y/rtmp-server/internal/core/bus"
)

// Service provides health and stats endpoints.
type Service struct {
	registry  *bus.Registry
	startTime int64
}

// StatsResponse is the /stats JSON body.
type StatsResponse struct {
	Uptime    int64                `json:"uptime"`
	GoVersion string               `json:"go_version"`
	Streams   []bus.StreamSnapshot `json:"streams"`
}

// New creates a health service bound to registry, whose state it reports.
func New(registry *bus.Registry) *Service {
	return &Service{registry: registry, startTime: time.Now().Unix()}
}

// RegisterRoutes adds /healthz and /stats to the provided mux.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/stats", s.handleStats)
}

// handleHealth returns 200 OK while the server is serving.
func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// handleStats returns a JSON snapshot of the stream registry.
func (s *Service) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	resp := StatsResponse{
		Uptime:    time.Now().Unix() - s.startTime,
		GoVersion: runtime.Version(),
		Streams:   s.registry.Snapshot(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
