// Service integrates websocket-FLV egress into the main HTTP server.
package wsegress

import (
	"net/http"

	"github.com/Q0R1Y/rtmp-server/internal/config"
	"github.com/Q0R1Y/rtmp-server/internal/core/bus"
)

// Service provides websocket-FLV streaming functionality.
type Service struct {
	handler *Handler
}

// NewService creates a websocket-FLV service bound to registry.
func NewService(registry *bus.Registry, queue config.QueueConfig) *Service {
	return &Service{handler: NewHandler(registry, queue)}
}

// RegisterRoutes registers the websocket egress route on mux.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.handler.RegisterRoutes(mux)
}
