// Handler upgrades GET /ws?app=<app>&stream=<name> into a websocket
// connection and streams a live source to it as FLV.
package wsegress

import (
	"net/http"

	"github.com/Q0R1Y/rtmp-server/internal/config"
	"github.com/Q0R1Y/rtmp-server/internal/core/bus"
	"github.com/gorilla/websocket"
)

// Handler handles websocket FLV egress requests.
type Handler struct {
	registry *bus.Registry
	queue    config.QueueConfig
	upgrader websocket.Upgrader
}

// NewHandler creates a websocket-FLV handler bound to registry, attaching
// players with the given queue policy.
func NewHandler(registry *bus.Registry, queue config.QueueConfig) *Handler {
	return &Handler{
		registry: registry,
		queue:    queue,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP handles GET /ws?app=<app>&stream=<name>.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	app := r.URL.Query().Get("app")
	name := r.URL.Query().Get("stream")
	streamKey := bus.NewStreamKey(app, name)
	if !streamKey.Valid() {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	stream := h.registry.Get(streamKey)
	if stream == nil || !stream.HasPublisher() {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	sub := NewSubscriber(conn, stream)
	defer func() {
		sub.Detach()
		conn.Close()
	}()

	sub.Attach(h.queue.Capacity, backpressureStrategy(h.queue.Backpressure))

	if err := sub.WriteHeader(true, true); err != nil {
		return
	}
	sub.ProcessMessages()
}

func backpressureStrategy(name string) bus.BackpressureStrategy {
	if name == "drop-newest" {
		return bus.BackpressureDropNewest
	}
	return bus.BackpressureDropOldest
}

// RegisterRoutes registers the websocket egress route on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", h.ServeHTTP)
}
