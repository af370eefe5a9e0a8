// Package server wires the RTMP listener and the websocket/health HTTP
// server together behind one shared stream registry, and coordinates their
// graceful shutdown.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Q0R1Y/rtmp-server/internal/config"
	"github.com/Q0R1Y/rtmp-server/internal/core/bus"
	"github.com/Q0R1Y/rtmp-server/internal/svc/health"
	rtmpsvc "github.com/Q0R1Y/rtmp-server/internal/svc/rtmp"
	"github.com/Q0R1Y/rtmp-server/internal/svc/wsegress"
)

const defaultShutdownTimeout = 5 * time.Second

// remaining returns the time left until ctx's deadline, or a default
// timeout if ctx carries none.
func remaining(ctx context.Context) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return defaultShutdownTimeout
	}
	if d := time.Until(deadline); d > 0 {
		return d
	}
	return 0
}

// Server bundles the RTMP listener with the two HTTP servers that serve
// websocket egress and health/stats on their own configured ports.
type Server struct {
	registry  *bus.Registry
	rtmpSrv   *rtmpsvc.Server
	wsServer  *http.Server
	healthSrv *http.Server
}

// New builds a server from cfg. The server is not started until Start is
// called.
func New(cfg *config.Config) *Server {
	registry := bus.NewRegistry()

	wsMux := http.NewServeMux()
	wsegress.NewService(registry, cfg.Queue).RegisterRoutes(wsMux)

	healthMux := http.NewServeMux()
	health.New(registry).RegisterRoutes(healthMux)

	return &Server{
		registry: registry,
		rtmpSrv:  rtmpsvc.NewServer(registry, cfg.Queue),
		wsServer: &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Server.WSPort),
			Handler: wsMux,
		},
		healthSrv: &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Server.HealthPort),
			Handler: healthMux,
		},
	}
}

// Start listens on the RTMP, websocket, and health ports and blocks running
// all three until one fails or Shutdown is called.
func (s *Server) Start(rtmpPort int) error {
	if err := s.rtmpSrv.Listen(fmt.Sprintf(":%d", rtmpPort)); err != nil {
		return fmt.Errorf("listen rtmp: %w", err)
	}

	errCh := make(chan error, 3)
	go func() { errCh <- s.rtmpSrv.Accept() }()
	go func() {
		if err := s.wsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	go func() {
		if err := s.healthSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	return <-errCh
}

// Shutdown stops accepting new RTMP connections and new HTTP requests on
// both servers, giving in-flight work until ctx's deadline to finish before
// force-closing.
func (s *Server) Shutdown(ctx context.Context) error {
	s.rtmpSrv.Shutdown(remaining(ctx))
	if err := s.wsServer.Shutdown(ctx); err != nil {
		return err
	}
	return s.healthSrv.Shutdown(ctx)
}
