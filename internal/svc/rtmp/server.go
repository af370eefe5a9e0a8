// Server accepts RTMP connections and runs one session goroutine per
// connection against the shared stream registry.
package rtmp

import (
	"log"
	"net"
	"sync"
	"time"

	"github.com/Q0R1Y/rtmp-server/internal/config"
	"github.com/Q0R1Y/rtmp-server/internal/core/bus"
	rtmpprotocol "github.com/Q0R1Y/rtmp-server/internal/core/protocol/rtmp"
)

// Server is an RTMP listener bound to a stream registry.
type Server struct {
	registry *bus.Registry
	queue    config.QueueConfig
	listener net.Listener

	mu    sync.Mutex
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
}

// NewServer creates an RTMP server.
func NewServer(registry *bus.Registry, queue config.QueueConfig) *Server {
	return &Server{
		registry: registry,
		queue:    queue,
		conns:    make(map[net.Conn]struct{}),
	}
}

// Listen starts listening on addr.
func (s *Server) Listen(addr string) error {
	var err error
	s.listener, err = net.Listen("tcp", addr)
	return err
}

// Accept runs the accept loop, spawning one goroutine per connection, until
// the listener is closed.
func (s *Server) Accept() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	remote := conn.RemoteAddr().String()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		if err := conn.Close(); err != nil {
			log.Printf("rtmp[%s]: close error: %v", remote, err)
		}
	}()

	session := NewServiceSession(conn, s.registry, s.queue)
	defer session.Close()

	if err := session.Run(); err != nil {
		if err == rtmpprotocol.ErrPlainRequired {
			return
		}
		log.Printf("rtmp[%s]: session ended: %v", remote, err)
	}
}

// Close closes the listener immediately, without waiting for in-flight
// sessions. Accept returns once the listener is closed.
func (s *Server) Close() error {
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}

// Shutdown closes the listener so no new connections are accepted, then
// waits up to timeout for in-flight sessions to finish on their own before
// force-closing whatever is still open.
func (s *Server) Shutdown(timeout time.Duration) {
	s.Close()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return
	case <-time.After(timeout):
	}

	s.mu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	<-done
}
