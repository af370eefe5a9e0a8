// If you are AI: This file manages RTMP session state and protocol handling.
// Session tracks connection state, chunk parser, and message handling.

package rtmp

import (
	"encoding/binary"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/Q0R1Y/rtmp-server/internal/core/bytestream"
)

// ErrHandshakeFailed is returned when PerformHandshake is called out of
// order (the session is not in StateHandshaking).
var ErrHandshakeFailed = errors.New("rtmp: session is not awaiting a handshake")

// SessionState represents the current state of an RTMP session.
type SessionState int

const (
	StateHandshaking SessionState = iota
	StateConnected
	StatePublishing
	StateClosed
)

// Session manages an RTMP connection session.
// Handles chunk parsing, message routing, and state management.
type Session struct {
	conn       io.ReadWriter
	parser     *ChunkParser
	state      SessionState
	chunkSize  uint32
	app        string
	streamName string
	streamID   uint32
	// ACK tracking for RTMP protocol
	ackSize   uint32 // Window acknowledgement size we sent to client
	inAckSize uint32 // Total bytes received from client
	inLastAck uint32 // Last ACK value we sent
	mu        sync.RWMutex
}

// NewSession creates a new RTMP session.
func NewSession(conn io.ReadWriter) *Session {
	return &Session{
		conn:      conn,
		parser:    NewChunkParser(),
		state:     StateHandshaking,
		chunkSize: DefaultChunkSize,
		ackSize:   0, // Will be set when we send Window Acknowledgement Size
	}
}

// PerformHandshake performs the RTMP handshake.
func (s *Session) PerformHandshake() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateHandshaking {
		return ErrHandshakeFailed
	}
	if err := PerformServerHandshake(s.conn); err != nil {
		return err
	}
	s.state = StateConnected
	return nil
}

// ReadMessage blocks until one complete message has been reassembled from
// the connection, returning the chunk stream ID it arrived on alongside it.
// A Set-Chunk-Size message from the peer is applied to the incoming chunk
// size before it is returned; a size below the minimum fails with
// ErrChunkSize.
func (s *Session) ReadMessage() (*Message, uint32, error) {
	msg, csID, err := s.parser.ReadMessage(s.conn)
	if err != nil {
		return msg, csID, err
	}
	if msg.Header.MessageType == MessageTypeSetChunkSize {
		size, err := ParseSetChunkSize(msg.Payload)
		if err != nil {
			return nil, csID, err
		}
		s.parser.SetChunkSize(size)
	}
	return msg, csID, nil
}

// WriteMessage writes a message as a format-0 chunk followed by any needed
// format-3 continuations, using this session's current outgoing chunk size.
func (s *Session) WriteMessage(csID uint32, msgType byte, timestamp uint32, streamID uint32, body []byte) error {
	s.mu.RLock()
	chunkSize := s.chunkSize
	s.mu.RUnlock()
	return SendMessage(s.conn, csID, msgType, timestamp, streamID, body, chunkSize)
}

// SetAckSize sets the window acknowledgement size (sent to client).
// This tells the client how often we will acknowledge bytes received.
func (s *Session) SetAckSize(size uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ackSize = size
}

// RecordBytesReceived records bytes received from client and sends ACK if needed.
// Returns true if an ACK was sent.
func (s *Session) RecordBytesReceived(bytesRead uint32) (bool, error) {
	s.mu.Lock()
	s.inAckSize += bytesRead
	// Handle overflow (RTMP spec: reset at 0xf0000000)
	if s.inAckSize >= 0xf0000000 {
		s.inAckSize = 0
		s.inLastAck = 0
	}
	ackSize := s.ackSize
	inAckSize := s.inAckSize
	inLastAck := s.inLastAck
	s.mu.Unlock()

	// Send ACK if we've received enough bytes
	if ackSize > 0 && inAckSize-inLastAck >= ackSize {
		if err := s.SendACK(inAckSize); err != nil {
			return false, err
		}
		s.mu.Lock()
		s.inLastAck = inAckSize
		s.mu.Unlock()
		return true, nil
	}
	return false, nil
}

// SendACK sends an acknowledgement message to the client.
func (s *Session) SendACK(ackSize uint32) error {
	body := make([]byte, 4)
	binary.BigEndian.PutUint32(body, ackSize)
	return s.WriteMessage(2, MessageTypeAck, 0, 0, body)
}

// SetWriteChunkSize sets the chunk size this session uses for outgoing
// messages, as decided locally (e.g. right after identify).
func (s *Session) SetWriteChunkSize(size uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunkSize = size
}

// SetReadChunkSize updates the chunk size expected on incoming chunks, as
// requested by the peer's own Set-Chunk-Size message.
func (s *Session) SetReadChunkSize(size uint32) {
	s.parser.SetChunkSize(size)
}

// GetChunkSize returns the current outgoing chunk size.
func (s *Session) GetChunkSize() uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chunkSize
}

// SetApp sets the application name.
func (s *Session) SetApp(app string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.app = app
}

// GetApp returns the application name.
func (s *Session) GetApp() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.app
}

// SetStreamName sets the stream name.
func (s *Session) SetStreamName(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streamName = name
}

// GetStreamName returns the stream name.
func (s *Session) GetStreamName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.streamName
}

// SetState sets the session state.
func (s *Session) SetState(state SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// GetState returns the current session state.
func (s *Session) GetState() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// SetReadDeadline sets a read deadline on the underlying connection, if it
// supports one. A deadline expiry surfaces from ReadMessage as a net.Error
// with Timeout()==true; callers should translate that into
// bytestream.ErrSocketTimeout.
func (s *Session) SetReadDeadline(t time.Time) error {
	if nc, ok := s.conn.(net.Conn); ok {
		return nc.SetReadDeadline(t)
	}
	return nil
}

// IsTimeout reports whether err is a read/write deadline expiry.
func IsTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}

// ClassifyReadError maps a raw read error to bytestream.ErrSocketTimeout
// when it was caused by a deadline expiry, leaving other errors unchanged.
func ClassifyReadError(err error) error {
	if err == nil {
		return nil
	}
	if IsTimeout(err) {
		return bytestream.ErrSocketTimeout
	}
	return err
}

// Close closes the session.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateClosed
	if closer, ok := s.conn.(io.Closer); ok {
		closer.Close()
	}
}
