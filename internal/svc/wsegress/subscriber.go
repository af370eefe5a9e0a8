// Subscriber drains a stream's player queue and writes it to a browser
// client as FLV tags over a binary websocket connection.
package wsegress

import (
	"runtime"

	"github.com/Q0R1Y/rtmp-server/internal/core/bus"
	"github.com/Q0R1Y/rtmp-server/internal/core/protocol/flv"
	"github.com/gorilla/websocket"
)

// WebSocketConn is the subset of *websocket.Conn this package depends on,
// narrowed for easier testing.
type WebSocketConn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Subscriber is a websocket player attached to a LiveSource.
type Subscriber struct {
	conn          WebSocketConn
	busSubscriber *bus.Subscriber
	stream        *bus.Stream
	subscriberID  uint64
	headerWritten bool
	gotKeyframe   bool
	tsOffset      uint32
	tsBaseSet     bool
}

// NewSubscriber creates a websocket subscriber bound to stream, not yet
// attached.
func NewSubscriber(conn WebSocketConn, stream *bus.Stream) *Subscriber {
	return &Subscriber{conn: conn, stream: stream}
}

// WriteHeader writes the FLV file header as the first websocket frame.
func (s *Subscriber) WriteHeader(hasAudio, hasVideo bool) error {
	if s.headerWritten {
		return nil
	}
	header := flv.NewHeader(hasAudio, hasVideo).Bytes()
	frame := append(header, flv.PreviousTagSizeZero()...)
	if err := s.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return err
	}
	s.headerWritten = true
	return nil
}

// ProcessMessages drains the subscriber's queue onto the websocket
// connection, one FLV tag per binary frame, until the connection errors.
// No frame is written until the first video keyframe arrives (init
// messages excepted), so audio and video always start together for the
// browser decoder. Timestamps are rebased to start at zero for the same
// reason the RTMP play path does not need to: a websocket player always
// joins mid-stream relative to the publisher's own clock.
func (s *Subscriber) ProcessMessages() error {
	if s.busSubscriber == nil {
		return nil
	}
	for {
		msg, ok := s.busSubscriber.Buffer().Read()
		if !ok {
			runtime.Gosched()
			continue
		}

		if !s.gotKeyframe && !msg.IsInit {
			if msg.Type == bus.MessageTypeVideo && flv.IsVideoKeyframe(msg.Payload) {
				s.gotKeyframe = true
			} else {
				continue
			}
		}

		tag := flv.MuxMessage(msg)
		if tag == nil {
			continue
		}
		tag.Timestamp = s.rebaseTimestamp(msg)

		if err := s.conn.WriteMessage(websocket.BinaryMessage, tag.Bytes()); err != nil {
			return err
		}
	}
}

func (s *Subscriber) rebaseTimestamp(msg *bus.MediaMessage) uint32 {
	if msg.IsInit {
		return 0
	}
	if !s.tsBaseSet {
		s.tsOffset = msg.Timestamp
		s.tsBaseSet = true
	}
	if msg.Timestamp < s.tsOffset {
		return 0
	}
	return msg.Timestamp - s.tsOffset
}

// Attach attaches the subscriber to its stream with the given queue policy.
func (s *Subscriber) Attach(capacity uint32, strategy bus.BackpressureStrategy) uint64 {
	busSub, id := s.stream.AttachSubscriber(capacity, strategy)
	s.busSubscriber = busSub
	s.subscriberID = id
	return id
}

// Detach releases the subscriber's queue back to the stream.
func (s *Subscriber) Detach() {
	if s.stream != nil && s.subscriberID != 0 {
		s.stream.DetachSubscriber(s.subscriberID)
		s.subscriberID = 0
		s.busSubscriber = nil
	}
}
