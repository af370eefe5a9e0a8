// Publish lifecycle: attaching a connection as a stream's publisher,
// forwarding audio/video/metadata onto the shared bus, and the FMLE
// FCUnpublish termination sequence.
package rtmp

import (
	"errors"
	"log"
	"sync/atomic"

	"github.com/Q0R1Y/rtmp-server/internal/core/bus"
	"github.com/Q0R1Y/rtmp-server/internal/core/protocol/amf0"
	"github.com/Q0R1Y/rtmp-server/internal/core/protocol/flv"
	rtmpprotocol "github.com/Q0R1Y/rtmp-server/internal/core/protocol/rtmp"
)

var nextPublisherID uint64

// errAlreadyPublishing is returned when a publish command targets a stream
// that already has a publisher attached.
var errAlreadyPublishing = errors.New("rtmp: stream already has a publisher")

// Publisher forwards one session's incoming audio/video/data messages onto
// its attached stream.
type Publisher struct {
	stream    *bus.Stream
	streamKey bus.StreamKey
	id        uint64
}

// NewPublisher attaches a new publisher to stream, failing if one is
// already attached.
func NewPublisher(stream *bus.Stream) (*Publisher, bool) {
	id := atomic.AddUint64(&nextPublisherID, 1)
	if !stream.AttachPublisher(id) {
		return nil, false
	}
	return &Publisher{stream: stream, streamKey: stream.Key(), id: id}, true
}

func (p *Publisher) publishAudio(timestamp uint32, payload []byte) {
	msg := bus.AcquireMessage()
	msg.Type = bus.MessageTypeAudio
	msg.Timestamp = timestamp
	msg.SetPayload(payload)
	msg.IsInit = flv.IsAudioSequenceHeader(payload)
	p.stream.Publish(msg)
}

func (p *Publisher) publishVideo(timestamp uint32, payload []byte) {
	msg := bus.AcquireMessage()
	msg.Type = bus.MessageTypeVideo
	msg.Timestamp = timestamp
	msg.SetPayload(payload)
	msg.IsInit = flv.IsVideoSequenceHeader(payload)
	p.stream.Publish(msg)
}

func (p *Publisher) publishMetadata(timestamp uint32, payload []byte) {
	msg := bus.AcquireMessage()
	msg.Type = bus.MessageTypeMetadata
	msg.Timestamp = timestamp
	msg.SetPayload(withServerTag(payload))
	msg.IsInit = true
	p.stream.Publish(msg)
}

// withServerTag decodes an onMetaData (or @setDataFrame-wrapped onMetaData)
// command, injects a server identification field into its metadata
// container, and re-encodes it. Returns the original payload unchanged if
// it can't be decoded or carries no object/array container to tag.
func withServerTag(payload []byte) []byte {
	values, err := amf0.DecodeCommand(payload)
	if err != nil || len(values) == 0 {
		return payload
	}

	last := len(values) - 1
	switch meta := values[last].(type) {
	case *amf0.Object:
		meta.Set("server", amf0.String(serverSignature))
	case *amf0.EcmaArray:
		meta.Set("server", amf0.String(serverSignature))
	default:
		return payload
	}

	encoded, err := amf0.EncodeCommand(values...)
	if err != nil {
		return payload
	}
	return encoded
}

// Detach detaches the publisher from its stream.
func (p *Publisher) Detach() {
	if p.stream != nil {
		p.stream.DetachPublisher()
	}
}

// runPublishLoop attaches the session as streamName's publisher, runs the
// publish-start response sequence, then forwards every audio/video/data
// message until FCUnpublish, socket close, or a fatal decode error.
func (s *ServiceSession) runPublishLoop(streamName string) error {
	streamKey := bus.NewStreamKey(s.GetApp(), streamName)
	if !streamKey.Valid() {
		return ErrClientInvalid
	}
	stream, created := s.registry.GetOrCreate(streamKey)
	if !created {
		log.Printf("rtmp: publishing into existing stream %s", streamKey)
	}

	publisher, ok := NewPublisher(stream)
	if !ok {
		return errAlreadyPublishing
	}
	s.publisher = publisher
	s.SetState(rtmpprotocol.StatePublishing)

	if err := s.sendStatusCommand(rtmpprotocol.ChunkIDCommand, s.clientStreamID, "onFCPublish",
		newStatus("status", "NetStream.Publish.Start", "Start publishing")); err != nil {
		return err
	}
	if err := s.sendStatusCommand(rtmpprotocol.ChunkIDAudioVideo, s.clientStreamID, "onStatus",
		newStatus("status", "NetStream.Publish.Start", "Start publishing")); err != nil {
		return err
	}

	for {
		msg, _, err := s.ReadMessage()
		if err != nil {
			return err
		}

		switch msg.Header.MessageType {
		case rtmpprotocol.MessageTypeAudio:
			publisher.publishAudio(msg.Header.Timestamp, msg.Payload)
		case rtmpprotocol.MessageTypeVideo:
			publisher.publishVideo(msg.Header.Timestamp, msg.Payload)
		case rtmpprotocol.MessageTypeDataAMF0, rtmpprotocol.MessageTypeDataAMF3:
			if isOnMetaData(msg.Payload) {
				publisher.publishMetadata(msg.Header.Timestamp, msg.Payload)
			}
		case rtmpprotocol.MessageTypeCommandAMF0:
			values, err := amf0.DecodeCommand(msg.Payload)
			if err != nil {
				return err
			}
			name, _ := asString(firstOf(values, 0))
			if name == "FCUnpublish" {
				return s.handleFCUnpublish(asNumber(firstOf(values, 1)))
			}
			log.Printf("rtmp: unhandled publish-loop command %q", name)
		default:
			// Set-Chunk-Size is already applied by ReadMessage; other
			// protocol-control and message types need no action here.
		}
	}
}

// handleFCUnpublish sends the three-message unpublish response sequence
// and ends the session; attached players are left connected but simply
// stop receiving frames once the publisher detaches.
func (s *ServiceSession) handleFCUnpublish(tid float64) error {
	if err := s.sendStatusCommand(rtmpprotocol.ChunkIDCommand, s.clientStreamID, "onFCUnpublish",
		newStatus("status", "NetStream.Unpublish.Success", "Stop publishing")); err != nil {
		return err
	}
	if err := s.sendFMLEResult(tid); err != nil {
		return err
	}
	return s.sendStatusCommand(rtmpprotocol.ChunkIDAudioVideo, s.clientStreamID, "onStatus",
		newStatus("status", "NetStream.Unpublish.Success", "Stop publishing"))
}

func isOnMetaData(body []byte) bool {
	values, err := amf0.DecodeCommand(body)
	if err != nil || len(values) == 0 {
		return false
	}
	name, _ := asString(values[0])
	return name == "onMetaData" || name == "@setDataFrame"
}
