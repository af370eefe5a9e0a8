// Play lifecycle: attaching a connection as a stream's player and draining
// its queue onto the wire at steady state.
package rtmp

import (
	"time"

	"github.com/Q0R1Y/rtmp-server/internal/core/bus"
	"github.com/Q0R1Y/rtmp-server/internal/core/bytestream"
	"github.com/Q0R1Y/rtmp-server/internal/core/protocol/amf0"
	rtmpprotocol "github.com/Q0R1Y/rtmp-server/internal/core/protocol/rtmp"
)

const playPulse = 100 * time.Millisecond

// Player drains a subscriber's queue and forwards it onto a session's
// connection.
type Player struct {
	stream *bus.Stream
	sub    *bus.Subscriber
	id     uint64
}

// Detach detaches the player from its stream.
func (p *Player) Detach() {
	if p.stream != nil {
		p.stream.DetachSubscriber(p.id)
	}
}

func backpressureStrategy(name string) bus.BackpressureStrategy {
	if name == "drop-newest" {
		return bus.BackpressureDropNewest
	}
	return bus.BackpressureDropOldest
}

// runPlayLoop attaches the session as streamName's player, sends the
// play-start sequence, then repeatedly pulses: a non-blocking control-message
// read followed by draining every queued message onto the wire.
func (s *ServiceSession) runPlayLoop(streamName string) error {
	streamKey := bus.NewStreamKey(s.GetApp(), streamName)
	if !streamKey.Valid() {
		return ErrClientInvalid
	}
	stream, _ := s.registry.GetOrCreate(streamKey)

	sub, id := stream.AttachSubscriber(s.queue.Capacity, backpressureStrategy(s.queue.Backpressure))
	player := &Player{stream: stream, sub: sub, id: id}
	s.player = player

	if err := s.sendPlayStartSequence(); err != nil {
		return err
	}

	for {
		if err := s.pollControlMessage(); err != nil {
			return err
		}
		if err := s.drainPlayerQueue(player); err != nil {
			return err
		}
	}
}

func (s *ServiceSession) sendPlayStartSequence() error {
	streamID := s.clientStreamID
	if err := s.WriteMessage(rtmpprotocol.ChunkIDProtocolControl, rtmpprotocol.MessageTypeUserCtrl, 0, 0,
		rtmpprotocol.CreateStreamBegin(streamID)); err != nil {
		return err
	}
	if err := s.sendStatusCommand(rtmpprotocol.ChunkIDAudioVideo, streamID, "onStatus",
		newStatus("status", "NetStream.Play.Reset", "Playing and resetting")); err != nil {
		return err
	}
	if err := s.sendStatusCommand(rtmpprotocol.ChunkIDAudioVideo, streamID, "onStatus",
		newStatus("status", "NetStream.Play.Start", "Started playing")); err != nil {
		return err
	}
	if err := s.sendSampleAccess(streamID, false, false); err != nil {
		return err
	}
	return s.sendOnStatusData(streamID, newStatus("status", "NetStream.Data.Start", "Started playing"))
}

func (s *ServiceSession) sendSampleAccess(streamID uint32, audio, video bool) error {
	body, err := amf0.EncodeCommand(amf0.String("|RtmpSampleAccess"), amf0.Boolean(audio), amf0.Boolean(video))
	if err != nil {
		return err
	}
	return s.WriteMessage(rtmpprotocol.ChunkIDAudioVideo, rtmpprotocol.MessageTypeDataAMF0, 0, streamID, body)
}

func (s *ServiceSession) sendOnStatusData(streamID uint32, status *amf0.Object) error {
	body, err := amf0.EncodeCommand(amf0.String("onStatus"), status)
	if err != nil {
		return err
	}
	return s.WriteMessage(rtmpprotocol.ChunkIDAudioVideo, rtmpprotocol.MessageTypeDataAMF0, 0, streamID, body)
}

// pollControlMessage performs one non-blocking read attempt for an incoming
// control message during the play loop; a socket timeout means no message
// arrived this tick and is not an error, any other read error is fatal. A
// successfully read message is currently discarded: no play-control command
// (seek/pause) is implemented by this server.
func (s *ServiceSession) pollControlMessage() error {
	if err := s.SetReadDeadline(time.Now().Add(playPulse)); err != nil {
		return err
	}
	_, _, err := s.ReadMessage()
	if err == nil {
		return nil
	}
	if rtmpprotocol.ClassifyReadError(err) == bytestream.ErrSocketTimeout {
		return nil
	}
	return err
}

// drainPlayerQueue forwards every message currently queued for player onto
// the wire, oldest first, preserving publish order.
func (s *ServiceSession) drainPlayerQueue(player *Player) error {
	for {
		msg, ok := player.sub.Buffer().Read()
		if !ok {
			return nil
		}
		var msgType byte = rtmpprotocol.MessageTypeAudio
		csID := uint32(rtmpprotocol.ChunkIDAudioVideo)
		switch msg.Type {
		case bus.MessageTypeAudio:
			msgType = rtmpprotocol.MessageTypeAudio
		case bus.MessageTypeVideo:
			msgType = rtmpprotocol.MessageTypeVideo
		case bus.MessageTypeMetadata:
			msgType = rtmpprotocol.MessageTypeDataAMF0
			csID = rtmpprotocol.ChunkIDData
		}
		if err := s.WriteMessage(csID, msgType, msg.Timestamp, s.clientStreamID, msg.Payload); err != nil {
			return err
		}
	}
}
