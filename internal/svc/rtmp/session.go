// Package rtmp implements the ingest/relay session state machine: connect
// negotiation, identify, and the publish/play loops that attach a
// connection to the shared media bus.
package rtmp

import (
	"errors"
	"io"
	"log"

	"github.com/Q0R1Y/rtmp-server/internal/config"
	"github.com/Q0R1Y/rtmp-server/internal/core/bus"
	"github.com/Q0R1Y/rtmp-server/internal/core/protocol/amf0"
	rtmpprotocol "github.com/Q0R1Y/rtmp-server/internal/core/protocol/rtmp"
)

// ErrClientInvalid is returned when the publish or play command names an
// invalid stream (empty app or stream name), or when identify ends in
// neither role.
var ErrClientInvalid = errors.New("rtmp: client never identified as a publisher or player")

const serverSignature = "Q0R1Y-rtmp/1.0"

// ServiceSession wraps the protocol-level Session with the bus-facing
// command handlers and publish/play lifecycle.
type ServiceSession struct {
	*rtmpprotocol.Session
	registry       *bus.Registry
	queue          config.QueueConfig
	publisher      *Publisher
	player         *Player
	nextStreamID   uint32
	createTID      float64
	clientStreamID uint32
}

// NewServiceSession creates a new service session bound to the shared
// stream registry and the configured player queue policy.
func NewServiceSession(conn io.ReadWriter, registry *bus.Registry, queue config.QueueConfig) *ServiceSession {
	return &ServiceSession{
		Session:      rtmpprotocol.NewSession(conn),
		registry:     registry,
		queue:        queue,
		nextStreamID: 1,
	}
}

// Run drives one connection end to end: handshake, negotiate, identify,
// then hands off to the publish or play loop. It returns when the
// connection should close.
func (s *ServiceSession) Run() error {
	if err := s.PerformHandshake(); err != nil {
		return err
	}

	if err := s.expectConnect(); err != nil {
		return err
	}

	kind, streamName, err := s.identify()
	if err != nil {
		return err
	}

	s.SetWriteChunkSize(rtmpprotocol.OutgoingChunkSize)
	if err := s.WriteMessage(rtmpprotocol.ChunkIDProtocolControl, rtmpprotocol.MessageTypeSetChunkSize, 0, 0,
		rtmpprotocol.CreateSetChunkSize(rtmpprotocol.OutgoingChunkSize)); err != nil {
		return err
	}

	switch kind {
	case identifyPublish:
		return s.runPublishLoop(streamName)
	case identifyPlay:
		return s.runPlayLoop(streamName)
	default:
		return ErrClientInvalid
	}
}

// expectConnect reads messages until the connect command arrives, then runs
// Negotiate: WindowAckSize, SetPeerBandwidth, connect-response, onBWDone.
func (s *ServiceSession) expectConnect() error {
	for {
		msg, _, err := s.ReadMessage()
		if err != nil {
			return err
		}
		if msg.Header.MessageType != rtmpprotocol.MessageTypeCommandAMF0 {
			continue
		}
		values, err := amf0.DecodeCommand(msg.Payload)
		if err != nil {
			return err
		}
		name, _ := asString(firstOf(values, 0))
		if name != "connect" {
			continue
		}
		return s.handleConnect(values)
	}
}

func (s *ServiceSession) handleConnect(command []amf0.Value) error {
	obj, ok := asObject(firstOf(command, 2))
	if !ok {
		return ErrReqTcUrl
	}
	tcURLValue, ok := obj.Get("tcUrl")
	if !ok {
		return ErrReqTcUrl
	}
	tcURL, ok := asString(tcURLValue)
	if !ok {
		return ErrReqTcUrl
	}
	app, err := discoveryApp(tcURL)
	if err != nil {
		return err
	}
	s.SetApp(app)
	objectEncoding, _ := obj.Get("objectEncoding")

	if err := s.WriteMessage(rtmpprotocol.ChunkIDProtocolControl, rtmpprotocol.MessageTypeWinAckSize, 0, 0,
		rtmpprotocol.CreateWindowAckSize(rtmpprotocol.DefaultWindowAckSize)); err != nil {
		return err
	}
	if err := s.WriteMessage(rtmpprotocol.ChunkIDProtocolControl, rtmpprotocol.MessageTypeSetPeerBandwidth, 0, 0,
		rtmpprotocol.CreateSetPeerBandwidth(rtmpprotocol.DefaultPeerBandwidth, rtmpprotocol.PeerBandwidthTypeDynamic)); err != nil {
		return err
	}
	if err := s.sendConnectResult(asNumber(objectEncoding)); err != nil {
		return err
	}
	return s.sendOnBWDone()
}

func (s *ServiceSession) sendConnectResult(objectEncoding float64) error {
	props := amf0.NewObject()
	props.Set("fmsVer", amf0.String("FMS/3,5,3,888"))
	props.Set("capabilities", amf0.Number(127))
	props.Set("mode", amf0.Number(1))

	data := amf0.NewEcmaArray()
	data.Set("version", amf0.String("3,5,3,888"))
	data.Set("server", amf0.String(serverSignature))
	data.Set("rss_url", amf0.String(""))
	data.Set("rss_version", amf0.String(""))

	info := amf0.NewObject()
	info.Set("level", amf0.String("status"))
	info.Set("code", amf0.String("NetConnection.Connect.Success"))
	info.Set("description", amf0.String("Connection succeeded."))
	info.Set("objectEncoding", amf0.Number(objectEncoding))
	info.Set("data", data)

	body, err := amf0.EncodeCommand(amf0.String("_result"), amf0.Number(1), props, info)
	if err != nil {
		return err
	}
	return s.WriteMessage(rtmpprotocol.ChunkIDCommand, rtmpprotocol.MessageTypeCommandAMF0, 0, 0, body)
}

func (s *ServiceSession) sendOnBWDone() error {
	body, err := amf0.EncodeCommand(amf0.String("onBWDone"), amf0.Number(0), amf0.Null{})
	if err != nil {
		return err
	}
	return s.WriteMessage(rtmpprotocol.ChunkIDCommand, rtmpprotocol.MessageTypeCommandAMF0, 0, 0, body)
}

type identifyKind int

const (
	identifyNone identifyKind = iota
	identifyPublish
	identifyPlay
)

// identify reads commands until a publish or play command fixes the
// session's role and target stream name, answering every recognized
// command along the way (releaseStream/FCPublish/FCUnpublish get an
// FMLE-style result, createStream gets a createStream result carrying a new
// stream id; publish/play resolve the loop to enter; other commands are
// logged and skipped).
func (s *ServiceSession) identify() (identifyKind, string, error) {
	for {
		msg, _, err := s.ReadMessage()
		if err != nil {
			return identifyNone, "", err
		}
		if msg.Header.MessageType != rtmpprotocol.MessageTypeCommandAMF0 {
			continue
		}
		values, err := amf0.DecodeCommand(msg.Payload)
		if err != nil {
			return identifyNone, "", err
		}
		name, _ := asString(firstOf(values, 0))
		tid := asNumber(firstOf(values, 1))

		switch name {
		case "releaseStream", "FCPublish", "FCUnpublish":
			if err := s.sendFMLEResult(tid); err != nil {
				return identifyNone, "", err
			}
		case "createStream":
			s.createTID = tid
			if err := s.sendCreateStreamResult(tid); err != nil {
				return identifyNone, "", err
			}
		case "publish":
			streamName, _ := asString(firstOf(values, 3))
			if streamName == "" {
				streamName, _ = asString(firstOf(values, 2))
			}
			s.SetStreamName(streamName)
			return identifyPublish, streamName, nil
		case "play":
			streamName, _ := asString(firstOf(values, 3))
			if streamName == "" {
				streamName, _ = asString(firstOf(values, 2))
			}
			s.SetStreamName(streamName)
			return identifyPlay, streamName, nil
		default:
			log.Printf("rtmp: unhandled identify command %q", name)
		}
	}
}

func (s *ServiceSession) sendFMLEResult(tid float64) error {
	body, err := amf0.EncodeCommand(amf0.String("_result"), amf0.Number(tid), amf0.Null{}, amf0.Undefined{})
	if err != nil {
		return err
	}
	return s.WriteMessage(rtmpprotocol.ChunkIDCommand, rtmpprotocol.MessageTypeCommandAMF0, 0, 0, body)
}

func (s *ServiceSession) sendCreateStreamResult(tid float64) error {
	streamID := s.nextStreamID
	s.nextStreamID++
	s.clientStreamID = streamID
	body, err := amf0.EncodeCommand(amf0.String("_result"), amf0.Number(tid), amf0.Null{}, amf0.Number(streamID))
	if err != nil {
		return err
	}
	return s.WriteMessage(rtmpprotocol.ChunkIDCommand, rtmpprotocol.MessageTypeCommandAMF0, 0, 0, body)
}

func (s *ServiceSession) sendStatusCommand(csID uint32, streamID uint32, name string, status *amf0.Object) error {
	body, err := amf0.EncodeCommand(amf0.String(name), amf0.Number(0), amf0.Null{}, status)
	if err != nil {
		return err
	}
	return s.WriteMessage(csID, rtmpprotocol.MessageTypeCommandAMF0, 0, streamID, body)
}

func newStatus(level, code, description string) *amf0.Object {
	status := amf0.NewObject()
	status.Set("level", amf0.String(level))
	status.Set("code", amf0.String(code))
	status.Set("description", amf0.String(description))
	return status
}

// Close detaches any attached publisher/player and closes the underlying
// connection.
func (s *ServiceSession) Close() {
	if s.publisher != nil {
		s.publisher.Detach()
	}
	if s.player != nil {
		s.player.Detach()
	}
	s.Session.Close()
}

func firstOf(values []amf0.Value, i int) amf0.Value {
	if i < 0 || i >= len(values) {
		return nil
	}
	return values[i]
}

func asString(v amf0.Value) (string, bool) {
	s, ok := v.(amf0.String)
	return string(s), ok
}

func asNumber(v amf0.Value) float64 {
	n, _ := v.(amf0.Number)
	return float64(n)
}

func asObject(v amf0.Value) (*amf0.Object, bool) {
	o, ok := v.(*amf0.Object)
	return o, ok
}
