// Package rtmp: chunk-stream codec. Splits outgoing messages into format-0/
// format-3 chunks and reassembles incoming chunks back into messages.
package rtmp

import (
	"encoding/binary"
	"errors"
	"io"
	"sync"
)

var (
	ErrInvalidChunkHeader = errors.New("rtmp: invalid chunk header")
	ErrChunkTooLarge      = errors.New("rtmp: chunk size too large")
	ErrChunkSize          = errors.New("rtmp: chunk size below protocol minimum")
	ErrChunkStart         = errors.New("rtmp: format-0 chunk expected to start a new message")
	ErrInvalidSize        = errors.New("rtmp: chunk payload length exceeds declared message length")
)

// ChunkStream holds the per-chunk-stream-ID reassembly state a chunk parser
// must remember between chunks: the last message header seen (for fmt1/2/3
// inheritance), whether that header's timestamp is carried via the extended
// 4-byte suffix, and the in-progress message payload if one is partially
// received.
type ChunkStream struct {
	csID          uint32
	lastHeader    MessageHeader
	hasExtendedTS bool
	partial       []byte
	partialWant   uint32
	msgCount      uint64
}

// ChunkParser reassembles chunks arriving on a single connection into
// complete messages, tracking one ChunkStream per chunk stream ID.
type ChunkParser struct {
	chunkStreams map[uint32]*ChunkStream
	chunkSize    uint32
	mu           sync.RWMutex
}

// NewChunkParser creates a chunk parser with the protocol's default incoming
// chunk size.
func NewChunkParser() *ChunkParser {
	return &ChunkParser{
		chunkStreams: make(map[uint32]*ChunkStream),
		chunkSize:    DefaultChunkSize,
	}
}

// SetChunkSize changes the incoming chunk size, as requested by a peer's
// Set-Chunk-Size message.
func (p *ChunkParser) SetChunkSize(size uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.chunkSize = size
}

func (p *ChunkParser) streamFor(csID uint32) *ChunkStream {
	p.mu.Lock()
	defer p.mu.Unlock()
	cs, ok := p.chunkStreams[csID]
	if !ok {
		cs = &ChunkStream{csID: csID}
		p.chunkStreams[csID] = cs
	}
	return cs
}

func readBasicHeader(r io.Reader) (fmtBits byte, csID uint32, err error) {
	var b0 [1]byte
	if _, err = io.ReadFull(r, b0[:]); err != nil {
		return
	}
	fmtBits = b0[0] >> 6
	low := b0[0] & 0x3F
	switch low {
	case 0:
		var ext [1]byte
		if _, err = io.ReadFull(r, ext[:]); err != nil {
			return
		}
		csID = 64 + uint32(ext[0])
	case 1:
		var ext [2]byte
		if _, err = io.ReadFull(r, ext[:]); err != nil {
			return
		}
		csID = 64 + uint32(ext[0]) + 256*uint32(ext[1])
	default:
		csID = uint32(low)
	}
	return
}

// ReadMessage blocks until one complete RTMP message has been reassembled
// from r, reading and dispatching chunks from however many interleaved chunk
// streams arrive in between.
func (p *ChunkParser) ReadMessage(r io.Reader) (*Message, uint32, error) {
	for {
		fmtBits, csID, err := readBasicHeader(r)
		if err != nil {
			return nil, 0, err
		}

		cs := p.streamFor(csID)
		if err := p.readMessageHeader(r, cs, fmtBits); err != nil {
			return nil, csID, err
		}

		p.mu.RLock()
		chunkSize := p.chunkSize
		p.mu.RUnlock()

		if cs.partial == nil {
			if cs.lastHeader.PayloadLength > MaxChunkSize {
				return nil, csID, ErrInvalidSize
			}
			cs.partial = make([]byte, 0, cs.lastHeader.PayloadLength)
			cs.partialWant = cs.lastHeader.PayloadLength
		}

		remaining := cs.partialWant - uint32(len(cs.partial))
		take := chunkSize
		if take > remaining {
			take = remaining
		}
		buf := make([]byte, take)
		if take > 0 {
			if _, err := io.ReadFull(r, buf); err != nil {
				return nil, csID, err
			}
		}
		cs.partial = append(cs.partial, buf...)

		if uint32(len(cs.partial)) > cs.partialWant {
			return nil, csID, ErrInvalidSize
		}
		if uint32(len(cs.partial)) == cs.partialWant {
			msg := &Message{Header: cs.lastHeader, Payload: cs.partial}
			cs.partial = nil
			cs.partialWant = 0
			return msg, csID, nil
		}
	}
}

// readMessageHeader decodes the fmt0-3 message header for cs, applying
// stream_id/type/length inheritance and the explicit extended-timestamp
// state machine required by format-3 continuation chunks.
func (p *ChunkParser) readMessageHeader(r io.Reader, cs *ChunkStream, fmtBits byte) error {
	startingNewMessage := cs.partial == nil
	if cs.msgCount == 0 && fmtBits != ChunkFmt0 {
		return ErrChunkStart
	}
	if !startingNewMessage && fmtBits == ChunkFmt0 {
		// A message was still in progress on this chunk stream; a peer
		// starting a new one with format-0 before finishing it is a
		// protocol violation, not an implicit abandon.
		return ErrChunkStart
	}
	cs.msgCount++

	switch fmtBits {
	case ChunkFmt0:
		var raw [11]byte
		if _, err := io.ReadFull(r, raw[:]); err != nil {
			return err
		}
		ts := uint32(raw[0])<<16 | uint32(raw[1])<<8 | uint32(raw[2])
		cs.lastHeader.PayloadLength = uint32(raw[3])<<16 | uint32(raw[4])<<8 | uint32(raw[5])
		cs.lastHeader.MessageType = raw[6]
		cs.lastHeader.StreamID = binary.LittleEndian.Uint32(raw[7:11])
		cs.hasExtendedTS = ts == extendedTimestampSentinel
		if cs.hasExtendedTS {
			var ext [4]byte
			if _, err := io.ReadFull(r, ext[:]); err != nil {
				return err
			}
			ts = binary.BigEndian.Uint32(ext[:])
		}
		cs.lastHeader.Timestamp = ts
		cs.lastHeader.TimestampDelta = 0

	case ChunkFmt1:
		var raw [7]byte
		if _, err := io.ReadFull(r, raw[:]); err != nil {
			return err
		}
		delta := uint32(raw[0])<<16 | uint32(raw[1])<<8 | uint32(raw[2])
		cs.lastHeader.PayloadLength = uint32(raw[3])<<16 | uint32(raw[4])<<8 | uint32(raw[5])
		cs.lastHeader.MessageType = raw[6]
		cs.hasExtendedTS = delta == extendedTimestampSentinel
		if cs.hasExtendedTS {
			var ext [4]byte
			if _, err := io.ReadFull(r, ext[:]); err != nil {
				return err
			}
			delta = binary.BigEndian.Uint32(ext[:])
		}
		cs.lastHeader.TimestampDelta = delta
		cs.lastHeader.Timestamp += delta

	case ChunkFmt2:
		var raw [3]byte
		if _, err := io.ReadFull(r, raw[:]); err != nil {
			return err
		}
		delta := uint32(raw[0])<<16 | uint32(raw[1])<<8 | uint32(raw[2])
		cs.hasExtendedTS = delta == extendedTimestampSentinel
		if cs.hasExtendedTS {
			var ext [4]byte
			if _, err := io.ReadFull(r, ext[:]); err != nil {
				return err
			}
			delta = binary.BigEndian.Uint32(ext[:])
		}
		cs.lastHeader.TimestampDelta = delta
		cs.lastHeader.Timestamp += delta

	case ChunkFmt3:
		if cs.hasExtendedTS {
			var ext [4]byte
			if _, err := io.ReadFull(r, ext[:]); err != nil {
				return err
			}
			if startingNewMessage {
				cs.lastHeader.Timestamp = binary.BigEndian.Uint32(ext[:])
			}
			// continuation chunk: the suffix repeats the message's
			// timestamp and carries no new delta to apply.
		} else if startingNewMessage {
			cs.lastHeader.Timestamp += cs.lastHeader.TimestampDelta
		}
	}

	return nil
}
