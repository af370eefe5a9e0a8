package rtmp

import "encoding/binary"

// MessageHeader carries the fields decoded from a chunk's message header,
// independent of how many chunks it took to arrive.
type MessageHeader struct {
	MessageType    byte
	PayloadLength  uint32
	Timestamp      uint32
	TimestampDelta uint32
	StreamID       uint32
}

// Message is a fully reassembled RTMP application unit: a header plus its
// complete payload.
type Message struct {
	Header  MessageHeader
	Payload []byte
}

// ParseSetChunkSize decodes a Set-Chunk-Size message body. Returns
// ErrChunkSize if the requested size is below the protocol minimum.
func ParseSetChunkSize(body []byte) (uint32, error) {
	if len(body) < 4 {
		return 0, ErrInvalidChunkHeader
	}
	size := binary.BigEndian.Uint32(body[0:4])
	if size < MinChunkSize {
		return 0, ErrChunkSize
	}
	return size, nil
}

// CreateSetChunkSize encodes a Set-Chunk-Size message body.
func CreateSetChunkSize(size uint32) []byte {
	body := make([]byte, 4)
	binary.BigEndian.PutUint32(body, size)
	return body
}

// CreateWindowAckSize encodes a Window-Acknowledgement-Size message body.
func CreateWindowAckSize(size uint32) []byte {
	body := make([]byte, 4)
	binary.BigEndian.PutUint32(body, size)
	return body
}

// CreateSetPeerBandwidth encodes a Set-Peer-Bandwidth message body.
func CreateSetPeerBandwidth(size uint32, limitType byte) []byte {
	body := make([]byte, 5)
	binary.BigEndian.PutUint32(body[0:4], size)
	body[4] = limitType
	return body
}

// CreateStreamBegin encodes a User-Control StreamBegin event body.
func CreateStreamBegin(streamID uint32) []byte {
	body := make([]byte, 6)
	binary.BigEndian.PutUint16(body[0:2], ControlStreamBegin)
	binary.BigEndian.PutUint32(body[2:6], streamID)
	return body
}

// basicHeaderBytes encodes the 1-3 byte chunk basic header for fmt/csID.
func basicHeaderBytes(fmtBits byte, csID uint32) []byte {
	switch {
	case csID >= 2 && csID < 64:
		return []byte{fmtBits<<6 | byte(csID)}
	case csID-64 < 256:
		return []byte{fmtBits << 6, byte(csID - 64)}
	default:
		rel := csID - 64
		return []byte{fmtBits<<6 | 1, byte(rel), byte(rel >> 8)}
	}
}

// SendMessage writes one message as a format-0 chunk followed by zero or
// more format-3 continuation chunks, assembled into a single buffer and
// written with one conn.Write call. If timestamp requires the extended
// form, every chunk of the message (including each format-3 continuation)
// carries the 4-byte extended timestamp suffix.
func SendMessage(w interface{ Write([]byte) (int, error) }, csID uint32, msgType byte, timestamp, streamID uint32, body []byte, chunkSize uint32) error {
	if chunkSize == 0 {
		chunkSize = DefaultChunkSize
	}
	extended := timestamp >= extendedTimestampSentinel
	tsField := timestamp
	if extended {
		tsField = extendedTimestampSentinel
	}

	out := make([]byte, 0, 16+len(body)+4*(len(body)/int(chunkSize)+1))

	// format-0 header
	out = append(out, basicHeaderBytes(ChunkFmt0, csID)...)
	hdr := make([]byte, 11)
	hdr[0], hdr[1], hdr[2] = byte(tsField>>16), byte(tsField>>8), byte(tsField)
	bodyLen := uint32(len(body))
	hdr[3], hdr[4], hdr[5] = byte(bodyLen>>16), byte(bodyLen>>8), byte(bodyLen)
	hdr[6] = msgType
	binary.LittleEndian.PutUint32(hdr[7:11], streamID)
	out = append(out, hdr...)
	if extended {
		var ext [4]byte
		binary.BigEndian.PutUint32(ext[:], timestamp)
		out = append(out, ext[:]...)
	}

	offset := uint32(0)
	first := true
	for offset < bodyLen || first {
		n := chunkSize
		if offset+n > bodyLen {
			n = bodyLen - offset
		}
		if !first {
			out = append(out, basicHeaderBytes(ChunkFmt3, csID)...)
			if extended {
				var ext [4]byte
				binary.BigEndian.PutUint32(ext[:], timestamp)
				out = append(out, ext[:]...)
			}
		}
		out = append(out, body[offset:offset+n]...)
		offset += n
		first = false
		if bodyLen == 0 {
			break
		}
	}

	_, err := w.Write(out)
	return err
}
