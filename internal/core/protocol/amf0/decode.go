package amf0

import (
	"errors"
	"math"

	"github.com/Q0R1Y/rtmp-server/internal/core/bytestream"
)

// ErrInvalid is returned when the decoder encounters a marker byte it does
// not accept, or a structurally malformed Object/EcmaArray.
var ErrInvalid = errors.New("amf0: invalid value")

// DecodeAny reads one AMF0 value from c, dispatching on its marker byte.
func DecodeAny(c *bytestream.Cursor) (Value, error) {
	marker, err := c.ReadU8()
	if err != nil {
		return nil, err
	}
	c.Skip(-1)
	switch marker {
	case MarkerNumber:
		return decodeNumber(c)
	case MarkerBoolean:
		return decodeBoolean(c)
	case MarkerString:
		return decodeString(c)
	case MarkerNull:
		c.Skip(1)
		return Null{}, nil
	case MarkerUndefined:
		c.Skip(1)
		return Undefined{}, nil
	case MarkerObject:
		return decodeObject(c)
	case MarkerEcmaArray:
		return decodeEcmaArray(c)
	case MarkerObjectEnd:
		c.Skip(1)
		return objectEnd{}, nil
	default:
		return nil, ErrInvalid
	}
}

func decodeNumber(c *bytestream.Cursor) (Value, error) {
	c.Skip(1) // marker
	bits, err := c.ReadU64()
	if err != nil {
		return nil, err
	}
	return Number(math.Float64frombits(bits)), nil
}

func decodeBoolean(c *bytestream.Cursor) (Value, error) {
	c.Skip(1)
	b, err := c.ReadU8()
	if err != nil {
		return nil, err
	}
	return Boolean(b != 0), nil
}

// decodeRawString reads the AMF0 string encoding (u16 length + bytes) without
// the leading marker byte. Bytes outside 0x00-0x7F are accepted and passed
// through unmodified; they are neither rejected nor logged.
func decodeRawString(c *bytestream.Cursor) (string, error) {
	n, err := c.ReadU16()
	if err != nil {
		return "", err
	}
	return c.ReadString(int(n))
}

func decodeString(c *bytestream.Cursor) (Value, error) {
	c.Skip(1)
	s, err := decodeRawString(c)
	if err != nil {
		return nil, err
	}
	return String(s), nil
}

// decodeProperties reads (key, value) pairs until it sees the ObjectEnd rule:
// a zero-length UTF-8 string followed by the 0x09 marker. On that signature
// the cursor is already positioned on the marker, so it's consumed directly
// via DecodeAny.
func decodeProperties(c *bytestream.Cursor, m *OrderedMap) error {
	for {
		n, err := c.ReadU16()
		if err != nil {
			return err
		}
		if n == 0 {
			end, err := DecodeAny(c)
			if err != nil {
				return err
			}
			if _, ok := end.(objectEnd); !ok {
				return ErrInvalid
			}
			return nil
		}
		key, err := c.ReadString(int(n))
		if err != nil {
			return err
		}
		val, err := DecodeAny(c)
		if err != nil {
			return err
		}
		m.Set(key, val)
	}
}

func decodeObject(c *bytestream.Cursor) (Value, error) {
	c.Skip(1)
	obj := NewObject()
	if err := decodeProperties(c, obj.OrderedMap); err != nil {
		return nil, err
	}
	return obj, nil
}

func decodeEcmaArray(c *bytestream.Cursor) (Value, error) {
	c.Skip(1)
	if _, err := c.ReadU32(); err != nil { // associative-count, informational only
		return nil, err
	}
	arr := NewEcmaArray()
	if err := decodeProperties(c, arr.OrderedMap); err != nil {
		return nil, err
	}
	return arr, nil
}

// DecodeCommand decodes a full RTMP command/data body: a flat concatenation
// of AMF0 values with no enclosing array marker, read until the buffer is
// exhausted.
func DecodeCommand(body []byte) ([]Value, error) {
	c := bytestream.NewCursor(body)
	var values []Value
	for !c.Empty() {
		v, err := DecodeAny(c)
		if err != nil {
			return values, err
		}
		values = append(values, v)
	}
	return values, nil
}
