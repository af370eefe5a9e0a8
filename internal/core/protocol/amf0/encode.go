package amf0

import (
	"fmt"
	"math"

	"github.com/Q0R1Y/rtmp-server/internal/core/bytestream"
)

// SizeOf reports the exact serialized byte count of v, for pre-allocating
// the destination buffer before EncodeAny.
func SizeOf(v Value) int {
	switch t := v.(type) {
	case Number:
		return 9
	case Boolean:
		return 2
	case String:
		return 3 + len(string(t))
	case Null, Undefined:
		return 1
	case *Object:
		return 1 + propertiesSize(t.OrderedMap) + 3
	case *EcmaArray:
		return 1 + 4 + propertiesSize(t.OrderedMap) + 3
	default:
		return 0
	}
}

func propertiesSize(m *OrderedMap) int {
	size := 0
	m.Each(func(key string, v Value) {
		size += 2 + len(key) + SizeOf(v)
	})
	return size
}

// EncodeAny appends the wire encoding of v to c.
func EncodeAny(c *bytestream.Cursor, v Value) error {
	switch t := v.(type) {
	case Number:
		return encodeNumber(c, t)
	case Boolean:
		return encodeBoolean(c, t)
	case String:
		return encodeString(c, t)
	case Null:
		return c.WriteU8(MarkerNull)
	case Undefined:
		return c.WriteU8(MarkerUndefined)
	case *Object:
		return encodeObject(c, t)
	case *EcmaArray:
		return encodeEcmaArray(c, t)
	default:
		return fmt.Errorf("amf0: cannot encode %T", v)
	}
}

func encodeNumber(c *bytestream.Cursor, n Number) error {
	if err := c.WriteU8(MarkerNumber); err != nil {
		return err
	}
	return c.WriteU64(math.Float64bits(float64(n)))
}

func encodeBoolean(c *bytestream.Cursor, b Boolean) error {
	if err := c.WriteU8(MarkerBoolean); err != nil {
		return err
	}
	var raw byte
	if b {
		raw = 1
	}
	return c.WriteU8(raw)
}

func encodeRawString(c *bytestream.Cursor, s string) error {
	if err := c.WriteU16(uint16(len(s))); err != nil {
		return err
	}
	return c.WriteString(s)
}

func encodeString(c *bytestream.Cursor, s String) error {
	if err := c.WriteU8(MarkerString); err != nil {
		return err
	}
	return encodeRawString(c, string(s))
}

func encodeProperties(c *bytestream.Cursor, m *OrderedMap) error {
	var encErr error
	m.Each(func(key string, v Value) {
		if encErr != nil {
			return
		}
		if encErr = encodeRawString(c, key); encErr != nil {
			return
		}
		encErr = EncodeAny(c, v)
	})
	if encErr != nil {
		return encErr
	}
	if err := c.WriteU16(0); err != nil {
		return err
	}
	return c.WriteU8(MarkerObjectEnd)
}

func encodeObject(c *bytestream.Cursor, obj *Object) error {
	if err := c.WriteU8(MarkerObject); err != nil {
		return err
	}
	return encodeProperties(c, obj.OrderedMap)
}

func encodeEcmaArray(c *bytestream.Cursor, arr *EcmaArray) error {
	if err := c.WriteU8(MarkerEcmaArray); err != nil {
		return err
	}
	if err := c.WriteU32(uint32(arr.Len())); err != nil {
		return err
	}
	return encodeProperties(c, arr.OrderedMap)
}

// EncodeCommand encodes a flat sequence of AMF0 values into the body of one
// RTMP command/data message, with no enclosing array marker.
func EncodeCommand(values ...Value) ([]byte, error) {
	size := 0
	for _, v := range values {
		size += SizeOf(v)
	}
	buf := make([]byte, size)
	c := bytestream.NewCursor(buf)
	for _, v := range values {
		if err := EncodeAny(c, v); err != nil {
			return nil, err
		}
	}
	return buf, nil
}
