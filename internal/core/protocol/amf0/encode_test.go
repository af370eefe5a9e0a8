package amf0

import (
	"testing"

	"github.com/Q0R1Y/rtmp-server/internal/core/bytestream"
)

// TestEncodeCommand_NoStrictArray verifies that EncodeCommand writes items
// sequentially without wrapping them in a StrictArray (0x0A). RTMP command
// bodies must start with the first item's own type marker.
func TestEncodeCommand_NoStrictArray(t *testing.T) {
	result := NewObject()
	result.Set("fmsVer", String("FMS/3,0,1,123"))
	result.Set("capabilities", Number(31))

	info := NewObject()
	info.Set("level", String("status"))
	info.Set("code", String("NetConnection.Connect.Success"))
	info.Set("description", String("Connection succeeded."))

	body, err := EncodeCommand(String("_result"), Number(1), result, info)
	if err != nil {
		t.Fatalf("EncodeCommand failed: %v", err)
	}
	if len(body) == 0 {
		t.Fatal("encoded body is empty")
	}
	if body[0] == MarkerStrictArray {
		t.Fatalf("command encoding incorrectly wraps items in StrictArray (0x%02x)", MarkerStrictArray)
	}
	if body[0] != MarkerString {
		t.Fatalf("first byte should be 0x02 (string), got 0x%02x", body[0])
	}
	if string(body[3:3+len("_result")]) != "_result" {
		t.Errorf("expected string %q after type marker, got %q", "_result", body[3:3+len("_result")])
	}
}

// TestEncodeCommand_CreateStreamResult verifies createStream _result encoding.
func TestEncodeCommand_CreateStreamResult(t *testing.T) {
	body, err := EncodeCommand(String("_result"), Number(2), Null{}, Number(1))
	if err != nil {
		t.Fatalf("EncodeCommand failed: %v", err)
	}
	if body[0] == MarkerStrictArray {
		t.Fatal("command encoding incorrectly wraps items in StrictArray")
	}
	if body[0] != MarkerString {
		t.Fatalf("first byte should be 0x02 (string), got 0x%02x", body[0])
	}
}

// TestEncodeDecodeRoundTrip covers property 1: decode(encode(v)) == v and
// size_of(v) == len(encode(v)) for every accepted variant.
func TestEncodeDecodeRoundTrip(t *testing.T) {
	obj := NewObject()
	obj.Set("tcUrl", String("rtmp://host:1935/live"))
	obj.Set("objectEncoding", Number(0))

	arr := NewEcmaArray()
	arr.Set("duration", Number(0))
	arr.Set("width", Number(1920))

	values := []Value{
		Number(1.5),
		Boolean(true),
		Boolean(false),
		String("hello"),
		Null{},
		Undefined{},
		obj,
		arr,
	}

	for _, v := range values {
		size := SizeOf(v)
		buf := make([]byte, size)
		c := bytestream.NewCursor(buf)
		if err := EncodeAny(c, v); err != nil {
			t.Fatalf("EncodeAny(%v) error: %v", v, err)
		}
		if c.Pos() != size {
			t.Errorf("SizeOf(%v)=%d but encoded %d bytes", v, size, c.Pos())
		}

		c2 := bytestream.NewCursor(buf)
		got, err := DecodeAny(c2)
		if err != nil {
			t.Fatalf("DecodeAny error: %v", err)
		}
		assertValueEqual(t, v, got)
	}
}

// TestObjectKeyOrderPreservation covers property 2: iteration order equals
// the order of the last Set for each key, not first-insertion order.
func TestObjectKeyOrderPreservation(t *testing.T) {
	obj := NewObject()
	obj.Set("a", Number(1))
	obj.Set("b", Number(2))
	obj.Set("a", Number(3)) // re-set moves "a" to the tail

	keys := obj.Keys()
	if len(keys) != 2 || keys[0] != "b" || keys[1] != "a" {
		t.Fatalf("expected order [b a], got %v", keys)
	}
	v, ok := obj.Get("a")
	if !ok || v != Number(3) {
		t.Fatalf("expected a=3, got %v", v)
	}
}

func assertValueEqual(t *testing.T, want, got Value) {
	t.Helper()
	switch w := want.(type) {
	case *Object:
		g, ok := got.(*Object)
		if !ok {
			t.Fatalf("expected *Object, got %T", got)
		}
		if w.Len() != g.Len() {
			t.Fatalf("object length mismatch: %d vs %d", w.Len(), g.Len())
		}
		wantKeys, gotKeys := w.Keys(), g.Keys()
		for i := range wantKeys {
			if wantKeys[i] != gotKeys[i] {
				t.Fatalf("key order mismatch at %d: %q vs %q", i, wantKeys[i], gotKeys[i])
			}
		}
	case *EcmaArray:
		g, ok := got.(*EcmaArray)
		if !ok {
			t.Fatalf("expected *EcmaArray, got %T", got)
		}
		if w.Len() != g.Len() {
			t.Fatalf("array length mismatch: %d vs %d", w.Len(), g.Len())
		}
	default:
		if want != got {
			t.Fatalf("expected %#v, got %#v", want, got)
		}
	}
}
