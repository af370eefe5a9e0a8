package amf0

import "testing"

// TestDecodeCommand_ConnectScenario decodes the literal connect command body
// from Scenario A: a flat "connect", 1.0, {tcUrl} sequence with no array
// wrapper.
func TestDecodeCommand_ConnectScenario(t *testing.T) {
	body := []byte{
		0x02, 0x00, 0x07, 0x63, 0x6F, 0x6E, 0x6E, 0x65, 0x63, 0x74, // "connect"
		0x00, 0x3F, 0xF0, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, // 1.0
		0x03, // object
		0x00, 0x05, 0x74, 0x63, 0x55, 0x72, 0x6C, // key "tcUrl"
		0x02, 0x00, 0x15, 0x72, 0x74, 0x6D, 0x70, 0x3A, 0x2F, 0x2F, 0x68, 0x6F, 0x73, 0x74, 0x3A, 0x31,
		0x39, 0x33, 0x35, 0x2F, 0x6C, 0x69, 0x76, 0x65, // "rtmp://host:1935/live"
		0x00, 0x00, 0x09, // object end
	}

	values, err := DecodeCommand(body)
	if err != nil {
		t.Fatalf("DecodeCommand error: %v", err)
	}
	if len(values) != 3 {
		t.Fatalf("expected 3 values, got %d", len(values))
	}

	name, ok := values[0].(String)
	if !ok || name != "connect" {
		t.Fatalf("expected command_name=\"connect\", got %v", values[0])
	}
	tid, ok := values[1].(Number)
	if !ok || tid != 1.0 {
		t.Fatalf("expected transaction_id=1.0, got %v", values[1])
	}
	obj, ok := values[2].(*Object)
	if !ok {
		t.Fatalf("expected *Object command_object, got %T", values[2])
	}
	tcURL, ok := obj.Get("tcUrl")
	if !ok || tcURL != String("rtmp://host:1935/live") {
		t.Fatalf("expected tcUrl=rtmp://host:1935/live, got %v", tcURL)
	}
}
