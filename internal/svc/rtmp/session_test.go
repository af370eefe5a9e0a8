package rtmp

import (
	"bytes"
	"testing"

	"github.com/Q0R1Y/rtmp-server/internal/config"
	"github.com/Q0R1Y/rtmp-server/internal/core/protocol/amf0"
)

func TestDiscoveryApp(t *testing.T) {
	cases := []struct {
		name    string
		tcURL   string
		wantApp string
		wantErr bool
	}{
		{"basic", "rtmp://host:1935/live", "live", false},
		{"no scheme", "host:1935/live", "", true},
		{"no app", "rtmp://host:1935/", "", true},
		{"no slash", "rtmp://host:1935", "", true},
		{"empty", "", "", true},
		{"app with nested path", "rtmp://host:1935/live/room1", "live/room1", false},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			app, err := discoveryApp(c.tcURL)
			if c.wantErr {
				if err == nil {
					t.Fatalf("discoveryApp(%q): expected error, got app=%q", c.tcURL, app)
				}
				return
			}
			if err != nil {
				t.Fatalf("discoveryApp(%q): unexpected error: %v", c.tcURL, err)
			}
			if app != c.wantApp {
				t.Errorf("discoveryApp(%q) = %q, want %q", c.tcURL, app, c.wantApp)
			}
		})
	}
}

func connectCommand(fields map[string]amf0.Value) []amf0.Value {
	obj := amf0.NewObject()
	for k, v := range fields {
		obj.Set(k, v)
	}
	return []amf0.Value{amf0.String("connect"), amf0.Number(1), obj}
}

func TestHandleConnectScenarioA(t *testing.T) {
	var wire bytes.Buffer
	s := NewServiceSession(&wire, nil, config.QueueConfig{})

	cmd := connectCommand(map[string]amf0.Value{
		"tcUrl": amf0.String("rtmp://host:1935/live"),
	})

	if err := s.handleConnect(cmd); err != nil {
		t.Fatalf("handleConnect: %v", err)
	}
	if got := s.GetApp(); got != "live" {
		t.Errorf("GetApp() = %q, want %q", got, "live")
	}
	if wire.Len() == 0 {
		t.Error("expected handleConnect to write a response sequence")
	}
}

func TestHandleConnectMissingTcUrl(t *testing.T) {
	var wire bytes.Buffer
	s := NewServiceSession(&wire, nil, config.QueueConfig{})

	cmd := connectCommand(map[string]amf0.Value{
		"app": amf0.String("live"),
	})

	if err := s.handleConnect(cmd); err != ErrReqTcUrl {
		t.Errorf("handleConnect err = %v, want %v", err, ErrReqTcUrl)
	}
}

func TestHandleConnectMalformedTcUrl(t *testing.T) {
	var wire bytes.Buffer
	s := NewServiceSession(&wire, nil, config.QueueConfig{})

	cmd := connectCommand(map[string]amf0.Value{
		"tcUrl": amf0.String("not-a-url"),
	})

	if err := s.handleConnect(cmd); err != ErrReqTcUrl {
		t.Errorf("handleConnect err = %v, want %v", err, ErrReqTcUrl)
	}
}
