package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Q0R1Y/rtmp-server/internal/core/bus"
)

func TestHandleHealth(t *testing.T) {
	svc := New(bus.NewRegistry())

	req := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()
	svc.handleHealth(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}

func TestHandleHealthWrongMethod(t *testing.T) {
	svc := New(bus.NewRegistry())

	req := httptest.NewRequest("POST", "/healthz", nil)
	w := httptest.NewRecorder()
	svc.handleHealth(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", w.Code)
	}
}

func TestHandleStatsEmpty(t *testing.T) {
	svc := New(bus.NewRegistry())

	req := httptest.NewRequest("GET", "/stats", nil)
	w := httptest.NewRecorder()
	svc.handleStats(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}

	var resp StatsResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.GoVersion == "" {
		t.Error("go_version should not be empty")
	}
	if len(resp.Streams) != 0 {
		t.Errorf("expected 0 streams, got %d", len(resp.Streams))
	}
}

func TestHandleStatsWithStream(t *testing.T) {
	registry := bus.NewRegistry()
	svc := New(registry)

	stream, _ := registry.GetOrCreate(bus.NewStreamKey("live", "test"))
	stream.AttachPublisher(1)

	req := httptest.NewRequest("GET", "/stats", nil)
	w := httptest.NewRecorder()
	svc.handleStats(w, req)

	var resp StatsResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Streams) != 1 {
		t.Fatalf("expected 1 stream, got %d", len(resp.Streams))
	}
	if resp.Streams[0].Key != "live/test" {
		t.Errorf("expected key %q, got %q", "live/test", resp.Streams[0].Key)
	}
	if !resp.Streams[0].HasPublisher {
		t.Error("expected has_publisher true")
	}
}
