package utils

import (
	"net/http/httptest"
	"testing"
)

func TestSendSSEChunk(t *testing.T) {
	resp := httptest.NewRecorder()
	SendSSEChunk(resp, resp, map[string]string{"type": "ping"})

	if got, want := resp.Body.String(), "data: {\"type\":\"ping\"}\n\n"; got != want {
		t.Fatalf("unexpected frame %q, want %q", got, want)
	}
	if !resp.Flushed {
		t.Fatal("chunk must be flushed")
	}
}

func TestSendSSEEvent(t *testing.T) {
	resp := httptest.NewRecorder()
	SendSSEEvent(resp, resp, "snapshot", map[string]string{"sessionId": "s1"})

	if got, want := resp.Body.String(), "event: snapshot\ndata: {\"sessionId\":\"s1\"}\n\n"; got != want {
		t.Fatalf("unexpected frame %q, want %q", got, want)
	}
	if !resp.Flushed {
		t.Fatal("event must be flushed")
	}
}
