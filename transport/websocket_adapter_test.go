package transport

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-rendezvous/core"
	"github.com/gorilla/websocket"
)

type decodedReply struct {
	ID     string        `json:"id"`
	OK     bool          `json:"ok"`
	Result any           `json:"result"`
	Error  *ErrorPayload `json:"error"`
}

func dialWebSocket(t *testing.T, config WebSocketAdapterConfig) *websocket.Conn {
	t.Helper()
	adapter := NewWebSocketAdapter(config)
	server := httptest.NewServer(adapter.Handler(mustGateway(t, newTestDispatcher(t), adapter)))
	t.Cleanup(server.Close)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func roundTrip(t *testing.T, conn *websocket.Conn, frame string) decodedReply {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var reply decodedReply
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatalf("read reply: %v", err)
	}
	return reply
}

func TestWebSocketAdapter_DispatchesFrames(t *testing.T) {
	conn := dialWebSocket(t, WebSocketAdapterConfig{})

	reply := roundTrip(t, conn, `{"id":"1","intent":"user.search","params":{"limit":5,"q":"ada"}}`)
	if !reply.OK || reply.ID != "1" {
		t.Fatalf("unexpected reply: %+v", reply)
	}
	result, ok := reply.Result.(map[string]any)
	if !ok || result["limit"] != float64(5) || result["q"] != "ada" {
		t.Fatalf("unexpected result: %#v", reply.Result)
	}

	reply = roundTrip(t, conn, `{"id":"2","intent":"user.update","params":{"name":"Ada"}}`)
	if !reply.OK {
		t.Fatalf("expected structured params to bind, got %+v", reply.Error)
	}
}

func TestWebSocketAdapter_ErrorFrames(t *testing.T) {
	conn := dialWebSocket(t, WebSocketAdapterConfig{})

	cases := []struct {
		frame string
		id    string
		code  string
	}{
		{`{"id":"a","intent":"nope"}`, "a", core.DispatchErrorIntentNotFound},
		{`{"id":"b","intent":"admin.reset"}`, "b", core.DispatchErrorIntentNotFound},
		{`{"id":"c","intent":"user.fail"}`, "c", core.DispatchErrorHandlerFailed},
		{`{"id":"d"}`, "d", core.DispatchErrorAdapterFailed},
		{`not json`, "", core.DispatchErrorAdapterFailed},
	}
	for _, tc := range cases {
		reply := roundTrip(t, conn, tc.frame)
		if reply.OK || reply.Error == nil {
			t.Fatalf("expected error reply for %s, got %+v", tc.frame, reply)
		}
		if reply.ID != tc.id || reply.Error.Code != tc.code {
			t.Fatalf("expected %q/%s for %s, got %q/%s", tc.id, tc.code, tc.frame, reply.ID, reply.Error.Code)
		}
	}
}

func TestWebSocketAdapter_ExtractPayload(t *testing.T) {
	adapter := NewWebSocketAdapter(WebSocketAdapterConfig{})
	msg := &WebSocketMessage{
		Data:         []byte(`{"id":"7","intent":"x","params":null,"headers":{"x-request-id":"trace-7"}}`),
		ConnectionID: "conn-1",
	}
	payload, err := adapter.ExtractPayload(msg)
	if err != nil {
		t.Fatalf("extract payload: %v", err)
	}
	if payload.Body != nil {
		t.Fatalf("expected null params to leave the body empty, got %v", payload.Body)
	}
	if payload.TraceID != "trace-7" || payload.SessionID != "conn-1" {
		t.Fatalf("unexpected identifiers: %q %q", payload.TraceID, payload.SessionID)
	}
	if payload.Metadata["frame_id"] != "7" {
		t.Fatalf("expected frame id metadata, got %v", payload.Metadata)
	}
}

func TestWebSocketAdapter_OriginCheck(t *testing.T) {
	adapter := NewWebSocketAdapter(WebSocketAdapterConfig{AllowedOrigins: []string{"https://app.example.com"}})
	req := httptest.NewRequest("GET", "/ws", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	if adapter.checkOrigin(req) {
		t.Fatalf("expected foreign origin to be rejected")
	}
	req.Header.Set("Origin", "https://app.example.com")
	if !adapter.checkOrigin(req) {
		t.Fatalf("expected allowed origin")
	}
}
