package transport

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/goliatone/go-rendezvous/core"
	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

func startNATS(t *testing.T) *nats.Conn {
	t.Helper()
	ns, err := natsserver.NewServer(&natsserver.Options{
		Host:   "127.0.0.1",
		Port:   -1,
		NoLog:  true,
		NoSigs: true,
	})
	if err != nil {
		t.Fatalf("create nats server: %v", err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		t.Fatalf("nats server failed to start")
	}
	t.Cleanup(ns.Shutdown)

	nc, err := Connect(ns.ClientURL(), "rendezvous-test", nil)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(nc.Close)
	return nc
}

func request(t *testing.T, nc *nats.Conn, subject string, body string) NATSResponse {
	t.Helper()
	msg, err := nc.Request(subject, []byte(body), 5*time.Second)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	var response NATSResponse
	if err := json.Unmarshal(msg.Data, &response); err != nil {
		t.Fatalf("decode response %q: %v", msg.Data, err)
	}
	return response
}

func TestNATSAdapter_RequestReply(t *testing.T) {
	nc := startNATS(t)
	adapter := NewNATSAdapter(NATSAdapterConfig{})
	sub, err := adapter.Subscribe(nc, "rendezvous.rpc", "workers", mustGateway(t, newTestDispatcher(t), adapter))
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	t.Cleanup(func() { _ = sub.Unsubscribe() })

	response := request(t, nc, "rendezvous.rpc", `{"id":"r1","intent":"user.search","params":{"q":"ada"},"ctx":{"requestId":"trace-1","timeoutMs":2000}}`)
	if !response.OK || response.ID != "r1" {
		t.Fatalf("unexpected response: %+v", response)
	}
	result, ok := response.Result.(map[string]any)
	if !ok || result["q"] != "ada" || result["limit"] != float64(10) {
		t.Fatalf("unexpected result: %#v", response.Result)
	}

	response = request(t, nc, "rendezvous.rpc", `{"id":"r2","intent":"user.fail"}`)
	if response.OK || response.Error == nil || !response.Error.Retryable {
		t.Fatalf("expected retryable handler failure, got %+v", response)
	}

	response = request(t, nc, "rendezvous.rpc", `{"id":"r3","intent":"user.get"}`)
	if response.Error == nil || response.Error.Code != core.DispatchErrorValidation || response.Error.Retryable {
		t.Fatalf("expected non-retryable validation failure, got %+v", response.Error)
	}

	response = request(t, nc, "rendezvous.rpc", `garbage`)
	if response.Error == nil || response.Error.Code != core.DispatchErrorAdapterFailed {
		t.Fatalf("expected adapter failure for undecodable request, got %+v", response)
	}
}

func TestNATSAdapter_ExtractPayloadAndTimeout(t *testing.T) {
	adapter := NewNATSAdapter(NATSAdapterConfig{Timeout: time.Second})
	if adapter.Scheme() != core.SchemeRPC {
		t.Fatalf("expected rpc scheme, got %q", adapter.Scheme())
	}
	msg := &NATSMessage{
		Subject: "rendezvous.rpc",
		Data:    []byte(`{"id":"x","intent":"a.b","ctx":{"correlationId":"corr","sessionId":"s","tenantId":"t1","timeoutMs":250}}`),
	}
	payload, err := adapter.ExtractPayload(msg)
	if err != nil {
		t.Fatalf("extract payload: %v", err)
	}
	if payload.TraceID != "corr" || payload.SessionID != "s" || payload.Metadata["tenant_id"] != "t1" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
	if got := adapter.Timeout(msg); got != 250*time.Millisecond {
		t.Fatalf("expected caller timeout, got %s", got)
	}
	if got := adapter.Timeout(&NATSMessage{Data: []byte(`{}`)}); got != time.Second {
		t.Fatalf("expected configured timeout, got %s", got)
	}
}

func TestNATSAdapter_SubscribeValidation(t *testing.T) {
	adapter := NewNATSAdapter(NATSAdapterConfig{})
	if _, err := adapter.Subscribe(nil, "x", "", nil); err == nil {
		t.Fatalf("expected nil connection to be rejected")
	}
}
