package core

import (
	"encoding/json"
	"slices"
	"testing"
)

func TestRequestContext_SeedStoresPrefixedValues(t *testing.T) {
	rc := NewRequestContext(" HTTP ", "raw")
	rc.Seed(Payload{
		Path:      map[string]string{"id": "1"},
		Query:     map[string]string{"page": "2"},
		Header:    map[string]string{"X-Request-Id": "abc"},
		Root:      map[string]any{"extra": true, "path.id": "spoofed", "body": "spoofed"},
		Body:      map[string]any{"name": "Ada"},
		Method:    "GET",
		Metadata:  map[string]any{"remote_addr": "10.0.0.1"},
		SessionID: "s-1",
	})

	want := []string{"body", "extra", "header.x-request-id", "path.id", "query.page"}
	if got := rc.Keys(); !slices.Equal(got, want) {
		t.Fatalf("expected keys %v, got %v", want, got)
	}
	if value, _ := rc.Get("path.id"); value != "1" {
		t.Fatalf("expected root values not to overwrite prefixed keys, got %v", value)
	}
	if value, _ := rc.Get("header.X-REQUEST-ID"); value != "abc" {
		t.Fatalf("expected case-insensitive header access, got %v", value)
	}
	if rc.Scheme() != SchemeHTTP || rc.Method() != "GET" || rc.SessionID() != "s-1" || rc.Raw() != "raw" {
		t.Fatalf("unexpected request identity: %s %s %s %v", rc.Scheme(), rc.Method(), rc.SessionID(), rc.Raw())
	}
	root := rc.Root()
	if len(root) != 1 || root["extra"] != true {
		t.Fatalf("expected only unprefixed values in root, got %v", root)
	}
	snapshot := rc.MetadataSnapshot()
	if snapshot["remote_addr"] != "10.0.0.1" || snapshot[MetadataScheme] != SchemeHTTP || snapshot[MetadataMethod] != "GET" {
		t.Fatalf("unexpected metadata snapshot: %v", snapshot)
	}
}

func TestRequestContext_LookupTreatsNilAsAbsent(t *testing.T) {
	rc := NewRequestContext(SchemeRPC, nil)
	rc.Set("query.filter", nil)
	if _, ok := rc.Lookup(SourceQuery, "filter"); ok {
		t.Fatalf("expected nil value to be absent")
	}
	if _, ok := rc.Lookup(sourceRoot, "path.id"); ok {
		t.Fatalf("expected root lookup to skip prefixed keys")
	}
}

func TestRequestContext_BodyLookupOnRawJSON(t *testing.T) {
	rc := NewRequestContext(SchemeWebSocket, nil)
	rc.Seed(Payload{Body: json.RawMessage(`{"user":{"id":7,"roles":["admin"]}}`)})

	value, ok := rc.Lookup(SourceBody, "user.id")
	if !ok {
		t.Fatalf("expected user.id in raw body")
	}
	if value != float64(7) {
		t.Fatalf("expected decoded number, got %#v", value)
	}
	if _, ok := rc.Lookup(SourceBody, "user.email"); ok {
		t.Fatalf("expected missing path to be absent")
	}
}

func TestRequestContext_OutcomeTransitions(t *testing.T) {
	rc := NewRequestContext(SchemeHTTP, nil)
	if rc.Outcome().Completed() {
		t.Fatalf("expected fresh context to be incomplete")
	}
	rc.succeed("ok")
	if !rc.Outcome().Succeeded() || rc.Result() != "ok" {
		t.Fatalf("expected success outcome")
	}
	rc.fail(&NotFoundError{Intent: "x"})
	if !rc.Outcome().Failed() || rc.Result() != nil {
		t.Fatalf("expected failure to replace the result")
	}
}
