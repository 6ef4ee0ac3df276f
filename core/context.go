package core

import (
	"encoding/json"
	"maps"
	"sort"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const (
	keyPrefixPath   = "path."
	keyPrefixQuery  = "query."
	keyPrefixHeader = "header."
	keyBody         = "body"
)

const (
	MetadataScheme     = "scheme"
	MetadataIntent     = "intent"
	MetadataSessionID  = "session_id"
	MetadataMethod     = "method"
	MetadataTraceID    = "trace_id"
	MetadataReceivedAt = "received_at"
	MetadataRoute      = "route"
	MetadataHandler    = "handler"
)

// RequestContext carries one request through the dispatcher. It has a single
// owner at any time and is not safe for concurrent use.
//
// Raw values live under source-prefixed keys (path.*, query.*, header.*),
// the structured body under "body", and flattened root values under their
// bare names. Header names are stored lower-cased.
type RequestContext struct {
	values      map[string]any
	metadata    map[string]any
	scheme      string
	intent      string
	sessionID   string
	method      string
	traceID     string
	receivedAt  time.Time
	completedAt time.Time
	raw         any
	outcome     Outcome
}

func NewRequestContext(scheme string, raw any) *RequestContext {
	return &RequestContext{
		values:   map[string]any{},
		metadata: map[string]any{},
		scheme:   normalizeScheme(scheme),
		raw:      raw,
	}
}

// Seed copies an adapter payload into the value store.
func (rc *RequestContext) Seed(payload Payload) {
	for name, value := range payload.Path {
		rc.values[keyPrefixPath+name] = value
	}
	for name, value := range payload.Query {
		rc.values[keyPrefixQuery+name] = value
	}
	for name, value := range payload.Header {
		rc.values[keyPrefixHeader+strings.ToLower(name)] = value
	}
	for name, value := range payload.Root {
		if isReservedKey(name) {
			continue
		}
		rc.values[name] = value
	}
	if payload.Body != nil {
		rc.values[keyBody] = payload.Body
	}
	if scheme := normalizeScheme(payload.Scheme); scheme != "" && rc.scheme == "" {
		rc.scheme = scheme
	}
	if payload.SessionID != "" {
		rc.sessionID = payload.SessionID
	}
	if payload.Method != "" {
		rc.method = payload.Method
	}
	if payload.TraceID != "" {
		rc.traceID = payload.TraceID
	}
	maps.Copy(rc.metadata, payload.Metadata)
}

func (rc *RequestContext) Set(key string, value any) {
	if strings.HasPrefix(key, keyPrefixHeader) {
		key = keyPrefixHeader + strings.ToLower(strings.TrimPrefix(key, keyPrefixHeader))
	}
	rc.values[key] = value
}

func (rc *RequestContext) Get(key string) (any, bool) {
	if strings.HasPrefix(key, keyPrefixHeader) {
		key = keyPrefixHeader + strings.ToLower(strings.TrimPrefix(key, keyPrefixHeader))
	}
	value, ok := rc.values[key]
	return value, ok
}

func (rc *RequestContext) Keys() []string {
	keys := make([]string, 0, len(rc.values))
	for key := range rc.values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func (rc *RequestContext) Body() (any, bool) {
	body, ok := rc.values[keyBody]
	if !ok || body == nil {
		return nil, false
	}
	return body, true
}

// Root returns the flattened values: every key that carries no source
// prefix and is not the body.
func (rc *RequestContext) Root() map[string]any {
	out := map[string]any{}
	for key, value := range rc.values {
		if isReservedKey(key) {
			continue
		}
		out[key] = value
	}
	return out
}

// Lookup reads name from a single source. Absent and nil values report false.
func (rc *RequestContext) Lookup(source ParameterSource, name string) (any, bool) {
	var (
		value any
		ok    bool
	)
	switch source.normalize() {
	case SourcePath:
		value, ok = rc.values[keyPrefixPath+name]
	case SourceQuery:
		value, ok = rc.values[keyPrefixQuery+name]
	case SourceHeader:
		value, ok = rc.values[keyPrefixHeader+strings.ToLower(name)]
	case SourceBody:
		value, ok = rc.lookupBody(name)
	case sourceRoot:
		if isReservedKey(name) {
			return nil, false
		}
		value, ok = rc.values[name]
	}
	if !ok || value == nil {
		return nil, false
	}
	return value, true
}

func (rc *RequestContext) lookupBody(name string) (any, bool) {
	body, ok := rc.Body()
	if !ok {
		return nil, false
	}
	switch typed := body.(type) {
	case map[string]any:
		if value, found := typed[name]; found {
			return value, true
		}
		return lookupDotted(typed, name)
	case json.RawMessage:
		return lookupJSON(typed, name)
	case []byte:
		return lookupJSON(typed, name)
	default:
		return nil, false
	}
}

// structuredValue is the source for unhinted structural parameters: the body
// when present, else the flattened root values.
func (rc *RequestContext) structuredValue() (any, bool) {
	if body, ok := rc.Body(); ok {
		return body, true
	}
	root := rc.Root()
	if len(root) == 0 {
		return nil, false
	}
	return root, true
}

func (rc *RequestContext) Scheme() string        { return rc.scheme }
func (rc *RequestContext) Intent() string        { return rc.intent }
func (rc *RequestContext) SessionID() string     { return rc.sessionID }
func (rc *RequestContext) Method() string        { return rc.method }
func (rc *RequestContext) TraceID() string       { return rc.traceID }
func (rc *RequestContext) ReceivedAt() time.Time { return rc.receivedAt }
func (rc *RequestContext) Raw() any              { return rc.raw }
func (rc *RequestContext) Outcome() Outcome      { return rc.outcome }
func (rc *RequestContext) Result() any           { return rc.outcome.Result }
func (rc *RequestContext) Err() error            { return rc.outcome.Err }

// CompletedAt is stamped by the dispatcher clock before outbound interceptors
// run. It is zero until then.
func (rc *RequestContext) CompletedAt() time.Time { return rc.completedAt }

func (rc *RequestContext) SetMetadata(key string, value any) {
	rc.metadata[key] = value
}

func (rc *RequestContext) Metadata(key string) (any, bool) {
	value, ok := rc.metadata[key]
	return value, ok
}

// MetadataSnapshot returns a copy of the metadata including the standard
// request attributes.
func (rc *RequestContext) MetadataSnapshot() map[string]any {
	out := maps.Clone(rc.metadata)
	if out == nil {
		out = map[string]any{}
	}
	out[MetadataScheme] = rc.scheme
	out[MetadataIntent] = rc.intent
	out[MetadataTraceID] = rc.traceID
	if rc.sessionID != "" {
		out[MetadataSessionID] = rc.sessionID
	}
	if rc.method != "" {
		out[MetadataMethod] = rc.method
	}
	if !rc.receivedAt.IsZero() {
		out[MetadataReceivedAt] = rc.receivedAt
	}
	return out
}

func (rc *RequestContext) succeed(result any) {
	rc.outcome = Outcome{Result: result, completed: true}
}

func (rc *RequestContext) fail(err error) {
	rc.outcome = Outcome{Err: err, completed: true}
}

func isReservedKey(key string) bool {
	return key == keyBody ||
		strings.HasPrefix(key, keyPrefixPath) ||
		strings.HasPrefix(key, keyPrefixQuery) ||
		strings.HasPrefix(key, keyPrefixHeader)
}

func lookupDotted(values map[string]any, path string) (any, bool) {
	if !strings.Contains(path, ".") {
		return nil, false
	}
	var current any = values
	for segment := range strings.SplitSeq(path, ".") {
		node, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = node[segment]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func lookupJSON(data []byte, path string) (any, bool) {
	result := gjson.GetBytes(data, path)
	if !result.Exists() {
		return nil, false
	}
	return result.Value(), true
}
