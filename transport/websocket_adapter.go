package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-rendezvous/core"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
)

const (
	defaultWebSocketReadLimit   = 1 << 20
	defaultWebSocketWriteWait   = 10 * time.Second
	defaultWebSocketMaxInFlight = 16
)

// WebSocketFrame is one request frame read from a connection.
type WebSocketFrame struct {
	ID      string            `json:"id"`
	Intent  string            `json:"intent"`
	Params  json.RawMessage   `json:"params,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Session string            `json:"session,omitempty"`
}

// WebSocketReply is the frame written back for every request frame.
type WebSocketReply struct {
	ID     string        `json:"id,omitempty"`
	OK     bool          `json:"ok"`
	Result any           `json:"result,omitempty"`
	Error  *ErrorPayload `json:"error,omitempty"`
}

// WebSocketMessage is the inbound message of the websocket adapter: the raw
// frame bytes and the connection they arrived on.
type WebSocketMessage struct {
	Data         []byte
	ConnectionID string
	RemoteAddr   string

	frame   *WebSocketFrame
	decoded bool
	err     error
}

func (m *WebSocketMessage) decode() (*WebSocketFrame, error) {
	if m.decoded {
		return m.frame, m.err
	}
	m.decoded = true
	frame := &WebSocketFrame{}
	if err := json.Unmarshal(m.Data, frame); err != nil {
		m.err = fmt.Errorf("transport: decode websocket frame: %w", err)
		return nil, m.err
	}
	m.frame = frame
	return frame, nil
}

type WebSocketAdapterConfig struct {
	ReadLimit   int64         `mapstructure:"read_limit"`
	WriteWait   time.Duration `mapstructure:"write_wait"`
	MaxInFlight int           `mapstructure:"max_in_flight"`
	// AllowedOrigins limits the Origin header on upgrade; empty allows any.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

func (c WebSocketAdapterConfig) normalized() WebSocketAdapterConfig {
	out := c
	if out.ReadLimit <= 0 {
		out.ReadLimit = defaultWebSocketReadLimit
	}
	if out.WriteWait <= 0 {
		out.WriteWait = defaultWebSocketWriteWait
	}
	if out.MaxInFlight <= 0 {
		out.MaxInFlight = defaultWebSocketMaxInFlight
	}
	out.AllowedOrigins = append([]string(nil), c.AllowedOrigins...)
	return out
}

type WebSocketAdapter struct {
	config   WebSocketAdapterConfig
	upgrader websocket.Upgrader
}

func NewWebSocketAdapter(config WebSocketAdapterConfig) *WebSocketAdapter {
	config = config.normalized()
	adapter := &WebSocketAdapter{config: config}
	adapter.upgrader = websocket.Upgrader{CheckOrigin: adapter.checkOrigin}
	return adapter
}

func (a *WebSocketAdapter) Scheme() string { return core.SchemeWebSocket }

func (a *WebSocketAdapter) checkOrigin(r *http.Request) bool {
	if len(a.config.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range a.config.AllowedOrigins {
		if strings.EqualFold(strings.TrimSpace(allowed), origin) {
			return true
		}
	}
	return false
}

func (a *WebSocketAdapter) ExtractIntent(msg *WebSocketMessage) (string, error) {
	if msg == nil {
		return "", errors.New("transport: websocket message is nil")
	}
	frame, err := msg.decode()
	if err != nil {
		return "", err
	}
	intent := strings.TrimSpace(frame.Intent)
	if intent == "" {
		return "", errors.New("transport: websocket frame has no intent")
	}
	return intent, nil
}

func (a *WebSocketAdapter) ExtractPayload(msg *WebSocketMessage) (core.Payload, error) {
	if msg == nil {
		return core.Payload{}, errors.New("transport: websocket message is nil")
	}
	frame, err := msg.decode()
	if err != nil {
		return core.Payload{}, err
	}
	payload := core.Payload{
		Header:    map[string]string{},
		SessionID: firstNonEmpty(frame.Session, msg.ConnectionID),
		Metadata: map[string]any{
			"connection_id": msg.ConnectionID,
			"frame_id":      frame.ID,
			"remote_addr":   msg.RemoteAddr,
		},
	}
	for name, value := range frame.Headers {
		payload.Header[name] = value
	}
	payload.TraceID = headerValue(frame.Headers, headerRequestID)
	if params := trimRaw(frame.Params); len(params) > 0 && string(params) != "null" {
		payload.Body = params
	}
	return payload, nil
}

func (a *WebSocketAdapter) BuildResponse(result any, msg *WebSocketMessage) WebSocketReply {
	return WebSocketReply{ID: frameID(msg), OK: true, Result: result}
}

func (a *WebSocketAdapter) BuildErrorResponse(cause error, msg *WebSocketMessage) WebSocketReply {
	return WebSocketReply{ID: frameID(msg), Error: ErrorPayloadFor(cause)}
}

// Handler upgrades each request and serves its frames through gateway until
// the peer disconnects or the request context ends.
func (a *WebSocketAdapter) Handler(gateway *core.Gateway[*WebSocketMessage, WebSocketReply]) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := a.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		a.ServeConn(r.Context(), conn, gateway)
	})
}

// ServeConn reads frames from conn and dispatches them concurrently, bounded
// by MaxInFlight. Replies are written in completion order.
func (a *WebSocketAdapter) ServeConn(
	ctx context.Context,
	conn *websocket.Conn,
	gateway *core.Gateway[*WebSocketMessage, WebSocketReply],
) {
	conn.SetReadLimit(a.config.ReadLimit)
	connectionID := uuid.NewString()
	remote := conn.RemoteAddr().String()

	var (
		writeMu sync.Mutex
		group   errgroup.Group
	)
	group.SetLimit(a.config.MaxInFlight)
	write := func(reply WebSocketReply) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		data, err := json.Marshal(reply)
		if err != nil {
			failed := a.BuildErrorResponse(&core.AdapterError{
				Scheme: core.SchemeWebSocket,
				Stage:  core.StageBuildResponse,
				Cause:  err,
			}, nil)
			failed.ID = reply.ID
			data, _ = json.Marshal(failed)
		}
		if err := conn.SetWriteDeadline(time.Now().Add(a.config.WriteWait)); err != nil {
			return err
		}
		return conn.WriteMessage(websocket.TextMessage, data)
	}

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
			continue
		}
		msg := &WebSocketMessage{Data: data, ConnectionID: connectionID, RemoteAddr: remote}
		group.Go(func() error {
			return write(gateway.Serve(ctx, msg))
		})
	}
	_ = group.Wait()
}

func frameID(msg *WebSocketMessage) string {
	if msg == nil {
		return ""
	}
	if frame, err := msg.decode(); err == nil && frame != nil {
		return frame.ID
	}
	return ""
}

func trimRaw(raw json.RawMessage) json.RawMessage {
	return json.RawMessage(strings.TrimSpace(string(raw)))
}

func headerValue(headers map[string]string, name string) string {
	for key, value := range headers {
		if strings.EqualFold(key, name) {
			return value
		}
	}
	return ""
}
