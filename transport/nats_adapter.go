package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-rendezvous/core"
	"github.com/nats-io/nats.go"
)

// NATSInvocationContext is the caller context carried in a request envelope.
type NATSInvocationContext struct {
	TenantID      string `json:"tenantId,omitempty"`
	UserID        string `json:"userId,omitempty"`
	RequestID     string `json:"requestId,omitempty"`
	CorrelationID string `json:"correlationId,omitempty"`
	SessionID     string `json:"sessionId,omitempty"`
	TimeoutMs     int    `json:"timeoutMs,omitempty"`
}

// NATSRequest is the JSON envelope of a request/reply dispatch.
type NATSRequest struct {
	ID     string                 `json:"id"`
	Intent string                 `json:"intent"`
	Params json.RawMessage        `json:"params,omitempty"`
	Ctx    *NATSInvocationContext `json:"ctx,omitempty"`
}

type NATSResponse struct {
	ID     string        `json:"id"`
	OK     bool          `json:"ok"`
	Result any           `json:"result,omitempty"`
	Error  *ErrorPayload `json:"error,omitempty"`
}

// NATSMessage is the inbound message of the NATS adapter.
type NATSMessage struct {
	Subject string
	Data    []byte
	Header  nats.Header

	request *NATSRequest
	decoded bool
	err     error
}

func NewNATSMessage(msg *nats.Msg) *NATSMessage {
	if msg == nil {
		return &NATSMessage{}
	}
	return &NATSMessage{Subject: msg.Subject, Data: msg.Data, Header: msg.Header}
}

func (m *NATSMessage) decode() (*NATSRequest, error) {
	if m.decoded {
		return m.request, m.err
	}
	m.decoded = true
	request := &NATSRequest{}
	if err := json.Unmarshal(m.Data, request); err != nil {
		m.err = fmt.Errorf("transport: decode nats request: %w", err)
		return nil, m.err
	}
	m.request = request
	return request, nil
}

type NATSAdapterConfig struct {
	// Scheme defaults to core.SchemeRPC.
	Scheme string `mapstructure:"scheme"`
	// Timeout bounds a request that carries no timeoutMs of its own.
	Timeout time.Duration `mapstructure:"timeout"`
}

type NATSAdapter struct {
	scheme  string
	timeout time.Duration
}

func NewNATSAdapter(config NATSAdapterConfig) *NATSAdapter {
	scheme := strings.TrimSpace(strings.ToLower(config.Scheme))
	if scheme == "" {
		scheme = core.SchemeRPC
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &NATSAdapter{scheme: scheme, timeout: timeout}
}

func (a *NATSAdapter) Scheme() string { return a.scheme }

func (a *NATSAdapter) ExtractIntent(msg *NATSMessage) (string, error) {
	if msg == nil {
		return "", errors.New("transport: nats message is nil")
	}
	request, err := msg.decode()
	if err != nil {
		return "", err
	}
	intent := strings.TrimSpace(request.Intent)
	if intent == "" {
		return "", errors.New("transport: nats request has no intent")
	}
	return intent, nil
}

func (a *NATSAdapter) ExtractPayload(msg *NATSMessage) (core.Payload, error) {
	if msg == nil {
		return core.Payload{}, errors.New("transport: nats message is nil")
	}
	request, err := msg.decode()
	if err != nil {
		return core.Payload{}, err
	}
	payload := core.Payload{
		Header: map[string]string{},
		Metadata: map[string]any{
			"subject":    msg.Subject,
			"request_id": request.ID,
		},
	}
	for name, values := range msg.Header {
		if len(values) > 0 {
			payload.Header[name] = values[0]
		}
	}
	if caller := request.Ctx; caller != nil {
		payload.SessionID = caller.SessionID
		payload.TraceID = firstNonEmpty(caller.RequestID, caller.CorrelationID)
		if caller.TenantID != "" {
			payload.Metadata["tenant_id"] = caller.TenantID
		}
		if caller.UserID != "" {
			payload.Metadata["user_id"] = caller.UserID
		}
	}
	if params := trimRaw(request.Params); len(params) > 0 && string(params) != "null" {
		payload.Body = params
	}
	return payload, nil
}

func (a *NATSAdapter) BuildResponse(result any, msg *NATSMessage) NATSResponse {
	return NATSResponse{ID: requestID(msg), OK: true, Result: result}
}

func (a *NATSAdapter) BuildErrorResponse(cause error, msg *NATSMessage) NATSResponse {
	return NATSResponse{ID: requestID(msg), Error: ErrorPayloadFor(cause)}
}

// Timeout returns how long the request in msg may take.
func (a *NATSAdapter) Timeout(msg *NATSMessage) time.Duration {
	if msg != nil {
		if request, err := msg.decode(); err == nil && request.Ctx != nil && request.Ctx.TimeoutMs > 0 {
			return time.Duration(request.Ctx.TimeoutMs) * time.Millisecond
		}
	}
	return a.timeout
}

// Subscribe serves requests on subject through gateway, using a queue group
// when queue is set. Every request gets exactly one reply.
func (a *NATSAdapter) Subscribe(
	nc *nats.Conn,
	subject string,
	queue string,
	gateway *core.Gateway[*NATSMessage, NATSResponse],
) (*nats.Subscription, error) {
	if nc == nil {
		return nil, badInput("transport: nats subscribe requires a connection", nil)
	}
	if gateway == nil {
		return nil, badInput("transport: nats subscribe requires a gateway", nil)
	}
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return nil, badInput("transport: nats subject is required", nil)
	}
	handler := func(msg *nats.Msg) {
		inbound := NewNATSMessage(msg)
		ctx, cancel := context.WithTimeout(context.Background(), a.Timeout(inbound))
		defer cancel()

		response := gateway.Serve(ctx, inbound)
		data, err := json.Marshal(response)
		if err != nil {
			failed := a.BuildErrorResponse(&core.AdapterError{
				Scheme: a.scheme,
				Stage:  core.StageBuildResponse,
				Cause:  err,
			}, inbound)
			data, _ = json.Marshal(failed)
		}
		if msg.Reply != "" {
			_ = msg.Respond(data)
		}
	}
	var (
		sub *nats.Subscription
		err error
	)
	if queue = strings.TrimSpace(queue); queue != "" {
		sub, err = nc.QueueSubscribe(subject, queue, handler)
	} else {
		sub, err = nc.Subscribe(subject, handler)
	}
	if err != nil {
		return nil, transportWrapError(err, goerrors.CategoryExternal, "transport: nats subscribe failed", http.StatusBadGateway, map[string]any{
			"subject": subject,
		})
	}
	return sub, nil
}

// Connect opens a NATS connection that reconnects on its own and logs its
// state changes.
func Connect(url, name string, logger core.Logger) (*nats.Conn, error) {
	if logger == nil {
		logger = glog.Nop()
	}
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(60),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			logger.Info("nats connection closed", "name", name)
		}),
	)
	if err != nil {
		return nil, transportWrapError(err, goerrors.CategoryExternal, "transport: nats connect failed", http.StatusBadGateway, map[string]any{
			"url":  url,
			"name": name,
		})
	}
	logger.Info("nats connected", "url", nc.ConnectedUrl(), "name", name)
	return nc, nil
}

func requestID(msg *NATSMessage) string {
	if msg == nil {
		return ""
	}
	if request, err := msg.decode(); err == nil && request != nil {
		return request.ID
	}
	return ""
}
