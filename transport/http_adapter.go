package transport

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-rendezvous/core"
	"github.com/google/uuid"
)

const (
	DefaultIntentHeader  = "X-Rendezvous-Intent"
	DefaultDispatchPath  = "/rpc/"
	DefaultMaxBodyBytes  = 1 << 20
	headerRequestID      = "X-Request-Id"
	headerTraceID        = "X-Trace-Id"
	headerSessionID      = "X-Session-Id"
	dispatchIntentValue  = "intent"
	contentTypeJSON      = "application/json"
	contentTypeForm      = "application/x-www-form-urlencoded"
	contentTypeMultipart = "multipart/form-data"
)

// HTTPRoute binds a net/http ServeMux pattern, such as "GET /users/{userId}",
// to an intent. Wildcards in the pattern become path values.
type HTTPRoute struct {
	Pattern string `mapstructure:"pattern" yaml:"pattern" toml:"pattern"`
	Intent  string `mapstructure:"intent" yaml:"intent" toml:"intent"`
}

type HTTPAdapterConfig struct {
	Routes []HTTPRoute `mapstructure:"routes"`
	// DispatchPath mounts "POST <DispatchPath>{intent}" for callers that name
	// the intent in the URL. Empty uses DefaultDispatchPath; "-" disables it.
	DispatchPath string `mapstructure:"dispatch_path"`
	IntentHeader string `mapstructure:"intent_header"`
	MaxBodyBytes int64  `mapstructure:"max_body_bytes"`
}

func (c HTTPAdapterConfig) normalized() HTTPAdapterConfig {
	out := c
	out.Routes = append([]HTTPRoute(nil), c.Routes...)
	if strings.TrimSpace(out.DispatchPath) == "" {
		out.DispatchPath = DefaultDispatchPath
	}
	if out.DispatchPath != "-" && !strings.HasSuffix(out.DispatchPath, "/") {
		out.DispatchPath += "/"
	}
	if strings.TrimSpace(out.IntentHeader) == "" {
		out.IntentHeader = DefaultIntentHeader
	}
	if out.MaxBodyBytes <= 0 {
		out.MaxBodyBytes = DefaultMaxBodyBytes
	}
	return out
}

// HTTPExchange is the inbound message of the HTTP adapter: the request plus
// the route it arrived on.
type HTTPExchange struct {
	Request *http.Request
	Route   HTTPRoute
	// TraceID is the request id echoed back in the X-Request-Id header.
	TraceID string

	params []string
}

func NewHTTPExchange(r *http.Request, route HTTPRoute) *HTTPExchange {
	return &HTTPExchange{Request: r, Route: route, params: pathParamNames(route.Pattern)}
}

type HTTPResponse struct {
	Status int
	Header http.Header
	Body   []byte
}

// HTTPAdapter reads intents from a route table, the dispatch path or the
// intent header and writes Envelope bodies.
type HTTPAdapter struct {
	config HTTPAdapterConfig
	clock  func() time.Time
}

func NewHTTPAdapter(config HTTPAdapterConfig) *HTTPAdapter {
	return &HTTPAdapter{config: config.normalized(), clock: time.Now}
}

func (a *HTTPAdapter) Scheme() string { return core.SchemeHTTP }

func (a *HTTPAdapter) Config() HTTPAdapterConfig { return a.config.normalized() }

func (a *HTTPAdapter) ExtractIntent(ex *HTTPExchange) (string, error) {
	if ex == nil || ex.Request == nil {
		return "", errors.New("transport: http exchange has no request")
	}
	if intent := strings.TrimSpace(ex.Route.Intent); intent != "" {
		return intent, nil
	}
	if intent := strings.TrimSpace(ex.Request.Header.Get(a.config.IntentHeader)); intent != "" {
		return intent, nil
	}
	if intent := strings.TrimSpace(ex.Request.PathValue(dispatchIntentValue)); intent != "" {
		return intent, nil
	}
	return "", fmt.Errorf("transport: no intent for %s %s", ex.Request.Method, ex.Request.URL.Path)
}

func (a *HTTPAdapter) ExtractPayload(ex *HTTPExchange) (core.Payload, error) {
	if ex == nil || ex.Request == nil {
		return core.Payload{}, errors.New("transport: http exchange has no request")
	}
	r := ex.Request
	ex.TraceID = firstNonEmpty(r.Header.Get(headerRequestID), r.Header.Get(headerTraceID))
	if ex.TraceID == "" {
		ex.TraceID = uuid.NewString()
	}

	payload := core.Payload{
		Path:      map[string]string{},
		Query:     map[string]string{},
		Header:    map[string]string{},
		Method:    r.Method,
		TraceID:   ex.TraceID,
		SessionID: r.Header.Get(headerSessionID),
		Metadata: map[string]any{
			"remote_addr": r.RemoteAddr,
			"path":        r.URL.Path,
		},
	}
	if ex.Route.Pattern != "" {
		payload.Metadata["http_route"] = ex.Route.Pattern
	}
	for _, name := range ex.params {
		if value := r.PathValue(name); value != "" {
			payload.Path[name] = value
		}
	}
	for name, values := range r.URL.Query() {
		if len(values) > 0 {
			payload.Query[name] = values[0]
		}
	}
	for name, values := range r.Header {
		if len(values) > 0 {
			payload.Header[name] = values[0]
		}
	}

	mediaType := requestMediaType(r)
	switch mediaType {
	case contentTypeForm, contentTypeMultipart:
		if err := a.readForm(r); err != nil {
			return core.Payload{}, err
		}
		payload.Root = map[string]any{}
		for name, values := range r.PostForm {
			if len(values) > 0 {
				payload.Root[name] = values[0]
			}
		}
	default:
		body, err := a.readBody(r)
		if err != nil {
			return core.Payload{}, err
		}
		payload.Body = body
	}
	return payload, nil
}

func (a *HTTPAdapter) readForm(r *http.Request) error {
	if r.Body != nil {
		r.Body = io.NopCloser(io.LimitReader(r.Body, a.config.MaxBodyBytes))
	}
	if requestMediaType(r) == contentTypeMultipart {
		if err := r.ParseMultipartForm(a.config.MaxBodyBytes); err != nil {
			return fmt.Errorf("transport: parse multipart form: %w", err)
		}
		return nil
	}
	if err := r.ParseForm(); err != nil {
		return fmt.Errorf("transport: parse form: %w", err)
	}
	return nil
}

// readBody decodes a JSON object into a map and keeps any other JSON value
// as json.RawMessage. An empty body yields nil.
func (a *HTTPAdapter) readBody(r *http.Request) (any, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, a.config.MaxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("transport: read body: %w", err)
	}
	if int64(len(data)) > a.config.MaxBodyBytes {
		return nil, fmt.Errorf("transport: request body exceeds %d bytes", a.config.MaxBodyBytes)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}
	if !json.Valid(data) {
		return nil, errors.New("transport: request body is not valid JSON")
	}
	if data[0] == '{' {
		decoded := map[string]any{}
		if err := json.Unmarshal(data, &decoded); err != nil {
			return nil, fmt.Errorf("transport: decode body: %w", err)
		}
		return decoded, nil
	}
	return json.RawMessage(data), nil
}

func (a *HTTPAdapter) BuildResponse(result any, ex *HTTPExchange) HTTPResponse {
	envelope := SuccessEnvelope(result, exchangeTraceID(ex), a.clock())
	body, err := json.Marshal(envelope)
	if err != nil {
		return a.BuildErrorResponse(&core.AdapterError{
			Scheme: core.SchemeHTTP,
			Stage:  core.StageBuildResponse,
			Cause:  err,
		}, ex)
	}
	return a.response(http.StatusOK, ex, body)
}

func (a *HTTPAdapter) BuildErrorResponse(cause error, ex *HTTPExchange) HTTPResponse {
	envelope := ErrorEnvelope(cause, exchangeTraceID(ex), a.clock())
	status := httpStatusFor(cause)
	if envelope.Error != nil {
		envelope.Error.Status = status
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		return a.Fallback(err, ex)
	}
	return a.response(status, ex, body)
}

// Fallback writes a minimal envelope that cannot fail to encode.
func (a *HTTPAdapter) Fallback(cause error, ex *HTTPExchange) HTTPResponse {
	body := fmt.Sprintf(`{"success":false,"error":{"code":%q,"message":"response could not be encoded","retryable":false}}`,
		core.DispatchErrorAdapterFailed)
	return a.response(http.StatusInternalServerError, ex, []byte(body))
}

func (a *HTTPAdapter) response(status int, ex *HTTPExchange, body []byte) HTTPResponse {
	header := http.Header{}
	header.Set("Content-Type", contentTypeJSON)
	if traceID := exchangeTraceID(ex); traceID != "" {
		header.Set(headerRequestID, traceID)
	}
	return HTTPResponse{Status: status, Header: header, Body: body}
}

// Handler mounts every configured route, and the dispatch path unless
// disabled, on a ServeMux served through gateway.
func (a *HTTPAdapter) Handler(gateway *core.Gateway[*HTTPExchange, HTTPResponse]) (http.Handler, error) {
	if gateway == nil {
		return nil, badInput("transport: http handler requires a gateway", nil)
	}
	mux := http.NewServeMux()
	err := func() (err error) {
		defer func() {
			if recovered := recover(); recovered != nil {
				err = badInput(fmt.Sprintf("transport: invalid http route: %v", recovered), nil)
			}
		}()
		for _, route := range a.config.Routes {
			if strings.TrimSpace(route.Pattern) == "" || strings.TrimSpace(route.Intent) == "" {
				return badInput("transport: http route requires a pattern and an intent", map[string]any{
					"pattern": route.Pattern,
					"intent":  route.Intent,
				})
			}
			mux.Handle(route.Pattern, serveHTTP(gateway, route))
		}
		if a.config.DispatchPath != "-" {
			route := HTTPRoute{Pattern: http.MethodPost + " " + a.config.DispatchPath + "{" + dispatchIntentValue + "}"}
			mux.Handle(route.Pattern, serveHTTP(gateway, route))
		}
		return nil
	}()
	if err != nil {
		return nil, err
	}
	return mux, nil
}

func serveHTTP(gateway *core.Gateway[*HTTPExchange, HTTPResponse], route HTTPRoute) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteHTTPResponse(w, gateway.Serve(r.Context(), NewHTTPExchange(r, route)))
	})
}

func WriteHTTPResponse(w http.ResponseWriter, response HTTPResponse) {
	if response.Status == 0 {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	for name, values := range response.Header {
		for _, value := range values {
			w.Header().Add(name, value)
		}
	}
	w.WriteHeader(response.Status)
	_, _ = w.Write(response.Body)
}

// httpStatusFor renders extraction failures as client errors; the message
// could not be read, so the caller sent something malformed.
func httpStatusFor(cause error) int {
	var adapterErr *core.AdapterError
	if errors.As(cause, &adapterErr) {
		switch adapterErr.Stage {
		case core.StageExtractIntent, core.StageExtractPayload:
			return http.StatusBadRequest
		}
	}
	return StatusFor(cause)
}

// pathParamNames lists the wildcard names of a ServeMux pattern.
func pathParamNames(pattern string) []string {
	var names []string
	for {
		start := strings.IndexByte(pattern, '{')
		if start < 0 {
			return names
		}
		end := strings.IndexByte(pattern[start:], '}')
		if end < 0 {
			return names
		}
		name := strings.TrimSuffix(pattern[start+1:start+end], "...")
		if name != "" && name != "$" {
			names = append(names, name)
		}
		pattern = pattern[start+end+1:]
	}
}

func requestMediaType(r *http.Request) string {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return ""
	}
	return strings.ToLower(mediaType)
}

func exchangeTraceID(ex *HTTPExchange) string {
	if ex == nil {
		return ""
	}
	return ex.TraceID
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value = strings.TrimSpace(value); value != "" {
			return value
		}
	}
	return ""
}
