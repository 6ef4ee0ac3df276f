package transport

import "time"

// Envelope is the standard response body written by the HTTP adapter.
type Envelope struct {
	Success   bool          `json:"success"`
	Data      any           `json:"data,omitempty"`
	Error     *ErrorPayload `json:"error,omitempty"`
	TraceID   string        `json:"trace_id,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

func SuccessEnvelope(data any, traceID string, at time.Time) Envelope {
	return Envelope{Success: true, Data: data, TraceID: traceID, Timestamp: at.UTC()}
}

func ErrorEnvelope(cause error, traceID string, at time.Time) Envelope {
	return Envelope{Error: ErrorPayloadFor(cause), TraceID: traceID, Timestamp: at.UTC()}
}
