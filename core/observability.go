package core

import (
	"context"
	"maps"
	"sort"
	"strings"
	"time"
)

const unmatchedRoute = "unmatched"

func (d *Dispatcher) observeDispatch(ctx context.Context, rc *RequestContext) {
	if d == nil || rc == nil {
		return
	}
	outcome := rc.Outcome()
	status := "success"
	if !outcome.Succeeded() {
		status = "failure"
	}
	kind := KindOf(outcome.Err)

	route := unmatchedRoute
	if value, ok := rc.Metadata(MetadataRoute); ok {
		if name, _ := value.(string); strings.TrimSpace(name) != "" {
			route = name
		}
	}

	elapsed := rc.CompletedAt().Sub(rc.ReceivedAt())
	if elapsed < 0 {
		elapsed = 0
	}

	fields := map[string]any{
		"event_type":  "dispatch",
		"intent":      rc.Intent(),
		"route":       route,
		"scheme":      rc.Scheme(),
		"trace_id":    rc.TraceID(),
		"status":      status,
		"duration_ms": elapsed.Milliseconds(),
	}
	if sessionID := rc.SessionID(); sessionID != "" {
		fields["session_id"] = sessionID
	}
	if outcome.Err != nil {
		fields["error"] = outcome.Err.Error()
		fields["error_kind"] = kind.String()
	}

	tags := map[string]string{
		"intent": route,
		"scheme": rc.Scheme(),
		"status": status,
		"kind":   kind.String(),
	}
	d.recordCounter(ctx, MetricDispatchTotal, 1, tags)
	d.recordHistogram(ctx, MetricDispatchDuration, float64(elapsed)/float64(time.Millisecond), tags)

	switch kind {
	case KindNone:
		d.logWithLevel(ctx, "info", "dispatch succeeded", fields)
	case KindNotFound, KindValidation:
		d.logWithLevel(ctx, "warn", "dispatch rejected", fields)
	default:
		d.logWithLevel(ctx, "error", "dispatch failed", fields)
	}
}

func (d *Dispatcher) logWithLevel(ctx context.Context, level string, message string, fields map[string]any) {
	if d == nil || d.logger == nil {
		return
	}
	logger := d.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	if fieldsLogger, ok := logger.(FieldsLogger); ok {
		logger = fieldsLogger.WithFields(cloneFields(fields))
	}
	args := flattenFields(fields)
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "error":
		logger.Error(message, args...)
	case "warn":
		logger.Warn(message, args...)
	default:
		logger.Info(message, args...)
	}
}

func (d *Dispatcher) recordCounter(ctx context.Context, name string, value int64, tags map[string]string) {
	if d == nil || d.metricsRecorder == nil {
		return
	}
	d.metricsRecorder.IncCounter(ctx, strings.TrimSpace(name), value, cloneTags(tags))
}

func (d *Dispatcher) recordHistogram(ctx context.Context, name string, value float64, tags map[string]string) {
	if d == nil || d.metricsRecorder == nil {
		return
	}
	d.metricsRecorder.ObserveHistogram(ctx, strings.TrimSpace(name), value, cloneTags(tags))
}

func cloneFields(fields map[string]any) map[string]any {
	if len(fields) == 0 {
		return map[string]any{}
	}
	return maps.Clone(fields)
}

func flattenFields(fields map[string]any) []any {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	args := make([]any, 0, len(keys)*2)
	for _, key := range keys {
		args = append(args, key, fields[key])
	}
	return args
}
