// Package prom exports dispatcher metrics through a Prometheus registry.
package prom

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-rendezvous/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultBuckets suit millisecond histograms such as dispatch duration.
var DefaultBuckets = prometheus.ExponentialBuckets(1, 2, 14)

type Option func(*Recorder)

func WithNamespace(namespace string) Option {
	return func(r *Recorder) { r.namespace = sanitize(namespace) }
}

func WithBuckets(buckets []float64) Option {
	return func(r *Recorder) {
		if len(buckets) > 0 {
			r.buckets = slices.Clone(buckets)
		}
	}
}

func WithRegistry(registry *prometheus.Registry) Option {
	return func(r *Recorder) {
		if registry != nil {
			r.registry = registry
		}
	}
}

func WithLogger(logger core.Logger) Option {
	return func(r *Recorder) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithRuntimeCollectors adds the Go runtime and process collectors.
func WithRuntimeCollectors() Option {
	return func(r *Recorder) { r.runtime = true }
}

// Recorder is a core.MetricsRecorder backed by Prometheus vectors. A
// vector is created on first use of a metric name and its label names are
// the sorted tag keys of that first call; later calls map onto those
// labels, leaving missing ones empty and dropping unknown ones.
type Recorder struct {
	namespace string
	buckets   []float64
	registry  *prometheus.Registry
	logger    core.Logger
	runtime   bool

	mu         sync.Mutex
	counters   map[string]*vector[*prometheus.CounterVec]
	histograms map[string]*vector[*prometheus.HistogramVec]
}

type vector[V any] struct {
	vec    V
	labels []string
}

func NewRecorder(opts ...Option) (*Recorder, error) {
	r := &Recorder{
		namespace:  "rendezvous",
		buckets:    DefaultBuckets,
		registry:   prometheus.NewRegistry(),
		logger:     glog.Nop(),
		counters:   map[string]*vector[*prometheus.CounterVec]{},
		histograms: map[string]*vector[*prometheus.HistogramVec]{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	if r.runtime {
		if err := r.registry.Register(collectors.NewGoCollector()); err != nil {
			return nil, fmt.Errorf("prom: register go collector: %w", err)
		}
		if err := r.registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
			return nil, fmt.Errorf("prom: register process collector: %w", err)
		}
	}
	return r, nil
}

func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

func (r *Recorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	if r == nil || value < 0 {
		return
	}
	r.mu.Lock()
	entry, ok := r.counters[name]
	if !ok {
		labels := labelNames(tags)
		vec := prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: r.namespace,
			Name:      counterName(r.metricName(name)),
			Help:      fmt.Sprintf("Counter %s.", name),
		}, labels)
		if err := r.registry.Register(vec); err != nil {
			r.mu.Unlock()
			r.logger.Error("prometheus counter registration failed", "metric", name, "error", err)
			return
		}
		entry = &vector[*prometheus.CounterVec]{vec: vec, labels: labels}
		r.counters[name] = entry
	}
	r.mu.Unlock()
	entry.vec.WithLabelValues(labelValues(entry.labels, tags)...).Add(float64(value))
}

func (r *Recorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	entry, ok := r.histograms[name]
	if !ok {
		labels := labelNames(tags)
		vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: r.namespace,
			Name:      r.metricName(name),
			Help:      fmt.Sprintf("Histogram %s.", name),
			Buckets:   r.buckets,
		}, labels)
		if err := r.registry.Register(vec); err != nil {
			r.mu.Unlock()
			r.logger.Error("prometheus histogram registration failed", "metric", name, "error", err)
			return
		}
		entry = &vector[*prometheus.HistogramVec]{vec: vec, labels: labels}
		r.histograms[name] = entry
	}
	r.mu.Unlock()
	entry.vec.WithLabelValues(labelValues(entry.labels, tags)...).Observe(value)
}

func (r *Recorder) metricName(name string) string {
	if r.namespace != "" {
		name = strings.TrimPrefix(name, r.namespace+".")
	}
	return sanitize(name)
}

func counterName(name string) string {
	if strings.HasSuffix(name, "_total") {
		return name
	}
	return name + "_total"
}

func labelNames(tags map[string]string) []string {
	names := make([]string, 0, len(tags))
	for key := range tags {
		if label := sanitize(key); label != "" {
			names = append(names, label)
		}
	}
	slices.Sort(names)
	return slices.Compact(names)
}

func labelValues(labels []string, tags map[string]string) []string {
	byLabel := make(map[string]string, len(tags))
	for key, value := range tags {
		byLabel[sanitize(key)] = value
	}
	values := make([]string, len(labels))
	for i, label := range labels {
		values[i] = byLabel[label]
	}
	return values
}

// sanitize maps a dotted metric or tag name onto the Prometheus charset.
func sanitize(name string) string {
	name = strings.TrimSpace(name)
	var b strings.Builder
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

var _ core.MetricsRecorder = (*Recorder)(nil)
