package core

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
)

// InterceptorFunc observes a request. Its error is never propagated.
type InterceptorFunc func(ctx context.Context, rc *RequestContext) error

// Interceptor is a best-effort hook bound to a scheme and direction.
// A nil Order sorts after every ordered interceptor.
type Interceptor struct {
	Name      string
	Scheme    string
	Direction Direction
	Order     *int
	Intercept InterceptorFunc
}

// NewInterceptor returns an interceptor for every scheme in both directions.
func NewInterceptor(name string, fn InterceptorFunc) Interceptor {
	return Interceptor{
		Name:      name,
		Scheme:    SchemeAll,
		Direction: DirectionBoth,
		Intercept: fn,
	}
}

func (i Interceptor) ForScheme(scheme string) Interceptor {
	i.Scheme = scheme
	return i
}

func (i Interceptor) Inbound() Interceptor {
	i.Direction = DirectionInbound
	return i
}

func (i Interceptor) Outbound() Interceptor {
	i.Direction = DirectionOutbound
	return i
}

func (i Interceptor) WithOrder(order int) Interceptor {
	i.Order = &order
	return i
}

func (i Interceptor) effectiveOrder() int {
	if i.Order == nil {
		return OrderUnspecified
	}
	return *i.Order
}

type chainKey struct {
	scheme    string
	direction Direction
}

type chainEntry struct {
	interceptor Interceptor
	order       int
	seq         int
}

// InterceptorChain keeps interceptors per scheme and direction, sorted by
// order with ties in registration order.
type InterceptorChain struct {
	mu      sync.RWMutex
	entries map[chainKey][]chainEntry
	seq     int
	policy  string
	logger  Logger
	metrics MetricsRecorder
}

func NewInterceptorChain(policy string, logger Logger, metrics MetricsRecorder) *InterceptorChain {
	if metrics == nil {
		metrics = NopMetricsRecorder{}
	}
	return &InterceptorChain{
		entries: map[chainKey][]chainEntry{},
		policy:  normalizeFailurePolicy(policy),
		logger:  logger,
		metrics: metrics,
	}
}

func (c *InterceptorChain) Register(interceptor Interceptor) error {
	if c == nil {
		return registrationError("core: interceptor chain is nil", nil)
	}
	if interceptor.Intercept == nil {
		return registrationError(
			fmt.Sprintf("core: interceptor %q has no hook", interceptor.Name),
			map[string]any{"interceptor": interceptor.Name},
		)
	}
	interceptor.Scheme = normalizeScheme(interceptor.Scheme)
	if interceptor.Scheme == "" {
		interceptor.Scheme = SchemeAll
	}
	interceptor.Direction = interceptor.Direction.normalize()
	if interceptor.Direction == "" {
		interceptor.Direction = DirectionBoth
	}
	if !interceptor.Direction.valid() {
		return registrationError(
			fmt.Sprintf("core: interceptor %q has unknown direction %q", interceptor.Name, interceptor.Direction),
			map[string]any{"interceptor": interceptor.Name},
		)
	}
	if strings.TrimSpace(interceptor.Name) == "" {
		interceptor.Name = fmt.Sprintf("%s/%s", interceptor.Scheme, interceptor.Direction)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	entry := chainEntry{interceptor: interceptor, order: interceptor.effectiveOrder(), seq: c.seq}
	for _, direction := range []Direction{DirectionInbound, DirectionOutbound} {
		if !interceptor.Direction.includes(direction) {
			continue
		}
		key := chainKey{scheme: interceptor.Scheme, direction: direction}
		list := append(slices.Clone(c.entries[key]), entry)
		sort.SliceStable(list, func(i, j int) bool {
			return list[i].order < list[j].order
		})
		c.entries[key] = list
	}
	return nil
}

// Inbound lists the interceptors that run on scheme before resolution.
func (c *InterceptorChain) Inbound(scheme string) []Interceptor {
	return interceptorsOf(c.resolve(scheme, DirectionInbound))
}

// Outbound lists the interceptors that run on scheme before the response is built.
func (c *InterceptorChain) Outbound(scheme string) []Interceptor {
	return interceptorsOf(c.resolve(scheme, DirectionOutbound))
}

func (c *InterceptorChain) RunInbound(ctx context.Context, scheme string, rc *RequestContext) {
	c.run(ctx, DirectionInbound, c.resolve(scheme, DirectionInbound), rc)
}

func (c *InterceptorChain) RunOutbound(ctx context.Context, scheme string, rc *RequestContext) {
	c.run(ctx, DirectionOutbound, c.resolve(scheme, DirectionOutbound), rc)
}

// resolve merges the scheme list with the all-schemes list.
func (c *InterceptorChain) resolve(scheme string, direction Direction) []chainEntry {
	if c == nil {
		return nil
	}
	scheme = normalizeScheme(scheme)
	c.mu.RLock()
	specific := c.entries[chainKey{scheme: scheme, direction: direction}]
	var shared []chainEntry
	if scheme != SchemeAll {
		shared = c.entries[chainKey{scheme: SchemeAll, direction: direction}]
	}
	c.mu.RUnlock()

	merged := make([]chainEntry, 0, len(specific)+len(shared))
	i, j := 0, 0
	for i < len(specific) && j < len(shared) {
		a, b := specific[i], shared[j]
		if a.order < b.order || (a.order == b.order && a.seq < b.seq) {
			merged = append(merged, a)
			i++
			continue
		}
		merged = append(merged, b)
		j++
	}
	merged = append(merged, specific[i:]...)
	return append(merged, shared[j:]...)
}

func (c *InterceptorChain) run(ctx context.Context, direction Direction, entries []chainEntry, rc *RequestContext) {
	for _, entry := range entries {
		c.invoke(ctx, direction, entry.interceptor, rc)
	}
}

func (c *InterceptorChain) invoke(ctx context.Context, direction Direction, interceptor Interceptor, rc *RequestContext) {
	defer func() {
		if recovered := recover(); recovered != nil {
			c.reportFailure(ctx, direction, interceptor, rc, fmt.Errorf("interceptor panic: %v", recovered))
		}
	}()
	if err := interceptor.Intercept(ctx, rc); err != nil {
		c.reportFailure(ctx, direction, interceptor, rc, err)
	}
}

func (c *InterceptorChain) reportFailure(
	ctx context.Context,
	direction Direction,
	interceptor Interceptor,
	rc *RequestContext,
	err error,
) {
	if c.policy != FailurePolicyLog {
		return
	}
	tags := map[string]string{
		"interceptor": interceptor.Name,
		"direction":   string(direction),
		"scheme":      rc.Scheme(),
	}
	c.metrics.IncCounter(ctx, MetricInterceptorFailures, 1, tags)
	if c.logger == nil {
		return
	}
	c.logger.WithContext(ctx).Warn("interceptor failed",
		"interceptor", interceptor.Name,
		"direction", string(direction),
		"scheme", rc.Scheme(),
		"intent", rc.Intent(),
		"trace_id", rc.TraceID(),
		"error", err.Error(),
	)
}

func interceptorsOf(entries []chainEntry) []Interceptor {
	out := make([]Interceptor, 0, len(entries))
	for _, entry := range entries {
		out = append(out, entry.interceptor)
	}
	return out
}
