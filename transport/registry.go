package transport

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/go-viper/mapstructure/v2"
	"github.com/goliatone/go-rendezvous/core"
)

const SchemeNATS = "nats"

// Adapter is the scheme-bearing part shared by every protocol adapter; the
// typed ProtocolAdapter is recovered with a type assertion.
type Adapter interface {
	Scheme() string
}

type AdapterFactory func(config map[string]any) (Adapter, error)

// Registry holds built adapters and factories keyed by name. Names are
// usually the adapter scheme.
type Registry struct {
	mu        sync.RWMutex
	adapters  map[string]Adapter
	factories map[string]AdapterFactory
}

func NewRegistry() *Registry {
	return &Registry{
		adapters:  map[string]Adapter{},
		factories: map[string]AdapterFactory{},
	}
}

// NewDefaultRegistry knows how to build the http, websocket and nats
// adapters from raw config maps.
func NewDefaultRegistry() *Registry {
	registry := NewRegistry()
	_ = registry.RegisterFactory(core.SchemeHTTP, func(config map[string]any) (Adapter, error) {
		var cfg HTTPAdapterConfig
		if err := decodeAdapterConfig(config, &cfg); err != nil {
			return nil, err
		}
		return NewHTTPAdapter(cfg), nil
	})
	_ = registry.RegisterFactory(core.SchemeWebSocket, func(config map[string]any) (Adapter, error) {
		var cfg WebSocketAdapterConfig
		if err := decodeAdapterConfig(config, &cfg); err != nil {
			return nil, err
		}
		return NewWebSocketAdapter(cfg), nil
	})
	_ = registry.RegisterFactory(SchemeNATS, func(config map[string]any) (Adapter, error) {
		var cfg NATSAdapterConfig
		if err := decodeAdapterConfig(config, &cfg); err != nil {
			return nil, err
		}
		return NewNATSAdapter(cfg), nil
	})
	return registry
}

func (r *Registry) Register(name string, adapter Adapter) error {
	if r == nil {
		return fmt.Errorf("transport: registry is nil")
	}
	if adapter == nil {
		return fmt.Errorf("transport: adapter is nil")
	}
	name = normalizeName(name)
	if name == "" {
		name = normalizeName(adapter.Scheme())
	}
	if name == "" {
		return fmt.Errorf("transport: adapter name is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[name]; exists {
		return fmt.Errorf("transport: adapter %q already registered", name)
	}
	r.adapters[name] = adapter
	return nil
}

func (r *Registry) RegisterFactory(name string, factory AdapterFactory) error {
	if r == nil {
		return fmt.Errorf("transport: registry is nil")
	}
	name = normalizeName(name)
	if name == "" {
		return fmt.Errorf("transport: adapter name is required")
	}
	if factory == nil {
		return fmt.Errorf("transport: adapter factory is nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("transport: adapter factory %q already registered", name)
	}
	r.factories[name] = factory
	return nil
}

// Build returns the registered adapter for name or builds a new one from
// its factory. Built adapters are not cached.
func (r *Registry) Build(name string, config map[string]any) (Adapter, error) {
	if r == nil {
		return nil, fmt.Errorf("transport: registry is nil")
	}
	name = normalizeName(name)
	if name == "" {
		return nil, fmt.Errorf("transport: adapter name is required")
	}

	r.mu.RLock()
	adapter, ok := r.adapters[name]
	factory := r.factories[name]
	r.mu.RUnlock()
	if ok {
		return adapter, nil
	}
	if factory == nil {
		return nil, fmt.Errorf("transport: adapter %q not registered", name)
	}
	built, err := factory(cloneMap(config))
	if err != nil {
		return nil, err
	}
	if built == nil {
		return nil, fmt.Errorf("transport: factory for %q returned nil adapter", name)
	}
	return built, nil
}

func (r *Registry) Get(name string) (Adapter, bool) {
	if r == nil {
		return nil, false
	}
	name = normalizeName(name)
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.adapters[name]
	return adapter, ok
}

// Names lists registered adapters and factories, sorted.
func (r *Registry) Names() []string {
	if r == nil {
		return []string{}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := map[string]bool{}
	for name := range r.adapters {
		seen[name] = true
	}
	for name := range r.factories {
		seen[name] = true
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) List() []Adapter {
	if r == nil {
		return []Adapter{}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	result := make([]Adapter, 0, len(names))
	for _, name := range names {
		result = append(result, r.adapters[name])
	}
	return result
}

// BuildAs builds the adapter registered as name and asserts its type.
func BuildAs[A Adapter](r *Registry, name string, config map[string]any) (A, error) {
	var zero A
	built, err := r.Build(name, config)
	if err != nil {
		return zero, err
	}
	typed, ok := built.(A)
	if !ok {
		return zero, fmt.Errorf("transport: adapter %q is %T, not %T", name, built, zero)
	}
	return typed, nil
}

func decodeAdapterConfig(input map[string]any, target any) error {
	if len(input) == 0 {
		return nil
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(input); err != nil {
		return badInput(fmt.Sprintf("transport: invalid adapter config: %v", err), nil)
	}
	return nil
}

func normalizeName(name string) string {
	return strings.TrimSpace(strings.ToLower(name))
}

func cloneMap(input map[string]any) map[string]any {
	if len(input) == 0 {
		return map[string]any{}
	}
	output := make(map[string]any, len(input))
	for key, value := range input {
		output[key] = value
	}
	return output
}
