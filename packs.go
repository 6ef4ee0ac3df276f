package rendezvous

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-rendezvous/core"
)

// HandlerPack groups handlers a downstream module contributes as a unit.
type HandlerPack struct {
	Name     string
	Handlers []core.HandlerDescriptor
}

type InterceptorPack struct {
	Name         string
	Interceptors []core.Interceptor
}

type CommandQueryBundleFactory func(dispatcher *core.Dispatcher) (any, error)

// Registrar is the registration surface packs are applied to.
type Registrar interface {
	RegisterHandler(descriptor core.HandlerDescriptor) error
	RegisterInterceptor(interceptor core.Interceptor) error
}

// ExtensionHooks collects packs and bundles before a dispatcher exists.
// Packs are applied in name order.
type ExtensionHooks struct {
	mu sync.RWMutex

	handlerPacks     map[string]HandlerPack
	interceptorPacks map[string]InterceptorPack
	bundles          map[string]CommandQueryBundleFactory
}

func NewExtensionHooks() *ExtensionHooks {
	return &ExtensionHooks{
		handlerPacks:     map[string]HandlerPack{},
		interceptorPacks: map[string]InterceptorPack{},
		bundles:          map[string]CommandQueryBundleFactory{},
	}
}

func (h *ExtensionHooks) RegisterHandlerPack(pack HandlerPack) error {
	if h == nil {
		return fmt.Errorf("rendezvous: extension hooks are nil")
	}
	name := strings.TrimSpace(pack.Name)
	if name == "" {
		return fmt.Errorf("rendezvous: handler pack name is required")
	}
	if len(pack.Handlers) == 0 {
		return fmt.Errorf("rendezvous: handler pack %q has no handlers", name)
	}
	for _, descriptor := range pack.Handlers {
		if descriptor.Invoke == nil {
			return fmt.Errorf("rendezvous: handler pack %q intent %q has no invocable", name, descriptor.Intent)
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.handlerPacks[name]; exists {
		return fmt.Errorf("rendezvous: handler pack %q already registered", name)
	}
	h.handlerPacks[name] = HandlerPack{
		Name:     name,
		Handlers: append([]core.HandlerDescriptor(nil), pack.Handlers...),
	}
	return nil
}

func (h *ExtensionHooks) RegisterInterceptorPack(pack InterceptorPack) error {
	if h == nil {
		return fmt.Errorf("rendezvous: extension hooks are nil")
	}
	name := strings.TrimSpace(pack.Name)
	if name == "" {
		return fmt.Errorf("rendezvous: interceptor pack name is required")
	}
	if len(pack.Interceptors) == 0 {
		return fmt.Errorf("rendezvous: interceptor pack %q has no interceptors", name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.interceptorPacks[name]; exists {
		return fmt.Errorf("rendezvous: interceptor pack %q already registered", name)
	}
	h.interceptorPacks[name] = InterceptorPack{
		Name:         name,
		Interceptors: append([]core.Interceptor(nil), pack.Interceptors...),
	}
	return nil
}

func (h *ExtensionHooks) RegisterCommandQueryBundle(name string, factory CommandQueryBundleFactory) error {
	if h == nil {
		return fmt.Errorf("rendezvous: extension hooks are nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("rendezvous: command/query bundle name is required")
	}
	if factory == nil {
		return fmt.Errorf("rendezvous: command/query bundle %q factory is required", name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.bundles[name]; exists {
		return fmt.Errorf("rendezvous: command/query bundle %q already registered", name)
	}
	h.bundles[name] = factory
	return nil
}

// ApplyTo registers every handler pack, then every interceptor pack. It
// stops at the first registration error.
func (h *ExtensionHooks) ApplyTo(registrar Registrar) error {
	if h == nil {
		return nil
	}
	if registrar == nil {
		return fmt.Errorf("rendezvous: registrar is required")
	}
	for _, pack := range h.HandlerPacks() {
		for _, descriptor := range pack.Handlers {
			if err := registrar.RegisterHandler(descriptor); err != nil {
				return fmt.Errorf("rendezvous: handler pack %q: %w", pack.Name, err)
			}
		}
	}
	for _, pack := range h.InterceptorPacks() {
		for _, interceptor := range pack.Interceptors {
			if err := registrar.RegisterInterceptor(interceptor); err != nil {
				return fmt.Errorf("rendezvous: interceptor pack %q: %w", pack.Name, err)
			}
		}
	}
	return nil
}

func (h *ExtensionHooks) BuildCommandQueryBundles(dispatcher *core.Dispatcher) (map[string]any, error) {
	if h == nil {
		return map[string]any{}, nil
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("rendezvous: dispatcher is required")
	}

	h.mu.RLock()
	factories := make(map[string]CommandQueryBundleFactory, len(h.bundles))
	for name, factory := range h.bundles {
		factories[name] = factory
	}
	h.mu.RUnlock()

	result := make(map[string]any, len(factories))
	for _, name := range sortedKeys(factories) {
		bundle, err := factories[name](dispatcher)
		if err != nil {
			return nil, err
		}
		result[name] = bundle
	}
	return result, nil
}

func (h *ExtensionHooks) HandlerPacks() []HandlerPack {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]HandlerPack, 0, len(h.handlerPacks))
	for _, name := range sortedKeys(h.handlerPacks) {
		pack := h.handlerPacks[name]
		out = append(out, HandlerPack{
			Name:     pack.Name,
			Handlers: append([]core.HandlerDescriptor(nil), pack.Handlers...),
		})
	}
	return out
}

func (h *ExtensionHooks) InterceptorPacks() []InterceptorPack {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]InterceptorPack, 0, len(h.interceptorPacks))
	for _, name := range sortedKeys(h.interceptorPacks) {
		pack := h.interceptorPacks[name]
		out = append(out, InterceptorPack{
			Name:         pack.Name,
			Interceptors: append([]core.Interceptor(nil), pack.Interceptors...),
		})
	}
	return out
}

func (h *ExtensionHooks) BundleNames() []string {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return sortedKeys(h.bundles)
}

func sortedKeys[V any](values map[string]V) []string {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
