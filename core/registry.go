package core

import (
	"fmt"
	"strings"
	"sync"
)

// HandlerRegistry maps intents to handlers. Exact intents are consulted
// first; wildcard patterns are then tried in registration order and the
// first match wins.
type HandlerRegistry struct {
	mu       sync.RWMutex
	resolver *ParameterResolver
	exact    map[string]*route
	patterns []*route
	ordered  []*route
}

type route struct {
	descriptor HandlerDescriptor
	params     CompiledParameters
	matcher    intentMatcher
	pattern    bool
}

func NewHandlerRegistry(resolver *ParameterResolver) *HandlerRegistry {
	if resolver == nil {
		resolver = NewParameterResolver(nil)
	}
	return &HandlerRegistry{
		resolver: resolver,
		exact:    map[string]*route{},
	}
}

func (r *HandlerRegistry) Register(descriptor HandlerDescriptor) error {
	if r == nil {
		return registrationError("core: handler registry is nil", nil)
	}
	entry, err := prepareRoute(r.resolver, descriptor)
	if err != nil {
		return err
	}
	descriptor = entry.descriptor

	r.mu.Lock()
	defer r.mu.Unlock()
	if entry.pattern {
		for _, existing := range r.patterns {
			if existing.descriptor.Intent == descriptor.Intent {
				return registrationConflict(
					fmt.Sprintf("core: intent pattern %q already registered", descriptor.Intent),
					map[string]any{"intent": descriptor.Intent},
				)
			}
		}
		r.patterns = append(r.patterns, entry)
	} else {
		if _, exists := r.exact[descriptor.Intent]; exists {
			return registrationConflict(
				fmt.Sprintf("core: intent %q already registered", descriptor.Intent),
				map[string]any{"intent": descriptor.Intent},
			)
		}
		r.exact[descriptor.Intent] = entry
	}
	r.ordered = append(r.ordered, entry)
	return nil
}

// ValidateHandler runs every registration check that does not depend on
// what is already registered: intent, invocable, parameter specs and
// pattern syntax.
func ValidateHandler(descriptor HandlerDescriptor) error {
	_, err := prepareRoute(NewParameterResolver(nil), descriptor)
	return err
}

func prepareRoute(resolver *ParameterResolver, descriptor HandlerDescriptor) (*route, error) {
	descriptor = descriptor.clone()
	descriptor.Intent = strings.TrimSpace(descriptor.Intent)
	if descriptor.Intent == "" {
		return nil, registrationError("core: handler intent is required", nil)
	}
	if descriptor.Invoke == nil {
		return nil, registrationError(
			fmt.Sprintf("core: handler for intent %q has no invocable", descriptor.Intent),
			map[string]any{"intent": descriptor.Intent},
		)
	}
	descriptor.Protocols = normalizeSchemes(descriptor.Protocols)
	if strings.TrimSpace(descriptor.Name) == "" {
		descriptor.Name = descriptor.Intent
	}

	params, err := resolver.Compile(descriptor.Intent, descriptor.Parameters)
	if err != nil {
		return nil, err
	}
	entry := &route{descriptor: descriptor, params: params}
	if isIntentPattern(descriptor.Intent) {
		matcher, err := compileIntentPattern(descriptor.Intent)
		if err != nil {
			return nil, err
		}
		entry.matcher = matcher
		entry.pattern = true
	}
	return entry, nil
}

// Resolve returns a copy of the descriptor handling intent, or a
// NotFoundError.
func (r *HandlerRegistry) Resolve(intent string) (HandlerDescriptor, error) {
	entry, err := r.lookup(intent)
	if err != nil {
		return HandlerDescriptor{}, err
	}
	return entry.descriptor.clone(), nil
}

func (r *HandlerRegistry) lookup(intent string) (*route, error) {
	intent = strings.TrimSpace(intent)
	if r == nil || intent == "" {
		return nil, &NotFoundError{Intent: intent, Reason: NotFoundReasonUnknownIntent}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if entry, ok := r.exact[intent]; ok {
		return entry, nil
	}
	for _, entry := range r.patterns {
		if entry.matcher.Matches(intent) {
			return entry, nil
		}
	}
	return nil, &NotFoundError{Intent: intent, Reason: NotFoundReasonUnknownIntent}
}

// Intents lists registered intents and patterns in registration order.
func (r *HandlerRegistry) Intents() []string {
	if r == nil {
		return []string{}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.ordered))
	for _, entry := range r.ordered {
		out = append(out, entry.descriptor.Intent)
	}
	return out
}

// Descriptors returns copies of every registered descriptor in registration
// order.
func (r *HandlerRegistry) Descriptors() []HandlerDescriptor {
	if r == nil {
		return []HandlerDescriptor{}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]HandlerDescriptor, 0, len(r.ordered))
	for _, entry := range r.ordered {
		out = append(out, entry.descriptor.clone())
	}
	return out
}

func (r *HandlerRegistry) Len() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ordered)
}
