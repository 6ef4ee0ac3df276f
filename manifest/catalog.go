package manifest

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-rendezvous/core"
)

// Catalog maps the names used in a manifest to Go functions.
type Catalog struct {
	mu         sync.RWMutex
	invocables map[string]core.Invocable
	hooks      map[string]core.InterceptorFunc
}

func NewCatalog() *Catalog {
	return &Catalog{
		invocables: map[string]core.Invocable{},
		hooks:      map[string]core.InterceptorFunc{},
	}
}

func (c *Catalog) RegisterInvocable(name string, fn core.Invocable) error {
	name = strings.TrimSpace(name)
	if name == "" || fn == nil {
		return fmt.Errorf("manifest: invocable name and function are required")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.invocables[name]; exists {
		return fmt.Errorf("manifest: invocable %q already registered", name)
	}
	c.invocables[name] = fn
	return nil
}

func (c *Catalog) RegisterHook(name string, fn core.InterceptorFunc) error {
	name = strings.TrimSpace(name)
	if name == "" || fn == nil {
		return fmt.Errorf("manifest: hook name and function are required")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.hooks[name]; exists {
		return fmt.Errorf("manifest: hook %q already registered", name)
	}
	c.hooks[name] = fn
	return nil
}

func (c *Catalog) Invocable(name string) (core.Invocable, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	fn, ok := c.invocables[strings.TrimSpace(name)]
	return fn, ok
}

func (c *Catalog) Hook(name string) (core.InterceptorFunc, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	fn, ok := c.hooks[strings.TrimSpace(name)]
	return fn, ok
}

// Names lists registered invocables, sorted.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.invocables))
	for name := range c.invocables {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
