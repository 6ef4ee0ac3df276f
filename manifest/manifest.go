// Package manifest declares handlers and interceptors in YAML or TOML and
// binds them to Go functions registered by name in a Catalog.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/goliatone/go-rendezvous/configsource"
	"github.com/goliatone/go-rendezvous/core"
)

type Manifest struct {
	Handlers     []HandlerEntry     `mapstructure:"handlers" yaml:"handlers" toml:"handlers"`
	Interceptors []InterceptorEntry `mapstructure:"interceptors" yaml:"interceptors" toml:"interceptors"`
}

// HandlerEntry declares one handler. Invocable names a function in the
// catalog; several entries may share one.
type HandlerEntry struct {
	Intent      string       `mapstructure:"intent" yaml:"intent" toml:"intent"`
	Name        string       `mapstructure:"name" yaml:"name" toml:"name"`
	Description string       `mapstructure:"description" yaml:"description" toml:"description"`
	Invocable   string       `mapstructure:"invocable" yaml:"invocable" toml:"invocable"`
	Protocols   []string     `mapstructure:"protocols" yaml:"protocols" toml:"protocols"`
	Params      []ParamEntry `mapstructure:"params" yaml:"params" toml:"params"`
}

// ParamEntry declares a parameter. Required defaults to true.
type ParamEntry struct {
	Name     string   `mapstructure:"name" yaml:"name" toml:"name"`
	Type     string   `mapstructure:"type" yaml:"type" toml:"type"`
	Source   string   `mapstructure:"source" yaml:"source" toml:"source"`
	Required *bool    `mapstructure:"required" yaml:"required" toml:"required"`
	Default  *string  `mapstructure:"default" yaml:"default" toml:"default"`
	Hints    []string `mapstructure:"hints" yaml:"hints" toml:"hints"`
}

type InterceptorEntry struct {
	Name      string `mapstructure:"name" yaml:"name" toml:"name"`
	Hook      string `mapstructure:"hook" yaml:"hook" toml:"hook"`
	Scheme    string `mapstructure:"scheme" yaml:"scheme" toml:"scheme"`
	Direction string `mapstructure:"direction" yaml:"direction" toml:"direction"`
	Order     *int   `mapstructure:"order" yaml:"order" toml:"order"`
}

var parameterTypes = map[string]reflect.Type{
	"":         reflect.TypeFor[string](),
	"string":   reflect.TypeFor[string](),
	"int":      reflect.TypeFor[int](),
	"int64":    reflect.TypeFor[int64](),
	"float":    reflect.TypeFor[float64](),
	"float64":  reflect.TypeFor[float64](),
	"bool":     reflect.TypeFor[bool](),
	"[]string": reflect.TypeFor[[]string](),
	"[]int":    reflect.TypeFor[[]int](),
	"map":      reflect.TypeFor[map[string]any](),
	"object":   reflect.TypeFor[map[string]any](),
	"any":      reflect.TypeFor[any](),
}

// LoadFile reads a manifest from a .yaml, .yml or .toml file.
func LoadFile(path string) (Manifest, error) {
	data, err := os.ReadFile(strings.TrimSpace(path))
	if err != nil {
		return Manifest{}, fmt.Errorf("manifest: read %s: %w", path, err)
	}
	return Parse(filepath.Ext(path), data)
}

func Parse(format string, data []byte) (Manifest, error) {
	raw, err := configsource.Decode(format, data)
	if err != nil {
		return Manifest{}, err
	}
	return FromMap(raw)
}

func FromMap(raw map[string]any) (Manifest, error) {
	var out Manifest
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &out,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return Manifest{}, fmt.Errorf("manifest: decoder: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return Manifest{}, fmt.Errorf("manifest: decode: %w", err)
	}
	return out, nil
}

// Descriptors resolves every handler entry against catalog.
func (m Manifest) Descriptors(catalog *Catalog) ([]core.HandlerDescriptor, error) {
	out := make([]core.HandlerDescriptor, 0, len(m.Handlers))
	for i, entry := range m.Handlers {
		descriptor, err := entry.descriptor(catalog)
		if err != nil {
			return nil, fmt.Errorf("manifest: handler %d (%s): %w", i, entry.Intent, err)
		}
		out = append(out, descriptor)
	}
	return out, nil
}

func (m Manifest) InterceptorList(catalog *Catalog) ([]core.Interceptor, error) {
	out := make([]core.Interceptor, 0, len(m.Interceptors))
	for i, entry := range m.Interceptors {
		hookName := strings.TrimSpace(entry.Hook)
		if hookName == "" {
			hookName = strings.TrimSpace(entry.Name)
		}
		hook, ok := catalog.Hook(hookName)
		if !ok {
			return nil, fmt.Errorf("manifest: interceptor %d (%s): unknown hook %q", i, entry.Name, hookName)
		}
		switch strings.ToLower(strings.TrimSpace(entry.Direction)) {
		case "", string(core.DirectionInbound), string(core.DirectionOutbound), string(core.DirectionBoth):
		default:
			return nil, fmt.Errorf("manifest: interceptor %d (%s): unknown direction %q", i, entry.Name, entry.Direction)
		}
		interceptor := core.Interceptor{
			Name:      strings.TrimSpace(entry.Name),
			Scheme:    strings.TrimSpace(entry.Scheme),
			Direction: core.Direction(entry.Direction),
			Intercept: hook,
		}
		if interceptor.Name == "" {
			interceptor.Name = hookName
		}
		if entry.Order != nil {
			interceptor = interceptor.WithOrder(*entry.Order)
		}
		out = append(out, interceptor)
	}
	return out, nil
}

// Registrar is the registration surface of core.Dispatcher.
type Registrar interface {
	RegisterHandler(descriptor core.HandlerDescriptor) error
	RegisterInterceptor(interceptor core.Interceptor) error
}

// intentLister is implemented by registrars that can report what they
// already hold, such as core.Dispatcher.
type intentLister interface {
	Intents() []string
}

// Apply resolves and validates the whole manifest before registering
// anything: unknown names, invalid parameters, bad patterns, bad
// directions and intents colliding with each other or with intents the
// registrar already lists all leave the registrar untouched. Only a
// registration racing with Apply can still leave it partially applied.
func (m Manifest) Apply(registrar Registrar, catalog *Catalog) error {
	if registrar == nil {
		return fmt.Errorf("manifest: registrar is required")
	}
	descriptors, err := m.Descriptors(catalog)
	if err != nil {
		return err
	}
	interceptors, err := m.InterceptorList(catalog)
	if err != nil {
		return err
	}
	taken := map[string]struct{}{}
	if lister, ok := registrar.(intentLister); ok {
		for _, intent := range lister.Intents() {
			taken[intent] = struct{}{}
		}
	}
	for _, descriptor := range descriptors {
		if err := core.ValidateHandler(descriptor); err != nil {
			return fmt.Errorf("manifest: handler %s: %w", descriptor.Intent, err)
		}
		intent := strings.TrimSpace(descriptor.Intent)
		if _, exists := taken[intent]; exists {
			return fmt.Errorf("manifest: intent %q already registered", intent)
		}
		taken[intent] = struct{}{}
	}
	for _, descriptor := range descriptors {
		if err := registrar.RegisterHandler(descriptor); err != nil {
			return err
		}
	}
	for _, interceptor := range interceptors {
		if err := registrar.RegisterInterceptor(interceptor); err != nil {
			return err
		}
	}
	return nil
}

func (e HandlerEntry) descriptor(catalog *Catalog) (core.HandlerDescriptor, error) {
	name := strings.TrimSpace(e.Invocable)
	if name == "" {
		name = strings.TrimSpace(e.Intent)
	}
	invoke, ok := catalog.Invocable(name)
	if !ok {
		return core.HandlerDescriptor{}, fmt.Errorf("unknown invocable %q", name)
	}
	builder := core.NewHandler(strings.TrimSpace(e.Intent)).
		Named(e.Name).
		Describe(e.Description).
		Protocols(e.Protocols...).
		Invoke(invoke)
	for _, param := range e.Params {
		spec, err := param.spec()
		if err != nil {
			return core.HandlerDescriptor{}, err
		}
		builder.Params(spec)
	}
	return builder.Build(), nil
}

func (p ParamEntry) spec() (core.ParameterSpec, error) {
	typ, ok := parameterTypes[strings.ToLower(strings.TrimSpace(p.Type))]
	if !ok {
		return core.ParameterSpec{}, fmt.Errorf("parameter %q has unsupported type %q", p.Name, p.Type)
	}
	spec := core.ParameterSpec{
		Name:   strings.TrimSpace(p.Name),
		Type:   typ,
		Source: core.ParameterSource(strings.ToLower(strings.TrimSpace(p.Source))),
	}
	if p.Required != nil {
		spec.AllowMissing = !*p.Required
	}
	if p.Default != nil {
		spec = spec.WithDefault(*p.Default)
	}
	for _, hint := range p.Hints {
		spec.Hints = append(spec.Hints, core.ParameterSource(strings.ToLower(strings.TrimSpace(hint))))
	}
	return spec, nil
}

// LoadAndApply reads path and applies it to registrar.
func LoadAndApply(path string, registrar Registrar, catalog *Catalog) error {
	m, err := LoadFile(path)
	if err != nil {
		return err
	}
	return m.Apply(registrar, catalog)
}
