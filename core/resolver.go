package core

import (
	"fmt"
	"reflect"
	"slices"
	"strings"
)

// ParameterResolver binds declared parameters from a RequestContext.
type ParameterResolver struct {
	mapper StructMapper
}

func NewParameterResolver(mapper StructMapper) *ParameterResolver {
	if mapper == nil {
		mapper = MapstructureMapper{}
	}
	return &ParameterResolver{mapper: mapper}
}

// CompiledParameters is a validated parameter list ready to bind.
type CompiledParameters struct {
	binders []parameterBinder
	mapper  StructMapper
}

type parameterBinder struct {
	spec         ParameterSpec
	sources      []ParameterSource
	structural   bool
	defaultValue any
}

// Compile validates specs and pre-computes each lookup chain. intent is only
// used in error reports.
func (r *ParameterResolver) Compile(intent string, specs []ParameterSpec) (CompiledParameters, error) {
	if r == nil {
		r = NewParameterResolver(nil)
	}
	compiled := CompiledParameters{
		binders: make([]parameterBinder, 0, len(specs)),
		mapper:  r.mapper,
	}
	seen := make(map[string]struct{}, len(specs))
	for _, spec := range specs {
		spec = spec.clone()
		spec.Name = strings.TrimSpace(spec.Name)
		if spec.Name == "" {
			return CompiledParameters{}, registrationError(
				"core: parameter name is required",
				map[string]any{"intent": intent},
			)
		}
		if _, dup := seen[spec.Name]; dup {
			return CompiledParameters{}, registrationConflict(
				fmt.Sprintf("core: parameter %q declared twice", spec.Name),
				map[string]any{"intent": intent, "parameter": spec.Name},
			)
		}
		seen[spec.Name] = struct{}{}
		if spec.Type == nil {
			spec.Type = anyType
		}

		binder, err := r.compileOne(intent, spec)
		if err != nil {
			return CompiledParameters{}, err
		}
		compiled.binders = append(compiled.binders, binder)
	}
	return compiled, nil
}

func (r *ParameterResolver) compileOne(intent string, spec ParameterSpec) (parameterBinder, error) {
	binder := parameterBinder{spec: spec}
	source := spec.Source.normalize()
	if !source.valid() {
		return parameterBinder{}, registrationError(
			fmt.Sprintf("core: parameter %q has unknown source %q", spec.Name, spec.Source),
			map[string]any{"intent": intent, "parameter": spec.Name},
		)
	}
	hints := make([]ParameterSource, 0, len(spec.Hints))
	for _, hint := range spec.Hints {
		hint = hint.normalize()
		if hint == SourceUnset || hint == SourceAuto || !hint.valid() {
			return parameterBinder{}, registrationError(
				fmt.Sprintf("core: parameter %q has invalid hint %q", spec.Name, hint),
				map[string]any{"intent": intent, "parameter": spec.Name},
			)
		}
		if !slices.Contains(hints, hint) {
			hints = append(hints, hint)
		}
	}

	switch {
	case source != SourceUnset && source != SourceAuto:
		binder.sources = []ParameterSource{source}
	case len(hints) > 0:
		binder.sources = hints
	case source == SourceAuto:
		binder.sources = autoSourceChain
	case isScalarType(spec.Type):
		return parameterBinder{}, &AmbiguousParameterError{Intent: intent, Name: spec.Name, Type: spec.Type}
	default:
		binder.structural = true
	}

	if spec.HasDefault {
		value, err := coerceValue(spec.Default, spec.Type, r.mapper)
		if err != nil {
			return parameterBinder{}, registrationError(
				fmt.Sprintf("core: default %q for parameter %q is not a valid %s: %v", spec.Default, spec.Name, typeName(spec.Type), err),
				map[string]any{"intent": intent, "parameter": spec.Name},
			)
		}
		binder.defaultValue = value
	}
	return binder, nil
}

// Bind compiles specs and binds them against rc in one step.
func (r *ParameterResolver) Bind(specs []ParameterSpec, rc *RequestContext) (Arguments, error) {
	compiled, err := r.Compile(rc.Intent(), specs)
	if err != nil {
		return nil, err
	}
	return compiled.Bind(rc)
}

func (c CompiledParameters) Len() int { return len(c.binders) }

// Bind resolves every parameter in declaration order. The first failure is
// returned as a MissingRequiredParameterError or CoercionError.
func (c CompiledParameters) Bind(rc *RequestContext) (Arguments, error) {
	args := make(Arguments, 0, len(c.binders))
	for _, binder := range c.binders {
		arg, err := binder.bind(rc, c.mapper)
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
	}
	return args, nil
}

func (b parameterBinder) bind(rc *RequestContext, mapper StructMapper) (Argument, error) {
	name := b.spec.Name
	raw, found := b.lookup(rc)
	if !found {
		switch {
		case b.spec.HasDefault:
			return Argument{Name: name, Value: b.defaultValue, Present: true, Defaulted: true}, nil
		case b.spec.Required():
			return Argument{}, &MissingRequiredParameterError{Name: name, Sources: b.sourcesForReport()}
		default:
			return Argument{Name: name, Value: zeroValue(b.spec.Type)}, nil
		}
	}
	value, err := coerceValue(raw, b.spec.Type, mapper)
	if err != nil {
		return Argument{}, &CoercionError{Name: name, Type: b.spec.Type, Value: raw, Cause: err}
	}
	return Argument{Name: name, Value: value, Present: true}, nil
}

func (b parameterBinder) lookup(rc *RequestContext) (any, bool) {
	if b.structural {
		return rc.structuredValue()
	}
	for _, source := range b.sources {
		if value, ok := rc.Lookup(source, b.spec.Name); ok {
			return value, true
		}
	}
	return nil, false
}

func (b parameterBinder) sourcesForReport() []ParameterSource {
	if b.structural {
		return []ParameterSource{SourceBody}
	}
	return append([]ParameterSource(nil), b.sources...)
}

func zeroValue(t reflect.Type) any {
	if t == nil {
		return nil
	}
	return reflect.Zero(t).Interface()
}
