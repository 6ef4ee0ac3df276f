package core

import (
	"context"
	"math"
	"reflect"
	"slices"
	"strings"
)

const (
	SchemeHTTP      = "http"
	SchemeWebSocket = "websocket"
	SchemeRPC       = "rpc"
	SchemeCommand   = "command"
	// SchemeAll tags interceptors and protocol allowlists that apply to every scheme.
	SchemeAll = "*"
)

type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
	DirectionBoth     Direction = "both"
)

func (d Direction) normalize() Direction {
	return Direction(strings.TrimSpace(strings.ToLower(string(d))))
}

func (d Direction) includes(target Direction) bool {
	d = d.normalize()
	return d == DirectionBoth || d == target
}

func (d Direction) valid() bool {
	switch d.normalize() {
	case DirectionInbound, DirectionOutbound, DirectionBoth:
		return true
	default:
		return false
	}
}

// ParameterSource names where a declared handler parameter is read from.
// The zero value means the declaration did not name a source.
type ParameterSource string

const (
	SourceUnset  ParameterSource = ""
	SourcePath   ParameterSource = "path"
	SourceQuery  ParameterSource = "query"
	SourceHeader ParameterSource = "header"
	SourceBody   ParameterSource = "body"
	SourceAuto   ParameterSource = "auto"

	// sourceRoot is the flattened, unprefixed value space; only reachable
	// through the AUTO chain.
	sourceRoot ParameterSource = "root"
)

var autoSourceChain = []ParameterSource{SourcePath, SourceQuery, SourceHeader, SourceBody, sourceRoot}

func (s ParameterSource) normalize() ParameterSource {
	return ParameterSource(strings.TrimSpace(strings.ToLower(string(s))))
}

func (s ParameterSource) valid() bool {
	switch s.normalize() {
	case SourceUnset, SourcePath, SourceQuery, SourceHeader, SourceBody, SourceAuto:
		return true
	default:
		return false
	}
}

// OrderUnspecified is the effective order of interceptors registered
// without one; they run after every ordered interceptor.
const OrderUnspecified = math.MaxInt

// ParameterSpec declares one handler parameter. Specs are immutable values;
// the modifier methods return an updated copy. A spec is required unless
// AllowMissing is set, so a zero-value literal is required too.
type ParameterSpec struct {
	Name         string
	Type         reflect.Type
	Source       ParameterSource
	AllowMissing bool
	Default      string
	HasDefault   bool
	Hints        []ParameterSource
}

// Param declares a required parameter of type T read from source.
func Param[T any](name string, source ParameterSource) ParameterSpec {
	return ParameterSpec{
		Name:   name,
		Type:   reflect.TypeFor[T](),
		Source: source,
	}
}

func PathParam[T any](name string) ParameterSpec   { return Param[T](name, SourcePath) }
func QueryParam[T any](name string) ParameterSpec  { return Param[T](name, SourceQuery) }
func HeaderParam[T any](name string) ParameterSpec { return Param[T](name, SourceHeader) }
func BodyParam[T any](name string) ParameterSpec   { return Param[T](name, SourceBody) }
func AutoParam[T any](name string) ParameterSpec   { return Param[T](name, SourceAuto) }

// Body declares a structured parameter bound from the whole request body,
// or from the flattened request values when no body was supplied.
func Body[T any](name string) ParameterSpec { return Param[T](name, SourceUnset) }

// HintedParam declares a parameter looked up in the given sources, in order.
func HintedParam[T any](name string, hints ...ParameterSource) ParameterSpec {
	return Param[T](name, SourceUnset).WithHints(hints...)
}

func (p ParameterSpec) Optional() ParameterSpec {
	p.AllowMissing = true
	return p
}

func (p ParameterSpec) Required() bool { return !p.AllowMissing }

func (p ParameterSpec) WithDefault(value string) ParameterSpec {
	p.Default = value
	p.HasDefault = true
	return p
}

func (p ParameterSpec) WithHints(hints ...ParameterSource) ParameterSpec {
	p.Hints = append([]ParameterSource(nil), hints...)
	return p
}

func (p ParameterSpec) clone() ParameterSpec {
	p.Hints = append([]ParameterSource(nil), p.Hints...)
	return p
}

// Invocable is the uniform callable stored for every handler. Arguments
// arrive in declaration order.
type Invocable func(ctx context.Context, args Arguments) (any, error)

// HandlerDescriptor is everything the dispatcher knows about one handler.
type HandlerDescriptor struct {
	Intent      string
	Name        string
	Description string
	// Protocols is the scheme allowlist; empty or containing SchemeAll
	// exposes the handler on every scheme.
	Protocols  []string
	Parameters []ParameterSpec
	Invoke     Invocable
}

func (d HandlerDescriptor) Allows(scheme string) bool {
	if len(d.Protocols) == 0 {
		return true
	}
	scheme = normalizeScheme(scheme)
	for _, allowed := range d.Protocols {
		allowed = normalizeScheme(allowed)
		if allowed == SchemeAll || allowed == scheme {
			return true
		}
	}
	return false
}

// IsPattern reports whether the descriptor registers a wildcard intent.
func (d HandlerDescriptor) IsPattern() bool {
	return isIntentPattern(d.Intent)
}

func (d HandlerDescriptor) clone() HandlerDescriptor {
	out := d
	out.Protocols = append([]string(nil), d.Protocols...)
	out.Parameters = make([]ParameterSpec, 0, len(d.Parameters))
	for _, spec := range d.Parameters {
		out.Parameters = append(out.Parameters, spec.clone())
	}
	return out
}

// HandlerBuilder assembles a HandlerDescriptor fluently.
type HandlerBuilder struct {
	descriptor HandlerDescriptor
}

func NewHandler(intent string) *HandlerBuilder {
	return &HandlerBuilder{descriptor: HandlerDescriptor{Intent: intent}}
}

func (b *HandlerBuilder) Named(name string) *HandlerBuilder {
	b.descriptor.Name = name
	return b
}

func (b *HandlerBuilder) Describe(description string) *HandlerBuilder {
	b.descriptor.Description = description
	return b
}

func (b *HandlerBuilder) Protocols(schemes ...string) *HandlerBuilder {
	b.descriptor.Protocols = append(b.descriptor.Protocols, schemes...)
	return b
}

func (b *HandlerBuilder) Params(specs ...ParameterSpec) *HandlerBuilder {
	b.descriptor.Parameters = append(b.descriptor.Parameters, specs...)
	return b
}

func (b *HandlerBuilder) Invoke(fn Invocable) *HandlerBuilder {
	b.descriptor.Invoke = fn
	return b
}

func (b *HandlerBuilder) Build() HandlerDescriptor {
	return b.descriptor.clone()
}

// Payload is the canonical request seed produced by a protocol adapter.
type Payload struct {
	Path      map[string]string
	Query     map[string]string
	Header    map[string]string
	Body      any
	Root      map[string]any
	Scheme    string
	SessionID string
	Method    string
	TraceID   string
	Metadata  map[string]any
}

// Outcome is the terminal state of a dispatch.
type Outcome struct {
	Result    any
	Err       error
	completed bool
}

func (o Outcome) Completed() bool { return o.completed }

func (o Outcome) Succeeded() bool { return o.completed && o.Err == nil }

func (o Outcome) Failed() bool { return o.completed && o.Err != nil }

func normalizeScheme(scheme string) string {
	return strings.TrimSpace(strings.ToLower(scheme))
}

func normalizeSchemes(schemes []string) []string {
	out := make([]string, 0, len(schemes))
	for _, scheme := range schemes {
		scheme = normalizeScheme(scheme)
		if scheme == "" || slices.Contains(out, scheme) {
			continue
		}
		out = append(out, scheme)
	}
	return out
}
