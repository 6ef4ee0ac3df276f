package core

import (
	"context"
	"fmt"
)

// Argument is one bound handler parameter. Present is false when an
// optional parameter had no value and no default; Value then holds the zero
// value of the declared type.
type Argument struct {
	Name      string
	Value     any
	Present   bool
	Defaulted bool
}

// Arguments is the ordered list handed to an Invocable, one entry per
// declared parameter.
type Arguments []Argument

func (a Arguments) Get(name string) (Argument, bool) {
	for _, arg := range a {
		if arg.Name == name {
			return arg, true
		}
	}
	return Argument{}, false
}

func (a Arguments) Value(name string) any {
	arg, ok := a.Get(name)
	if !ok {
		return nil
	}
	return arg.Value
}

func (a Arguments) Values() []any {
	out := make([]any, 0, len(a))
	for _, arg := range a {
		out = append(out, arg.Value)
	}
	return out
}

// Map returns the present arguments keyed by name.
func (a Arguments) Map() map[string]any {
	out := make(map[string]any, len(a))
	for _, arg := range a {
		if !arg.Present {
			continue
		}
		out[arg.Name] = arg.Value
	}
	return out
}

// Arg returns the named argument as T.
func Arg[T any](args Arguments, name string) (T, error) {
	var zero T
	arg, ok := args.Get(name)
	if !ok {
		return zero, fmt.Errorf("core: argument %q not bound", name)
	}
	return castArgument[T](arg)
}

// ArgAt returns the positional argument as T.
func ArgAt[T any](args Arguments, index int) (T, error) {
	var zero T
	if index < 0 || index >= len(args) {
		return zero, fmt.Errorf("core: argument index %d out of range (%d bound)", index, len(args))
	}
	return castArgument[T](args[index])
}

func castArgument[T any](arg Argument) (T, error) {
	var zero T
	if arg.Value == nil {
		return zero, nil
	}
	typed, ok := arg.Value.(T)
	if !ok {
		return zero, fmt.Errorf("core: argument %q is %T, not %T", arg.Name, arg.Value, zero)
	}
	return typed, nil
}

// Handle0 adapts a parameterless function.
func Handle0[R any](fn func(ctx context.Context) (R, error)) Invocable {
	return func(ctx context.Context, _ Arguments) (any, error) {
		return fn(ctx)
	}
}

// Handle1 adapts a function taking the first declared parameter.
func Handle1[A any, R any](fn func(ctx context.Context, a A) (R, error)) Invocable {
	return func(ctx context.Context, args Arguments) (any, error) {
		a, err := ArgAt[A](args, 0)
		if err != nil {
			return nil, err
		}
		return fn(ctx, a)
	}
}

// Handle2 adapts a function taking the first two declared parameters.
func Handle2[A any, B any, R any](fn func(ctx context.Context, a A, b B) (R, error)) Invocable {
	return func(ctx context.Context, args Arguments) (any, error) {
		a, err := ArgAt[A](args, 0)
		if err != nil {
			return nil, err
		}
		b, err := ArgAt[B](args, 1)
		if err != nil {
			return nil, err
		}
		return fn(ctx, a, b)
	}
}

// Handle3 adapts a function taking the first three declared parameters.
func Handle3[A any, B any, C any, R any](fn func(ctx context.Context, a A, b B, c C) (R, error)) Invocable {
	return func(ctx context.Context, args Arguments) (any, error) {
		a, err := ArgAt[A](args, 0)
		if err != nil {
			return nil, err
		}
		b, err := ArgAt[B](args, 1)
		if err != nil {
			return nil, err
		}
		c, err := ArgAt[C](args, 2)
		if err != nil {
			return nil, err
		}
		return fn(ctx, a, b, c)
	}
}
