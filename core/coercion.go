package core

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
)

// StructMapper converts a structured raw value (maps, slices, decoded JSON)
// into a value of the target type.
type StructMapper interface {
	Map(input any, target reflect.Type) (any, error)
}

// MapstructureMapper is the default StructMapper. It decodes weakly typed
// input using json tag names so HTTP query strings and decoded JSON bodies
// both land in the same struct shape.
type MapstructureMapper struct {
	TagName string
}

func (m MapstructureMapper) Map(input any, target reflect.Type) (any, error) {
	if target == nil {
		return input, nil
	}
	tag := strings.TrimSpace(m.TagName)
	if tag == "" {
		tag = "json"
	}
	out := reflect.New(target)
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out.Interface(),
		TagName:          tag,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToTimeHookFunc(time.RFC3339),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(input); err != nil {
		return nil, err
	}
	return out.Elem().Interface(), nil
}

var (
	durationType = reflect.TypeFor[time.Duration]()
	anyType      = reflect.TypeFor[any]()
)

// isScalarType reports whether t is a primitive or string parameter type.
// Pointers to scalars count as scalars.
func isScalarType(t reflect.Type) bool {
	if t == nil {
		return false
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}

// coerceValue converts raw into target. Scalars go through strconv,
// structural targets through JSON decoding (raw JSON input) or mapper.
func coerceValue(raw any, target reflect.Type, mapper StructMapper) (any, error) {
	if target == nil || target == anyType {
		return raw, nil
	}
	if raw == nil {
		return reflect.Zero(target).Interface(), nil
	}
	rawType := reflect.TypeOf(raw)
	if rawType.AssignableTo(target) {
		return raw, nil
	}
	if target.Kind() == reflect.Interface {
		if rawType.Implements(target) {
			return raw, nil
		}
		return nil, fmt.Errorf("%T does not implement %s", raw, target)
	}
	if isScalarType(target) {
		return coerceScalar(raw, target)
	}
	if data, ok := rawJSON(raw); ok {
		out := reflect.New(target)
		if err := json.Unmarshal(data, out.Interface()); err != nil {
			return nil, err
		}
		return out.Elem().Interface(), nil
	}
	if mapper == nil {
		mapper = MapstructureMapper{}
	}
	return mapper.Map(raw, target)
}

func coerceScalar(raw any, target reflect.Type) (any, error) {
	if target.Kind() == reflect.Pointer {
		elem, err := coerceScalar(raw, target.Elem())
		if err != nil {
			return nil, err
		}
		ptr := reflect.New(target.Elem())
		ptr.Elem().Set(reflect.ValueOf(elem))
		return ptr.Interface(), nil
	}
	text, err := scalarText(raw)
	if err != nil {
		return nil, err
	}
	out := reflect.New(target).Elem()
	switch target.Kind() {
	case reflect.String:
		out.SetString(text)
	case reflect.Bool:
		parsed, err := strconv.ParseBool(strings.TrimSpace(text))
		if err != nil {
			return nil, err
		}
		out.SetBool(parsed)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if target == durationType {
			parsed, err := parseDuration(text)
			if err != nil {
				return nil, err
			}
			out.SetInt(int64(parsed))
			break
		}
		parsed, err := strconv.ParseInt(strings.TrimSpace(text), 10, target.Bits())
		if err != nil {
			return nil, err
		}
		out.SetInt(parsed)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		parsed, err := strconv.ParseUint(strings.TrimSpace(text), 10, target.Bits())
		if err != nil {
			return nil, err
		}
		out.SetUint(parsed)
	case reflect.Float32, reflect.Float64:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(text), target.Bits())
		if err != nil {
			return nil, err
		}
		out.SetFloat(parsed)
	default:
		return nil, fmt.Errorf("unsupported scalar kind %s", target.Kind())
	}
	return out.Interface(), nil
}

// scalarText renders a raw scalar as text. Whole JSON floats render without
// an exponent so "42" decoded as float64 still parses as an integer.
func scalarText(raw any) (string, error) {
	switch typed := raw.(type) {
	case string:
		return typed, nil
	case []byte:
		return string(typed), nil
	case json.Number:
		return typed.String(), nil
	case []string:
		if len(typed) == 0 {
			return "", fmt.Errorf("empty value list")
		}
		return typed[0], nil
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64), nil
	case float32:
		return strconv.FormatFloat(float64(typed), 'f', -1, 32), nil
	case fmt.Stringer:
		return typed.String(), nil
	}
	switch reflect.ValueOf(raw).Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return fmt.Sprint(raw), nil
	default:
		return "", fmt.Errorf("%T is not a scalar", raw)
	}
}

func parseDuration(text string) (time.Duration, error) {
	text = strings.TrimSpace(text)
	if parsed, err := time.ParseDuration(text); err == nil {
		return parsed, nil
	}
	nanos, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", text)
	}
	return time.Duration(nanos), nil
}

func rawJSON(raw any) ([]byte, bool) {
	switch typed := raw.(type) {
	case json.RawMessage:
		return typed, true
	case []byte:
		return typed, json.Valid(typed)
	case string:
		trimmed := strings.TrimSpace(typed)
		if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
			return []byte(trimmed), json.Valid([]byte(trimmed))
		}
	}
	return nil, false
}
