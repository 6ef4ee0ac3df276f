// Package configsource provides raw config loaders for core.CfgxConfigProvider:
// YAML and TOML files, environment variables, and ordered merges of those.
package configsource

import (
	"context"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/goliatone/go-rendezvous/core"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const DefaultEnvPrefix = "RENDEZVOUS"

// FileLoader reads a YAML or TOML document, picked by extension. A missing
// file is an error unless Optional is set.
type FileLoader struct {
	Path     string
	Optional bool
}

func File(path string) FileLoader {
	return FileLoader{Path: path}
}

func OptionalFile(path string) FileLoader {
	return FileLoader{Path: path, Optional: true}
}

func (l FileLoader) LoadRaw(context.Context) (map[string]any, error) {
	path := strings.TrimSpace(l.Path)
	if path == "" {
		return nil, fmt.Errorf("configsource: file path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if l.Optional && os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("configsource: read %s: %w", path, err)
	}
	return Decode(filepath.Ext(path), data)
}

// Decode parses data as the format named by ext (".yaml", ".yml", ".toml").
func Decode(ext string, data []byte) (map[string]any, error) {
	out := map[string]any{}
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), ".")) {
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &out); err != nil {
			return nil, fmt.Errorf("configsource: decode yaml: %w", err)
		}
	case "toml":
		if _, err := toml.Decode(string(data), &out); err != nil {
			return nil, fmt.Errorf("configsource: decode toml: %w", err)
		}
	default:
		return nil, fmt.Errorf("configsource: unsupported config format %q", ext)
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

// EnvSettings are the variables EnvLoader understands, read with the
// loader prefix (RENDEZVOUS_SERVICE_NAME, RENDEZVOUS_EXECUTOR_WORKERS, ...).
// Unset variables stay nil so they do not override lower layers.
type EnvSettings struct {
	ServiceName   *string `envconfig:"SERVICE_NAME"`
	Workers       *int    `envconfig:"EXECUTOR_WORKERS"`
	FailurePolicy *string `envconfig:"INTERCEPTORS_FAILURE_POLICY"`
}

type EnvLoader struct {
	Prefix string
}

func Env(prefix string) EnvLoader {
	return EnvLoader{Prefix: prefix}
}

func (l EnvLoader) LoadRaw(context.Context) (map[string]any, error) {
	prefix := strings.TrimSpace(l.Prefix)
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}
	var settings EnvSettings
	if err := envconfig.Process(prefix, &settings); err != nil {
		return nil, fmt.Errorf("configsource: env: %w", err)
	}
	out := map[string]any{}
	if settings.ServiceName != nil {
		out["service_name"] = *settings.ServiceName
	}
	if settings.Workers != nil {
		out["executor"] = map[string]any{"workers": *settings.Workers}
	}
	if settings.FailurePolicy != nil {
		out["interceptors"] = map[string]any{"failure_policy": *settings.FailurePolicy}
	}
	return out, nil
}

// Merged layers loaders in order; later loaders win key by key and nested
// maps are merged rather than replaced.
type Merged []core.RawConfigLoader

func Merge(loaders ...core.RawConfigLoader) Merged {
	return Merged(loaders)
}

func (m Merged) LoadRaw(ctx context.Context) (map[string]any, error) {
	out := map[string]any{}
	for _, loader := range m {
		if loader == nil {
			continue
		}
		raw, err := loader.LoadRaw(ctx)
		if err != nil {
			return nil, err
		}
		mergeInto(out, raw)
	}
	return out, nil
}

func mergeInto(dst map[string]any, src map[string]any) {
	for key, value := range src {
		incoming, isMap := asMap(value)
		if !isMap {
			dst[key] = value
			continue
		}
		existing, ok := asMap(dst[key])
		if !ok {
			dst[key] = maps.Clone(incoming)
			continue
		}
		merged := maps.Clone(existing)
		mergeInto(merged, incoming)
		dst[key] = merged
	}
}

func asMap(value any) (map[string]any, bool) {
	switch typed := value.(type) {
	case map[string]any:
		return typed, true
	case map[any]any:
		out := make(map[string]any, len(typed))
		for key, v := range typed {
			out[fmt.Sprint(key)] = v
		}
		return out, true
	default:
		return nil, false
	}
}

// Provider builds a cfgx-backed core.ConfigProvider over loaders.
func Provider(loaders ...core.RawConfigLoader) core.ConfigProvider {
	return core.NewCfgxConfigProvider(Merge(loaders...))
}

var (
	_ core.RawConfigLoader = FileLoader{}
	_ core.RawConfigLoader = EnvLoader{}
	_ core.RawConfigLoader = Merged{}
)
