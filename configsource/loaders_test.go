package configsource

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/goliatone/go-rendezvous/core"
)

func writeFile(t *testing.T, name string, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestFileLoader_DecodesYAMLAndTOML(t *testing.T) {
	yamlPath := writeFile(t, "rendezvous.yaml", "service_name: orders\nexecutor:\n  workers: 8\n")
	tomlPath := writeFile(t, "rendezvous.toml", "service_name = \"billing\"\n[interceptors]\nfailure_policy = \"log\"\n")

	fromYAML, err := File(yamlPath).LoadRaw(context.Background())
	if err != nil {
		t.Fatalf("load yaml: %v", err)
	}
	if fromYAML["service_name"] != "orders" {
		t.Fatalf("unexpected yaml values: %v", fromYAML)
	}

	fromTOML, err := File(tomlPath).LoadRaw(context.Background())
	if err != nil {
		t.Fatalf("load toml: %v", err)
	}
	interceptors, _ := fromTOML["interceptors"].(map[string]any)
	if fromTOML["service_name"] != "billing" || interceptors["failure_policy"] != "log" {
		t.Fatalf("unexpected toml values: %v", fromTOML)
	}
}

func TestFileLoader_Errors(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.yaml")
	if _, err := File(missing).LoadRaw(context.Background()); err == nil {
		t.Fatalf("expected missing file error")
	}
	raw, err := OptionalFile(missing).LoadRaw(context.Background())
	if err != nil || len(raw) != 0 {
		t.Fatalf("expected empty optional config, got %v (%v)", raw, err)
	}
	if _, err := File(writeFile(t, "config.ini", "a=b")).LoadRaw(context.Background()); err == nil {
		t.Fatalf("expected unsupported format error")
	}
	if _, err := File(writeFile(t, "broken.toml", "service_name = ")).LoadRaw(context.Background()); err == nil {
		t.Fatalf("expected toml decode error")
	}
	if _, err := File("").LoadRaw(context.Background()); err == nil {
		t.Fatalf("expected path to be required")
	}
}

func TestEnvLoader_OnlyReportsSetVariables(t *testing.T) {
	t.Setenv("RDV_SERVICE_NAME", "from-env")
	t.Setenv("RDV_EXECUTOR_WORKERS", "3")

	raw, err := Env("RDV").LoadRaw(context.Background())
	if err != nil {
		t.Fatalf("load env: %v", err)
	}
	if raw["service_name"] != "from-env" {
		t.Fatalf("unexpected env values: %v", raw)
	}
	executor, _ := raw["executor"].(map[string]any)
	if executor["workers"] != 3 {
		t.Fatalf("expected workers from env, got %v", raw["executor"])
	}
	if _, ok := raw["interceptors"]; ok {
		t.Fatalf("unset variables must not appear: %v", raw)
	}

	t.Setenv("RDV_EXECUTOR_WORKERS", "many")
	if _, err := Env("RDV").LoadRaw(context.Background()); err == nil {
		t.Fatalf("expected invalid integer error")
	}
}

func TestProvider_LayersFileThenEnvIntoDispatcherConfig(t *testing.T) {
	path := writeFile(t, "rendezvous.yaml", "service_name: orders\nexecutor:\n  workers: 8\ninterceptors:\n  failure_policy: log\n")
	t.Setenv("RDV_EXECUTOR_WORKERS", "2")

	d, err := core.NewDispatcher(core.Config{}, core.WithConfigProvider(Provider(File(path), Env("RDV"))))
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	cfg := d.Config()
	if cfg.ServiceName != "orders" || cfg.Executor.WorkerCount() != 2 || cfg.Interceptors.FailurePolicy != core.FailurePolicyLog {
		t.Fatalf("unexpected layered config: %+v", cfg)
	}

	bad := writeFile(t, "bad.yaml", "interceptors:\n  failure_policy: explode\n")
	if _, err := core.NewDispatcher(core.Config{}, core.WithConfigProvider(Provider(File(bad)))); err == nil {
		t.Fatalf("expected invalid failure policy to be rejected")
	}
}

func TestProvider_EnvZeroWorkersRunInline(t *testing.T) {
	path := writeFile(t, "rendezvous.yaml", "executor:\n  workers: 8\n")
	t.Setenv("RDV_EXECUTOR_WORKERS", "0")

	d, err := core.NewDispatcher(core.Config{}, core.WithConfigProvider(Provider(File(path), Env("RDV"))))
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	if got := d.Config().Executor.WorkerCount(); got != 0 {
		t.Fatalf("expected env to set zero workers, got %d", got)
	}
	if _, ok := d.Dependencies().Executor.(core.InlineExecutor); !ok {
		t.Fatalf("expected inline executor, got %T", d.Dependencies().Executor)
	}
}

func TestMerged_DeepMergesNestedMaps(t *testing.T) {
	merged, err := Merge(
		core.StaticConfigLoader(map[string]any{"executor": map[string]any{"workers": 4}, "service_name": "a"}),
		nil,
		core.StaticConfigLoader(map[string]any{"executor": map[any]any{"extra": true}}),
	).LoadRaw(context.Background())
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	executor := merged["executor"].(map[string]any)
	if executor["workers"] != 4 || executor["extra"] != true || merged["service_name"] != "a" {
		t.Fatalf("unexpected merge: %v", merged)
	}
}
