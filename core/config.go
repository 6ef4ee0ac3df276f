package core

import (
	"fmt"
	"strings"
)

const (
	FailurePolicySilent = "silent"
	FailurePolicyLog    = "log"
)

// DefaultWorkers bounds concurrent dispatches when no layer sets workers.
const DefaultWorkers = 64

type ExecutorConfig struct {
	// Workers bounds concurrent dispatches; zero runs them inline. Nil means
	// unset, so a lower config layer still applies.
	Workers *int `koanf:"workers" mapstructure:"workers"`
}

// FixedWorkers returns an executor config with workers set explicitly.
func FixedWorkers(n int) ExecutorConfig {
	return ExecutorConfig{Workers: &n}
}

func (c ExecutorConfig) WorkerCount() int {
	if c.Workers == nil {
		return DefaultWorkers
	}
	return *c.Workers
}

type InterceptorConfig struct {
	FailurePolicy string `koanf:"failure_policy" mapstructure:"failure_policy"`
}

type Config struct {
	ServiceName  string            `koanf:"service_name" mapstructure:"service_name"`
	Executor     ExecutorConfig    `koanf:"executor" mapstructure:"executor"`
	Interceptors InterceptorConfig `koanf:"interceptors" mapstructure:"interceptors"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "rendezvous",
		Executor:    FixedWorkers(DefaultWorkers),
		Interceptors: InterceptorConfig{
			FailurePolicy: FailurePolicySilent,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Executor.Workers != nil && *c.Executor.Workers < 0 {
		return fmt.Errorf("core: executor.workers must not be negative, got %d", *c.Executor.Workers)
	}
	switch normalizeFailurePolicy(c.Interceptors.FailurePolicy) {
	case FailurePolicySilent, FailurePolicyLog:
	default:
		return fmt.Errorf("core: unsupported interceptors.failure_policy %q", c.Interceptors.FailurePolicy)
	}
	return nil
}

func normalizeFailurePolicy(policy string) string {
	policy = strings.TrimSpace(strings.ToLower(policy))
	if policy == "" {
		return FailurePolicySilent
	}
	return policy
}
