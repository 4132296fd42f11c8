package config

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidConfig — конфигурация не прошла проверку.
var ErrInvalidConfig = errors.New("invalid configuration")

// Validate проверяет согласованность конфигурации.
func Validate(cfg *Config) error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	switch strings.ToLower(cfg.Log.Format) {
	case "json", "text":
	default:
		add("log.format must be json or text, got %q", cfg.Log.Format)
	}

	if cfg.Execution.MaxParallel < 0 {
		add("execution.max_parallel must be >= 0")
	}
	if cfg.Execution.StepTimeout < 0 {
		add("execution.step_timeout must be >= 0")
	}
	if cfg.RabbitMQ.Prefetch < 0 {
		add("rabbitmq.prefetch must be >= 0")
	}
	if cfg.RabbitMQ.Dispatch && cfg.RabbitMQ.URL == "" {
		add("rabbitmq.url is required when rabbitmq.dispatch is enabled")
	}

	switch cfg.Artifacts.Backend {
	case BackendNone:
	case BackendFile:
		if cfg.Artifacts.Dir == "" {
			add("artifacts.dir is required for file backend")
		}
	case BackendS3:
		if cfg.Artifacts.S3.Bucket == "" {
			add("artifacts.s3.bucket is required for s3 backend")
		}
	default:
		add("artifacts.backend must be none, file or s3, got %q", cfg.Artifacts.Backend)
	}

	seen := make(map[string]bool, len(cfg.Actions))
	for i, a := range cfg.Actions {
		switch {
		case a.Name == "":
			add("actions[%d].name is required", i)
		case a.Endpoint == "":
			add("actions[%d] (%s): endpoint is required", i, a.Name)
		case seen[a.Name]:
			add("actions[%d]: duplicate action %q", i, a.Name)
		}
		seen[a.Name] = true
	}

	return errors.Join(errs...)
}
