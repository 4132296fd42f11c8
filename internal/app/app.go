package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/shaiso/Conveyor/internal/actions"
	"github.com/shaiso/Conveyor/internal/artifact"
	"github.com/shaiso/Conveyor/internal/config"
	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/engine"
	"github.com/shaiso/Conveyor/internal/executor"
	"github.com/shaiso/Conveyor/internal/orchestrator"
	"github.com/shaiso/Conveyor/internal/runner"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

// ErrUnknownBackend — неизвестный backend артефактов.
var ErrUnknownBackend = errors.New("unknown artifacts backend")

// Options — внешние зависимости, которые подключает вызывающая сторона.
type Options struct {
	// Registerer — куда регистрировать метрики. Nil — отдельный реестр.
	Registerer prometheus.Registerer

	// Publisher — публикация событий (опционально).
	Publisher orchestrator.Publisher

	// Store — хранение истории (опционально).
	Store orchestrator.Store

	Logger *slog.Logger
}

// App — собранные компоненты.
type App struct {
	Config       *config.Config
	Metrics      *telemetry.Metrics
	Actions      *actions.Registry
	Parser       *engine.Parser
	Sink         artifact.Sink
	Orchestrator *orchestrator.Orchestrator
}

// New собирает App по конфигурации.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Registerer == nil {
		opts.Registerer = prometheus.NewRegistry()
	}

	metrics := telemetry.NewMetrics(opts.Registerer)

	registry := NewRegistry(cfg)

	sink, err := NewSink(ctx, cfg.Artifacts)
	if err != nil {
		return nil, err
	}

	exec := executor.New(executor.Config{
		Actions:        registry,
		Logs:           executor.NewFileLogStore(cfg.Execution.LogDir),
		DefaultTimeout: cfg.Execution.StepTimeout,
		Metrics:        metrics,
		Logger:         opts.Logger,
	})

	local := runner.LocalConfig{
		BaseDir:       cfg.Execution.WorkDir,
		KeepWorkspace: cfg.Execution.KeepWorkspace,
	}
	if len(cfg.Execution.Runners) > 0 {
		local.Runners = engine.RunnerSetFromStrings(cfg.Execution.Runners)
	}

	jobs := runner.New(runner.Config{
		Provisioner: runner.NewLocalProvisioner(local),
		Steps:       exec,
		Metrics:     metrics,
		Logger:      opts.Logger,
	})

	orch := orchestrator.New(orchestrator.Config{
		Jobs:        jobs,
		Sink:        sink,
		MaxParallel: cfg.Execution.MaxParallel,
		Publisher:   opts.Publisher,
		Store:       opts.Store,
		Metrics:     metrics,
		Logger:      opts.Logger,
	})

	return &App{
		Config:       cfg,
		Metrics:      metrics,
		Actions:      registry,
		Parser:       NewParser(cfg, registry),
		Sink:         sink,
		Orchestrator: orch,
	}, nil
}

// NewRegistry создаёт реестр встроенных actions и внешних actions из конфигурации.
func NewRegistry(cfg *config.Config) *actions.Registry {
	registry := actions.DefaultRegistry()
	if cfg.Execution.Shell != "" {
		registry.Register(actions.NewRunAction(&actions.ShellRunner{}).WithShell(cfg.Execution.Shell))
	}
	for _, a := range cfg.Actions {
		registry.Register(actions.NewRemoteAction(a.Remote()))
	}
	return registry
}

// NewParser создаёт парсер с набором runner'ов из конфигурации.
func NewParser(cfg *config.Config, catalog engine.ActionCatalog) *engine.Parser {
	return engine.NewParser(engine.RunnerSetFromStrings(cfg.Execution.KnownRunners), catalog)
}

// NewSink создаёт хранилище артефактов. Backend "none" возвращает nil.
func NewSink(ctx context.Context, cfg config.ArtifactsConfig) (artifact.Sink, error) {
	switch cfg.Backend {
	case "", config.BackendNone:
		return nil, nil
	case config.BackendFile:
		return artifact.NewFileSink(cfg.Dir), nil
	case config.BackendS3:
		sink, err := artifact.NewS3Sink(ctx, cfg.S3.Artifact())
		if err != nil {
			return nil, fmt.Errorf("s3 artifacts: %w", err)
		}
		return sink, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}

// LoadWorkflows разбирает файлы workflow. Ошибки всех файлов объединяются.
func LoadWorkflows(parser *engine.Parser, paths []string) ([]*domain.Workflow, error) {
	var errs []error
	workflows := make([]*domain.Workflow, 0, len(paths))
	for _, p := range paths {
		wf, err := parser.ParseFile(p)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p, err))
			continue
		}
		workflows = append(workflows, wf)
	}
	return workflows, errors.Join(errs...)
}
