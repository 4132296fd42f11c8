package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"strings"
	"time"

	"github.com/shaiso/Conveyor/internal/actions"
	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/engine"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

const defaultTailBytes = 4 * 1024

// Resolver находит action по имени. Реализуется actions.Registry.
type Resolver interface {
	Get(name string) (actions.Action, error)
}

// Config — конфигурация Executor.
type Config struct {
	// Actions — реестр actions (обязательный).
	Actions Resolver

	// Logs — хранилище полного вывода шагов. Nil — вывод не сохраняется.
	Logs LogStore

	// DefaultTimeout — таймаут шага, если он не задан в workflow. 0 — без ограничения.
	DefaultTimeout time.Duration

	// TailBytes — сколько байт вывода включать в Detail. По умолчанию 4 KB.
	TailBytes int

	// Metrics — метрики шагов (опционально).
	Metrics *telemetry.Metrics

	// Logger — логгер. Если nil, используется логгер из context.
	Logger *slog.Logger
}

// Executor — Step Executor: выполняет один шаг и возвращает его outcome.
//
// Executor не хранит состояния между вызовами и может использоваться
// одновременно из нескольких jobs.
type Executor struct {
	actions        Resolver
	logs           LogStore
	defaultTimeout time.Duration
	tailBytes      int
	metrics        *telemetry.Metrics
	logger         *slog.Logger
}

// New создаёт Executor.
func New(cfg Config) *Executor {
	if cfg.TailBytes <= 0 {
		cfg.TailBytes = defaultTailBytes
	}
	return &Executor{
		actions:        cfg.Actions,
		logs:           cfg.Logs,
		defaultTimeout: cfg.DefaultTimeout,
		tailBytes:      cfg.TailBytes,
		metrics:        cfg.Metrics,
		logger:         cfg.Logger,
	}
}

// StepContext — контекст выполнения шага внутри job.
type StepContext struct {
	// RunID — идентификатор выполнения (для путей логов).
	RunID string

	// Index — позиция шага в job.
	Index int

	// Workflow — выполняемый workflow.
	Workflow *domain.Workflow

	// Job — job, которому принадлежит шаг.
	Job *domain.Job

	// WorkDir — рабочая директория, выданная provisioner'ом.
	WorkDir string

	// Template — контекст job: env и outputs предыдущих шагов.
	// Executor его не изменяет.
	Template *engine.Context
}

// Execute выполняет шаг.
//
// Никогда не возвращает ошибку: любой провал отражается в StepOutcome.
func (e *Executor) Execute(ctx context.Context, step *domain.Step, sc *StepContext) domain.StepOutcome {
	start := time.Now()
	outcome := domain.StepOutcome{
		Index:     sc.Index,
		Name:      step.DisplayName(),
		Action:    step.Action(),
		ExitCode:  -1,
		StartedAt: start,
	}

	logger := e.logger
	if logger == nil {
		logger = telemetry.FromContext(ctx)
	}
	logger = logger.With("step", outcome.Name, "index", sc.Index, "action", outcome.Action)

	e.invoke(ctx, step, sc, &outcome, logger)

	outcome.DurationMs = time.Since(start).Milliseconds()
	e.metrics.StepFinished(outcome.Action, outcome.Succeeded, time.Since(start))

	if outcome.Succeeded {
		logger.Info("step succeeded", "duration_ms", outcome.DurationMs)
	} else {
		logger.Warn("step failed",
			"exit_code", outcome.ExitCode,
			"timed_out", outcome.TimedOut,
			"duration_ms", outcome.DurationMs,
		)
	}

	return outcome
}

func (e *Executor) invoke(ctx context.Context, step *domain.Step, sc *StepContext, outcome *domain.StepOutcome, logger *slog.Logger) {
	action, err := e.actions.Get(outcome.Action)
	if err != nil {
		outcome.Detail = err.Error()
		return
	}

	env, err := e.buildEnv(step, sc)
	if err != nil {
		outcome.Detail = fmt.Sprintf("render env: %v", err)
		return
	}

	inputs, err := engine.RenderInputs(step, withEnv(sc.Template, env))
	if err != nil {
		outcome.Detail = fmt.Sprintf("render inputs: %v", err)
		return
	}

	tail := newTailBuffer(e.tailBytes)
	var output io.Writer = tail
	if e.logs != nil {
		w, ref, err := e.logs.Open(sc.RunID, sc.Job.ID, sc.Index, outcome.Name)
		if err != nil {
			logger.Warn("failed to open step log", "error", err)
		} else {
			defer w.Close()
			outcome.LogRef = ref
			output = io.MultiWriter(tail, w)
		}
	}

	timeout := e.Timeout(step, sc.Job, sc.Workflow)
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	logger.Debug("invoking action", "timeout", timeout)

	res, err := action.Invoke(ctx, &actions.Request{
		Step:    outcome.Name,
		Inputs:  inputs,
		Env:     env,
		WorkDir: sc.WorkDir,
		Output:  output,
	})

	if res != nil {
		outcome.ExitCode = res.ExitCode
	}
	logTail := tail.String()
	if logTail == "" && res != nil {
		logTail = lastBytes(res.Stdout+res.Stderr, e.tailBytes)
	}

	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		outcome.TimedOut = true
		outcome.ExitCode = -1
		outcome.Detail = withTail(fmt.Sprintf("step timed out after %s", timeout), logTail)
	case err != nil:
		outcome.Detail = withTail(err.Error(), logTail)
	case res == nil:
		outcome.Detail = fmt.Sprintf("action %s returned no result", outcome.Action)
	case res.ExitCode != 0:
		outcome.Detail = withTail(fmt.Sprintf("exit status %d", res.ExitCode), logTail)
	default:
		outcome.Succeeded = true
		outcome.Outputs = res.Outputs
		outcome.Env = res.Env
	}
}

// Timeout возвращает таймаут шага по цепочке step → job → workflow → executor.
func (e *Executor) Timeout(step *domain.Step, job *domain.Job, wf *domain.Workflow) time.Duration {
	switch {
	case step.TimeoutSec > 0:
		return time.Duration(step.TimeoutSec) * time.Second
	case job != nil && job.TimeoutSec > 0:
		return time.Duration(job.TimeoutSec) * time.Second
	case wf != nil && wf.Defaults != nil && wf.Defaults.TimeoutSec > 0:
		return time.Duration(wf.Defaults.TimeoutSec) * time.Second
	default:
		return e.defaultTimeout
	}
}

// buildEnv собирает окружение шага: workflow → job → экспорт → step.
// Значения step рендерятся против окружения workflow, job и экспорта.
func (e *Executor) buildEnv(step *domain.Step, sc *StepContext) (map[string]string, error) {
	base := make(map[string]string)
	if sc.Workflow != nil {
		maps.Copy(base, sc.Workflow.Env)
	}
	if sc.Job != nil {
		maps.Copy(base, sc.Job.Env)
	}
	if sc.Template != nil {
		maps.Copy(base, sc.Template.Env)
	}

	env := maps.Clone(base)
	maps.Copy(env, step.Env)

	return engine.RenderMap(env, withEnv(sc.Template, base))
}

// withEnv возвращает копию контекста с заданным env. Исходный контекст не меняется.
func withEnv(tc *engine.Context, env map[string]string) *engine.Context {
	var view engine.Context
	if tc != nil {
		view = *tc
	}
	view.Env = env
	return &view
}

func withTail(detail, tail string) string {
	tail = strings.TrimSpace(tail)
	if tail == "" {
		return detail
	}
	return detail + "\n" + tail
}

func lastBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return string(trimToRune([]byte(s[len(s)-n:])))
}
