package runner

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/engine"
	"github.com/shaiso/Conveyor/internal/executor"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

// StepExecutor выполняет один шаг. Реализуется executor.Executor.
type StepExecutor interface {
	Execute(ctx context.Context, step *domain.Step, sc *executor.StepContext) domain.StepOutcome
}

// Recorder записывает артефакты. Реализуется artifact.Collector.
type Recorder interface {
	Record(ctx context.Context, jobID, name, path string) (domain.Artifact, error)
}

// Config — конфигурация Runner.
type Config struct {
	// Provisioner — выделяет окружение для job (обязательный).
	Provisioner Provisioner

	// Steps — Step Executor (обязательный).
	Steps StepExecutor

	// Metrics — метрики jobs (опционально).
	Metrics *telemetry.Metrics

	// Logger — логгер. Если nil, используется логгер из context.
	Logger *slog.Logger
}

// Runner — Job Runner.
type Runner struct {
	provisioner Provisioner
	steps       StepExecutor
	metrics     *telemetry.Metrics
	logger      *slog.Logger
}

// New создаёт Runner.
func New(cfg Config) *Runner {
	return &Runner{
		provisioner: cfg.Provisioner,
		steps:       cfg.Steps,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
	}
}

// Request — запрос на выполнение одного job.
type Request struct {
	// RunID — идентификатор выполнения workflow.
	RunID string

	// Workflow — workflow, которому принадлежит job.
	Workflow *domain.Workflow

	// Job — выполняемый job.
	Job *domain.Job

	// Artifacts — куда записывать артефакты. Nil — артефакты не записываются.
	Artifacts Recorder
}

// Run выполняет job и возвращает его outcome.
//
// Возвращает ровно один outcome в финальном статусе и никогда не повторяет
// job или шаг.
func (r *Runner) Run(ctx context.Context, req Request) domain.JobOutcome {
	job := req.Job
	outcome := domain.NewJobOutcome(job)

	logger := r.logger
	if logger == nil {
		logger = telemetry.FromContext(ctx)
	}
	logger = telemetry.WithJobID(logger, job.ID).With("runs_on", job.RunsOn)

	outcome.MarkRunning()
	r.metrics.JobStarted()
	defer func() {
		r.metrics.JobFinished(string(job.RunsOn), string(outcome.Status), true, outcome.Duration())
	}()

	logger.Info("job started", "steps", len(job.Steps))

	env, err := r.provisioner.Acquire(ctx, job.RunsOn, job.ID)
	if err != nil {
		outcome.MarkFailed(-1, fmt.Sprintf("provision runner %s: %v", job.RunsOn, err))
		logger.Error("failed to provision runner", "error", err)
		return outcome
	}
	defer func() {
		if err := env.Release(); err != nil {
			logger.Warn("failed to release runner", "error", err)
		}
	}()

	stepCtx := telemetry.WithLogger(context.WithoutCancel(ctx), logger)
	tmpl := engine.NewContext(req.Workflow.Name, engine.JobContext{
		ID:      job.ID,
		RunsOn:  job.RunsOn,
		WorkDir: env.WorkDir,
	})

	for i := range job.Steps {
		if ctx.Err() != nil {
			outcome.MarkCancelled(fmt.Sprintf("cancelled before step %d of %d", i, len(job.Steps)))
			logger.Info("job cancelled", "next_step", i)
			return outcome
		}

		step := &job.Steps[i]
		so := r.steps.Execute(stepCtx, step, &executor.StepContext{
			RunID:    req.RunID,
			Index:    i,
			Workflow: req.Workflow,
			Job:      job,
			WorkDir:  env.WorkDir,
			Template: tmpl,
		})
		outcome.Steps = append(outcome.Steps, so)

		if step.ID != "" {
			tmpl.AddStepResult(step.ID, so.Outputs, so.Succeeded)
		}
		if !so.Succeeded {
			outcome.MarkFailed(i, fmt.Sprintf("step %d (%s) failed: %s", i, so.Name, so.Detail))
			logger.Warn("job failed", "failed_step", i)
			return outcome
		}
		tmpl.MergeEnv(so.Env)
	}

	outcome.MarkSucceeded()
	r.recordArtifacts(stepCtx, req, env.WorkDir, &outcome, logger)

	logger.Info("job succeeded",
		"artifacts", len(outcome.Artifacts),
		"warnings", len(outcome.Warnings),
		"duration", outcome.Duration(),
	)
	return outcome
}

// recordArtifacts записывает артефакты успешного job.
// Ошибки хранилища становятся предупреждениями и не меняют статус.
func (r *Runner) recordArtifacts(ctx context.Context, req Request, workDir string, outcome *domain.JobOutcome, logger *slog.Logger) {
	if req.Artifacts == nil {
		return
	}

	for _, decl := range req.Job.Artifacts() {
		path := decl.Path
		if !filepath.IsAbs(path) {
			path = filepath.Join(workDir, path)
		}

		a, err := req.Artifacts.Record(ctx, req.Job.ID, decl.Name, path)
		if err != nil {
			outcome.Warnings = append(outcome.Warnings, err.Error())
			logger.Warn("failed to record artifact", "artifact", decl.Name, "error", err)
			continue
		}
		outcome.Artifacts = append(outcome.Artifacts, a)
	}
}
