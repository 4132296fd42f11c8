package orchestrator

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/shaiso/Conveyor/internal/artifact"
	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/runner"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

// JobRunner выполняет один job. Реализуется runner.Runner.
type JobRunner interface {
	Run(ctx context.Context, req runner.Request) domain.JobOutcome
}

// Publisher публикует события выполнения. Реализуется mq.Publisher.
type Publisher interface {
	PublishRunStarted(ctx context.Context, run *domain.Run, jobIDs []string) error
	PublishJobCompleted(ctx context.Context, runID uuid.UUID, outcome *domain.JobOutcome) error
	PublishRunCompleted(ctx context.Context, report *domain.WorkflowReport) error
}

// Store сохраняет выполнения и отчёты. Реализуется repo.RunRepo.
type Store interface {
	Create(ctx context.Context, run *domain.Run) error
	Update(ctx context.Context, run *domain.Run) error
	SaveReport(ctx context.Context, run *domain.Run, report *domain.WorkflowReport) error
}

// Config — конфигурация Orchestrator.
type Config struct {
	// Jobs — Job Runner (обязательный).
	Jobs JobRunner

	// Sink — хранилище артефактов. Nil — сохраняется только отображение имён.
	Sink artifact.Sink

	// MaxParallel — максимум одновременно выполняемых jobs одного выполнения.
	// 0 — без ограничения.
	MaxParallel int

	// History — сколько завершённых выполнений держать в памяти (по умолчанию 100).
	History int

	// NotifyTimeout — таймаут публикации событий и записи в Store (по умолчанию 10s).
	NotifyTimeout time.Duration

	Publisher Publisher
	Store     Store
	Metrics   *telemetry.Metrics
	Logger    *slog.Logger
}

// Orchestrator — планировщик выполнений workflow.
//
// Все jobs выполнения стартуют параллельно (с учётом MaxParallel),
// падение одного job не влияет на остальные. Отчёт строится только
// после того, как каждый job получил финальный outcome.
type Orchestrator struct {
	jobs          JobRunner
	sink          artifact.Sink
	maxParallel   int
	history       int
	notifyTimeout time.Duration
	publisher     Publisher
	store         Store
	metrics       *telemetry.Metrics
	logger        *slog.Logger

	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup

	mu       sync.RWMutex
	runs     map[uuid.UUID]*RunState
	finished []uuid.UUID
	stopped  bool
}

// New создаёт Orchestrator.
func New(cfg Config) *Orchestrator {
	if cfg.History <= 0 {
		cfg.History = 100
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Orchestrator{
		jobs:          cfg.Jobs,
		sink:          cfg.Sink,
		maxParallel:   cfg.MaxParallel,
		history:       cfg.History,
		notifyTimeout: cfg.NotifyTimeout,
		publisher:     cfg.Publisher,
		store:         cfg.Store,
		metrics:       cfg.Metrics,
		logger:        cfg.Logger.With("component", "orchestrator"),
		baseCtx:       ctx,
		stop:          cancel,
		runs:          make(map[uuid.UUID]*RunState),
	}
}

// Execute выполняет workflow синхронно и возвращает отчёт.
//
// Отмена ctx равносильна Cancel: jobs, которые ещё не стартовали,
// получают SKIPPED, выполняющиеся останавливаются после текущего шага.
// Ошибка возвращается только при нарушении инвариантов (*SchedulerError).
func (o *Orchestrator) Execute(ctx context.Context, wf *domain.Workflow) (*domain.WorkflowReport, error) {
	return o.ExecuteEvent(ctx, wf, domain.EventManual)
}

// ExecuteEvent — Execute с указанием события.
func (o *Orchestrator) ExecuteEvent(ctx context.Context, wf *domain.Workflow, event domain.Event) (*domain.WorkflowReport, error) {
	state, err := o.register(uuid.New(), wf, event, false)
	if err != nil {
		return nil, err
	}
	return o.execute(ctx, state)
}

// Start запускает выполнение в фоне и возвращает его ID.
func (o *Orchestrator) Start(ctx context.Context, wf *domain.Workflow, event domain.Event) (uuid.UUID, error) {
	id := uuid.New()
	if err := o.StartWithID(ctx, id, wf, event); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// StartWithID запускает выполнение в фоне с заданным ID.
//
// Выполнение не привязано к ctx вызывающего: оно живёт до завершения,
// Cancel или Stop.
func (o *Orchestrator) StartWithID(ctx context.Context, id uuid.UUID, wf *domain.Workflow, event domain.Event) error {
	state, err := o.register(id, wf, event, true)
	if err != nil {
		return err
	}

	telemetry.FromContext(ctx).Debug("run scheduled", "run_id", id, "workflow", wf.Name, "event", event)

	go func() {
		defer o.wg.Done()
		_, _ = o.execute(o.baseCtx, state)
	}()
	return nil
}

// Wait ждёт завершения выполнения и возвращает итоговый отчёт.
func (o *Orchestrator) Wait(ctx context.Context, runID uuid.UUID) (*domain.WorkflowReport, error) {
	state, err := o.state(runID)
	if err != nil {
		return nil, err
	}

	select {
	case <-state.Done():
		return state.Result()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel запрашивает отмену выполнения.
func (o *Orchestrator) Cancel(runID uuid.UUID) error {
	state, err := o.state(runID)
	if err != nil {
		return err
	}
	if !state.requestCancel() {
		return ErrRunFinished
	}
	o.logger.Info("run cancellation requested", "run_id", runID)
	return nil
}

// Report возвращает отчёт выполнения: итоговый или частичный.
func (o *Orchestrator) Report(runID uuid.UUID) (*domain.WorkflowReport, error) {
	state, err := o.state(runID)
	if err != nil {
		return nil, err
	}
	return state.Snapshot(), nil
}

// Artifacts возвращает артефакты, записанные выполнением.
func (o *Orchestrator) Artifacts(runID uuid.UUID) ([]domain.Artifact, error) {
	state, err := o.state(runID)
	if err != nil {
		return nil, err
	}
	return state.Artifacts(), nil
}

// Stats возвращает счётчики jobs выполнения.
func (o *Orchestrator) Stats(runID uuid.UUID) (Stats, error) {
	state, err := o.state(runID)
	if err != nil {
		return Stats{}, err
	}
	return state.Stats(), nil
}

// ActiveRuns возвращает ID незавершённых выполнений.
func (o *Orchestrator) ActiveRuns() []uuid.UUID {
	o.mu.RLock()
	defer o.mu.RUnlock()

	var ids []uuid.UUID
	for id, state := range o.runs {
		select {
		case <-state.Done():
		default:
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}

// Stop отменяет все фоновые выполнения и ждёт их завершения.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	o.stopped = true
	o.mu.Unlock()

	o.logger.Info("stopping orchestrator...")
	o.stop()
	o.wg.Wait()
	o.logger.Info("orchestrator stopped")
}

// register добавляет выполнение в таблицу активных.
// Для фоновых выполнений wg увеличивается под тем же локом, что и проверка stopped,
// поэтому Stop дожидается всех принятых выполнений.
func (o *Orchestrator) register(id uuid.UUID, wf *domain.Workflow, event domain.Event, background bool) (*RunState, error) {
	state, err := NewRunState(id, wf, event)
	if err != nil {
		return nil, err
	}
	state.artifacts = artifact.NewCollector(artifact.Scoped(o.sink, id.String()), o.metrics)

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.stopped {
		return nil, ErrStopped
	}
	if _, exists := o.runs[id]; exists {
		return nil, ErrRunAlreadyActive
	}
	o.runs[id] = state
	if background {
		o.wg.Add(1)
	}
	return state, nil
}

func (o *Orchestrator) state(runID uuid.UUID) (*RunState, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	state, ok := o.runs[runID]
	if !ok {
		return nil, ErrRunNotFound
	}
	return state, nil
}

// retire переносит выполнение в историю и вытесняет самые старые.
func (o *Orchestrator) retire(runID uuid.UUID) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.finished = append(o.finished, runID)
	for len(o.finished) > o.history {
		delete(o.runs, o.finished[0])
		o.finished = o.finished[1:]
	}
}

// execute выполняет все jobs и строит отчёт.
func (o *Orchestrator) execute(parent context.Context, state *RunState) (*domain.WorkflowReport, error) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	state.mu.Lock()
	state.cancel = cancel
	if state.cancelled {
		cancel()
	}
	state.mu.Unlock()

	defer o.retire(state.id)
	defer close(state.done)

	wf := state.workflow
	logger := telemetry.WithRunID(o.logger, state.id.String()).With("workflow", wf.Name)
	ctx = telemetry.WithLogger(ctx, logger)

	run := domain.NewRun(state.id, wf.Name, state.event)
	run.MarkRunning()
	o.notify(ctx, logger, "create run", func(c context.Context) error {
		if o.store == nil {
			return nil
		}
		return o.store.Create(c, run)
	})
	o.notify(ctx, logger, "publish run started", func(c context.Context) error {
		if o.publisher == nil {
			return nil
		}
		return o.publisher.PublishRunStarted(c, run, wf.JobIDs())
	})

	logger.Info("run started", "jobs", len(wf.Jobs), "max_parallel", o.maxParallel)

	var g errgroup.Group
	if o.maxParallel > 0 {
		g.SetLimit(o.maxParallel)
	}
	for i := range wf.Jobs {
		job := &wf.Jobs[i]
		g.Go(func() error {
			return o.runJob(ctx, state, job, logger)
		})
	}

	if err := g.Wait(); err != nil {
		return o.abort(ctx, state, run, logger, err)
	}

	report, err := state.finalize(ctx.Err() != nil)
	if err != nil {
		return o.abort(ctx, state, run, logger, err)
	}

	o.metrics.RunFinished(string(report.Status))
	run.MarkFinished(report)
	o.notify(ctx, logger, "save report", func(c context.Context) error {
		if o.store == nil {
			return nil
		}
		return o.store.SaveReport(c, run, report)
	})
	o.notify(ctx, logger, "publish run completed", func(c context.Context) error {
		if o.publisher == nil {
			return nil
		}
		return o.publisher.PublishRunCompleted(c, report)
	})

	logger.Info("run finished",
		"status", report.Status,
		"failed_jobs", report.FailedJobs,
		"skipped_jobs", report.SkippedJobs,
		"cancelled", report.Cancelled,
		"duration", report.FinishedAt.Sub(report.StartedAt),
	)
	return report, nil
}

// runJob выполняет job или пропускает его, если выполнение уже отменено.
func (o *Orchestrator) runJob(ctx context.Context, state *RunState, job *domain.Job, logger *slog.Logger) error {
	var outcome domain.JobOutcome

	if ctx.Err() != nil {
		outcome = domain.NewJobOutcome(job)
		outcome.MarkSkipped("run cancelled before job started")
		o.metrics.JobFinished(string(job.RunsOn), string(outcome.Status), false, 0)
		logger.Info("job skipped", "job_id", job.ID)
	} else {
		state.MarkJobRunning(job.ID)

		outcome = o.jobs.Run(ctx, runner.Request{
			RunID:     state.id.String(),
			Workflow:  state.workflow,
			Job:       job,
			Artifacts: state.artifacts,
		})
	}

	if err := state.RecordOutcome(outcome); err != nil {
		return err
	}

	o.notify(ctx, logger, "publish job completed", func(c context.Context) error {
		if o.publisher == nil {
			return nil
		}
		return o.publisher.PublishJobCompleted(c, state.id, &outcome)
	})
	return nil
}

// abort завершает выполнение при нарушении инварианта.
func (o *Orchestrator) abort(ctx context.Context, state *RunState, run *domain.Run, logger *slog.Logger, err error) (*domain.WorkflowReport, error) {
	state.fail(err)
	run.MarkFailed(err.Error())
	o.metrics.RunFinished(string(domain.RunStatusFailed))

	o.notify(ctx, logger, "update run", func(c context.Context) error {
		if o.store == nil {
			return nil
		}
		return o.store.Update(c, run)
	})

	logger.Error("run aborted", "error", err)
	return nil, err
}

// notify выполняет побочное действие (Store, Publisher) с отдельным таймаутом.
// Ошибки логируются и не влияют на выполнение.
func (o *Orchestrator) notify(ctx context.Context, logger *slog.Logger, what string, fn func(context.Context) error) {
	c, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.notifyTimeout)
	defer cancel()

	if err := fn(c); err != nil {
		logger.Warn("failed to "+what, "error", err)
	}
}
