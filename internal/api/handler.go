package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/mq"
	"github.com/shaiso/Conveyor/internal/repo"
	"github.com/shaiso/Conveyor/internal/telemetry"
	"github.com/shaiso/Conveyor/internal/trigger"
)

// Runs — выполнения в памяти процесса. Реализуется orchestrator.Orchestrator.
type Runs interface {
	Start(ctx context.Context, wf *domain.Workflow, event domain.Event) (uuid.UUID, error)
	Cancel(runID uuid.UUID) error
	Report(runID uuid.UUID) (*domain.WorkflowReport, error)
	Artifacts(runID uuid.UUID) ([]domain.Artifact, error)
	ActiveRuns() []uuid.UUID
}

// History — сохранённые выполнения. Реализуется repo.RunRepo.
type History interface {
	List(ctx context.Context, filter repo.RunFilter) ([]domain.Run, error)
	GetReport(ctx context.Context, runID uuid.UUID) (*domain.WorkflowReport, error)
	ListArtifacts(ctx context.Context, runID uuid.UUID) ([]domain.Artifact, error)
}

// Dispatcher ставит выполнение в очередь agent'ов. Реализуется mq.Publisher.
type Dispatcher interface {
	PublishRunRequested(ctx context.Context, payload mq.RunRequestedPayload) error
}

// WorkflowParser разбирает и валидирует workflow. Реализуется engine.Parser.
type WorkflowParser interface {
	Parse(raw []byte) (*domain.Workflow, error)
}

// Schedules — ближайшие запуски по расписанию. Реализуется trigger.Scheduler.
type Schedules interface {
	Upcoming() []trigger.Due
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	runs       Runs
	history    History
	dispatcher Dispatcher
	parser     WorkflowParser
	schedules  Schedules
	metrics    *telemetry.Metrics
	metricsH   http.Handler
	logger     *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	// Runs — локальный orchestrator (обязательный).
	Runs Runs

	// Parser — парсер workflow (обязательный).
	Parser WorkflowParser

	// History — хранилище истории. Nil — только выполнения в памяти.
	History History

	// Dispatcher — если задан, новые выполнения уходят в очередь agent'ов.
	Dispatcher Dispatcher

	// Schedules — планировщик (опционально).
	Schedules Schedules

	// Metrics — счётчики HTTP запросов (опционально).
	Metrics *telemetry.Metrics

	// MetricsHandler — обработчик /metrics (опционально).
	MetricsHandler http.Handler

	Logger *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Handler{
		runs:       cfg.Runs,
		history:    cfg.History,
		dispatcher: cfg.Dispatcher,
		parser:     cfg.Parser,
		schedules:  cfg.Schedules,
		metrics:    cfg.Metrics,
		metricsH:   cfg.MetricsHandler,
		logger:     cfg.Logger.With("component", "api"),
	}
}
