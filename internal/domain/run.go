package domain

import (
	"time"

	"github.com/google/uuid"
)

// Run — запись об одном выполнении workflow.
//
// Run создаётся когда:
// - Пользователь запускает workflow через CLI или API
// - Scheduler запускает workflow по расписанию
// - Agent получает запрос на выполнение из очереди
//
// Итог выполнения хранится отдельно в WorkflowReport.
type Run struct {
	// ID — уникальный идентификатор run.
	ID uuid.UUID `json:"id"`

	// Workflow — имя выполняемого workflow.
	Workflow string `json:"workflow"`

	// Event — событие, запустившее выполнение.
	Event Event `json:"event"`

	// Status — текущий статус выполнения.
	Status RunStatus `json:"status"`

	// StartedAt — время начала выполнения (когда статус стал RUNNING).
	StartedAt *time.Time `json:"started_at,omitempty"`

	// FinishedAt — время завершения.
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// Error — текст ошибки, если выполнение прервано внутренней ошибкой.
	Error string `json:"error,omitempty"`

	// CreatedAt — время создания run.
	CreatedAt time.Time `json:"created_at"`
}

// NewRun создаёт run в статусе PENDING.
func NewRun(id uuid.UUID, workflow string, event Event) *Run {
	return &Run{
		ID:        id,
		Workflow:  workflow,
		Event:     event,
		Status:    RunStatusPending,
		CreatedAt: time.Now(),
	}
}

// Duration возвращает продолжительность выполнения.
// Возвращает 0, если run ещё не завершён.
func (r *Run) Duration() time.Duration {
	if r.StartedAt == nil || r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(*r.StartedAt)
}

// IsFinished возвращает true, если run завершён (в любом статусе).
func (r *Run) IsFinished() bool {
	return r.Status.IsTerminal()
}

// MarkRunning переводит run в статус RUNNING.
func (r *Run) MarkRunning() {
	now := time.Now()
	r.Status = RunStatusRunning
	r.StartedAt = &now
}

// MarkFinished переводит run в финальный статус по отчёту.
func (r *Run) MarkFinished(report *WorkflowReport) {
	now := time.Now()
	r.Status = report.Status
	r.FinishedAt = &now
}

// MarkFailed переводит run в статус FAILED с ошибкой.
func (r *Run) MarkFailed(err string) {
	now := time.Now()
	r.Status = RunStatusFailed
	r.FinishedAt = &now
	r.Error = err
}
