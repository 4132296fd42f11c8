package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
)

// RunCreatedResponse — ответ на запуск workflow.
type RunCreatedResponse struct {
	RunID    uuid.UUID        `json:"run_id"`
	Workflow string           `json:"workflow"`
	Event    domain.Event     `json:"event"`
	Status   domain.RunStatus `json:"status"`
	Jobs     []string         `json:"jobs"`

	// Queued — выполнение передано agent'у через очередь.
	Queued bool `json:"queued,omitempty"`
}

// RunResponse — краткая информация о выполнении.
type RunResponse struct {
	ID         uuid.UUID        `json:"id"`
	Workflow   string           `json:"workflow"`
	Event      domain.Event     `json:"event,omitempty"`
	Status     domain.RunStatus `json:"status"`
	StartedAt  *time.Time       `json:"started_at,omitempty"`
	FinishedAt *time.Time       `json:"finished_at,omitempty"`
	Error      string           `json:"error,omitempty"`
	FailedJobs []string         `json:"failed_jobs,omitempty"`
}

// RunFromDomain конвертирует domain.Run в RunResponse.
func RunFromDomain(r domain.Run) RunResponse {
	return RunResponse{
		ID:         r.ID,
		Workflow:   r.Workflow,
		Event:      r.Event,
		Status:     r.Status,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Error:      r.Error,
	}
}

// RunFromReport конвертирует отчёт (возможно частичный) в RunResponse.
func RunFromReport(r *domain.WorkflowReport) RunResponse {
	resp := RunResponse{
		ID:         r.RunID,
		Workflow:   r.Workflow,
		Event:      r.Event,
		Status:     r.Status,
		FailedJobs: r.FailedJobs,
	}
	if !r.StartedAt.IsZero() {
		started := r.StartedAt
		resp.StartedAt = &started
	}
	if !r.FinishedAt.IsZero() {
		finished := r.FinishedAt
		resp.FinishedAt = &finished
	}
	return resp
}

// ValidateResponse — результат проверки workflow.
type ValidateResponse struct {
	Workflow  string   `json:"workflow"`
	Jobs      []string `json:"jobs"`
	Events    []string `json:"events,omitempty"`
	Schedules []string `json:"schedules,omitempty"`
}
