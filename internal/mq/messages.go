package mq

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Conveyor/internal/domain"
)

// MessageType — тип сообщения в очереди.
type MessageType string

const (
	MessageTypeRunRequested MessageType = "run.requested"
	MessageTypeRunStarted   MessageType = "run.started"
	MessageTypeJobCompleted MessageType = "job.completed"
	MessageTypeRunCompleted MessageType = "run.completed"
)

// Message — конверт сообщения.
type Message struct {
	ID        string      `json:"id"`
	Type      MessageType `json:"type"`
	Payload   any         `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewMessage создаёт сообщение с новым ID.
func NewMessage(msgType MessageType, payload any) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// RunRequestedPayload — запрос на выполнение workflow.
type RunRequestedPayload struct {
	RunID uuid.UUID `json:"run_id"`

	// Definition — исходный YAML workflow. Парсится и валидируется потребителем.
	Definition string `json:"definition"`

	Event domain.Event `json:"event,omitempty"`
}

// RunStartedPayload — выполнение началось.
type RunStartedPayload struct {
	RunID    uuid.UUID    `json:"run_id"`
	Workflow string       `json:"workflow"`
	Event    domain.Event `json:"event,omitempty"`
	Jobs     []string     `json:"jobs"`
}

// JobCompletedPayload — job получил финальный статус.
type JobCompletedPayload struct {
	RunID      uuid.UUID        `json:"run_id"`
	JobID      string           `json:"job_id"`
	RunsOn     string           `json:"runs_on"`
	Status     domain.JobStatus `json:"status"`
	FailedStep *int             `json:"failed_step,omitempty"`
	Detail     string           `json:"detail,omitempty"`
	Artifacts  []string         `json:"artifacts,omitempty"`
	DurationMs int64            `json:"duration_ms"`
}

// NewJobCompletedPayload собирает payload из outcome.
// Detail обрезается: полный вывод хранится в логах шагов.
func NewJobCompletedPayload(runID uuid.UUID, o *domain.JobOutcome) JobCompletedPayload {
	p := JobCompletedPayload{
		RunID:      runID,
		JobID:      o.JobID,
		RunsOn:     string(o.RunsOn),
		Status:     o.Status,
		FailedStep: o.FailedStep,
		Detail:     truncate(o.Detail, maxDetailLen),
		DurationMs: o.Duration().Milliseconds(),
	}
	for _, a := range o.Artifacts {
		p.Artifacts = append(p.Artifacts, a.Name)
	}
	return p
}

// RunCompletedPayload — итог выполнения.
type RunCompletedPayload struct {
	RunID       uuid.UUID        `json:"run_id"`
	Workflow    string           `json:"workflow"`
	Status      domain.RunStatus `json:"status"`
	FailedJobs  []string         `json:"failed_jobs,omitempty"`
	SkippedJobs []string         `json:"skipped_jobs,omitempty"`
	Cancelled   bool             `json:"cancelled,omitempty"`
	DurationMs  int64            `json:"duration_ms"`
}

// NewRunCompletedPayload собирает payload из отчёта.
func NewRunCompletedPayload(r *domain.WorkflowReport) RunCompletedPayload {
	p := RunCompletedPayload{
		RunID:       r.RunID,
		Workflow:    r.Workflow,
		Status:      r.Status,
		FailedJobs:  r.FailedJobs,
		SkippedJobs: r.SkippedJobs,
		Cancelled:   r.Cancelled,
	}
	if !r.FinishedAt.IsZero() {
		p.DurationMs = r.FinishedAt.Sub(r.StartedAt).Milliseconds()
	}
	return p
}

const maxDetailLen = 2048

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// ParsePayload парсит payload сообщения в указанный тип.
func ParsePayload[T any](msg *Message) (T, error) {
	var result T

	// После json.Unmarshal конверта payload — map[string]any.
	payloadBytes, err := json.Marshal(msg.Payload)
	if err != nil {
		return result, fmt.Errorf("marshal payload: %w", err)
	}

	if err := json.Unmarshal(payloadBytes, &result); err != nil {
		return result, fmt.Errorf("unmarshal payload: %w", err)
	}

	return result, nil
}
