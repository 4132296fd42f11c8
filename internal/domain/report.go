package domain

import (
	"time"

	"github.com/google/uuid"
)

// StepOutcome — результат выполнения одного шага.
type StepOutcome struct {
	// Index — позиция шага в job (с нуля).
	Index int `json:"index"`

	// Name — имя шага.
	Name string `json:"name"`

	// Action — имя выполненного action.
	Action string `json:"action"`

	// Succeeded — true, если action завершился с нулевым статусом.
	Succeeded bool `json:"succeeded"`

	// ExitCode — код завершения action (-1, если процесс не запустился).
	ExitCode int `json:"exit_code"`

	// TimedOut — шаг превысил таймаут.
	TimedOut bool `json:"timed_out,omitempty"`

	// Detail — описание ошибки и хвост вывода для диагностики.
	Detail string `json:"detail,omitempty"`

	// LogRef — ссылка на полный stdout/stderr шага.
	LogRef string `json:"log_ref,omitempty"`

	// Outputs — outputs шага, доступные следующим шагам.
	Outputs map[string]string `json:"outputs,omitempty"`

	// Env — переменные окружения, экспортированные шагом.
	Env map[string]string `json:"-"`

	// StartedAt — время начала шага.
	StartedAt time.Time `json:"started_at"`

	// DurationMs — продолжительность шага.
	DurationMs int64 `json:"duration_ms"`
}

// JobOutcome — итог выполнения одного job.
//
// Создаётся ровно один раз на job за выполнение и не меняется
// после перехода в финальный статус.
type JobOutcome struct {
	// JobID — идентификатор job.
	JobID string `json:"job_id"`

	// RunsOn — runner, на котором выполнялся job.
	RunsOn RunnerDescriptor `json:"runs_on"`

	// Status — статус job.
	Status JobStatus `json:"status"`

	// FailedStep — индекс упавшего шага (-1 — runner не был получен).
	FailedStep *int `json:"failed_step,omitempty"`

	// Detail — описание ошибки или причины пропуска.
	Detail string `json:"detail,omitempty"`

	// Steps — результаты выполненных шагов.
	Steps []StepOutcome `json:"steps,omitempty"`

	// Artifacts — записанные артефакты (только для SUCCESS).
	Artifacts []Artifact `json:"artifacts,omitempty"`

	// Warnings — некритичные проблемы (например, недоступно хранилище артефактов).
	Warnings []string `json:"warnings,omitempty"`

	// StartedAt — время старта job.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// FinishedAt — время завершения job.
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// NewJobOutcome создаёт outcome в статусе PENDING.
func NewJobOutcome(job *Job) JobOutcome {
	return JobOutcome{
		JobID:  job.ID,
		RunsOn: job.RunsOn,
		Status: JobStatusPending,
	}
}

// MarkRunning переводит job в статус RUNNING.
func (o *JobOutcome) MarkRunning() {
	now := time.Now()
	o.Status = JobStatusRunning
	o.StartedAt = &now
}

// MarkSucceeded переводит job в статус SUCCESS.
func (o *JobOutcome) MarkSucceeded() {
	o.finish(JobStatusSuccess, "")
}

// MarkFailed переводит job в статус FAILED на шаге stepIndex.
func (o *JobOutcome) MarkFailed(stepIndex int, detail string) {
	o.FailedStep = &stepIndex
	o.finish(JobStatusFailed, detail)
}

// MarkSkipped переводит job в статус SKIPPED.
func (o *JobOutcome) MarkSkipped(reason string) {
	o.finish(JobStatusSkipped, reason)
}

// MarkCancelled переводит job в статус CANCELLED.
func (o *JobOutcome) MarkCancelled(reason string) {
	o.finish(JobStatusCancelled, reason)
}

func (o *JobOutcome) finish(status JobStatus, detail string) {
	now := time.Now()
	o.Status = status
	o.Detail = detail
	o.FinishedAt = &now
}

// Duration возвращает продолжительность job.
// Возвращает 0, если job ещё не завершён.
func (o *JobOutcome) Duration() time.Duration {
	if o.StartedAt == nil || o.FinishedAt == nil {
		return 0
	}
	return o.FinishedAt.Sub(*o.StartedAt)
}

// WorkflowReport — агрегированный результат одного выполнения workflow.
type WorkflowReport struct {
	// RunID — идентификатор выполнения.
	RunID uuid.UUID `json:"run_id"`

	// Workflow — имя workflow.
	Workflow string `json:"workflow"`

	// Event — событие, запустившее выполнение.
	Event Event `json:"event,omitempty"`

	// Status — SUCCESS, если все jobs успешны, иначе FAILED.
	Status RunStatus `json:"status"`

	// Jobs — outcome каждого job в порядке объявления.
	Jobs []JobOutcome `json:"jobs"`

	// FailedJobs — jobs со статусом FAILED или CANCELLED.
	FailedJobs []string `json:"failed_jobs,omitempty"`

	// SkippedJobs — jobs, которые не запускались.
	SkippedJobs []string `json:"skipped_jobs,omitempty"`

	// Cancelled — выполнение было отменено.
	Cancelled bool `json:"cancelled,omitempty"`

	// StartedAt — время начала выполнения.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt — время завершения (нулевое, пока run выполняется).
	FinishedAt time.Time `json:"finished_at,omitzero"`
}

// Summarize вычисляет Status, FailedJobs и SkippedJobs по outcomes jobs.
//
// Workflow успешен тогда и только тогда, когда все jobs в статусе SUCCESS.
func (r *WorkflowReport) Summarize() {
	r.FailedJobs = nil
	r.SkippedJobs = nil

	status := RunStatusSuccess
	for i := range r.Jobs {
		job := &r.Jobs[i]
		switch job.Status {
		case JobStatusSuccess:
			continue
		case JobStatusSkipped:
			r.SkippedJobs = append(r.SkippedJobs, job.JobID)
		default:
			r.FailedJobs = append(r.FailedJobs, job.JobID)
		}
		status = RunStatusFailed
	}
	r.Status = status
}

// Job возвращает outcome job по ID.
func (r *WorkflowReport) Job(jobID string) (*JobOutcome, bool) {
	for i := range r.Jobs {
		if r.Jobs[i].JobID == jobID {
			return &r.Jobs[i], true
		}
	}
	return nil, false
}

// Artifacts возвращает артефакты всех jobs.
func (r *WorkflowReport) Artifacts() []Artifact {
	var artifacts []Artifact
	for i := range r.Jobs {
		artifacts = append(artifacts, r.Jobs[i].Artifacts...)
	}
	return artifacts
}

// IsSuccess возвращает true, если workflow завершился успешно.
func (r *WorkflowReport) IsSuccess() bool {
	return r.Status == RunStatusSuccess
}
