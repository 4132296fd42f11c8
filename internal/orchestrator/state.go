package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Conveyor/internal/artifact"
	"github.com/shaiso/Conveyor/internal/domain"
)

// RunState — состояние одного выполнения в памяти.
//
// Outcome каждого job записывается ровно один раз. Пока выполнение идёт,
// Snapshot отдаёт частичный отчёт: незавершённые jobs в статусе
// PENDING или RUNNING.
type RunState struct {
	id       uuid.UUID
	workflow *domain.Workflow
	event    domain.Event

	artifacts *artifact.Collector
	cancel    context.CancelFunc
	done      chan struct{}

	mu        sync.RWMutex
	jobs      []domain.JobOutcome
	index     map[string]int
	recorded  map[string]bool
	cancelled bool
	startedAt time.Time
	report    *domain.WorkflowReport
	err       error
}

// NewRunState создаёт состояние и проверяет уникальность ID jobs.
func NewRunState(id uuid.UUID, wf *domain.Workflow, event domain.Event) (*RunState, error) {
	s := &RunState{
		id:        id,
		workflow:  wf,
		event:     event,
		done:      make(chan struct{}),
		jobs:      make([]domain.JobOutcome, len(wf.Jobs)),
		index:     make(map[string]int, len(wf.Jobs)),
		recorded:  make(map[string]bool, len(wf.Jobs)),
		startedAt: time.Now(),
	}

	for i := range wf.Jobs {
		job := &wf.Jobs[i]
		if _, dup := s.index[job.ID]; dup {
			return nil, schedulerError(job.ID, ErrDuplicateJob)
		}
		s.index[job.ID] = i
		s.jobs[i] = domain.NewJobOutcome(job)
	}

	return s, nil
}

// RunID возвращает ID выполнения.
func (s *RunState) RunID() uuid.UUID {
	return s.id
}

// Workflow возвращает выполняемый workflow.
func (s *RunState) Workflow() *domain.Workflow {
	return s.workflow
}

// MarkJobRunning отмечает старт job в частичном отчёте.
func (s *RunState) MarkJobRunning(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i, ok := s.index[jobID]; ok && !s.recorded[jobID] {
		s.jobs[i].MarkRunning()
	}
}

// RecordOutcome записывает финальный outcome job.
func (s *RunState) RecordOutcome(outcome domain.JobOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[outcome.JobID]
	switch {
	case !ok:
		return schedulerError(outcome.JobID, ErrUnknownJob)
	case s.recorded[outcome.JobID]:
		return schedulerError(outcome.JobID, ErrOutcomeRecorded)
	case !outcome.Status.IsTerminal():
		return schedulerError(outcome.JobID, ErrOutcomeNotTerminal)
	}

	s.jobs[i] = outcome
	s.recorded[outcome.JobID] = true
	return nil
}

// requestCancel помечает выполнение как отменённое. Возвращает false,
// если выполнение уже завершено.
func (s *RunState) requestCancel() bool {
	s.mu.Lock()
	if s.report != nil || s.err != nil {
		s.mu.Unlock()
		return false
	}
	s.cancelled = true
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return true
}

// finalize строит итоговый отчёт. Каждый job обязан иметь outcome.
func (s *RunState) finalize(ctxCancelled bool) (*domain.WorkflowReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.workflow.Jobs {
		id := s.workflow.Jobs[i].ID
		if !s.recorded[id] {
			return nil, schedulerError(id, ErrMissingOutcome)
		}
	}

	report := s.buildReport()
	report.Cancelled = s.cancelled || ctxCancelled
	report.FinishedAt = time.Now()
	report.Summarize()

	s.report = report
	return report, nil
}

// fail фиксирует внутреннюю ошибку выполнения.
func (s *RunState) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// buildReport копирует текущие outcomes в новый отчёт. Вызывается под s.mu.
func (s *RunState) buildReport() *domain.WorkflowReport {
	jobs := make([]domain.JobOutcome, len(s.jobs))
	copy(jobs, s.jobs)

	return &domain.WorkflowReport{
		RunID:     s.id,
		Workflow:  s.workflow.Name,
		Event:     s.event,
		Status:    domain.RunStatusRunning,
		Jobs:      jobs,
		Cancelled: s.cancelled,
		StartedAt: s.startedAt,
	}
}

// Snapshot возвращает итоговый отчёт, если выполнение завершено,
// иначе частичный отчёт в статусе RUNNING.
func (s *RunState) Snapshot() *domain.WorkflowReport {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.report != nil {
		r := *s.report
		r.Jobs = append([]domain.JobOutcome(nil), s.report.Jobs...)
		return &r
	}
	return s.buildReport()
}

// Result возвращает итоговый отчёт или ошибку завершённого выполнения.
func (s *RunState) Result() (*domain.WorkflowReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.report, s.err
}

// Artifacts возвращает записанные артефакты выполнения.
func (s *RunState) Artifacts() []domain.Artifact {
	return s.artifacts.List()
}

// Done закрывается по завершении выполнения.
func (s *RunState) Done() <-chan struct{} {
	return s.done
}

// Stats — счётчики jobs по статусам.
type Stats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
	Cancelled int `json:"cancelled"`
}

// Stats возвращает счётчики jobs.
func (s *RunState) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{Total: len(s.jobs)}
	for i := range s.jobs {
		switch s.jobs[i].Status {
		case domain.JobStatusPending:
			st.Pending++
		case domain.JobStatusRunning:
			st.Running++
		case domain.JobStatusSuccess:
			st.Succeeded++
		case domain.JobStatusFailed:
			st.Failed++
		case domain.JobStatusSkipped:
			st.Skipped++
		case domain.JobStatusCancelled:
			st.Cancelled++
		}
	}
	return st
}
