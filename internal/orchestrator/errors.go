package orchestrator

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	// ErrRunNotFound — выполнение не найдено среди активных и недавних.
	ErrRunNotFound = errors.New("run not found")

	// ErrRunAlreadyActive — выполнение с таким ID уже идёт.
	ErrRunAlreadyActive = errors.New("run already active")

	// ErrRunFinished — выполнение уже завершено (например, при отмене).
	ErrRunFinished = errors.New("run already finished")

	// ErrDuplicateJob — два jobs с одинаковым ID.
	ErrDuplicateJob = errors.New("duplicate job id")

	// ErrUnknownJob — outcome для job, которого нет в workflow.
	ErrUnknownJob = errors.New("unknown job")

	// ErrOutcomeRecorded — outcome job записан повторно.
	ErrOutcomeRecorded = errors.New("job outcome already recorded")

	// ErrOutcomeNotTerminal — outcome в нефинальном статусе.
	ErrOutcomeNotTerminal = errors.New("job outcome is not terminal")

	// ErrMissingOutcome — job завершился без outcome.
	ErrMissingOutcome = errors.New("job has no outcome")

	// ErrStopped — orchestrator остановлен и не принимает новые выполнения.
	ErrStopped = errors.New("orchestrator stopped")
)

// SchedulerError — нарушение инварианта планировщика.
//
// Не путать с ошибкой job: упавший job — это outcome FAILED,
// а SchedulerError означает, что отчёт построить невозможно.
type SchedulerError struct {
	JobID string
	Err   error
}

func (e *SchedulerError) Error() string {
	if e.JobID == "" {
		return fmt.Sprintf("scheduler: %v", e.Err)
	}
	return fmt.Sprintf("scheduler: job %q: %v", e.JobID, e.Err)
}

func (e *SchedulerError) Unwrap() error {
	return e.Err
}

func schedulerError(jobID string, err error) error {
	return &SchedulerError{JobID: jobID, Err: err}
}
