package domain

// JobStatus — статус выполнения job.
//
// Жизненный цикл:
//
//	PENDING → RUNNING → SUCCESS
//	                  ↘ FAILED
//	                  ↘ CANCELLED (отмена между шагами)
//	PENDING → SKIPPED (отмена до старта)
type JobStatus string

const (
	// JobStatusPending — job ещё не запущен.
	JobStatusPending JobStatus = "PENDING"

	// JobStatusRunning — job выполняется.
	JobStatusRunning JobStatus = "RUNNING"

	// JobStatusSuccess — все шаги job завершились успешно.
	JobStatusSuccess JobStatus = "SUCCESS"

	// JobStatusFailed — шаг job завершился с ошибкой или по таймауту.
	JobStatusFailed JobStatus = "FAILED"

	// JobStatusSkipped — job не запускался (отмена до старта).
	JobStatusSkipped JobStatus = "SKIPPED"

	// JobStatusCancelled — job остановлен после текущего шага по запросу отмены.
	JobStatusCancelled JobStatus = "CANCELLED"
)

// IsTerminal возвращает true, если статус финальный.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusSuccess, JobStatusFailed, JobStatusSkipped, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// RunStatus — статус выполнения workflow целиком.
//
// Жизненный цикл:
//
//	PENDING → RUNNING → SUCCESS
//	                  ↘ FAILED
type RunStatus string

const (
	// RunStatusPending — run создан, но ещё не начал выполняться.
	RunStatusPending RunStatus = "PENDING"

	// RunStatusRunning — run в процессе выполнения.
	RunStatusRunning RunStatus = "RUNNING"

	// RunStatusSuccess — все jobs завершились успешно.
	RunStatusSuccess RunStatus = "SUCCESS"

	// RunStatusFailed — хотя бы один job не завершился успешно.
	RunStatusFailed RunStatus = "FAILED"
)

// IsTerminal возвращает true, если статус финальный (run завершён).
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusSuccess || s == RunStatusFailed
}

// ParseRunStatus парсит строку в RunStatus.
func ParseRunStatus(s string) (RunStatus, bool) {
	switch RunStatus(s) {
	case RunStatusPending, RunStatusRunning, RunStatusSuccess, RunStatusFailed:
		return RunStatus(s), true
	default:
		return "", false
	}
}
