package engine

import (
	"errors"
	"fmt"
)

// Ошибки валидации Workflow.
var (
	// ErrMalformedDefinition — документ не удалось разобрать.
	ErrMalformedDefinition = errors.New("malformed workflow definition")

	// ErrNoJobs — workflow не содержит jobs.
	ErrNoJobs = errors.New("workflow has no jobs")

	// ErrEmptyJobID — job не имеет ID.
	ErrEmptyJobID = errors.New("job has empty ID")

	// ErrDuplicateJobID — несколько jobs с одинаковым ID.
	ErrDuplicateJobID = errors.New("duplicate job ID")

	// ErrNoSteps — job не содержит шагов.
	ErrNoSteps = errors.New("job has no steps")

	// ErrUnknownRunner — runner не входит в набор известных.
	ErrUnknownRunner = errors.New("unknown runner")

	// ErrEmptyCommand — шаг не задаёт ни uses, ни run.
	ErrEmptyCommand = errors.New("step has empty command")

	// ErrAmbiguousStep — шаг задаёт и uses, и run.
	ErrAmbiguousStep = errors.New("step sets both uses and run")

	// ErrUnknownAction — action не зарегистрирован.
	ErrUnknownAction = errors.New("unknown action")

	// ErrDuplicateStepID — несколько шагов job с одинаковым ID.
	ErrDuplicateStepID = errors.New("duplicate step ID")

	// ErrInvalidArtifact — некорректное объявление артефакта.
	ErrInvalidArtifact = errors.New("invalid artifact declaration")

	// ErrUnknownEvent — неизвестное событие в on.
	ErrUnknownEvent = errors.New("unknown trigger event")

	// ErrInvalidSchedule — некорректное cron-выражение.
	ErrInvalidSchedule = errors.New("invalid schedule")

	// ErrInvalidTimeout — отрицательный таймаут.
	ErrInvalidTimeout = errors.New("invalid timeout")
)

// Ошибки рендеринга шаблонов.
var (
	// ErrTemplateRender — ошибка рендеринга шаблона.
	ErrTemplateRender = errors.New("template render failed")

	// ErrTemplateParse — ошибка парсинга шаблона.
	ErrTemplateParse = errors.New("template parse failed")
)

// ValidationError — ошибка валидации с указанием места в документе.
type ValidationError struct {
	Reason   string // описание ошибки
	Location string // место ошибки: "jobs[1]", "jobs[0].steps[2]", ...
	Err      error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	if e.Location != "" {
		return e.Location + ": " + e.Reason
	}
	return e.Reason
}

// Unwrap возвращает базовую ошибку.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError создаёт новую ошибку валидации.
func NewValidationError(location, reason string, err error) *ValidationError {
	return &ValidationError{
		Reason:   reason,
		Location: location,
		Err:      err,
	}
}

func jobLocation(i int) string {
	return fmt.Sprintf("jobs[%d]", i)
}

func stepLocation(job, step int) string {
	return fmt.Sprintf("jobs[%d].steps[%d]", job, step)
}
