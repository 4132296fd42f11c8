package engine

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/shaiso/Conveyor/internal/domain"
)

// ActionCatalog — каталог зарегистрированных actions.
//
// Реализуется actions.Registry. Nil каталог отключает проверку uses.
type ActionCatalog interface {
	Has(name string) bool
}

// Parser разбирает и валидирует определения workflow.
type Parser struct {
	runners RunnerSet
	actions ActionCatalog
}

// NewParser создаёт парсер с набором runner'ов и каталогом actions.
func NewParser(runners RunnerSet, actions ActionCatalog) *Parser {
	if runners.known == nil {
		runners = NewRunnerSet()
	}
	return &Parser{
		runners: runners,
		actions: actions,
	}
}

// Parse разбирает документ (YAML или JSON) и валидирует workflow.
//
// Неизвестные поля отклоняются. При любой ошибке возвращается
// *ValidationError и nil workflow.
func (p *Parser) Parse(raw []byte) (*domain.Workflow, error) {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)

	var wf domain.Workflow
	if err := dec.Decode(&wf); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, NewValidationError("", "workflow has no jobs", ErrNoJobs)
		}
		return nil, NewValidationError("", err.Error(), ErrMalformedDefinition)
	}

	if err := p.Validate(&wf); err != nil {
		return nil, err
	}
	return &wf, nil
}

// ParseFile читает файл и вызывает Parse.
func (p *Parser) ParseFile(path string) (*domain.Workflow, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow: %w", err)
	}
	return p.Parse(raw)
}

// Validate выполняет полную валидацию Workflow.
//
// Проверяет:
// - Наличие jobs
// - Непустые и уникальные ID jobs
// - Известные runner'ы
// - Наличие шагов и непустые команды
// - Артефакты, события, расписания и таймауты
func (p *Parser) Validate(wf *domain.Workflow) error {
	if wf == nil || len(wf.Jobs) == 0 {
		return NewValidationError("jobs", "workflow has no jobs", ErrNoJobs)
	}

	if err := validateTriggers(wf); err != nil {
		return err
	}

	if wf.Defaults != nil && wf.Defaults.TimeoutSec < 0 {
		return NewValidationError("defaults.timeout_sec",
			fmt.Sprintf("negative timeout: %d", wf.Defaults.TimeoutSec), ErrInvalidTimeout)
	}

	jobIDs := make(map[string]int, len(wf.Jobs))
	for i := range wf.Jobs {
		job := &wf.Jobs[i]

		if job.ID == "" {
			return NewValidationError(jobLocation(i), "job has empty ID", ErrEmptyJobID)
		}
		if first, ok := jobIDs[job.ID]; ok {
			return NewValidationError(jobLocation(i),
				fmt.Sprintf("duplicate job ID %q (first declared at %s)", job.ID, jobLocation(first)),
				ErrDuplicateJobID)
		}
		jobIDs[job.ID] = i

		if err := p.validateJob(i, job); err != nil {
			return err
		}
	}

	return nil
}

// validateJob валидирует один job и его шаги.
func (p *Parser) validateJob(i int, job *domain.Job) error {
	loc := jobLocation(i)

	if !p.runners.Has(job.RunsOn) {
		return NewValidationError(loc+".runs_on",
			fmt.Sprintf("unknown runner %q", job.RunsOn), ErrUnknownRunner)
	}
	if job.TimeoutSec < 0 {
		return NewValidationError(loc+".timeout_sec",
			fmt.Sprintf("negative timeout: %d", job.TimeoutSec), ErrInvalidTimeout)
	}
	if len(job.Steps) == 0 {
		return NewValidationError(loc, fmt.Sprintf("job %s has no steps", job.ID), ErrNoSteps)
	}

	stepIDs := make(map[string]bool)
	artifacts := make(map[string]bool)

	for j := range job.Steps {
		step := &job.Steps[j]
		sloc := stepLocation(i, j)

		if err := p.validateStep(sloc, step); err != nil {
			return err
		}

		if step.ID != "" {
			if stepIDs[step.ID] {
				return NewValidationError(sloc,
					fmt.Sprintf("duplicate step ID: %s", step.ID), ErrDuplicateStepID)
			}
			stepIDs[step.ID] = true
		}

		if a := step.Artifact; a != nil {
			if a.Name == "" || a.Path == "" {
				return NewValidationError(sloc+".artifact",
					"artifact requires name and path", ErrInvalidArtifact)
			}
			if artifacts[a.Name] {
				return NewValidationError(sloc+".artifact",
					fmt.Sprintf("duplicate artifact name: %s", a.Name), ErrInvalidArtifact)
			}
			artifacts[a.Name] = true
		}
	}

	return nil
}

// validateStep проверяет команду и таймаут шага.
func (p *Parser) validateStep(loc string, step *domain.Step) error {
	switch {
	case step.Uses != "" && step.Run != "":
		return NewValidationError(loc, "step sets both uses and run", ErrAmbiguousStep)
	case step.Uses == "" && step.Run == "":
		return NewValidationError(loc, "step has empty command", ErrEmptyCommand)
	}

	if step.Uses != "" && p.actions != nil && !p.actions.Has(step.Uses) {
		return NewValidationError(loc+".uses",
			fmt.Sprintf("unknown action: %s", step.Uses), ErrUnknownAction)
	}

	if step.TimeoutSec < 0 {
		return NewValidationError(loc+".timeout_sec",
			fmt.Sprintf("negative timeout: %d", step.TimeoutSec), ErrInvalidTimeout)
	}

	return nil
}

// validateTriggers проверяет события и cron-выражения.
func validateTriggers(wf *domain.Workflow) error {
	for i, e := range wf.On {
		if !e.IsKnown() {
			return NewValidationError(fmt.Sprintf("on[%d]", i),
				fmt.Sprintf("unknown event %q", e), ErrUnknownEvent)
		}
	}

	for i, expr := range wf.Schedules {
		if _, err := cron.ParseStandard(expr); err != nil {
			return NewValidationError(fmt.Sprintf("schedules[%d]", i),
				fmt.Sprintf("invalid cron expression %q: %v", expr, err), ErrInvalidSchedule)
		}
	}

	if len(wf.Schedules) > 0 && !wf.HasTrigger(domain.EventSchedule) {
		return NewValidationError("schedules",
			"schedules require the schedule event in on", ErrInvalidSchedule)
	}

	return nil
}
