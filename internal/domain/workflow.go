package domain

// Workflow — определение workflow: набор независимых jobs.
//
// Workflow — это "программа" для Conveyor. Jobs не зависят друг от друга
// и выполняются параллельно, шаги внутри job — строго по порядку.
type Workflow struct {
	// Name — имя workflow (например, "ci").
	Name string `yaml:"name" json:"name"`

	// On — события, которые запускают workflow (push, pull_request, ...).
	// Проверяются вызывающей стороной, а не оркестратором.
	On []Event `yaml:"on,omitempty" json:"on,omitempty"`

	// Schedules — cron-выражения для события schedule.
	// Формат: "минуты часы дни месяцы дни_недели".
	Schedules []string `yaml:"schedules,omitempty" json:"schedules,omitempty"`

	// Env — переменные окружения для всех jobs.
	Env map[string]string `yaml:"env,omitempty" json:"env,omitempty"`

	// Defaults — настройки по умолчанию для всех шагов.
	Defaults *Defaults `yaml:"defaults,omitempty" json:"defaults,omitempty"`

	// Jobs — jobs в порядке объявления.
	Jobs []Job `yaml:"jobs" json:"jobs"`
}

// Defaults — настройки по умолчанию для шагов.
type Defaults struct {
	// TimeoutSec — таймаут шага в секундах. 0 — без ограничения.
	TimeoutSec int `yaml:"timeout_sec,omitempty" json:"timeout_sec,omitempty"`
}

// Job — независимая единица работы, выполняемая на одном runner'е.
type Job struct {
	// ID — уникальный в рамках workflow идентификатор (например, "build-linux").
	ID string `yaml:"id" json:"id"`

	// Name — человекочитаемое имя.
	Name string `yaml:"name,omitempty" json:"name,omitempty"`

	// RunsOn — требуемый runner (ОС/архитектура).
	RunsOn RunnerDescriptor `yaml:"runs_on" json:"runs_on"`

	// Env — переменные окружения job. Переопределяют Workflow.Env.
	Env map[string]string `yaml:"env,omitempty" json:"env,omitempty"`

	// TimeoutSec — таймаут шагов job. Переопределяет defaults.timeout_sec.
	TimeoutSec int `yaml:"timeout_sec,omitempty" json:"timeout_sec,omitempty"`

	// Steps — шаги в порядке выполнения.
	Steps []Step `yaml:"steps" json:"steps"`
}

// Step — один шаг job.
//
// Шаг либо вызывает action по имени (Uses), либо выполняет shell-команду (Run).
// Оба варианта выполняются одинаково: "вызвать action с inputs".
type Step struct {
	// ID — идентификатор шага для ссылок из шаблонов: {{ .Steps.setup.Outputs.path }}.
	ID string `yaml:"id,omitempty" json:"id,omitempty"`

	// Name — человекочитаемое имя шага.
	Name string `yaml:"name,omitempty" json:"name,omitempty"`

	// Uses — имя action (checkout, setup-go, export, ...).
	Uses string `yaml:"uses,omitempty" json:"uses,omitempty"`

	// Run — shell-команда. Сокращение для uses: run, with: {command: ...}.
	Run string `yaml:"run,omitempty" json:"run,omitempty"`

	// With — именованные inputs action.
	With map[string]string `yaml:"with,omitempty" json:"with,omitempty"`

	// Env — переменные окружения шага.
	Env map[string]string `yaml:"env,omitempty" json:"env,omitempty"`

	// TimeoutSec — таймаут шага. Превышение равносильно ошибке.
	TimeoutSec int `yaml:"timeout_sec,omitempty" json:"timeout_sec,omitempty"`

	// Artifact — артефакт, публикуемый при успехе job.
	Artifact *ArtifactDecl `yaml:"artifact,omitempty" json:"artifact,omitempty"`
}

// ActionRun — имя встроенного action для shell-команд.
const ActionRun = "run"

// Action возвращает имя action, которое выполняет шаг.
func (s *Step) Action() string {
	if s.Run != "" {
		return ActionRun
	}
	return s.Uses
}

// DisplayName возвращает имя шага для логов и отчётов.
func (s *Step) DisplayName() string {
	switch {
	case s.Name != "":
		return s.Name
	case s.ID != "":
		return s.ID
	case s.Run != "":
		return s.Run
	default:
		return s.Uses
	}
}

// ArtifactDecl — объявление артефакта шага.
type ArtifactDecl struct {
	// Name — имя артефакта (например, "conveyor-linux-x64").
	Name string `yaml:"name" json:"name"`

	// Path — путь или glob относительно рабочей директории job.
	Path string `yaml:"path" json:"path"`
}

// Artifacts возвращает объявленные артефакты job в порядке шагов.
func (j *Job) Artifacts() []ArtifactDecl {
	var decls []ArtifactDecl
	for i := range j.Steps {
		if a := j.Steps[i].Artifact; a != nil {
			decls = append(decls, *a)
		}
	}
	return decls
}

// JobIDs возвращает идентификаторы jobs в порядке объявления.
func (w *Workflow) JobIDs() []string {
	ids := make([]string, len(w.Jobs))
	for i := range w.Jobs {
		ids[i] = w.Jobs[i].ID
	}
	return ids
}

// HasTrigger возвращает true, если workflow подписан на событие.
func (w *Workflow) HasTrigger(event Event) bool {
	for _, e := range w.On {
		if e == event {
			return true
		}
	}
	return false
}
