package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"strings"
	"text/template"

	"github.com/shaiso/Conveyor/internal/domain"
)

// Context — контекст выполнения job для рендеринга шаблонов.
//
// Используется в Go templates для доступа к данным:
//   - {{ .Env.VAR_NAME }}
//   - {{ .Steps.step_id.Outputs.field }}
//   - {{ .Job.ID }}, {{ .Job.RunsOn }}, {{ .Job.WorkDir }}
//   - {{ .Workflow }}
//
// Context принадлежит одному job и изменяется только его шагами,
// которые выполняются последовательно.
type Context struct {
	// Workflow — имя workflow.
	Workflow string `json:"workflow"`

	// Job — данные текущего job.
	Job JobContext `json:"job"`

	// Env — переменные окружения, экспортированные предыдущими шагами.
	// При рендеринге шага сюда подставляется полное окружение шага.
	Env map[string]string `json:"env"`

	// Steps — результаты выполненных шагов с ID.
	Steps map[string]*StepContext `json:"steps"`
}

// JobContext — данные job, доступные в шаблонах.
type JobContext struct {
	ID      string                  `json:"id"`
	RunsOn  domain.RunnerDescriptor `json:"runs_on"`
	WorkDir string                  `json:"work_dir"`
}

// StepContext — результат выполнения шага для использования в шаблонах.
type StepContext struct {
	// Outputs — выходные данные шага.
	Outputs map[string]string `json:"outputs"`

	// Status — "SUCCESS" или "FAILED".
	Status string `json:"status"`
}

// NewContext создаёт контекст для job.
func NewContext(workflow string, job JobContext) *Context {
	return &Context{
		Workflow: workflow,
		Job:      job,
		Env:      make(map[string]string),
		Steps:    make(map[string]*StepContext),
	}
}

// AddStepResult добавляет результат выполнения шага в контекст.
func (c *Context) AddStepResult(stepID string, outputs map[string]string, succeeded bool) {
	if outputs == nil {
		outputs = make(map[string]string)
	}
	status := string(domain.JobStatusSuccess)
	if !succeeded {
		status = string(domain.JobStatusFailed)
	}
	c.Steps[stepID] = &StepContext{
		Outputs: outputs,
		Status:  status,
	}
}

// MergeEnv добавляет экспортированные переменные в контекст.
func (c *Context) MergeEnv(env map[string]string) {
	maps.Copy(c.Env, env)
}

// templateFuncs — дополнительные функции для шаблонов.
var templateFuncs = template.FuncMap{
	// toJSON — сериализует значение в JSON строку
	"toJSON": func(v any) string {
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	},

	// default — возвращает значение по умолчанию, если второй аргумент пустой
	"default": func(def, val string) string {
		if val == "" {
			return def
		}
		return val
	},

	// coalesce — возвращает первое непустое значение
	"coalesce": func(values ...string) string {
		for _, v := range values {
			if v != "" {
				return v
			}
		}
		return ""
	},

	"join":      func(sep string, items []string) string { return strings.Join(items, sep) },
	"split":     func(sep, s string) []string { return strings.Split(s, sep) },
	"contains":  strings.Contains,
	"hasPrefix": strings.HasPrefix,
	"hasSuffix": strings.HasSuffix,
	"lower":     strings.ToLower,
	"upper":     strings.ToUpper,
	"trim":      strings.TrimSpace,
	"replace":   strings.ReplaceAll,
}

// Render рендерит строковый шаблон с контекстом.
//
//	{{ .Env.GOOS }}
//	{{ .Steps.setup.Outputs.path }}
//	{{ default "release" .Env.PROFILE }}
func Render(tmpl string, ctx *Context) (string, error) {
	if !strings.Contains(tmpl, "{{") {
		return tmpl, nil
	}

	t, err := template.New("").Funcs(templateFuncs).Option("missingkey=zero").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTemplateParse, err)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, ctx); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTemplateRender, err)
	}

	return buf.String(), nil
}

// RenderMap рендерит все значения map. Ошибка содержит ключ.
func RenderMap(values map[string]string, ctx *Context) (map[string]string, error) {
	result := make(map[string]string, len(values))
	for key, val := range values {
		rendered, err := Render(val, ctx)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		result[key] = rendered
	}
	return result, nil
}

// RenderInputs рендерит inputs шага.
//
// Для шага с run команда становится input "command".
func RenderInputs(step *domain.Step, ctx *Context) (map[string]string, error) {
	inputs := make(map[string]string, len(step.With)+1)
	maps.Copy(inputs, step.With)
	if step.Run != "" {
		inputs["command"] = step.Run
	}
	return RenderMap(inputs, ctx)
}

