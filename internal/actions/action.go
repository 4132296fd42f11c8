package actions

import (
	"context"
	"errors"
	"io"
	"strconv"
)

// Ошибки actions.
var (
	// ErrUnknownAction — action не найден в реестре.
	ErrUnknownAction = errors.New("unknown action")

	// ErrInvalidInput — невалидные inputs action.
	ErrInvalidInput = errors.New("invalid action input")

	// ErrActionCancelled — выполнение action отменено или превысило таймаут.
	ErrActionCancelled = errors.New("action cancelled")

	// ErrRemoteStatus — удалённый action вернул HTTP статус >= 400.
	ErrRemoteStatus = errors.New("remote action returned error status")
)

// Action — внешнее действие, вызываемое шагом по имени.
type Action interface {
	// Name возвращает имя action (значение uses).
	Name() string

	// Invoke выполняет action.
	// Action должен проверять ctx.Done(): таймаут шага передаётся через ctx.
	Invoke(ctx context.Context, req *Request) (*Result, error)
}

// Request — входные данные для вызова action.
type Request struct {
	// Step — имя шага для логов.
	Step string

	// Inputs — отрендеренные inputs шага (with, command для run).
	Inputs map[string]string

	// Env — итоговое окружение шага.
	Env map[string]string

	// WorkDir — рабочая директория job.
	WorkDir string

	// Output — если не nil, action пишет сюда вывод по мере выполнения.
	Output io.Writer
}

// Input возвращает значение input или def, если input не задан.
func (r *Request) Input(key, def string) string {
	if v, ok := r.Inputs[key]; ok && v != "" {
		return v
	}
	return def
}

// InputInt возвращает числовой input.
func (r *Request) InputInt(key string, def int) (int, error) {
	v, ok := r.Inputs[key]
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.Join(ErrInvalidInput, err)
	}
	return n, nil
}

// Result — результат вызова action.
type Result struct {
	// ExitCode — код завершения. 0 — успех.
	ExitCode int

	// Stdout — стандартный вывод.
	Stdout string

	// Stderr — вывод ошибок.
	Stderr string

	// Outputs — выходные данные, доступны следующим шагам
	// через {{ .Steps.stepID.Outputs.field }}.
	Outputs map[string]string

	// Env — переменные окружения для следующих шагов.
	Env map[string]string
}

// Succeeded возвращает true при нулевом коде завершения.
func (r *Result) Succeeded() bool {
	return r.ExitCode == 0
}

// NewResult создаёт успешный Result с outputs.
func NewResult(outputs map[string]string) *Result {
	if outputs == nil {
		outputs = make(map[string]string)
	}
	return &Result{Outputs: outputs}
}
