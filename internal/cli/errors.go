package cli

import (
	"errors"
	"fmt"
)

// Коды завершения CLI.
const (
	ExitOK         = 0
	ExitFailed     = 1
	ExitValidation = 2
	ExitInternal   = 3
)

// ExitError — ошибка с кодом завершения процесса.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// exitWith оборачивает err в ExitError.
func exitWith(code int, err error) error {
	return &ExitError{Code: code, Err: err}
}

// ExitCode возвращает код завершения для ошибки команды.
// Ошибки без кода (неверные флаги, сеть) считаются внутренними.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitInternal
}

// Silent возвращает true, если ошибка уже описана выводом команды.
func Silent(err error) bool {
	var exitErr *ExitError
	return errors.As(err, &exitErr) && exitErr.Err == nil
}
