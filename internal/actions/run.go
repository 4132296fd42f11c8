package actions

import (
	"bufio"
	"context"
	"fmt"
	"maps"
	"os"
	"strings"
)

const (
	// ActionRun — имя встроенного shell action.
	ActionRun = "run"

	// Переменные с путями к файлам outputs и env.
	EnvOutputFile = "CONVEYOR_OUTPUT"
	EnvExportFile = "CONVEYOR_ENV"

	inputCommand = "command"
	inputShell   = "shell"
)

// RunAction — action для shell-команд.
//
// Inputs:
//
//	command: go build ./...   # обязательный
//	shell:   bash             # sh (по умолчанию), bash, pwsh, cmd
//
// Outputs: строки key=value из файла $CONVEYOR_OUTPUT.
// Env: строки key=value из файла $CONVEYOR_ENV.
type RunAction struct {
	runner CommandRunner
	shell  string
}

// NewRunAction создаёт RunAction с указанным CommandRunner.
func NewRunAction(runner CommandRunner) *RunAction {
	return &RunAction{runner: runner}
}

// WithShell задаёт shell по умолчанию, если шаг не указал свой.
func (a *RunAction) WithShell(shell string) *RunAction {
	a.shell = shell
	return a
}

// Name возвращает имя action.
func (a *RunAction) Name() string {
	return ActionRun
}

// Invoke выполняет команду.
func (a *RunAction) Invoke(ctx context.Context, req *Request) (*Result, error) {
	script := req.Inputs[inputCommand]
	if strings.TrimSpace(script) == "" {
		return nil, fmt.Errorf("%w: %s: command is required", ErrInvalidInput, ActionRun)
	}

	outputFile, err := createExchangeFile("conveyor-output-*")
	if err != nil {
		return nil, err
	}
	defer os.Remove(outputFile)

	exportFile, err := createExchangeFile("conveyor-env-*")
	if err != nil {
		return nil, err
	}
	defer os.Remove(exportFile)

	env := make(map[string]string, len(req.Env)+2)
	maps.Copy(env, req.Env)
	env[EnvOutputFile] = outputFile
	env[EnvExportFile] = exportFile

	shell := req.Input(inputShell, a.shell)

	stdout, stderr, code, err := a.runner.Run(ctx, &Command{
		Shell:   shell,
		Script:  script,
		WorkDir: req.WorkDir,
		Env:     env,
		Output:  req.Output,
	})
	result := &Result{
		ExitCode: code,
		Stdout:   stdout,
		Stderr:   stderr,
	}
	if err != nil {
		return result, err
	}

	if result.Outputs, err = readKeyValueFile(outputFile); err != nil {
		return result, fmt.Errorf("read outputs: %w", err)
	}
	if result.Env, err = readKeyValueFile(exportFile); err != nil {
		return result, fmt.Errorf("read env: %w", err)
	}

	return result, nil
}

func createExchangeFile(pattern string) (string, error) {
	f, err := os.CreateTemp("", pattern)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", pattern, err)
	}
	name := f.Name()
	if err := f.Close(); err != nil {
		return "", err
	}
	return name, nil
}

// readKeyValueFile читает строки key=value. Пустые строки и комментарии
// пропускаются, повторный ключ переопределяет предыдущий.
func readKeyValueFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("%w: malformed line %q", ErrInvalidInput, line)
		}
		values[strings.TrimSpace(key)] = value
	}
	return values, scanner.Err()
}
