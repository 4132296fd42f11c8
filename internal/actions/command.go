package actions

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"sort"
	"time"
)

// Command — команда для запуска через CommandRunner.
type Command struct {
	// Shell — интерпретатор: sh, bash, pwsh, cmd.
	Shell string

	// Script — текст команды.
	Script string

	// WorkDir — рабочая директория процесса.
	WorkDir string

	// Env — переменные окружения поверх окружения процесса.
	Env map[string]string

	// Output — если не nil, вывод дублируется сюда во время выполнения.
	Output io.Writer
}

// CommandRunner запускает shell-команды.
type CommandRunner interface {
	// Run выполняет команду и возвращает её вывод и код завершения.
	// Ненулевой код завершения не является ошибкой. Ошибка возвращается,
	// если процесс не удалось запустить или ctx завершился раньше процесса.
	Run(ctx context.Context, cmd *Command) (stdout, stderr string, exitCode int, err error)
}

// ShellRunner реализует CommandRunner через os/exec.
type ShellRunner struct {
	// WaitDelay — сколько ждать закрытия pipe'ов после завершения процесса.
	WaitDelay time.Duration
}

// DefaultShell возвращает интерпретатор по умолчанию для текущей ОС.
func DefaultShell() string {
	if runtime.GOOS == "windows" {
		return "cmd"
	}
	return "sh"
}

// Run выполняет команду в выбранном интерпретаторе.
func (r *ShellRunner) Run(ctx context.Context, c *Command) (stdout, stderr string, exitCode int, err error) {
	name, args, err := shellArgs(c.Shell, c.Script)
	if err != nil {
		return "", "", -1, err
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = c.WorkDir
	cmd.Env = mergeEnviron(os.Environ(), c.Env)
	cmd.WaitDelay = r.WaitDelay
	if cmd.WaitDelay == 0 {
		cmd.WaitDelay = 5 * time.Second
	}

	var outBuf, errBuf bytes.Buffer
	if c.Output != nil {
		cmd.Stdout = io.MultiWriter(&outBuf, c.Output)
		cmd.Stderr = io.MultiWriter(&errBuf, c.Output)
	} else {
		cmd.Stdout = &outBuf
		cmd.Stderr = &errBuf
	}

	err = cmd.Run()
	stdout = outBuf.String()
	stderr = errBuf.String()

	if ctx.Err() != nil {
		return stdout, stderr, -1, fmt.Errorf("%w: %v", ErrActionCancelled, ctx.Err())
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return stdout, stderr, exitErr.ExitCode(), nil
		}
		return stdout, stderr, -1, fmt.Errorf("start %s: %w", name, err)
	}

	return stdout, stderr, 0, nil
}

// shellArgs возвращает программу и аргументы для интерпретатора.
func shellArgs(shell, script string) (string, []string, error) {
	if shell == "" {
		shell = DefaultShell()
	}
	switch shell {
	case "sh":
		return "sh", []string{"-e", "-c", script}, nil
	case "bash":
		return "bash", []string{"--noprofile", "--norc", "-eo", "pipefail", "-c", script}, nil
	case "pwsh", "powershell":
		return shell, []string{"-NoProfile", "-NonInteractive", "-Command", script}, nil
	case "cmd":
		return "cmd", []string{"/D", "/S", "/C", script}, nil
	default:
		return "", nil, fmt.Errorf("%w: unsupported shell %q", ErrInvalidInput, shell)
	}
}

// mergeEnviron добавляет env к base в стабильном порядке.
// Более поздние значения переопределяют более ранние.
func mergeEnviron(base []string, env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	result := make([]string, 0, len(base)+len(keys))
	result = append(result, base...)
	for _, k := range keys {
		result = append(result, k+"="+env[k])
	}
	return result
}

var _ CommandRunner = (*ShellRunner)(nil)
