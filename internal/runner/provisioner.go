package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"

	"github.com/shaiso/Conveyor/internal/domain"
)

// ErrRunnerUnavailable — provisioner не может выделить runner.
var ErrRunnerUnavailable = errors.New("runner unavailable")

// Environment — выделенное окружение для выполнения job.
type Environment struct {
	// Runner — выделенный runner.
	Runner domain.RunnerDescriptor

	// WorkDir — рабочая директория job.
	WorkDir string

	release func() error
}

// Release освобождает окружение.
func (e *Environment) Release() error {
	if e.release == nil {
		return nil
	}
	return e.release()
}

// NewEnvironment создаёт Environment с функцией освобождения.
func NewEnvironment(runner domain.RunnerDescriptor, workDir string, release func() error) *Environment {
	return &Environment{Runner: runner, WorkDir: workDir, release: release}
}

// Provisioner выделяет окружение для job по дескриптору runner'а.
type Provisioner interface {
	Acquire(ctx context.Context, runsOn domain.RunnerDescriptor, jobID string) (*Environment, error)
}

// RunnerSet — набор runner'ов, которые обслуживает provisioner.
type RunnerSet interface {
	Has(r domain.RunnerDescriptor) bool
}

// LocalConfig — настройки LocalProvisioner.
type LocalConfig struct {
	// BaseDir — где создавать рабочие директории. Пусто — os.TempDir().
	BaseDir string

	// Runners — дескрипторы, которые обслуживает эта машина.
	// Nil — только дескриптор текущей платформы.
	Runners RunnerSet

	// KeepWorkspace — не удалять рабочую директорию после job.
	KeepWorkspace bool
}

// LocalProvisioner выполняет jobs на текущей машине во временной директории.
type LocalProvisioner struct {
	cfg LocalConfig
}

// NewLocalProvisioner создаёт LocalProvisioner.
func NewLocalProvisioner(cfg LocalConfig) *LocalProvisioner {
	if cfg.Runners == nil {
		cfg.Runners = hostRunner{HostRunner()}
	}
	return &LocalProvisioner{cfg: cfg}
}

// Acquire создаёт рабочую директорию для job.
func (p *LocalProvisioner) Acquire(ctx context.Context, runsOn domain.RunnerDescriptor, jobID string) (*Environment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !p.cfg.Runners.Has(runsOn) {
		return nil, fmt.Errorf("%w: %s is not served by this host", ErrRunnerUnavailable, runsOn)
	}

	if p.cfg.BaseDir != "" {
		if err := os.MkdirAll(p.cfg.BaseDir, 0o755); err != nil {
			return nil, fmt.Errorf("create work base: %w", err)
		}
	}
	dir, err := os.MkdirTemp(p.cfg.BaseDir, jobID+"-*")
	if err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}

	release := func() error { return os.RemoveAll(dir) }
	if p.cfg.KeepWorkspace {
		release = nil
	}
	return NewEnvironment(runsOn, dir, release), nil
}

// HostRunner возвращает дескриптор текущей платформы.
func HostRunner() domain.RunnerDescriptor {
	arch := runtime.GOARCH
	switch arch {
	case "amd64":
		arch = "x64"
	case "386":
		arch = "x86"
	}
	goos := runtime.GOOS
	if goos == "darwin" {
		goos = "macos"
	}
	return domain.RunnerDescriptor(goos + "-" + arch)
}

type hostRunner struct {
	runner domain.RunnerDescriptor
}

func (h hostRunner) Has(r domain.RunnerDescriptor) bool {
	return r == h.runner
}
