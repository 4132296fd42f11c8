package runner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Conveyor/internal/actions"
	"github.com/shaiso/Conveyor/internal/artifact"
	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/engine"
	"github.com/shaiso/Conveyor/internal/executor"
)

// fakeProvisioner выдаёт временную директорию или ошибку.
type fakeProvisioner struct {
	dir      string
	err      error
	released bool
}

func (p *fakeProvisioner) Acquire(context.Context, domain.RunnerDescriptor, string) (*Environment, error) {
	if p.err != nil {
		return nil, p.err
	}
	return NewEnvironment(domain.RunnerLinuxX64, p.dir, func() error {
		p.released = true
		return nil
	}), nil
}

// scriptedSteps — StepExecutor, результат шага задаётся по индексу.
type scriptedSteps struct {
	mu      sync.Mutex
	calls   []int
	fail    map[int]bool
	onStep  func(i int)
	lastCtx context.Context
}

func (s *scriptedSteps) Execute(ctx context.Context, step *domain.Step, sc *executor.StepContext) domain.StepOutcome {
	s.mu.Lock()
	s.calls = append(s.calls, sc.Index)
	s.lastCtx = ctx
	s.mu.Unlock()

	if s.onStep != nil {
		s.onStep(sc.Index)
	}
	if s.fail[sc.Index] {
		return domain.StepOutcome{Index: sc.Index, Name: step.DisplayName(), ExitCode: 1, Detail: "exit status 1"}
	}
	return domain.StepOutcome{Index: sc.Index, Name: step.DisplayName(), Succeeded: true}
}

// recordingCollector считает записи артефактов.
type recordingCollector struct {
	mu      sync.Mutex
	records []string
	err     error
}

func (c *recordingCollector) Record(_ context.Context, jobID, name, path string) (domain.Artifact, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return domain.Artifact{}, c.err
	}
	c.records = append(c.records, jobID+"/"+name)
	return domain.Artifact{JobID: jobID, Name: name, Path: path}, nil
}

func buildJob() (*domain.Workflow, *domain.Job) {
	wf := &domain.Workflow{
		Name: "ci",
		Jobs: []domain.Job{{
			ID:     "build-linux",
			RunsOn: domain.RunnerLinuxX64,
			Steps: []domain.Step{
				{Uses: "checkout"},
				{Uses: "setup-go"},
				{Run: "go build", Artifact: &domain.ArtifactDecl{Name: "bin", Path: "conveyor"}},
				{Run: "go vet", Artifact: &domain.ArtifactDecl{Name: "report", Path: "/abs/report.txt"}},
			},
		}},
	}
	return wf, &wf.Jobs[0]
}

func TestRun_Success(t *testing.T) {
	prov := &fakeProvisioner{dir: "/work"}
	steps := &scriptedSteps{}
	rec := &recordingCollector{}
	r := New(Config{Provisioner: prov, Steps: steps})
	wf, job := buildJob()

	out := r.Run(context.Background(), Request{RunID: "r1", Workflow: wf, Job: job, Artifacts: rec})

	assert.Equal(t, domain.JobStatusSuccess, out.Status)
	assert.Nil(t, out.FailedStep)
	assert.Equal(t, []int{0, 1, 2, 3}, steps.calls)
	assert.Len(t, out.Steps, 4)
	assert.NotNil(t, out.StartedAt)
	assert.NotNil(t, out.FinishedAt)

	assert.Equal(t, []string{"build-linux/bin", "build-linux/report"}, rec.records)
	require.Len(t, out.Artifacts, 2)
	assert.Equal(t, filepath.Join("/work", "conveyor"), out.Artifacts[0].Path)
	assert.Equal(t, "/abs/report.txt", out.Artifacts[1].Path)
	assert.True(t, prov.released)
}

func TestRun_StopsAtFirstFailure(t *testing.T) {
	steps := &scriptedSteps{fail: map[int]bool{1: true}}
	rec := &recordingCollector{}
	r := New(Config{Provisioner: &fakeProvisioner{dir: "/work"}, Steps: steps})
	wf, job := buildJob()

	out := r.Run(context.Background(), Request{Workflow: wf, Job: job, Artifacts: rec})

	assert.Equal(t, domain.JobStatusFailed, out.Status)
	require.NotNil(t, out.FailedStep)
	assert.Equal(t, 1, *out.FailedStep)
	assert.Equal(t, []int{0, 1}, steps.calls, "no step after the failing one runs")
	assert.Contains(t, out.Detail, "exit status 1")
	assert.Empty(t, rec.records, "no artifacts for a failed job")
	assert.Empty(t, out.Artifacts)
}

func TestRun_ProvisioningFailure(t *testing.T) {
	steps := &scriptedSteps{}
	r := New(Config{Provisioner: &fakeProvisioner{err: ErrRunnerUnavailable}, Steps: steps})
	wf, job := buildJob()

	out := r.Run(context.Background(), Request{Workflow: wf, Job: job})

	assert.Equal(t, domain.JobStatusFailed, out.Status)
	require.NotNil(t, out.FailedStep)
	assert.Equal(t, -1, *out.FailedStep)
	assert.Empty(t, steps.calls)
}

func TestRun_CancelBetweenSteps(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	steps := &scriptedSteps{onStep: func(i int) {
		if i == 1 {
			cancel()
		}
	}}
	rec := &recordingCollector{}
	r := New(Config{Provisioner: &fakeProvisioner{dir: "/work"}, Steps: steps})
	wf, job := buildJob()

	out := r.Run(ctx, Request{Workflow: wf, Job: job, Artifacts: rec})

	assert.Equal(t, domain.JobStatusCancelled, out.Status)
	assert.Equal(t, []int{0, 1}, steps.calls, "current step completes, next does not start")
	assert.Len(t, out.Steps, 2)
	assert.True(t, out.Steps[1].Succeeded)
	assert.Empty(t, rec.records)

	assert.NoError(t, steps.lastCtx.Err(), "steps run with a non-cancellable context")
}

func TestRun_StorageErrorIsWarning(t *testing.T) {
	rec := &recordingCollector{err: &artifact.StorageError{JobID: "build-linux", Name: "bin", Err: errors.New("disk full")}}
	r := New(Config{Provisioner: &fakeProvisioner{dir: "/work"}, Steps: &scriptedSteps{}})
	wf, job := buildJob()

	out := r.Run(context.Background(), Request{Workflow: wf, Job: job, Artifacts: rec})

	assert.Equal(t, domain.JobStatusSuccess, out.Status)
	assert.Len(t, out.Warnings, 2)
	assert.Contains(t, out.Warnings[0], "disk full")
	assert.Empty(t, out.Artifacts)
}

func TestRun_OutputsFlowBetweenSteps(t *testing.T) {
	reg := actions.NewRegistry()
	reg.Register(actions.NewExportAction())
	exec := executor.New(executor.Config{Actions: reg})
	r := New(Config{Provisioner: &fakeProvisioner{dir: t.TempDir()}, Steps: exec})

	wf := &domain.Workflow{
		Name: "ci",
		Jobs: []domain.Job{{
			ID:     "vars",
			RunsOn: domain.RunnerLinuxX64,
			Steps: []domain.Step{
				{ID: "first", Uses: "export", With: map[string]string{"TOOLCHAIN": "/opt/go"}},
				{ID: "second", Uses: "export", With: map[string]string{
					"BIN": "{{ .Steps.first.Outputs.TOOLCHAIN }}/bin",
					"ENV": "{{ .Env.TOOLCHAIN }}",
				}},
			},
		}},
	}

	out := r.Run(context.Background(), Request{Workflow: wf, Job: &wf.Jobs[0]})

	require.Equal(t, domain.JobStatusSuccess, out.Status)
	assert.Equal(t, "/opt/go/bin", out.Steps[1].Outputs["BIN"])
	assert.Equal(t, "/opt/go", out.Steps[1].Outputs["ENV"])
}

func TestLocalProvisioner(t *testing.T) {
	base := t.TempDir()
	p := NewLocalProvisioner(LocalConfig{
		BaseDir: base,
		Runners: engine.NewRunnerSet(domain.RunnerLinuxX64),
	})

	env, err := p.Acquire(context.Background(), domain.RunnerLinuxX64, "build")
	require.NoError(t, err)
	assert.DirExists(t, env.WorkDir)
	assert.Equal(t, base, filepath.Dir(env.WorkDir))

	require.NoError(t, env.Release())
	_, err = os.Stat(env.WorkDir)
	assert.True(t, os.IsNotExist(err))

	_, err = p.Acquire(context.Background(), domain.RunnerWindowsX86, "build")
	assert.ErrorIs(t, err, ErrRunnerUnavailable)
}

func TestLocalProvisioner_KeepWorkspace(t *testing.T) {
	p := NewLocalProvisioner(LocalConfig{BaseDir: t.TempDir(), KeepWorkspace: true})

	env, err := p.Acquire(context.Background(), HostRunner(), "lint")
	require.NoError(t, err)
	require.NoError(t, env.Release())
	assert.DirExists(t, env.WorkDir)
}
