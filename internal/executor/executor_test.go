package executor

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Conveyor/internal/actions"
	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/engine"
)

// stubAction — action с заданным поведением.
type stubAction struct {
	name   string
	invoke func(ctx context.Context, req *actions.Request) (*actions.Result, error)
	last   *actions.Request
}

func (s *stubAction) Name() string { return s.name }

func (s *stubAction) Invoke(ctx context.Context, req *actions.Request) (*actions.Result, error) {
	s.last = req
	return s.invoke(ctx, req)
}

func newTestExecutor(t *testing.T, stubs ...*stubAction) (*Executor, *actions.Registry) {
	t.Helper()
	reg := actions.NewRegistry()
	for _, s := range stubs {
		reg.Register(s)
	}
	return New(Config{Actions: reg}), reg
}

func stepContext(wf *domain.Workflow, job *domain.Job) *StepContext {
	return &StepContext{
		RunID:    "run-1",
		Workflow: wf,
		Job:      job,
		WorkDir:  "/work",
		Template: engine.NewContext(wf.Name, engine.JobContext{ID: job.ID, RunsOn: job.RunsOn, WorkDir: "/work"}),
	}
}

func testWorkflow() (*domain.Workflow, *domain.Job) {
	wf := &domain.Workflow{
		Name: "ci",
		Env:  map[string]string{"LEVEL": "workflow", "WF": "1"},
		Jobs: []domain.Job{{
			ID:     "build-linux",
			RunsOn: domain.RunnerLinuxX64,
			Env:    map[string]string{"LEVEL": "job", "JOB": "1"},
		}},
	}
	return wf, &wf.Jobs[0]
}

func TestExecute_Success(t *testing.T) {
	stub := &stubAction{name: "setup-go", invoke: func(_ context.Context, req *actions.Request) (*actions.Result, error) {
		_, _ = io.WriteString(req.Output, "installed\n")
		return &actions.Result{Outputs: map[string]string{"path": "/opt/go"}, Env: map[string]string{"GOROOT": "/opt/go"}}, nil
	}}
	exec, _ := newTestExecutor(t, stub)
	wf, job := testWorkflow()

	sc := stepContext(wf, job)
	sc.Index = 1
	step := &domain.Step{ID: "setup", Uses: "setup-go", With: map[string]string{"version": "{{ .Job.RunsOn }}"}}

	out := exec.Execute(context.Background(), step, sc)

	assert.True(t, out.Succeeded)
	assert.Equal(t, 0, out.ExitCode)
	assert.Equal(t, 1, out.Index)
	assert.Equal(t, "setup", out.Name)
	assert.Equal(t, "setup-go", out.Action)
	assert.Equal(t, "/opt/go", out.Outputs["path"])
	assert.Equal(t, "/opt/go", out.Env["GOROOT"])
	assert.Empty(t, out.Detail)

	assert.Equal(t, "linux-x64", stub.last.Inputs["version"])
	assert.Equal(t, "/work", stub.last.WorkDir)
}

func TestExecute_RunStepUsesCommandInput(t *testing.T) {
	stub := &stubAction{name: actions.ActionRun, invoke: func(context.Context, *actions.Request) (*actions.Result, error) {
		return &actions.Result{}, nil
	}}
	exec, _ := newTestExecutor(t, stub)
	wf, job := testWorkflow()

	out := exec.Execute(context.Background(), &domain.Step{Run: "go build ./..."}, stepContext(wf, job))

	require.True(t, out.Succeeded)
	assert.Equal(t, "go build ./...", stub.last.Inputs["command"])
}

func TestExecute_EnvLayering(t *testing.T) {
	stub := &stubAction{name: "env", invoke: func(context.Context, *actions.Request) (*actions.Result, error) {
		return &actions.Result{}, nil
	}}
	exec, _ := newTestExecutor(t, stub)
	wf, job := testWorkflow()

	sc := stepContext(wf, job)
	sc.Template.MergeEnv(map[string]string{"LEVEL": "exported", "EXPORTED": "1"})
	step := &domain.Step{Uses: "env", Env: map[string]string{"STEP": "{{ .Job.ID }}"}}

	exec.Execute(context.Background(), step, sc)

	assert.Equal(t, map[string]string{
		"LEVEL":    "exported",
		"WF":       "1",
		"JOB":      "1",
		"EXPORTED": "1",
		"STEP":     "build-linux",
	}, stub.last.Env)

	step.Env["LEVEL"] = "step"
	exec.Execute(context.Background(), step, sc)
	assert.Equal(t, "step", stub.last.Env["LEVEL"])
}

func TestExecute_InputsSeeWorkflowAndJobEnv(t *testing.T) {
	stub := &stubAction{name: "env", invoke: func(context.Context, *actions.Request) (*actions.Result, error) {
		return &actions.Result{}, nil
	}}
	exec, _ := newTestExecutor(t, stub)
	wf, job := testWorkflow()

	sc := stepContext(wf, job)
	sc.Template.MergeEnv(map[string]string{"EXPORTED": "e"})
	step := &domain.Step{
		Uses: "env",
		With: map[string]string{
			"v":     "{{ .Env.WF }}-{{ .Env.JOB }}",
			"level": "{{ .Env.LEVEL }}",
			"all":   "{{ .Env.EXPORTED }}/{{ .Env.OWN }}",
		},
		Env: map[string]string{"OWN": "s", "DERIVED": "{{ .Env.LEVEL }}-{{ .Env.WF }}"},
	}

	out := exec.Execute(context.Background(), step, sc)

	require.True(t, out.Succeeded)
	assert.Equal(t, "1-1", stub.last.Inputs["v"])
	assert.Equal(t, "job", stub.last.Inputs["level"])
	assert.Equal(t, "e/s", stub.last.Inputs["all"])
	assert.Equal(t, "job-1", stub.last.Env["DERIVED"])

	// контекст job не меняется
	assert.Equal(t, map[string]string{"EXPORTED": "e"}, sc.Template.Env)
}

func TestTailBuffer_CutsOnRuneBoundary(t *testing.T) {
	tail := newTailBuffer(5)
	_, _ = tail.Write([]byte("ошибка"))

	got := tail.String()
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, "ка", got)

	assert.Equal(t, "ка", lastBytes("ошибка", 5))
	assert.Equal(t, "abc", lastBytes("abc", 5))
}

func TestExecute_Failures(t *testing.T) {
	tests := []struct {
		name       string
		invoke     func(ctx context.Context, req *actions.Request) (*actions.Result, error)
		exitCode   int
		detailPart string
	}{
		{
			name: "non-zero exit",
			invoke: func(_ context.Context, req *actions.Request) (*actions.Result, error) {
				_, _ = io.WriteString(req.Output, "compile error: x.go:1\n")
				return &actions.Result{ExitCode: 2}, nil
			},
			exitCode:   2,
			detailPart: "exit status 2\ncompile error: x.go:1",
		},
		{
			name: "infrastructure error",
			invoke: func(context.Context, *actions.Request) (*actions.Result, error) {
				return nil, errors.New("connection refused")
			},
			exitCode:   -1,
			detailPart: "connection refused",
		},
		{
			name: "nil result",
			invoke: func(context.Context, *actions.Request) (*actions.Result, error) {
				return nil, nil
			},
			exitCode:   -1,
			detailPart: "returned no result",
		},
		{
			name: "output only in result",
			invoke: func(context.Context, *actions.Request) (*actions.Result, error) {
				return &actions.Result{ExitCode: 1, Stderr: "lint: 3 issues"}, nil
			},
			exitCode:   1,
			detailPart: "lint: 3 issues",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec, _ := newTestExecutor(t, &stubAction{name: "act", invoke: tt.invoke})
			wf, job := testWorkflow()

			out := exec.Execute(context.Background(), &domain.Step{Uses: "act"}, stepContext(wf, job))

			assert.False(t, out.Succeeded)
			assert.False(t, out.TimedOut)
			assert.Equal(t, tt.exitCode, out.ExitCode)
			assert.Contains(t, out.Detail, tt.detailPart)
			assert.Nil(t, out.Outputs)
		})
	}
}

func TestExecute_UnknownAction(t *testing.T) {
	exec, _ := newTestExecutor(t)
	wf, job := testWorkflow()

	out := exec.Execute(context.Background(), &domain.Step{Uses: "checkout"}, stepContext(wf, job))

	assert.False(t, out.Succeeded)
	assert.Contains(t, out.Detail, "unknown action")
}

func TestExecute_RenderError(t *testing.T) {
	exec, _ := newTestExecutor(t, &stubAction{name: "act", invoke: func(context.Context, *actions.Request) (*actions.Result, error) {
		t.Fatal("action must not be invoked")
		return nil, nil
	}})
	wf, job := testWorkflow()

	out := exec.Execute(context.Background(),
		&domain.Step{Uses: "act", With: map[string]string{"x": "{{ .Steps.missing.Outputs.y }}"}},
		stepContext(wf, job))

	assert.False(t, out.Succeeded)
	assert.Contains(t, out.Detail, "render inputs")
}

func TestExecute_Timeout(t *testing.T) {
	blocking := &stubAction{name: "block", invoke: func(ctx context.Context, _ *actions.Request) (*actions.Result, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	exec, _ := newTestExecutor(t, blocking)
	wf, job := testWorkflow()

	start := time.Now()
	out := exec.Execute(context.Background(), &domain.Step{Uses: "block", TimeoutSec: 1}, stepContext(wf, job))

	assert.False(t, out.Succeeded)
	assert.True(t, out.TimedOut)
	assert.Equal(t, -1, out.ExitCode)
	assert.Contains(t, out.Detail, "timed out after 1s")
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestTimeout_Precedence(t *testing.T) {
	exec := New(Config{DefaultTimeout: time.Hour})

	wf := &domain.Workflow{Defaults: &domain.Defaults{TimeoutSec: 30}}
	job := &domain.Job{TimeoutSec: 20}
	step := &domain.Step{TimeoutSec: 10}

	assert.Equal(t, 10*time.Second, exec.Timeout(step, job, wf))
	assert.Equal(t, 20*time.Second, exec.Timeout(&domain.Step{}, job, wf))
	assert.Equal(t, 30*time.Second, exec.Timeout(&domain.Step{}, &domain.Job{}, wf))
	assert.Equal(t, time.Hour, exec.Timeout(&domain.Step{}, &domain.Job{}, &domain.Workflow{}))
	assert.Zero(t, New(Config{}).Timeout(&domain.Step{}, &domain.Job{}, &domain.Workflow{}))
}

func TestExecute_LogStore(t *testing.T) {
	stub := &stubAction{name: "act", invoke: func(_ context.Context, req *actions.Request) (*actions.Result, error) {
		_, _ = io.WriteString(req.Output, strings.Repeat("x", 100)+"END\n")
		return &actions.Result{ExitCode: 1}, nil
	}}
	reg := actions.NewRegistry()
	reg.Register(stub)
	exec := New(Config{Actions: reg, Logs: NewFileLogStore(t.TempDir()), TailBytes: 10})
	wf, job := testWorkflow()

	out := exec.Execute(context.Background(), &domain.Step{Name: "go test", Uses: "act"}, stepContext(wf, job))

	require.NotEmpty(t, out.LogRef)
	assert.True(t, strings.HasSuffix(out.LogRef, "00-go_test.log"))
	data, err := os.ReadFile(out.LogRef)
	require.NoError(t, err)
	assert.Len(t, data, 104)

	assert.Equal(t, "exit status 1\nxxxxxxEND", out.Detail)
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "go_build_._..._cmd", sanitize("go build ./... cmd"))
	assert.Equal(t, "step", sanitize("..."))
	assert.Equal(t, "step", sanitize("***"))
	assert.Len(t, sanitize(strings.Repeat("a", 200)), 64)
}
