package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Conveyor/internal/domain"
)

func testContext() *Context {
	ctx := NewContext("ci", JobContext{ID: "build-linux", RunsOn: domain.RunnerLinuxX64, WorkDir: "/tmp/w"})
	ctx.MergeEnv(map[string]string{"GOOS": "linux"})
	ctx.AddStepResult("setup", map[string]string{"path": "/opt/go/bin"}, true)
	return ctx
}

func TestRender(t *testing.T) {
	ctx := testContext()

	tests := []struct {
		name     string
		template string
		expected string
	}{
		{"plain text", "go build ./...", "go build ./..."},
		{"env", "GOOS={{ .Env.GOOS }}", "GOOS=linux"},
		{"step output", "{{ .Steps.setup.Outputs.path }}/go", "/opt/go/bin/go"},
		{"step status", "{{ .Steps.setup.Status }}", "SUCCESS"},
		{"job", "{{ .Job.ID }}@{{ .Job.RunsOn }}", "build-linux@linux-x64"},
		{"workflow", "{{ .Workflow }}", "ci"},
		{"missing env", "[{{ .Env.NOPE }}]", "[]"},
		{"default", `{{ default "release" .Env.PROFILE }}`, "release"},
		{"upper", "{{ upper .Env.GOOS }}", "LINUX"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Render(tt.template, ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestRender_Errors(t *testing.T) {
	_, err := Render("{{ .Env.GOOS", testContext())
	assert.ErrorIs(t, err, ErrTemplateParse)

	_, err = Render("{{ .Steps.unknown.Outputs.path }}", testContext())
	assert.ErrorIs(t, err, ErrTemplateRender)
}

func TestRenderInputs(t *testing.T) {
	step := &domain.Step{
		Run:  "{{ .Steps.setup.Outputs.path }}/go test",
		With: map[string]string{"shell": "bash"},
	}

	inputs, err := RenderInputs(step, testContext())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"command": "/opt/go/bin/go test",
		"shell":   "bash",
	}, inputs)
}

func TestContext_AddStepResult(t *testing.T) {
	ctx := NewContext("ci", JobContext{})
	ctx.AddStepResult("s1", nil, false)

	require.NotNil(t, ctx.Steps["s1"])
	assert.NotNil(t, ctx.Steps["s1"].Outputs)
	assert.Equal(t, "FAILED", ctx.Steps["s1"].Status)
}
