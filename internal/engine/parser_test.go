package engine

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Conveyor/internal/domain"
)

type catalog map[string]bool

func (c catalog) Has(name string) bool { return c[name] }

func testParser() *Parser {
	return NewParser(NewRunnerSet(), catalog{
		"run": true, "checkout": true, "setup-go": true, "golangci-lint": true,
	})
}

func TestParse_FullWorkflow(t *testing.T) {
	raw, err := os.ReadFile("testdata/ci.yaml")
	require.NoError(t, err)

	wf, err := testParser().Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, "ci", wf.Name)
	assert.Equal(t, []string{"build-windows-64bit", "build-linux", "test", "lint-windows"}, wf.JobIDs())
	assert.True(t, wf.HasTrigger(domain.EventSchedule))
	assert.Equal(t, 600, wf.Defaults.TimeoutSec)

	build := wf.Jobs[0]
	assert.Equal(t, domain.RunnerWindowsX64, build.RunsOn)
	require.Len(t, build.Steps, 3)
	assert.Equal(t, "setup-go", build.Steps[1].Action())
	assert.Equal(t, "1.24", build.Steps[1].With["version"])
	assert.Equal(t, domain.ActionRun, build.Steps[2].Action())
	assert.Equal(t, []domain.ArtifactDecl{{Name: "conveyor-windows-x64", Path: "conveyor.exe"}}, build.Artifacts())

	assert.Equal(t, "linux", wf.Jobs[1].Env["GOOS"])
	assert.Equal(t, 300, wf.Jobs[1].Steps[1].TimeoutSec)
}

func TestParse_JSON(t *testing.T) {
	raw := []byte(`{"name":"json","jobs":[{"id":"a","runs_on":"macos-x64","steps":[{"run":"make"}]}]}`)

	wf, err := testParser().Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, domain.RunnerMacOSX64, wf.Jobs[0].RunsOn)
	assert.Equal(t, "make", wf.Jobs[0].Steps[0].Run)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name     string
		doc      string
		want     error
		location string
	}{
		{
			name: "empty document",
			doc:  "",
			want: ErrNoJobs,
		},
		{
			name:     "no jobs",
			doc:      "name: x\njobs: []",
			want:     ErrNoJobs,
			location: "jobs",
		},
		{
			name: "unknown field",
			doc:  "jobs:\n  - id: a\n    runs_on: linux-x64\n    needs: [b]\n    steps: [{run: make}]",
			want: ErrMalformedDefinition,
		},
		{
			name:     "empty job id",
			doc:      "jobs:\n  - runs_on: linux-x64\n    steps: [{run: make}]",
			want:     ErrEmptyJobID,
			location: "jobs[0]",
		},
		{
			name: "duplicate job id",
			doc: `jobs:
  - id: test
    runs_on: linux-x64
    steps: [{run: go test ./...}]
  - id: test
    runs_on: windows-x64
    steps: [{run: go test ./...}]`,
			want:     ErrDuplicateJobID,
			location: "jobs[1]",
		},
		{
			name:     "no steps",
			doc:      "jobs:\n  - id: a\n    runs_on: linux-x64\n    steps: []",
			want:     ErrNoSteps,
			location: "jobs[0]",
		},
		{
			name:     "unknown runner",
			doc:      "jobs:\n  - id: a\n    runs_on: solaris-sparc\n    steps: [{run: make}]",
			want:     ErrUnknownRunner,
			location: "jobs[0].runs_on",
		},
		{
			name:     "empty command",
			doc:      "jobs:\n  - id: a\n    runs_on: linux-x64\n    steps: [{name: nothing}]",
			want:     ErrEmptyCommand,
			location: "jobs[0].steps[0]",
		},
		{
			name:     "uses and run",
			doc:      "jobs:\n  - id: a\n    runs_on: linux-x64\n    steps: [{uses: checkout, run: make}]",
			want:     ErrAmbiguousStep,
			location: "jobs[0].steps[0]",
		},
		{
			name:     "unknown action",
			doc:      "jobs:\n  - id: a\n    runs_on: linux-x64\n    steps: [{uses: checkout}, {uses: teleport}]",
			want:     ErrUnknownAction,
			location: "jobs[0].steps[1].uses",
		},
		{
			name:     "duplicate step id",
			doc:      "jobs:\n  - id: a\n    runs_on: linux-x64\n    steps: [{id: s, run: a}, {id: s, run: b}]",
			want:     ErrDuplicateStepID,
			location: "jobs[0].steps[1]",
		},
		{
			name:     "artifact without path",
			doc:      "jobs:\n  - id: a\n    runs_on: linux-x64\n    steps: [{run: make, artifact: {name: bin}}]",
			want:     ErrInvalidArtifact,
			location: "jobs[0].steps[0].artifact",
		},
		{
			name:     "unknown event",
			doc:      "on: [tag]\njobs:\n  - id: a\n    runs_on: linux-x64\n    steps: [{run: make}]",
			want:     ErrUnknownEvent,
			location: "on[0]",
		},
		{
			name:     "bad cron",
			doc:      "on: [schedule]\nschedules: ['every day']\njobs:\n  - id: a\n    runs_on: linux-x64\n    steps: [{run: make}]",
			want:     ErrInvalidSchedule,
			location: "schedules[0]",
		},
		{
			name:     "schedule without event",
			doc:      "on: [push]\nschedules: ['0 * * * *']\njobs:\n  - id: a\n    runs_on: linux-x64\n    steps: [{run: make}]",
			want:     ErrInvalidSchedule,
			location: "schedules",
		},
		{
			name:     "negative step timeout",
			doc:      "jobs:\n  - id: a\n    runs_on: linux-x64\n    steps: [{run: make, timeout_sec: -1}]",
			want:     ErrInvalidTimeout,
			location: "jobs[0].steps[0].timeout_sec",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wf, err := testParser().Parse([]byte(tt.doc))
			require.Error(t, err)
			assert.Nil(t, wf, "no partial workflow on error")

			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.ErrorIs(t, err, tt.want)
			if tt.location != "" {
				assert.Equal(t, tt.location, vErr.Location)
			}
		})
	}
}

func TestParse_NilCatalogSkipsActionCheck(t *testing.T) {
	p := NewParser(NewRunnerSet(), nil)

	_, err := p.Parse([]byte("jobs:\n  - id: a\n    runs_on: linux-x64\n    steps: [{uses: anything}]"))
	assert.NoError(t, err)
}

func TestParse_CustomRunners(t *testing.T) {
	p := NewParser(RunnerSetFromStrings([]string{"linux-arm64"}), nil)

	_, err := p.Parse([]byte("jobs:\n  - id: a\n    runs_on: linux-arm64\n    steps: [{run: make}]"))
	require.NoError(t, err)

	_, err = p.Parse([]byte("jobs:\n  - id: a\n    runs_on: linux-x64\n    steps: [{run: make}]"))
	assert.ErrorIs(t, err, ErrUnknownRunner)
}

func TestValidationError_Error(t *testing.T) {
	err := NewValidationError("jobs[2]", "job has empty ID", ErrEmptyJobID)
	assert.Equal(t, "jobs[2]: job has empty ID", err.Error())

	err = NewValidationError("", "workflow has no jobs", ErrNoJobs)
	assert.Equal(t, "workflow has no jobs", err.Error())
}

func TestRunnerSet(t *testing.T) {
	s := NewRunnerSet()
	assert.True(t, s.Has(domain.RunnerWindowsX86))
	assert.False(t, s.Has("plan9-mips"))
	assert.Equal(t, []domain.RunnerDescriptor{
		domain.RunnerLinuxX64, domain.RunnerMacOSX64, domain.RunnerWindowsX64, domain.RunnerWindowsX86,
	}, s.List())
}
