package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Conveyor/internal/actions"
	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/engine"
	"github.com/shaiso/Conveyor/internal/mq"
	"github.com/shaiso/Conveyor/internal/orchestrator"
	"github.com/shaiso/Conveyor/internal/repo"
	"github.com/shaiso/Conveyor/internal/trigger"
)

const ciYAML = `
name: ci
on: [push]
jobs:
  - id: build
    runs_on: linux-x64
    steps:
      - run: make build
  - id: test
    runs_on: windows-x64
    steps:
      - run: make test
`

type fakeRuns struct {
	mu        sync.Mutex
	reports   map[uuid.UUID]*domain.WorkflowReport
	artifacts map[uuid.UUID][]domain.Artifact
	started   []*domain.Workflow
	cancelErr error
	startErr  error
}

func newFakeRuns() *fakeRuns {
	return &fakeRuns{
		reports:   make(map[uuid.UUID]*domain.WorkflowReport),
		artifacts: make(map[uuid.UUID][]domain.Artifact),
	}
}

func (f *fakeRuns) Start(_ context.Context, wf *domain.Workflow, event domain.Event) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return uuid.Nil, f.startErr
	}
	id := uuid.New()
	f.started = append(f.started, wf)
	f.reports[id] = &domain.WorkflowReport{RunID: id, Workflow: wf.Name, Event: event, Status: domain.RunStatusRunning}
	return id, nil
}

func (f *fakeRuns) Cancel(id uuid.UUID) error {
	if f.cancelErr != nil {
		return f.cancelErr
	}
	if _, ok := f.reports[id]; !ok {
		return orchestrator.ErrRunNotFound
	}
	return nil
}

func (f *fakeRuns) Report(id uuid.UUID) (*domain.WorkflowReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reports[id]
	if !ok {
		return nil, orchestrator.ErrRunNotFound
	}
	return r, nil
}

func (f *fakeRuns) Artifacts(id uuid.UUID) ([]domain.Artifact, error) {
	if _, ok := f.reports[id]; !ok {
		return nil, orchestrator.ErrRunNotFound
	}
	return f.artifacts[id], nil
}

func (f *fakeRuns) ActiveRuns() []uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []uuid.UUID
	for id, r := range f.reports {
		if !r.Status.IsTerminal() {
			ids = append(ids, id)
		}
	}
	return ids
}

type fakeHistory struct {
	runs    []domain.Run
	reports map[uuid.UUID]*domain.WorkflowReport
	filter  repo.RunFilter
}

func (f *fakeHistory) List(_ context.Context, filter repo.RunFilter) ([]domain.Run, error) {
	f.filter = filter
	return f.runs, nil
}

func (f *fakeHistory) GetReport(_ context.Context, id uuid.UUID) (*domain.WorkflowReport, error) {
	r, ok := f.reports[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return r, nil
}

func (f *fakeHistory) ListArtifacts(_ context.Context, id uuid.UUID) ([]domain.Artifact, error) {
	if _, ok := f.reports[id]; !ok {
		return nil, repo.ErrNotFound
	}
	return []domain.Artifact{{JobID: "build", Name: "bin", Path: "bin/app"}}, nil
}

type fakeDispatcher struct {
	payloads []mq.RunRequestedPayload
	err      error
}

func (f *fakeDispatcher) PublishRunRequested(_ context.Context, p mq.RunRequestedPayload) error {
	if f.err != nil {
		return f.err
	}
	f.payloads = append(f.payloads, p)
	return nil
}

type fakeSchedules []trigger.Due

func (f fakeSchedules) Upcoming() []trigger.Due { return f }

func newTestServer(t *testing.T, cfg Config) *httptest.Server {
	t.Helper()
	if cfg.Parser == nil {
		cfg.Parser = engine.NewParser(engine.NewRunnerSet(), actions.DefaultRegistry())
	}
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))

	mux := http.NewServeMux()
	NewHandler(cfg).RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

type dataEnvelope[T any] struct {
	Data  T   `json:"data"`
	Total int `json:"total"`
}

func TestCreateRun(t *testing.T) {
	runs := newFakeRuns()
	srv := newTestServer(t, Config{Runs: runs})

	resp, err := http.Post(srv.URL+"/api/v1/runs?event=push", "application/yaml", strings.NewReader(ciYAML))
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	body := decode[dataEnvelope[RunCreatedResponse]](t, resp)
	assert.NotEqual(t, uuid.Nil, body.Data.RunID)
	assert.Equal(t, "ci", body.Data.Workflow)
	assert.Equal(t, domain.EventPush, body.Data.Event)
	assert.Equal(t, []string{"build", "test"}, body.Data.Jobs)
	assert.False(t, body.Data.Queued)
	require.Len(t, runs.started, 1)
}

func TestCreateRun_InvalidWorkflow(t *testing.T) {
	srv := newTestServer(t, Config{Runs: newFakeRuns()})

	def := `
name: broken
jobs:
  - id: a
    runs_on: linux-x64
    steps:
      - run: make
  - id: a
    runs_on: linux-x64
    steps:
      - run: make
`
	resp, err := http.Post(srv.URL+"/api/v1/runs", "application/yaml", strings.NewReader(def))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body := decode[ErrorResponse](t, resp)
	assert.Equal(t, ErrCodeValidationFailed, body.Error.Code)
	assert.Equal(t, "jobs[1]", body.Error.Location)
}

func TestCreateRun_EmptyBody(t *testing.T) {
	srv := newTestServer(t, Config{Runs: newFakeRuns()})

	resp, err := http.Post(srv.URL+"/api/v1/runs", "application/yaml", strings.NewReader("  \n"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestCreateRun_EventNotTriggered(t *testing.T) {
	runs := newFakeRuns()
	srv := newTestServer(t, Config{Runs: runs})

	resp, err := http.Post(srv.URL+"/api/v1/runs?event=pull_request", "application/yaml", strings.NewReader(ciYAML))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	resp.Body.Close()
	assert.Empty(t, runs.started)
}

func TestCreateRun_Stopped(t *testing.T) {
	runs := newFakeRuns()
	runs.startErr = orchestrator.ErrStopped
	srv := newTestServer(t, Config{Runs: runs})

	resp, err := http.Post(srv.URL+"/api/v1/runs", "application/yaml", strings.NewReader(ciYAML))
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	resp.Body.Close()
}

func TestCreateRun_Queued(t *testing.T) {
	runs := newFakeRuns()
	dispatcher := &fakeDispatcher{}
	srv := newTestServer(t, Config{Runs: runs, Dispatcher: dispatcher})

	resp, err := http.Post(srv.URL+"/api/v1/runs", "application/yaml", strings.NewReader(ciYAML))
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	body := decode[dataEnvelope[RunCreatedResponse]](t, resp)
	assert.True(t, body.Data.Queued)
	assert.Equal(t, domain.RunStatusPending, body.Data.Status)

	require.Len(t, dispatcher.payloads, 1)
	assert.Equal(t, body.Data.RunID, dispatcher.payloads[0].RunID)
	assert.Equal(t, domain.EventManual, dispatcher.payloads[0].Event)
	assert.Equal(t, ciYAML, dispatcher.payloads[0].Definition)
	assert.Empty(t, runs.started)
}

func TestCreateRun_QueueFailure(t *testing.T) {
	srv := newTestServer(t, Config{Runs: newFakeRuns(), Dispatcher: &fakeDispatcher{err: errors.New("broker down")}})

	resp, err := http.Post(srv.URL+"/api/v1/runs", "application/yaml", strings.NewReader(ciYAML))
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	resp.Body.Close()
}

func TestGetRun(t *testing.T) {
	runs := newFakeRuns()
	id := uuid.New()
	runs.reports[id] = &domain.WorkflowReport{RunID: id, Workflow: "ci", Status: domain.RunStatusSuccess}
	srv := newTestServer(t, Config{Runs: runs})

	resp, err := http.Get(srv.URL + "/api/v1/runs/" + id.String())
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[dataEnvelope[domain.WorkflowReport]](t, resp)
	assert.Equal(t, id, body.Data.RunID)
	assert.Equal(t, domain.RunStatusSuccess, body.Data.Status)
}

func TestGetRun_FallsBackToHistory(t *testing.T) {
	id := uuid.New()
	history := &fakeHistory{reports: map[uuid.UUID]*domain.WorkflowReport{
		id: {RunID: id, Workflow: "nightly", Status: domain.RunStatusFailed, FailedJobs: []string{"test"}},
	}}
	srv := newTestServer(t, Config{Runs: newFakeRuns(), History: history})

	resp, err := http.Get(srv.URL + "/api/v1/runs/" + id.String())
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[dataEnvelope[domain.WorkflowReport]](t, resp)
	assert.Equal(t, []string{"test"}, body.Data.FailedJobs)

	resp, err = http.Get(srv.URL + "/api/v1/runs/" + uuid.NewString())
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestGetRun_InvalidID(t *testing.T) {
	srv := newTestServer(t, Config{Runs: newFakeRuns()})

	resp, err := http.Get(srv.URL + "/api/v1/runs/not-a-uuid")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestListRuns_Active(t *testing.T) {
	runs := newFakeRuns()
	a, b := uuid.New(), uuid.New()
	runs.reports[a] = &domain.WorkflowReport{RunID: a, Workflow: "ci", Status: domain.RunStatusRunning, StartedAt: time.Now()}
	runs.reports[b] = &domain.WorkflowReport{RunID: b, Workflow: "nightly", Status: domain.RunStatusRunning}
	srv := newTestServer(t, Config{Runs: runs})

	resp, err := http.Get(srv.URL + "/api/v1/runs?workflow=ci")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[dataEnvelope[[]RunResponse]](t, resp)
	require.Equal(t, 1, body.Total)
	assert.Equal(t, a, body.Data[0].ID)
	assert.NotNil(t, body.Data[0].StartedAt)
	assert.Nil(t, body.Data[0].FinishedAt)
}

func TestListRuns_History(t *testing.T) {
	history := &fakeHistory{runs: []domain.Run{
		*domain.NewRun(uuid.New(), "ci", domain.EventPush),
	}}
	srv := newTestServer(t, Config{Runs: newFakeRuns(), History: history})

	resp, err := http.Get(srv.URL + "/api/v1/runs?status=PENDING&limit=5&offset=10")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[dataEnvelope[[]RunResponse]](t, resp)
	assert.Equal(t, 1, body.Total)
	assert.Equal(t, repo.RunFilter{Status: domain.RunStatusPending, Limit: 5, Offset: 10}, history.filter)
}

func TestListRuns_InvalidFilter(t *testing.T) {
	srv := newTestServer(t, Config{Runs: newFakeRuns()})

	for _, q := range []string{"status=DONE", "limit=abc", "offset=-1"} {
		resp, err := http.Get(srv.URL + "/api/v1/runs?" + q)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, q)
		resp.Body.Close()
	}
}

func TestCancelRun(t *testing.T) {
	runs := newFakeRuns()
	id := uuid.New()
	runs.reports[id] = &domain.WorkflowReport{RunID: id, Status: domain.RunStatusRunning}
	srv := newTestServer(t, Config{Runs: runs})

	resp, err := http.Post(srv.URL+"/api/v1/runs/"+id.String()+"/cancel", "", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Post(srv.URL+"/api/v1/runs/"+uuid.NewString()+"/cancel", "", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	runs.cancelErr = orchestrator.ErrRunFinished
	resp, err = http.Post(srv.URL+"/api/v1/runs/"+id.String()+"/cancel", "", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	resp.Body.Close()
}

func TestListRunArtifacts(t *testing.T) {
	runs := newFakeRuns()
	id := uuid.New()
	runs.reports[id] = &domain.WorkflowReport{RunID: id, Status: domain.RunStatusSuccess}
	runs.artifacts[id] = []domain.Artifact{{JobID: "build", Name: "bin", Path: "bin/app"}}
	srv := newTestServer(t, Config{Runs: runs})

	resp, err := http.Get(srv.URL + "/api/v1/runs/" + id.String() + "/artifacts")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[dataEnvelope[[]domain.Artifact]](t, resp)
	require.Equal(t, 1, body.Total)
	assert.Equal(t, domain.ArtifactKey{JobID: "build", Name: "bin"}, body.Data[0].Key())
}

func TestValidateWorkflow(t *testing.T) {
	srv := newTestServer(t, Config{Runs: newFakeRuns()})

	resp, err := http.Post(srv.URL+"/api/v1/workflows/validate", "application/yaml", strings.NewReader(ciYAML))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[dataEnvelope[ValidateResponse]](t, resp)
	assert.Equal(t, "ci", body.Data.Workflow)
	assert.Equal(t, []string{"push"}, body.Data.Events)
}

func TestListSchedules(t *testing.T) {
	at := time.Date(2026, 1, 1, 3, 0, 0, 0, time.UTC)
	srv := newTestServer(t, Config{Runs: newFakeRuns(), Schedules: fakeSchedules{{Workflow: "nightly", At: at}}})

	resp, err := http.Get(srv.URL + "/api/v1/schedules")
	require.NoError(t, err)
	body := decode[dataEnvelope[[]trigger.Due]](t, resp)
	require.Len(t, body.Data, 1)
	assert.True(t, at.Equal(body.Data[0].At))
}

func TestRecovery(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := Chain(Recovery(logger), Logging(logger))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestResponseWriter_CapturesStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := wrap(rec)
	NotFound(rw, "missing")

	assert.Equal(t, http.StatusNotFound, rw.status)
	assert.Same(t, rw, wrap(rw))
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, Config{Runs: newFakeRuns()})

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}
