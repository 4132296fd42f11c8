package api

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/mq"
	"github.com/shaiso/Conveyor/internal/repo"
	"github.com/shaiso/Conveyor/internal/telemetry"
	"github.com/shaiso/Conveyor/internal/trigger"
)

// maxDefinitionSize — предельный размер тела с YAML workflow.
const maxDefinitionSize = 1 << 20

// CreateRun запускает workflow.
// POST /api/v1/runs?event=push
//
// Тело запроса — YAML определение workflow.
func (h *Handler) CreateRun(w http.ResponseWriter, r *http.Request) {
	logger := telemetry.FromContext(r.Context())

	raw, ok := readDefinition(w, r)
	if !ok {
		return
	}

	event := domain.EventManual
	if e := r.URL.Query().Get("event"); e != "" {
		event = domain.Event(e)
	}

	wf, err := h.parser.Parse(raw)
	if err != nil {
		ValidationFailed(w, err)
		return
	}
	if err := trigger.Check(wf, event); err != nil {
		Error(w, http.StatusUnprocessableEntity, ErrCodeNotTriggered, err.Error())
		return
	}

	if h.dispatcher != nil {
		runID := uuid.New()
		payload := mq.RunRequestedPayload{RunID: runID, Definition: string(raw), Event: event}
		if err := h.dispatcher.PublishRunRequested(r.Context(), payload); err != nil {
			InternalError(w, logger, err)
			return
		}
		logger.Info("run queued", "run_id", runID, "workflow", wf.Name, "event", event)
		Accepted(w, RunCreatedResponse{
			RunID:    runID,
			Workflow: wf.Name,
			Event:    event,
			Status:   domain.RunStatusPending,
			Jobs:     wf.JobIDs(),
			Queued:   true,
		})
		return
	}

	runID, err := h.runs.Start(r.Context(), wf, event)
	if HandleError(w, logger, err, "run not found") {
		return
	}

	Created(w, RunCreatedResponse{
		RunID:    runID,
		Workflow: wf.Name,
		Event:    event,
		Status:   domain.RunStatusRunning,
		Jobs:     wf.JobIDs(),
	})
}

// ListRuns возвращает список выполнений.
// GET /api/v1/runs?workflow=ci&status=FAILED&limit=20&offset=0
//
// Без хранилища истории возвращает только активные выполнения.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	logger := telemetry.FromContext(r.Context())

	filter, err := parseRunFilter(r)
	if err != nil {
		BadRequest(w, err.Error())
		return
	}

	if h.history != nil {
		runs, err := h.history.List(r.Context(), filter)
		if err != nil {
			InternalError(w, logger, err)
			return
		}
		resp := make([]RunResponse, len(runs))
		for i := range runs {
			resp[i] = RunFromDomain(runs[i])
		}
		List(w, resp, len(resp))
		return
	}

	resp := make([]RunResponse, 0)
	for _, id := range h.runs.ActiveRuns() {
		report, err := h.runs.Report(id)
		if err != nil {
			// run завершился и вытеснен между вызовами
			continue
		}
		if filter.Workflow != "" && report.Workflow != filter.Workflow {
			continue
		}
		if filter.Status != "" && report.Status != filter.Status {
			continue
		}
		resp = append(resp, RunFromReport(report))
	}
	List(w, resp, len(resp))
}

// GetRun возвращает отчёт о выполнении.
// GET /api/v1/runs/{id}
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	logger := telemetry.FromContext(r.Context())

	id, ok := parseRunID(w, r)
	if !ok {
		return
	}

	report, err := h.runs.Report(id)
	if err != nil && h.history != nil {
		report, err = h.history.GetReport(r.Context(), id)
	}
	if HandleError(w, logger, err, "run not found") {
		return
	}

	Success(w, report)
}

// CancelRun отменяет выполнение.
// POST /api/v1/runs/{id}/cancel
func (h *Handler) CancelRun(w http.ResponseWriter, r *http.Request) {
	logger := telemetry.FromContext(r.Context())

	id, ok := parseRunID(w, r)
	if !ok {
		return
	}

	if HandleError(w, logger, h.runs.Cancel(id), "run not found") {
		return
	}

	logger.Info("run cancel requested", "run_id", id)
	Accepted(w, map[string]any{"run_id": id, "cancelled": true})
}

// ListRunArtifacts возвращает артефакты выполнения.
// GET /api/v1/runs/{id}/artifacts
func (h *Handler) ListRunArtifacts(w http.ResponseWriter, r *http.Request) {
	logger := telemetry.FromContext(r.Context())

	id, ok := parseRunID(w, r)
	if !ok {
		return
	}

	artifacts, err := h.runs.Artifacts(id)
	if err != nil && h.history != nil {
		artifacts, err = h.history.ListArtifacts(r.Context(), id)
	}
	if HandleError(w, logger, err, "run not found") {
		return
	}
	if artifacts == nil {
		artifacts = []domain.Artifact{}
	}

	List(w, artifacts, len(artifacts))
}

func parseRunID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid run ID")
		return uuid.Nil, false
	}
	return id, true
}

func parseRunFilter(r *http.Request) (repo.RunFilter, error) {
	q := r.URL.Query()
	filter := repo.RunFilter{Workflow: q.Get("workflow")}

	if s := q.Get("status"); s != "" {
		status, ok := domain.ParseRunStatus(s)
		if !ok {
			return filter, errors.New("invalid status: " + s)
		}
		filter.Status = status
	}

	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return filter, errors.New("invalid " + name + ": " + v)
		}
		*dst = n
	}
	return filter, nil
}

// readDefinition читает тело запроса с ограничением размера.
func readDefinition(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxDefinitionSize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			Error(w, http.StatusRequestEntityTooLarge, ErrCodeBadRequest, "workflow definition is too large")
			return nil, false
		}
		BadRequest(w, "failed to read request body")
		return nil, false
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		BadRequest(w, "empty workflow definition")
		return nil, false
	}
	return raw, true
}
