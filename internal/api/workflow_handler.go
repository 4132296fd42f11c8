package api

import (
	"net/http"

	"github.com/shaiso/Conveyor/internal/trigger"
)

// ValidateWorkflow проверяет workflow без запуска.
// POST /api/v1/workflows/validate
func (h *Handler) ValidateWorkflow(w http.ResponseWriter, r *http.Request) {
	raw, ok := readDefinition(w, r)
	if !ok {
		return
	}

	wf, err := h.parser.Parse(raw)
	if err != nil {
		ValidationFailed(w, err)
		return
	}

	events := make([]string, len(wf.On))
	for i, e := range wf.On {
		events[i] = string(e)
	}

	Success(w, ValidateResponse{
		Workflow:  wf.Name,
		Jobs:      wf.JobIDs(),
		Events:    events,
		Schedules: wf.Schedules,
	})
}

// ListSchedules возвращает ближайшие запуски по расписанию.
// GET /api/v1/schedules
func (h *Handler) ListSchedules(w http.ResponseWriter, _ *http.Request) {
	due := []trigger.Due{}
	if h.schedules != nil {
		due = h.schedules.Upcoming()
	}
	List(w, due, len(due))
}
