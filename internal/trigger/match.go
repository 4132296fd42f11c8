package trigger

import (
	"errors"
	"fmt"

	"github.com/shaiso/Conveyor/internal/domain"
)

// ErrNotTriggered — workflow не подписан на событие.
var ErrNotTriggered = errors.New("workflow is not triggered by event")

// Matches возвращает true, если событие должно запускать workflow.
//
// Ручной запуск разрешён всегда. Workflow без секции on запускается
// любым событием, кроме schedule: расписание требует явной подписки.
func Matches(wf *domain.Workflow, event domain.Event) bool {
	switch {
	case event == domain.EventManual:
		return true
	case len(wf.On) == 0:
		return event != domain.EventSchedule
	default:
		return wf.HasTrigger(event)
	}
}

// Check — Matches, возвращающий ошибку с контекстом.
func Check(wf *domain.Workflow, event domain.Event) error {
	if !event.IsKnown() {
		return fmt.Errorf("unknown event %q", event)
	}
	if !Matches(wf, event) {
		return fmt.Errorf("%w: %s does not handle %s", ErrNotTriggered, wf.Name, event)
	}
	return nil
}
