package actions

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// ActionWait — имя action паузы.
const ActionWait = "wait"

// WaitAction — пауза между шагами.
//
// Inputs:
//
//	seconds: 5    # или
//	ms: 500
//
// Поддерживает отмену и таймаут через context.
type WaitAction struct{}

// NewWaitAction создаёт новый WaitAction.
func NewWaitAction() *WaitAction {
	return &WaitAction{}
}

// Name возвращает имя action.
func (a *WaitAction) Name() string {
	return ActionWait
}

// Invoke выполняет паузу.
func (a *WaitAction) Invoke(ctx context.Context, req *Request) (*Result, error) {
	duration, err := a.parseDuration(req)
	if err != nil {
		return nil, err
	}

	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrActionCancelled, ctx.Err())
	case <-timer.C:
		return NewResult(map[string]string{
			"waited_ms": strconv.FormatInt(duration.Milliseconds(), 10),
		}), nil
	}
}

func (a *WaitAction) parseDuration(req *Request) (time.Duration, error) {
	sec, err := req.InputInt("seconds", 0)
	if err != nil {
		return 0, err
	}
	if sec > 0 {
		return time.Duration(sec) * time.Second, nil
	}

	ms, err := req.InputInt("ms", 0)
	if err != nil {
		return 0, err
	}
	if ms > 0 {
		return time.Duration(ms) * time.Millisecond, nil
	}

	return 0, fmt.Errorf("%w: %s: seconds or ms required", ErrInvalidInput, ActionWait)
}
