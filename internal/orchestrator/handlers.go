package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/mq"
)

// WorkflowParser разбирает и валидирует определение workflow.
// Реализуется engine.Parser.
type WorkflowParser interface {
	Parse(raw []byte) (*domain.Workflow, error)
}

// RunRequestedHandler возвращает обработчик очереди runs.requested.
//
// Обработчик ждёт завершения выполнения, поэтому prefetch consumer'а
// ограничивает число одновременных выполнений на agent.
// Невалидный workflow отправляется в DLQ без повторов.
func (o *Orchestrator) RunRequestedHandler(parser WorkflowParser) mq.Handler {
	return func(ctx context.Context, d *mq.Delivery) error {
		payload, err := mq.ParsePayload[mq.RunRequestedPayload](&d.Message)
		if err != nil {
			return mq.Permanent(err)
		}
		if payload.RunID == uuid.Nil {
			payload.RunID = uuid.New()
		}
		if payload.Event == "" {
			payload.Event = domain.EventManual
		}

		logger := o.logger.With("run_id", payload.RunID, "event", payload.Event)
		logger.Debug("received run.requested")

		wf, err := parser.Parse([]byte(payload.Definition))
		if err != nil {
			o.rejectRun(ctx, payload, err)
			return mq.Permanent(fmt.Errorf("parse workflow: %w", err))
		}

		if err := o.StartWithID(ctx, payload.RunID, wf, payload.Event); err != nil {
			var schedErr *SchedulerError
			switch {
			case errors.Is(err, ErrRunAlreadyActive):
				logger.Debug("run already active, skipping")
				return nil
			case errors.As(err, &schedErr):
				o.rejectRun(ctx, payload, err)
				return mq.Permanent(err)
			default:
				return err
			}
		}

		report, err := o.Wait(ctx, payload.RunID)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// Выполнение прервано нарушением инварианта, повтор не поможет.
			return mq.Permanent(err)
		}

		logger.Info("requested run completed", "status", report.Status)
		return nil
	}
}

// rejectRun сохраняет выполнение, которое не удалось начать.
func (o *Orchestrator) rejectRun(ctx context.Context, payload mq.RunRequestedPayload, cause error) {
	if o.store == nil {
		return
	}
	run := domain.NewRun(payload.RunID, "", payload.Event)
	run.MarkFailed(cause.Error())

	o.notify(ctx, o.logger, "record rejected run", func(c context.Context) error {
		return o.store.Create(c, run)
	})
}
