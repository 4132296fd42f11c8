package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shaiso/Conveyor/internal/domain"
)

// Publisher публикует события Conveyor в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Publish публикует сообщение в exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(exchange),
			string(routingKey),
			false, // mandatory
			false, // immediate
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				MessageId:    msg.ID,
				Timestamp:    msg.Timestamp,
				Type:         string(msg.Type),
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)
		return nil
	})
}

// PublishRunRequested ставит workflow в очередь на выполнение.
// Потребитель: conveyor-agent.
func (p *Publisher) PublishRunRequested(ctx context.Context, payload RunRequestedPayload) error {
	return p.Publish(ctx, ExchangeRuns, RoutingKeyRequested, NewMessage(MessageTypeRunRequested, payload))
}

// PublishRunStarted публикует событие о начале выполнения.
func (p *Publisher) PublishRunStarted(ctx context.Context, run *domain.Run, jobIDs []string) error {
	payload := RunStartedPayload{
		RunID:    run.ID,
		Workflow: run.Workflow,
		Event:    run.Event,
		Jobs:     jobIDs,
	}
	return p.Publish(ctx, ExchangeRuns, RoutingKeyStarted, NewMessage(MessageTypeRunStarted, payload))
}

// PublishJobCompleted публикует финальный outcome job.
func (p *Publisher) PublishJobCompleted(ctx context.Context, runID uuid.UUID, outcome *domain.JobOutcome) error {
	payload := NewJobCompletedPayload(runID, outcome)
	return p.Publish(ctx, ExchangeJobs, RoutingKeyCompleted, NewMessage(MessageTypeJobCompleted, payload))
}

// PublishRunCompleted публикует итог выполнения.
func (p *Publisher) PublishRunCompleted(ctx context.Context, report *domain.WorkflowReport) error {
	payload := NewRunCompletedPayload(report)
	return p.Publish(ctx, ExchangeRuns, RoutingKeyCompleted, NewMessage(MessageTypeRunCompleted, payload))
}
