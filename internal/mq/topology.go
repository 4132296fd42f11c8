package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — имя обменника.
type Exchange string

// Queue — имя очереди.
type Queue string

// RoutingKey — ключ маршрутизации.
type RoutingKey string

const (
	ExchangeRuns Exchange = "conveyor.runs"
	ExchangeJobs Exchange = "conveyor.jobs"
	ExchangeDLQ  Exchange = "conveyor.dlq"
)

const (
	QueueRunsRequested Queue = "runs.requested"
	QueueRunsStarted   Queue = "runs.started"
	QueueRunsCompleted Queue = "runs.completed"
	QueueJobsCompleted Queue = "jobs.completed"
	QueueDLQRuns       Queue = "dlq.runs"
)

const (
	RoutingKeyRequested RoutingKey = "requested"
	RoutingKeyStarted   RoutingKey = "started"
	RoutingKeyCompleted RoutingKey = "completed"
	RoutingKeyDLQRuns   RoutingKey = "runs"
)

type exchangeDecl struct {
	name Exchange
	kind string
}

type queueDecl struct {
	name Queue
	args amqp.Table
}

type bindingDecl struct {
	queue      Queue
	routingKey RoutingKey
	exchange   Exchange
}

// Topology — полное описание exchanges, queues и bindings.
type Topology struct {
	Exchanges []exchangeDecl
	Queues    []queueDecl
	Bindings  []bindingDecl
}

// DefaultTopology возвращает топологию Conveyor.
//
// runs.requested отправляет отклонённые сообщения в dlq.runs:
// запрос с некорректным workflow не должен крутиться в очереди.
func DefaultTopology() Topology {
	dlqArgs := amqp.Table{
		"x-dead-letter-exchange":    string(ExchangeDLQ),
		"x-dead-letter-routing-key": string(RoutingKeyDLQRuns),
	}

	return Topology{
		Exchanges: []exchangeDecl{
			{ExchangeRuns, amqp.ExchangeDirect},
			{ExchangeJobs, amqp.ExchangeDirect},
			{ExchangeDLQ, amqp.ExchangeDirect},
		},
		Queues: []queueDecl{
			{QueueRunsRequested, dlqArgs},
			{QueueRunsStarted, nil},
			{QueueRunsCompleted, nil},
			{QueueJobsCompleted, nil},
			{QueueDLQRuns, nil},
		},
		Bindings: []bindingDecl{
			{QueueRunsRequested, RoutingKeyRequested, ExchangeRuns},
			{QueueRunsStarted, RoutingKeyStarted, ExchangeRuns},
			{QueueRunsCompleted, RoutingKeyCompleted, ExchangeRuns},
			{QueueJobsCompleted, RoutingKeyCompleted, ExchangeJobs},
			{QueueDLQRuns, RoutingKeyDLQRuns, ExchangeDLQ},
		},
	}
}

// SetupTopology объявляет топологию по умолчанию. Операция идемпотентна.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		return DefaultTopology().Declare(ch)
	})
}

// Declarer — подмножество методов *amqp.Channel, нужное для объявления топологии.
type Declarer interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
}

// Declare создаёт exchanges, затем queues, затем bindings.
func (t Topology) Declare(ch Declarer) error {
	for _, ex := range t.Exchanges {
		err := ch.ExchangeDeclare(
			string(ex.name), // name
			ex.kind,         // type
			true,            // durable
			false,           // auto-deleted
			false,           // internal
			false,           // no-wait
			nil,             // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex.name, err)
		}
	}

	for _, q := range t.Queues {
		_, err := ch.QueueDeclare(
			string(q.name), // name
			true,           // durable
			false,          // delete when unused
			false,          // exclusive
			false,          // no-wait
			q.args,         // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", q.name, err)
		}
	}

	for _, b := range t.Bindings {
		err := ch.QueueBind(string(b.queue), string(b.routingKey), string(b.exchange), false, nil)
		if err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
		}
	}

	return nil
}
