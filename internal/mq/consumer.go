package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Handler обрабатывает одно сообщение.
//
// nil — ack. Ошибка — nack с возвратом в очередь, если сообщение
// доставлено впервые. Ошибка из Permanent — сразу в DLQ.
type Handler func(ctx context.Context, msg *Delivery) error

// PermanentError — ошибка, повтор которой бессмыслен (битый payload, невалидный workflow).
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return "permanent: " + e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent помечает ошибку как неповторяемую.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent проверяет, помечена ли ошибка как неповторяемая.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// Delivery — разобранное сообщение вместе с исходной AMQP доставкой.
type Delivery struct {
	Message Message
	Raw     amqp.Delivery
}

// Ack подтверждает сообщение.
func (d *Delivery) Ack() error {
	return d.Raw.Ack(false)
}

// Nack отклоняет сообщение. requeue=false отправляет его в DLQ.
func (d *Delivery) Nack(requeue bool) error {
	return d.Raw.Nack(false, requeue)
}

// ConsumerConfig — конфигурация consumer.
type ConsumerConfig struct {
	Queue Queue

	// Tag — consumer tag. Пустой — сгенерирует брокер.
	Tag string

	Handler Handler

	// Prefetch — сколько неподтверждённых сообщений брокер отдаёт consumer'у.
	// Handler блокируется до конца выполнения, поэтому это же предел
	// одновременных runs на agent. По умолчанию 1.
	Prefetch int
}

// Consumer читает очередь и передаёт сообщения в Handler.
// После разрыва соединения подписка восстанавливается автоматически.
type Consumer struct {
	conn     *Connection
	logger   *slog.Logger
	queue    Queue
	tag      string
	handler  Handler
	prefetch int

	stop     chan struct{}
	stopOnce sync.Once
}

// NewConsumer создаёт Consumer.
func NewConsumer(conn *Connection, logger *slog.Logger, cfg ConsumerConfig) *Consumer {
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Consumer{
		conn:     conn,
		logger:   logger.With("queue", cfg.Queue),
		queue:    cfg.Queue,
		tag:      cfg.Tag,
		handler:  cfg.Handler,
		prefetch: cfg.Prefetch,
		stop:     make(chan struct{}),
	}
}

// Start читает очередь до отмены ctx или вызова Stop.
func (c *Consumer) Start(ctx context.Context) error {
	select {
	case <-c.stop:
		return context.Canceled
	default:
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-c.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		// Берём сигнал до подписки, чтобы не пропустить переподключение между ними.
		reconnected := c.conn.Reconnected()

		deliveries, err := c.subscribe()
		if err != nil {
			c.logger.Error("failed to subscribe", "error", err)
		} else {
			c.logger.Info("consumer started")
			c.drain(ctx, deliveries)
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn("subscription lost, waiting for broker")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-reconnected:
		}
	}
}

// Stop останавливает Start. Безопасен до Start и при повторном вызове.
func (c *Consumer) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Consumer) subscribe() (<-chan amqp.Delivery, error) {
	ch := c.conn.Channel()
	if ch == nil {
		return nil, ErrNoChannel
	}
	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}

	// autoAck=false: подтверждаем после Handler.
	deliveries, err := ch.Consume(string(c.queue), c.tag, false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", c.queue, err)
	}
	return deliveries, nil
}

// drain обрабатывает доставки, пока канал открыт и ctx жив.
func (c *Consumer) drain(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-deliveries:
			if !ok {
				return
			}
			c.handleDelivery(ctx, raw)
		}
	}
}

func (c *Consumer) handleDelivery(ctx context.Context, raw amqp.Delivery) {
	var msg Message
	if err := json.Unmarshal(raw.Body, &msg); err != nil {
		c.logger.Error("malformed message, dead-lettering", "error", err)
		_ = raw.Nack(false, false)
		return
	}

	logger := c.logger.With("message_id", msg.ID, "type", msg.Type)
	logger.Debug("received message")

	err := c.handler(ctx, &Delivery{Message: msg, Raw: raw})
	if err == nil {
		_ = raw.Ack(false)
		return
	}

	requeue := shouldRequeue(err, raw.Redelivered)
	logger.Error("handler failed", "requeue", requeue, "error", err)
	_ = raw.Nack(false, requeue)
}

// shouldRequeue: повторяем только временную ошибку первой доставки.
func shouldRequeue(err error, redelivered bool) bool {
	return !IsPermanent(err) && !redelivered
}
