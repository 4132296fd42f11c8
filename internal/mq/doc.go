// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — соединение с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — exchanges, queues, bindings
//   - messages.go   — типы сообщений и payload'ы
//   - publisher.go  — публикация событий
//   - consumer.go   — потребление сообщений
//
// Типы сообщений:
//   - run.requested  — запрос на выполнение workflow (потребитель: agent)
//   - run.started    — выполнение началось
//   - job.completed  — job получил финальный статус
//   - run.completed  — выполнение завершено, отчёт готов
//
// Exchanges:
//   - conveyor.runs  — события выполнений
//   - conveyor.jobs  — события jobs
//   - conveyor.dlq   — dead letter queue
package mq
