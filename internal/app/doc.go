// Package app собирает компоненты Conveyor из конфигурации.
//
// Общая сборка для всех бинарников: реестр actions, парсер workflow,
// Step Executor, Job Runner, хранилище артефактов и orchestrator.
// Транспорт (HTTP, RabbitMQ, PostgreSQL) подключается в cmd/.
package app
