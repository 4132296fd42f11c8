// Package orchestrator — планировщик выполнений workflow.
//
// Orchestrator отвечает за:
//   - Параллельный запуск всех jobs выполнения (с лимитом MaxParallel)
//   - Сбор ровно одного outcome на каждый job
//   - Отмену: jobs, не успевшие стартовать, получают SKIPPED
//   - Построение WorkflowReport
//   - Обработку запросов из очереди runs.requested
//
// Jobs независимы: падение одного job не отменяет остальные.
package orchestrator
