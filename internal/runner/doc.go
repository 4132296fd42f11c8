// Package runner выполняет один job: шаги строго по порядку на выделенном runner'е.
//
// # Обзор
//
// Runner получает окружение у Provisioner, последовательно вызывает
// Step Executor для каждого шага и останавливается на первом провале.
// Шаги после упавшего не выполняются. Если все шаги успешны, объявленные
// артефакты передаются в Artifact Collector.
//
// # Отмена
//
// Отмена наблюдается только между шагами: шаг выполняется с контекстом,
// который не отменяется (таймаут шага при этом действует). Job, прерванный
// между шагами, завершается со статусом CANCELLED.
//
// # Outcome
//
// Run всегда возвращает ровно один JobOutcome в финальном статусе:
//   - SUCCESS   — все шаги успешны
//   - FAILED    — FailedStep указывает на упавший шаг (-1 — runner не выделен)
//   - CANCELLED — отмена между шагами
package runner
