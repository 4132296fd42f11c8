// Package executor выполняет один шаг job.
//
// Executor находит action по имени, рендерит inputs и окружение шага
// против контекста job, применяет таймаут и вызывает action. Любая ошибка,
// ненулевой код завершения или превышение таймаута — провал шага.
//
// Таймаут выбирается по первому положительному значению:
//
//	step.timeout_sec → job.timeout_sec → defaults.timeout_sec → Config.DefaultTimeout
//
// 0 везде — без ограничения.
//
// Окружение шага собирается слоями, более поздние переопределяют ранние:
//
//	workflow.env → job.env → экспорт предыдущих шагов ($CONVEYOR_ENV) → step.env
//
// Полный вывод шага сохраняется через LogStore, в StepOutcome.Detail
// попадает только хвост вывода.
package executor
