// Package telemetry обеспечивает наблюдаемость системы.
//
// Включает:
//   - logging.go — structured logging через slog (stdout и файл с ротацией)
//   - metrics.go — Prometheus метрики runs, jobs, шагов и артефактов
//
// Все бинарники используют единый формат логирования
// и экспортируют метрики на /metrics endpoint.
package telemetry
