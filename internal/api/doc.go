// Package api содержит HTTP API conveyor-server.
//
// Структура:
//   - handler.go          — Handler и его зависимости
//   - routes.go           — регистрация маршрутов
//   - middleware.go       — middleware (logging, recovery, metrics)
//   - response.go         — унифицированные JSON-ответы и обработка ошибок
//   - dto.go              — Data Transfer Objects (request/response)
//   - run_handler.go      — обработчики /runs
//   - workflow_handler.go — проверка workflow и расписания
package api
