// Package cli реализует инструмент командной строки Conveyor.
//
// # Обзор
//
// CLI выполняет workflow локально (run, validate) и управляет
// выполнениями на conveyor-server через HTTP API (remote).
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для Conveyor API. Инкапсулирует все HTTP-запросы,
// парсинг ответов (DataResponse, ListResponse, ErrorResponse)
// и обработку ошибок. Ошибки API возвращаются как *APIError.
//
//	client := cli.NewClient("http://localhost:8080")
//	created, err := client.SubmitRun(ctx, definition, "push")
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON (json.MarshalIndent) — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: conveyor run ci.yaml --json | jq .
//
// ## Commands
//
//   - run FILE       — выполнить workflow локально
//   - validate FILE  — проверить workflow
//   - remote         — submit, status, cancel, list, artifacts
//
// Коды завершения: 0 — успех, 1 — выполнение завершилось с ошибкой,
// 2 — workflow не прошёл валидацию, 3 — внутренняя ошибка.
package cli
