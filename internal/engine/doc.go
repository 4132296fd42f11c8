// Package engine содержит модель workflow: парсинг, валидацию и шаблоны.
//
// Включает:
//   - parser.go   — парсинг Workflow из YAML/JSON и валидация
//   - runners.go  — набор известных runner'ов
//   - template.go — рендеринг Go templates ({{ .Steps.setup.Outputs.path }})
//
// Engine отвечает за то, чтобы оркестратор получал только корректный
// workflow: при любой ошибке возвращается ValidationError и ни один job
// не запускается.
package engine
