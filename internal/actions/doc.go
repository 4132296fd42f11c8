// Package actions содержит именованные внешние actions, которые вызывают шаги.
//
// # Обзор
//
// Action — это непрозрачное внешнее действие (checkout, установка toolchain,
// сборка, загрузка артефакта), вызываемое единообразно: "выполнить action
// с inputs". Step Executor находит action по имени в Registry и вызывает
// Invoke с уже отрендеренными inputs.
//
//	type Action interface {
//	    Name() string
//	    Invoke(ctx context.Context, req *Request) (*Result, error)
//	}
//
// # Ошибки
//
// Пакет различает два уровня ошибок:
//   - Инфраструктурные (error от Invoke) — процесс не запустился, сеть упала, таймаут
//   - Логические (Result.ExitCode != 0) — команда завершилась с ошибкой
//
// Для Step Executor оба случая — провал шага.
//
// # Встроенные actions
//
//   - run    — shell-команда (input command, опционально shell)
//   - export — возвращает inputs как outputs и env
//   - wait   — пауза на seconds секунд
//
// Остальные actions (checkout, setup-go, upload, ...) подключаются как
// RemoteAction: вызов проксируется HTTP POST на настроенный endpoint.
//
// # Outputs
//
// Команда run может дописывать строки key=value в файлы, пути к которым
// переданы в переменных CONVEYOR_OUTPUT и CONVEYOR_ENV. Они становятся
// outputs шага и переменными окружения следующих шагов.
//
// # Файлы пакета
//
//   - action.go   — интерфейс Action, Request, Result, ошибки
//   - registry.go — Registry для получения Action по имени
//   - command.go  — CommandRunner и ShellRunner (os/exec)
//   - run.go      — RunAction
//   - export.go   — ExportAction
//   - wait.go     — WaitAction
//   - remote.go   — RemoteAction
package actions
