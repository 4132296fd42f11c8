// Conveyor CLI — выполняет workflow локально и управляет
// выполнениями на conveyor-server.
//
// Использование:
//
//	conveyor [--config FILE] [--json] <command> [flags]
//
// Команды:
//
//	run       Выполнить workflow на этой машине
//	validate  Проверить workflow
//	remote    Управление выполнениями на сервере
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/shaiso/Conveyor/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	err := cli.NewRootCmd(version).ExecuteContext(ctx)
	cancel()

	if err != nil && !cli.Silent(err) {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(cli.ExitCode(err))
}
