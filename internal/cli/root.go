package cli

import (
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/shaiso/Conveyor/internal/config"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

// Env — общее состояние команд: конфигурация, потоки вывода, флаги.
type Env struct {
	v          *viper.Viper
	configPath string
	jsonOutput bool
	stdout     io.Writer
	stderr     io.Writer

	cfg *config.Config
}

// Config загружает конфигурацию (один раз за процесс).
func (e *Env) Config() (*config.Config, error) {
	if e.cfg != nil {
		return e.cfg, nil
	}
	cfg, err := config.LoadViper(e.v, e.configPath)
	if err != nil {
		return nil, err
	}
	e.cfg = cfg
	return cfg, nil
}

// Output создаёт Output по флагу --json.
func (e *Env) Output() *Output {
	return NewOutputTo(e.jsonOutput, e.stdout, e.stderr)
}

// Client создаёт клиент для conveyor-server.
func (e *Env) Client() (*Client, error) {
	cfg, err := e.Config()
	if err != nil {
		return nil, err
	}
	return NewClient(cfg.Server), nil
}

// Logger настраивает логгер CLI: вывод в stderr, текстовый формат по умолчанию.
func (e *Env) Logger(cfg *config.Config) (*slog.Logger, func()) {
	lc := cfg.Log.Telemetry()
	lc.Output = e.stderr
	return telemetry.SetupLogger(lc)
}

// NewRootCmd создаёт корневую команду conveyor.
func NewRootCmd(version string) *cobra.Command {
	return newRootCmd(version, os.Stdout, os.Stderr)
}

func newRootCmd(version string, stdout, stderr io.Writer) *cobra.Command {
	e := &Env{
		v:      config.NewViper(),
		stdout: stdout,
		stderr: stderr,
	}
	// CLI пишет логи для человека
	e.v.SetDefault("log.format", "text")
	e.v.SetDefault("log.level", "WARN")

	rootCmd := &cobra.Command{
		Use:           "conveyor",
		Short:         "Conveyor — parallel build, test and lint orchestrator",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return config.BindFlags(e.v, cmd.Root().PersistentFlags(), map[string]string{
				"server":    "server",
				"log.level": "log-level",
			})
		},
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&e.configPath, "config", "c", "", "Config file (default: ./conveyor.yaml)")
	flags.BoolVar(&e.jsonOutput, "json", false, "Output in JSON format")
	flags.String("server", "", "conveyor-server URL")
	flags.String("log-level", "", "Log level (DEBUG, INFO, WARN, ERROR)")

	rootCmd.AddCommand(
		NewRunCmd(e),
		NewValidateCmd(e),
		NewRemoteCmd(e),
	)

	return rootCmd
}
