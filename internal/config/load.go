package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix — префикс переменных окружения.
const EnvPrefix = "CONVEYOR"

// NewViper создаёт экземпляр viper с значениями по умолчанию и чтением CONVEYOR_*.
func NewViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load читает конфигурацию. Пустой path — поиск conveyor.yaml в текущей
// директории и в ~/.conveyor; отсутствие файла не ошибка.
func Load(path string) (*Config, error) {
	return LoadViper(NewViper(), path)
}

// LoadViper читает конфигурацию в заранее подготовленный viper
// (например, с привязанными флагами cobra).
func LoadViper(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("conveyor")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.conveyor")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// BindFlags связывает флаги с ключами конфигурации.
// Флаги, которые не были заданы явно, не перекрывают файл и окружение.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) error {
	for key, flag := range keys {
		f := flags.Lookup(flag)
		if f == nil {
			return fmt.Errorf("bind flag %q: no such flag", flag)
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %q: %w", flag, err)
		}
	}
	return nil
}

// setDefaults задаёт значения по умолчанию.
// Ключи совпадают с тегами mapstructure.
func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "INFO")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 10)

	v.SetDefault("rabbitmq.url", "")
	v.SetDefault("rabbitmq.prefetch", 1)
	v.SetDefault("rabbitmq.dispatch", false)

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.read_timeout", "15s")
	v.SetDefault("http.write_timeout", "30s")
	v.SetDefault("http.shutdown_timeout", "10s")

	v.SetDefault("execution.max_parallel", 0)
	v.SetDefault("execution.step_timeout", "0s")
	v.SetDefault("execution.work_dir", "")
	v.SetDefault("execution.log_dir", ".conveyor/logs")
	v.SetDefault("execution.runners", []string{})
	v.SetDefault("execution.known_runners", []string{})
	v.SetDefault("execution.keep_workspace", false)
	v.SetDefault("execution.shell", "")
	v.SetDefault("execution.schedule_interval", "30s")

	v.SetDefault("artifacts.backend", BackendFile)
	v.SetDefault("artifacts.dir", ".conveyor/artifacts")
	v.SetDefault("artifacts.s3.bucket", "")
	v.SetDefault("artifacts.s3.prefix", "")
	v.SetDefault("artifacts.s3.region", "")
	v.SetDefault("artifacts.s3.endpoint", "")

	v.SetDefault("workflows", []string{})
	v.SetDefault("server", "http://localhost:8080")
}
