package config

import (
	"time"

	"github.com/shaiso/Conveyor/internal/actions"
	"github.com/shaiso/Conveyor/internal/artifact"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

// Config — конфигурация Conveyor.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Database  DatabaseConfig  `mapstructure:"database"`
	RabbitMQ  RabbitMQConfig  `mapstructure:"rabbitmq"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Execution ExecutionConfig `mapstructure:"execution"`
	Artifacts ArtifactsConfig `mapstructure:"artifacts"`

	// Actions — внешние actions, вызываемые по HTTP.
	Actions []ActionConfig `mapstructure:"actions"`

	// Workflows — файлы workflow, которые сервер запускает по расписанию.
	Workflows []string `mapstructure:"workflows"`

	// Server — адрес conveyor-server для команд `conveyor remote`.
	Server string `mapstructure:"server"`
}

// LogConfig — логирование.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// DatabaseConfig — PostgreSQL.
type DatabaseConfig struct {
	// URL — DSN. Пусто — сервер работает без хранения истории.
	URL      string `mapstructure:"url"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// RabbitMQConfig — брокер сообщений.
type RabbitMQConfig struct {
	// URL — адрес брокера. Пусто — события не публикуются.
	URL string `mapstructure:"url"`

	// Prefetch — сколько запросов agent выполняет одновременно.
	Prefetch int `mapstructure:"prefetch"`

	// Dispatch — сервер ставит новые выполнения в очередь agent'ов
	// вместо локального выполнения.
	Dispatch bool `mapstructure:"dispatch"`
}

// HTTPConfig — HTTP сервер.
type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// ExecutionConfig — выполнение jobs и шагов.
type ExecutionConfig struct {
	// MaxParallel — лимит одновременных jobs одного выполнения. 0 — без лимита.
	MaxParallel int `mapstructure:"max_parallel"`

	// StepTimeout — таймаут шага по умолчанию. 0 — без ограничения.
	StepTimeout time.Duration `mapstructure:"step_timeout"`

	// WorkDir — где создавать рабочие директории jobs.
	WorkDir string `mapstructure:"work_dir"`

	// LogDir — где хранить логи шагов.
	LogDir string `mapstructure:"log_dir"`

	// Runners — дескрипторы, которые может обслужить эта машина.
	// Пусто — только текущая платформа.
	Runners []string `mapstructure:"runners"`

	// KnownRunners — дескрипторы, допустимые в runs_on. Пусто — набор по умолчанию.
	KnownRunners []string `mapstructure:"known_runners"`

	KeepWorkspace bool `mapstructure:"keep_workspace"`

	// Shell — shell для шагов run. Пусто — sh (cmd на Windows).
	Shell string `mapstructure:"shell"`

	// ScheduleInterval — период проверки расписаний на сервере.
	ScheduleInterval time.Duration `mapstructure:"schedule_interval"`
}

// Backend хранилища артефактов.
const (
	BackendNone = "none"
	BackendFile = "file"
	BackendS3   = "s3"
)

// ArtifactsConfig — хранилище артефактов.
type ArtifactsConfig struct {
	Backend string   `mapstructure:"backend"`
	Dir     string   `mapstructure:"dir"`
	S3      S3Config `mapstructure:"s3"`
}

// S3Config — S3 или совместимое хранилище.
type S3Config struct {
	Bucket   string `mapstructure:"bucket"`
	Prefix   string `mapstructure:"prefix"`
	Region   string `mapstructure:"region"`
	Endpoint string `mapstructure:"endpoint"`
}

// ActionConfig — внешний action.
type ActionConfig struct {
	Name     string            `mapstructure:"name"`
	Endpoint string            `mapstructure:"endpoint"`
	Headers  map[string]string `mapstructure:"headers"`
	Timeout  time.Duration     `mapstructure:"timeout"`
}

// Telemetry возвращает настройки логгера.
func (c LogConfig) Telemetry() telemetry.LogConfig {
	return telemetry.LogConfig{
		Level:      c.Level,
		Format:     c.Format,
		File:       c.File,
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAgeDays: c.MaxAgeDays,
	}
}

// Artifact возвращает настройки S3Sink.
func (c S3Config) Artifact() artifact.S3Config {
	return artifact.S3Config{
		Bucket:   c.Bucket,
		Prefix:   c.Prefix,
		Region:   c.Region,
		Endpoint: c.Endpoint,
	}
}

// Remote возвращает настройки RemoteAction.
func (c ActionConfig) Remote() actions.RemoteConfig {
	return actions.RemoteConfig{
		Name:     c.Name,
		Endpoint: c.Endpoint,
		Headers:  c.Headers,
		Timeout:  c.Timeout,
	}
}
