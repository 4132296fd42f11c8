// Conveyor Server — HTTP API и планировщик.
//
// Server:
//   - Принимает workflow через HTTP API и выполняет их (или ставит в очередь agent'ов)
//   - Запускает workflows из конфигурации по расписанию
//   - Сохраняет историю выполнений в PostgreSQL (если настроено)
//   - Публикует события выполнения в RabbitMQ (если настроено)
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/shaiso/Conveyor/internal/api"
	"github.com/shaiso/Conveyor/internal/app"
	"github.com/shaiso/Conveyor/internal/config"
	"github.com/shaiso/Conveyor/internal/mq"
	"github.com/shaiso/Conveyor/internal/orchestrator"
	"github.com/shaiso/Conveyor/internal/repo"
	"github.com/shaiso/Conveyor/internal/telemetry"
	"github.com/shaiso/Conveyor/internal/trigger"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var configPath string
	v := config.NewViper()

	rootCmd := &cobra.Command{
		Use:           "conveyor-server",
		Short:         "Conveyor HTTP API and scheduler",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.BindFlags(v, cmd.Flags(), map[string]string{
				"http.addr":    "addr",
				"database.url": "database-url",
				"rabbitmq.url": "rabbitmq-url",
			}); err != nil {
				return err
			}
			cfg, err := config.LoadViper(v, configPath)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "Config file (default: ./conveyor.yaml)")
	rootCmd.Flags().String("addr", "", "HTTP listen address")
	rootCmd.Flags().String("database-url", "", "PostgreSQL DSN (empty = no history)")
	rootCmd.Flags().String("rabbitmq-url", "", "RabbitMQ URL (empty = no events)")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	cancel()

	if err != nil {
		slog.Error("conveyor-server failed", "error", err)
		os.Exit(1)
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger, closeLog := telemetry.SetupLogger(cfg.Log.Telemetry())
	defer closeLog()
	logger.Info("starting conveyor-server", "version", version)

	var (
		publisher  orchestrator.Publisher
		store      orchestrator.Store
		history    api.History
		dispatcher api.Dispatcher
		leader     trigger.Leader
	)

	// DB pool
	if cfg.Database.URL != "" {
		pool, err := repo.NewPool(ctx, repo.PoolConfig{URL: cfg.Database.URL, MaxConns: cfg.Database.MaxConns})
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := repo.Migrate(ctx, pool); err != nil {
			return err
		}
		logger.Info("database connected")

		runRepo := repo.NewRunRepo(pool)
		store, history = runRepo, runRepo

		l := repo.NewLeader(pool, repo.SchedulerLockKey)
		defer l.Release(context.Background())
		leader = l
	}

	// RabbitMQ
	if cfg.RabbitMQ.URL != "" {
		conn, err := mq.NewConnection(mq.ConnectionConfig{URL: cfg.RabbitMQ.URL, Logger: logger})
		if err != nil {
			if cfg.RabbitMQ.Dispatch {
				return err
			}
			logger.Warn("RabbitMQ not available, events disabled", "error", err)
		} else {
			defer conn.Close()
			logger.Info("RabbitMQ connected")

			// Создаём топологию
			if err := mq.SetupTopology(ctx, conn); err != nil {
				logger.Warn("failed to setup topology", "error", err)
			}

			p := mq.NewPublisher(conn, logger)
			publisher = p
			if cfg.RabbitMQ.Dispatch {
				dispatcher = p
			}
		}
	}

	a, err := app.New(ctx, cfg, app.Options{
		Registerer: prometheus.DefaultRegisterer,
		Publisher:  publisher,
		Store:      store,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	defer a.Orchestrator.Stop()

	// Scheduler
	workflows, err := app.LoadWorkflows(a.Parser, cfg.Workflows)
	if err != nil {
		return err
	}
	scheduler, err := trigger.NewScheduler(trigger.Config{
		Workflows: workflows,
		Launcher:  a.Orchestrator,
		Leader:    leader,
		Metrics:   a.Metrics,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	go scheduler.Run(ctx, cfg.Execution.ScheduleInterval)

	// HTTP API
	handler := api.NewHandler(api.Config{
		Runs:           a.Orchestrator,
		Parser:         a.Parser,
		History:        history,
		Dispatcher:     dispatcher,
		Schedules:      scheduler,
		Metrics:        a.Metrics,
		MetricsHandler: promhttp.Handler(),
		Logger:         logger,
	})

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.HTTP.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Ожидаем сигнал завершения
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		return err
	}
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("stopped")
	return nil
}
