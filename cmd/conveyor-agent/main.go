// Conveyor Agent — выполняет workflow из очереди RabbitMQ.
//
// Agent:
//   - Получает запросы на выполнение из очереди runs.requested
//   - Выполняет jobs на своих runner'ах
//   - Публикует события выполнения и сохраняет отчёты (если настроено)
//
// Agents масштабируются горизонтально; rabbitmq.prefetch ограничивает
// число одновременных выполнений на одном agent.
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

	"github.com/shaiso/Conveyor/internal/app"
	"github.com/shaiso/Conveyor/internal/config"
	"github.com/shaiso/Conveyor/internal/mq"
	"github.com/shaiso/Conveyor/internal/orchestrator"
	"github.com/shaiso/Conveyor/internal/repo"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var configPath string
	v := config.NewViper()
	// agent отдаёт только /healthz и /metrics
	v.SetDefault("http.addr", ":8082")

	rootCmd := &cobra.Command{
		Use:           "conveyor-agent",
		Short:         "Conveyor agent: executes queued workflow runs",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.BindFlags(v, cmd.Flags(), map[string]string{
				"http.addr":          "addr",
				"rabbitmq.url":       "rabbitmq-url",
				"rabbitmq.prefetch":  "prefetch",
				"execution.runners":  "runners",
				"execution.work_dir": "work-dir",
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
	rootCmd.Flags().String("addr", "", "Health and metrics listen address")
	rootCmd.Flags().String("rabbitmq-url", "", "RabbitMQ URL")
	rootCmd.Flags().Int("prefetch", 0, "Concurrent runs on this agent")
	rootCmd.Flags().StringSlice("runners", nil, "Runner descriptors served by this agent")
	rootCmd.Flags().String("work-dir", "", "Directory for job workspaces")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	cancel()

	if err != nil {
		slog.Error("conveyor-agent failed", "error", err)
		os.Exit(1)
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger, closeLog := telemetry.SetupLogger(cfg.Log.Telemetry())
	defer closeLog()
	logger.Info("starting conveyor-agent", "version", version)

	var store orchestrator.Store

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
		store = repo.NewRunRepo(pool)
	}

	// RabbitMQ
	conn, err := mq.NewConnection(mq.ConnectionConfig{URL: cfg.RabbitMQ.URL, Logger: logger})
	if err != nil {
		return err
	}
	defer conn.Close()
	logger.Info("RabbitMQ connected")

	if err := mq.SetupTopology(ctx, conn); err != nil {
		return err
	}

	a, err := app.New(ctx, cfg, app.Options{
		Registerer: prometheus.DefaultRegisterer,
		Publisher:  mq.NewPublisher(conn, logger),
		Store:      store,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	defer a.Orchestrator.Stop()

	hostname, _ := os.Hostname()
	consumer := mq.NewConsumer(conn, logger, mq.ConsumerConfig{
		Queue:    mq.QueueRunsRequested,
		Tag:      "conveyor-agent-" + hostname,
		Handler:  a.Orchestrator.RunRequestedHandler(a.Parser),
		Prefetch: cfg.RabbitMQ.Prefetch,
	})

	consumeErr := make(chan error, 1)
	go func() {
		consumeErr <- consumer.Start(ctx)
	}()

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		if !conn.IsConnected() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("broker disconnected"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", promhttp.Handler())

	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: mux}
	go func() {
		logger.Info("listening", "addr", cfg.HTTP.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Ожидаем сигнал завершения
	select {
	case <-ctx.Done():
	case err := <-consumeErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("consumer stopped", "error", err)
		}
	}
	logger.Info("shutting down")

	consumer.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("conveyor-agent stopped")
	return nil
}
