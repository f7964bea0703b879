package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rickshauling/ticketdrop/internal/outbox"
	"github.com/rickshauling/ticketdrop/internal/shared/config"
	"github.com/rickshauling/ticketdrop/internal/shared/db"
	"github.com/rickshauling/ticketdrop/internal/shared/kafkax"
	"github.com/rickshauling/ticketdrop/internal/shared/logger"
)

const appName = "outbox-relay"

func main() {
	cfg := config.Load()
	log := logger.New(appName, cfg.AppEnv)

	if cfg.DatabaseURL == "" {
		log.Error("config_error", slog.String("err", "DATABASE_URL is empty"))
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pg, err := db.OpenPostgres(ctx, db.PostgresConfig{DatabaseURL: cfg.DatabaseURL})
	if err != nil {
		log.Error("db_open_failed", slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer func() {
		if err := pg.Close(); err != nil {
			log.Error("db_close_failed", slog.String("err", err.Error()))
		}
	}()

	producer := kafkax.NewProducer(kafkax.ProducerConfig{
		Brokers:  cfg.KafkaBrokers,
		Topic:    cfg.KafkaTopic,
		ClientID: appName,
	})
	defer func() { _ = producer.Close() }()

	reg := prometheus.NewRegistry()
	relay := &outbox.Relay{
		Repo:              outbox.NewPostgresRepo(pg),
		Publisher:         producer,
		Metrics:           outbox.NewMetrics(reg),
		Log:               log,
		BatchSize:         cfg.OutboxBatchSize,
		ProcessingTimeout: cfg.OutboxProcessingTimeout,
	}

	metricsSrv := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("metrics_listen", slog.String("addr", metricsSrv.Addr))
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics_server_error", slog.String("err", err.Error()))
		}
	}()

	log.Info("relay_start",
		slog.Int("batch_size", cfg.OutboxBatchSize),
		slog.String("poll_interval", cfg.OutboxPollInterval.String()),
		slog.String("processing_timeout", cfg.OutboxProcessingTimeout.String()),
		slog.String("topic", cfg.KafkaTopic),
	)

	relay.Run(ctx, cfg.OutboxPollInterval)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
	log.Info("relay_shutdown")
}
