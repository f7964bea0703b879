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

	"github.com/rickshauling/ticketdrop/internal/notify"
	"github.com/rickshauling/ticketdrop/internal/shared/config"
	"github.com/rickshauling/ticketdrop/internal/shared/db"
	"github.com/rickshauling/ticketdrop/internal/shared/kafkax"
	"github.com/rickshauling/ticketdrop/internal/shared/logger"
)

const appName = "notification-service"

func main() {
	cfg := config.Load()
	log := logger.New(appName, cfg.AppEnv)

	if cfg.DatabaseURL == "" {
		log.Error("config_error", slog.String("err", "DATABASE_URL is empty"))
		os.Exit(2)
	}
	groupID := cfg.KafkaGroupID
	if groupID == "" {
		groupID = appName
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pg, err := db.OpenPostgres(ctx, db.PostgresConfig{DatabaseURL: cfg.DatabaseURL})
	if err != nil {
		log.Error("db_open_failed", slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer func() { _ = pg.Close() }()

	handler := &notify.Handler{Store: notify.NewPostgresStore(pg), Log: log}
	consumer := kafkax.NewConsumer(kafkax.ConsumerConfig{Brokers: cfg.KafkaBrokers, Topic: cfg.KafkaTopic, GroupID: groupID})
	defer func() { _ = consumer.Close() }()

	reg := prometheus.NewRegistry()
	processed := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "notify_processed_total", Help: "Processed events."}, []string{"event_type", "status"})
	reg.MustRegister(processed)

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

	log.Info("consumer_start", slog.String("topic", cfg.KafkaTopic), slog.String("group_id", groupID))

	for ctx.Err() == nil {
		msg, err := consumer.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			log.Error("kafka_fetch_failed", slog.String("err", err.Error()))
			time.Sleep(300 * time.Millisecond)
			continue
		}

		evType, err := handler.Handle(ctx, msg.Value)
		status := "ok"
		if err != nil {
			status = "error"
			log.Error("message_handle_failed", slog.String("event_type", evType), slog.String("err", err.Error()))
		}
		processed.WithLabelValues(evType, status).Inc()
		if err != nil {
			continue
		}

		if err := consumer.CommitMessages(ctx, msg); err != nil {
			log.Error("kafka_commit_failed", slog.String("err", err.Error()))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
	log.Info("consumer_shutdown")
}
