package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/rickshauling/ticketdrop/internal/billing"
	"github.com/rickshauling/ticketdrop/internal/outbox"
	"github.com/rickshauling/ticketdrop/internal/shared/config"
	"github.com/rickshauling/ticketdrop/internal/shared/db"
	"github.com/rickshauling/ticketdrop/internal/shared/httpx"
	"github.com/rickshauling/ticketdrop/internal/shared/logger"
	"github.com/rickshauling/ticketdrop/internal/shared/telemetry"
	"github.com/rickshauling/ticketdrop/internal/ticket"
	"github.com/rickshauling/ticketdrop/internal/vocab"
)

const appName = "ticket-service"

func main() {
	cfg := config.Load()
	log := logger.New(appName, cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing := telemetry.Setup(ctx, log, appName)
	defer func() { _ = shutdownTracing(context.Background()) }()

	var (
		store  ticket.Store
		events ticket.Publisher
	)
	switch cfg.StoreDriver {
	case "postgres":
		pg, err := db.OpenPostgres(ctx, db.PostgresConfig{DatabaseURL: cfg.DatabaseURL})
		if err != nil {
			log.Error("db_open_failed", slog.String("err", err.Error()))
			os.Exit(1)
		}
		defer closeDB(log, pg)

		store = ticket.NewPostgresStore(pg)
		events = outbox.NewPostgresRepo(pg)
	case "memory":
		mem := ticket.NewInMemoryStore()
		store = mem
		if cfg.VocabularyFile == "" {
			log.Warn("vocabulary_not_configured")
		}
	default:
		log.Error("config_error", slog.String("err", "unknown STORE_DRIVER "+cfg.StoreDriver))
		os.Exit(2)
	}
	log.Info("store_selected", slog.String("driver", cfg.StoreDriver))

	var source vocab.Source = store
	if cfg.VocabularyFile != "" {
		source = vocab.FileSource{Path: cfg.VocabularyFile}
	}
	cache := &vocab.Cache{Source: source, TTL: cfg.VocabCacheTTL, Log: log}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer func() { _ = rdb.Close() }()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn("redis_unavailable", slog.String("addr", cfg.RedisAddr), slog.String("err", err.Error()))
		}
		cache.Client = rdb
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	engine := &ticket.Engine{
		Store:   store,
		Vocab:   cache,
		Events:  events,
		Metrics: ticket.NewMetrics(reg),
		Log:     log,
	}
	coordinator := &billing.Coordinator{
		Source:  store,
		Writer:  billing.FileWriter{Dir: cfg.ExportDir},
		Events:  events,
		Metrics: billing.NewMetrics(reg),
		Log:     log,
		Company: cfg.CompanyName,
	}

	auth := httpx.NewAuth(cfg.JWTSecret)
	if auth == nil {
		log.Warn("auth_disabled")
	}

	handler := httpx.NewRouter(log,
		httpx.Options{Auth: auth, Metrics: httpx.NewMetrics(reg), Gatherer: reg},
		&ticket.Handler{Log: log, Engine: engine},
		&billing.Handler{Log: log, Coordinator: coordinator},
	)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           otelhttp.NewHandler(handler, appName),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("http_listen", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http_server_error", slog.String("err", err.Error()))
			stop()
		}
	}()

	httpx.WaitAndShutdown(ctx, log, srv, 10*time.Second)
}

func closeDB(log *slog.Logger, pg *sql.DB) {
	if err := pg.Close(); err != nil {
		log.Error("db_close_failed", slog.String("err", err.Error()))
	}
}
