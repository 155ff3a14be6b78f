package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/fleetdiag/log-ingest/internal/api"
	"github.com/fleetdiag/log-ingest/internal/clickhouse"
	"github.com/fleetdiag/log-ingest/internal/config"
	"github.com/fleetdiag/log-ingest/internal/files"
	"github.com/fleetdiag/log-ingest/internal/logs"
	"github.com/fleetdiag/log-ingest/internal/notify"
	"github.com/fleetdiag/log-ingest/internal/observability"
	"github.com/fleetdiag/log-ingest/internal/queue"
	"github.com/fleetdiag/log-ingest/internal/retry"
	"github.com/fleetdiag/log-ingest/internal/state"
	"github.com/fleetdiag/log-ingest/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	observability.InitLogger(cfg.LogLevel)
	log.Info().Msg("Starting ingest API")

	shutdownTracer, err := observability.InitTracer(observability.TracerConfig{
		ServiceName:    "log-ingest-api",
		ServiceVersion: "1.0.0",
		Endpoint:       cfg.OTLPEndpoint,
		Protocol:       cfg.OTLPProtocol,
		Enabled:        cfg.TracingEnabled,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize tracer")
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Error().Err(err).Msg("Failed to shutdown tracer")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chClient, err := clickhouse.NewClient(ctx, clickhouse.Options{
		Host:     cfg.ClickHouseHost,
		Port:     cfg.ClickHousePort,
		Database: cfg.ClickHouseDB,
		Username: cfg.ClickHouseUser,
		Password: cfg.ClickHousePassword,
		RetryCfg: retry.DefaultConfig(),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to ClickHouse")
	}
	defer chClient.Close()

	if err := chClient.EnsureSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure ClickHouse schema")
	}

	db, err := state.NewPostgres(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Postgres")
	}
	fileStore := state.NewStore(db)

	gateway, err := storage.New(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create storage gateway")
	}
	if err := gateway.EnsureBucket(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure bucket")
	}

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to RabbitMQ")
	}
	defer conn.Close()

	publisher, err := queue.NewPublisher(conn, cfg.QueueExchange, cfg.QueueRoutingKey)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create publisher")
	}
	defer publisher.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
	})
	defer redisClient.Close()

	hub := notify.NewHub()
	bridge := notify.NewRedisBridge(redisClient, hub)
	go func() {
		if err := bridge.Run(ctx); err != nil {
			log.Error().Err(err).Msg("Progress bridge stopped with error")
		}
	}()

	logSvc := logs.NewService(chClient)
	fileSvc := files.NewService(
		gateway,
		fileStore,
		logSvc,
		publisher,
		time.Duration(cfg.PresignTTLSecs)*time.Second,
		cfg.SampleLines,
		cfg.MinValidRatio,
	)

	router := api.NewRouter(fileSvc, logSvc, hub)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Int("port", cfg.HTTPPort).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP shutdown failed")
	}

	log.Info().Msg("Ingest API stopped")
}
