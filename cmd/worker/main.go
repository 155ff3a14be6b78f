package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/fleetdiag/log-ingest/internal/clickhouse"
	"github.com/fleetdiag/log-ingest/internal/config"
	"github.com/fleetdiag/log-ingest/internal/ingest"
	"github.com/fleetdiag/log-ingest/internal/notify"
	"github.com/fleetdiag/log-ingest/internal/observability"
	"github.com/fleetdiag/log-ingest/internal/queue"
	"github.com/fleetdiag/log-ingest/internal/retry"
	"github.com/fleetdiag/log-ingest/internal/state"
	"github.com/fleetdiag/log-ingest/internal/storage"
	"github.com/fleetdiag/log-ingest/internal/writer"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	observability.InitLogger(cfg.LogLevel)
	log.Info().Msg("Starting ingest worker")

	shutdownTracer, err := observability.InitTracer(observability.TracerConfig{
		ServiceName:    "log-ingest-worker",
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

	retryCfg := retry.Config{
		MaxAttempts:     cfg.RetryMaxAttempts,
		InitialDelay:    time.Duration(cfg.RetryInitialDelayMs) * time.Millisecond,
		MaxDelay:        time.Duration(cfg.RetryMaxDelayMs) * time.Millisecond,
		Multiplier:      cfg.RetryMultiplier,
		RetryableErrors: retry.DefaultConfig().RetryableErrors,
	}

	chClient, err := clickhouse.NewClient(ctx, clickhouse.Options{
		Host:     cfg.ClickHouseHost,
		Port:     cfg.ClickHousePort,
		Database: cfg.ClickHouseDB,
		Username: cfg.ClickHouseUser,
		Password: cfg.ClickHousePassword,
		RetryCfg: retryCfg,
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

	cache, err := writer.NewFingerprintCache(cfg.FingerprintCachePath)
	if err != nil {
		log.Warn().Err(err).Msg("Fingerprint cache unavailable, relying on store-side checks")
		cache = nil
	}
	defer cache.Close()

	bulkWriter := writer.NewClickHouseWriter(chClient, cache)

	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
	})
	defer redisClient.Close()

	notifier := notify.Multi{notify.NewRedisNotifier(redisClient)}

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

	worker := ingest.NewWorker(gateway, fileStore, bulkWriter, notifier, cfg.BatchSize)

	policy := queue.RetryPolicy{
		MaxAttempts:  cfg.JobMaxAttempts,
		InitialDelay: time.Duration(cfg.JobBackoffMs) * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     time.Duration(cfg.JobBackoffMaxMs) * time.Millisecond,
	}

	consumer, err := queue.NewConsumer(conn, cfg.QueueExchange, cfg.QueueRoutingKey, cfg.QueueName, worker, publisher, policy)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create consumer")
	}
	defer consumer.Close()

	if err := consumer.Start(ctx); err != nil {
		log.Error().Err(err).Msg("Consumer stopped with error")
	}

	log.Info().Msg("Ingest worker stopped")
}
