package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/salon-voice-booking/cmd/mainconfig"
	appconfig "github.com/wolfman30/salon-voice-booking/internal/config"
	"github.com/wolfman30/salon-voice-booking/internal/events"
	"github.com/wolfman30/salon-voice-booking/internal/observability/metrics"
	"github.com/wolfman30/salon-voice-booking/internal/salon"
	"github.com/wolfman30/salon-voice-booking/pkg/logging"
)

// storeBackend bundles the booking store with the outbox its transactions write to.
type storeBackend struct {
	store  salon.Store
	outbox events.Outbox
	pool   *pgxpool.Pool
}

func (b *storeBackend) Close() {
	if b.pool != nil {
		b.pool.Close()
	}
}

func setupStore(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*storeBackend, error) {
	if cfg.UseMemoryStore {
		outbox := events.NewMemoryOutbox()
		repo := salon.NewInMemoryRepository(outbox)
		if cfg.SeedFile != "" {
			seed, err := salon.LoadSeedFile(cfg.SeedFile)
			if err != nil {
				return nil, err
			}
			seed.Apply(repo)
			logger.Info("seeded in-memory store", "file", cfg.SeedFile, "businesses", len(seed.Businesses))
		}
		logger.Warn("using in-memory store; data is lost on restart")
		return &storeBackend{store: repo, outbox: outbox}, nil
	}

	pool, err := connectPostgresPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	logger.Info("connected to postgres", "max_conns", cfg.DatabaseMaxConns)
	return &storeBackend{
		store:  salon.NewPostgresRepository(pool),
		outbox: events.NewOutboxStore(pool),
		pool:   pool,
	}, nil
}

func connectPostgresPool(ctx context.Context, cfg *appconfig.Config) (*pgxpool.Pool, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.DatabaseMaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.DatabaseMaxConns)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// connectRedis returns nil when Redis is unset or unreachable; the directory
// cache is optional.
func connectRedis(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) *redis.Client {
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	opts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available, directory cache disabled", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

func withDirectoryCache(store salon.Store, client *redis.Client, cfg *appconfig.Config, logger *logging.Logger) salon.Store {
	if client == nil {
		return store
	}
	cache := salon.NewCachedDirectory(store, client, cfg.BusinessCacheTTL, logger)
	return salon.WithDirectory(store, cache)
}

func setupMetrics() (*prometheus.Registry, *metrics.BookingMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, metrics.NewBookingMetrics(reg)
}

func metricsHandler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// setupEventRelay publishes outbox events to SQS when a queue is configured,
// otherwise it logs them.
func setupEventRelay(ctx context.Context, cfg *appconfig.Config, outbox events.Outbox, logger *logging.Logger) (*events.Deliverer, error) {
	var handler events.DeliveryHandler = events.LogHandler{Logger: logger}
	if queueURL := strings.TrimSpace(cfg.EventsQueueURL); queueURL != "" {
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		handler = events.NewSQSPublisher(sqs.NewFromConfig(awsCfg), queueURL)
		logger.Info("publishing booking events to sqs", "queue_url", queueURL)
	}
	return events.NewDeliverer(outbox, handler, logger).
		WithBatchSize(int32(cfg.OutboxBatchSize)).
		WithInterval(cfg.OutboxPollInterval), nil
}
