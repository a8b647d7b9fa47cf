package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/wolfman30/salon-voice-booking/internal/api/router"
	"github.com/wolfman30/salon-voice-booking/internal/booking"
	appconfig "github.com/wolfman30/salon-voice-booking/internal/config"
	"github.com/wolfman30/salon-voice-booking/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/salon-voice-booking/internal/http/middleware"
	"github.com/wolfman30/salon-voice-booking/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger.Info("starting salon voice booking API",
		"env", cfg.Env,
		"port", cfg.Port,
		"memory_store", cfg.UseMemoryStore,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := setupStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize store", "error", err)
		os.Exit(1)
	}
	defer backend.Close()

	redisClient := connectRedis(ctx, cfg, logger)
	if redisClient != nil {
		defer redisClient.Close()
	}
	store := withDirectoryCache(backend.store, redisClient, cfg, logger)

	registry, bookingMetrics := setupMetrics()

	svc := booking.NewService(store, logger).
		WithMetrics(bookingMetrics).
		WithDefaultTimezone(cfg.DefaultTimezone)

	var limiter *httpmiddleware.RateLimiter
	if cfg.RateLimitRPS > 0 {
		limiter = httpmiddleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
		defer limiter.Stop()
	}

	r := router.New(&router.Config{
		Logger:         logger,
		VoiceTools:     handlers.NewVoiceToolsHandler(svc, cfg.DefaultBusinessPhone, logger),
		MetricsHandler: metricsHandler(registry),
		RequestTimeout: cfg.RequestTimeout,
		RateLimiter:    limiter,

		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})

	relay, err := setupEventRelay(ctx, cfg, backend.outbox, logger)
	if err != nil {
		logger.Error("failed to initialize event relay", "error", err)
		os.Exit(1)
	}
	relay.WithObserver(bookingMetrics.ObserveOutboxDelivered)
	relayDone := make(chan struct{})
	go func() {
		defer close(relayDone)
		relay.Start(ctx)
	}()

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down server...")
	case err := <-serverErr:
		logger.Error("server error", "error", err)
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	<-relayDone
	logger.Info("server stopped")
}
