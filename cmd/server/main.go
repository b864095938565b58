// Command server runs the consistency backbone: the outbox relay, the
// revenue projector, the backlog monitor, and the operational HTTP surface.
// Business route handlers live in the platform services that import this
// module; this process owns the background loops and ops endpoints.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/tbourn/go-platform-core/internal/config"
	httpapi "github.com/tbourn/go-platform-core/internal/http"
	"github.com/tbourn/go-platform-core/internal/monitor"
	"github.com/tbourn/go-platform-core/internal/observability"
	"github.com/tbourn/go-platform-core/internal/repo"
	"github.com/tbourn/go-platform-core/internal/services"
	"github.com/tbourn/go-platform-core/internal/sysutil"
)

const version = "0.1.0"

func main() {
	// .env is optional; real deployments use the environment directly.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		zlog.Logger = zlog.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	logger := zlog.With().Str("service", "platform-core").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		logger.Fatal().Err(err).Msg("otel setup failed")
	}

	db, err := repo.OpenSQLite(cfg.DBPath, repo.OpenOptions{
		Tracing:      cfg.OTEL.Enabled,
		MaxOpenConns: cfg.MaxOpenConns,
	})
	if err != nil {
		logger.Fatal().Err(err).Str("db_path", cfg.DBPath).Msg("open database failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		logger.Fatal().Err(err).Msg("migrate failed")
	}

	// In-process transport. The relay and consumers only see the watermill
	// interfaces, so swapping in an external bus is a wiring change here.
	pubsub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NewStdLogger(false, false))

	projector := services.NewRevenueProjector(db, logger)
	consumer := services.NewConsumer(pubsub, projector, logger)
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		if err := consumer.Run(ctx); err != nil {
			logger.Error().Err(err).Msg("consumer stopped with error")
		}
	}()

	relay := services.NewRelay(db, pubsub, services.RelayConfig{
		PollInterval: cfg.Relay.PollInterval,
		BatchSize:    cfg.Relay.BatchSize,
		PublishRPS:   cfg.Relay.PublishRPS,
		PublishBurst: cfg.Relay.PublishBurst,
	}, logger)
	relay.Start(ctx)

	mon := monitor.New(db, monitor.Config{
		Interval:           cfg.Monitor.Interval,
		PendingThreshold:   cfg.Monitor.PendingThreshold,
		OldestAgeThreshold: cfg.Monitor.OldestAgeThreshold,
		Consumers:          []string{services.RevenueConsumerName},
	}, logger)
	mon.Start(ctx)

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, mon)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("ops server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("ops server failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("ops server shutdown")
	}
	relay.Stop()
	mon.Stop()
	if err := pubsub.Close(); err != nil {
		logger.Error().Err(err).Msg("pubsub close")
	}
	<-consumerDone
	if err := otelShutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("otel shutdown")
	}
	logger.Info().Msg("bye")
}
