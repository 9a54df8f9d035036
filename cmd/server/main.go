// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal packages.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"audittrail/internal/event/cache"
	"audittrail/internal/event/handler"
	eventmetrics "audittrail/internal/event/metrics"
	"audittrail/internal/event/service"
	"audittrail/internal/event/store/postgres"
	"audittrail/internal/identity"
	"audittrail/internal/outbox"
	"audittrail/internal/outbox/kafka"
	"audittrail/internal/platform/config"
	"audittrail/internal/platform/httpserver"
	"audittrail/internal/platform/logger"
	platformredis "audittrail/internal/platform/redis"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	log := logger.New(slog.LevelInfo)
	slog.SetDefault(log)

	if err := run(context.Background(), *configPath, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	db, err := postgres.Open(ctx, cfg.DB.DSN)
	if err != nil {
		return err
	}
	defer db.Close()
	eventStore := postgres.New(db)

	svcOpts := []service.Option{
		service.WithLogger(log),
		service.WithMetrics(eventmetrics.New()),
	}
	if len(cfg.Kafka.Brokers) == 0 {
		log.Warn("kafka brokers not configured, change feed disabled")
		svcOpts = append(svcOpts, service.WithoutChangeFeed())
	}

	redisClient, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		svcOpts = append(svcOpts, service.WithCache(
			cache.NewIdempotency(redisClient.Client, cfg.Redis.CacheTTL)))
	}

	events := service.New(eventStore, svcOpts...)
	verifier := identity.NewJWTVerifier(cfg.Auth.JWTSigningKey, cfg.Auth.Issuer, cfg.Auth.Audience)

	router := chi.NewRouter()
	handler.New(events, log, verifier).Register(router)
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	srv := httpserver.New(cfg.Server.Addr, router)

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Info("starting audittrail server", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if len(cfg.Kafka.Brokers) > 0 {
		publisher, err := kafka.NewPublisher(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.Partitions)
		if err != nil {
			return err
		}
		defer publisher.Close()

		worker := outbox.NewWorker(
			outbox.NewPostgres(db),
			publisher,
			log,
			cfg.Outbox.Interval,
			cfg.Outbox.BatchSize,
		)
		group.Go(func() error {
			log.Info("starting outbox worker", "topic", cfg.Kafka.Topic)
			if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	return group.Wait()
}
