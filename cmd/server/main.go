package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"audittrail/internal/platform/config"
	"audittrail/internal/platform/database"
	"audittrail/internal/platform/health"
	"audittrail/internal/platform/kafka"
	"audittrail/internal/platform/kafka/consumer"
	"audittrail/internal/platform/kafka/producer"
	"audittrail/internal/platform/logger"
	"audittrail/internal/platform/metrics"
	"audittrail/internal/platform/redis"
	httptransport "audittrail/internal/transport/http"
	audit "audittrail/pkg/platform/audit"
	auditconsumer "audittrail/pkg/platform/audit/consumer"
	"audittrail/pkg/platform/audit/outbox"
	outboxmetrics "audittrail/pkg/platform/audit/outbox/metrics"
	outboxpostgres "audittrail/pkg/platform/audit/outbox/store/postgres"
	"audittrail/pkg/platform/audit/outbox/worker"
	"audittrail/pkg/platform/audit/retention"
	"audittrail/pkg/platform/audit/store/cached"
	"audittrail/pkg/platform/audit/store/memory"
	"audittrail/pkg/platform/audit/store/postgres"
	"audittrail/pkg/platform/circuit"
	"audittrail/pkg/secrets"
)

const backgroundStatsInterval = 15 * time.Second

// main loads configuration and hands over to run; everything that can fail
// returns an error so deferred cleanup still happens.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logger.New(cfg.Server.LogLevel)

	if err := run(cfg, log); err != nil {
		log.Error("audit trail server failed", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("initializing audit trail",
		"addr", cfg.Server.Addr,
		"env", cfg.Server.Environment,
		"postgres", cfg.Database.URL != "",
		"redis", cfg.Redis.URL != "",
		"kafka", cfg.Kafka.Enabled(),
	)
	checks := health.New(cfg.Server.Environment)

	pool, err := database.New(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close() //nolint:errcheck // shutdown path

	var repo audit.IdempotentRepository
	var outboxStore outbox.Store
	if pool != nil {
		if err := pool.Migrate(ctx); err != nil {
			return err
		}
		repo = postgres.New(pool.DB())
		outboxStore = outboxpostgres.New(pool.DB())
		checks.RegisterCheck("database", pool.Health)
		if err := prometheus.DefaultRegisterer.Register(pool.Collector("audit")); err != nil {
			log.Warn("database stats collector not registered", "error", err)
		}
	} else {
		log.Warn("DATABASE_URL not set, keeping audit events in memory")
		repo = memory.New()
	}

	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close() //nolint:errcheck // shutdown path
		repo = cached.New(repo, cached.NewRedisCache(redisClient.Client),
			cached.WithTTL(cfg.Redis.StatisticsTTL),
			cached.WithLogger(log),
			cached.WithBreaker(circuit.New("statistics-cache")),
		)
		checks.RegisterCheck("redis", redisClient.Health)
		go redisClient.StartPoolStats(ctx, backgroundStatsInterval)
	}

	if cfg.Kafka.Enabled() {
		stopMessaging, err := startMessaging(ctx, cfg.Kafka, repo, outboxStore, checks, log)
		if err != nil {
			return err
		}
		defer stopMessaging()
	}

	retentionOpts := []retention.Option{
		retention.WithInterval(cfg.Retention.Interval),
		retention.WithLogger(log),
		retention.WithMetrics(retention.DefaultMetrics()),
	}
	if outboxStore != nil {
		retentionOpts = append(retentionOpts, retention.WithOutbox(outboxStore, cfg.Retention.OutboxPeriod))
	}
	go func() {
		_ = retention.New(repo, cfg.Retention.Period, retentionOpts...).Start(ctx)
	}()

	routerCfg := httptransport.RouterConfig{
		Health:         checks,
		AdminToken:     cfg.Server.AdminToken,
		Metrics:        metrics.New(prometheus.DefaultRegisterer),
		Gatherer:       prometheus.DefaultGatherer,
		RequestTimeout: cfg.Server.WriteTimeout,
	}
	routerCfg.Audit = httptransport.NewHandler(repo, log, httptransport.WithMetrics(routerCfg.Metrics))
	if cfg.Server.AdminTokenHash != "" {
		verifier, err := secrets.NewHashedToken(cfg.Server.AdminTokenHash)
		if err != nil {
			return err
		}
		routerCfg.AdminVerifier = verifier
	}
	router := httptransport.NewRouter(routerCfg, log)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout + time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("starting http server", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down server gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

// startMessaging bootstraps the topic, relays the outbox to Kafka when a
// database is configured, and stores consumed events. The returned func
// stops everything it started.
func startMessaging(ctx context.Context, cfg config.KafkaConfig, repo audit.IdempotentRepository, outboxStore outbox.Store, checks *health.Handler, log *slog.Logger) (func(), error) {
	if err := kafka.EnsureTopic(ctx, cfg.Brokers, cfg.Topic, cfg.Partitions, cfg.ReplicationFactor); err != nil {
		return nil, err
	}
	checks.RegisterCheck("kafka", kafka.NewHealthChecker(cfg.Brokers).Check)

	var stops []func(context.Context)

	if outboxStore != nil {
		prod, err := producer.New(producer.Config{
			Brokers:         cfg.Brokers,
			Acks:            "all",
			Retries:         10,
			DeliveryTimeout: 30 * time.Second,
		}, log)
		if err != nil {
			return nil, err
		}
		relay := worker.New(outboxStore, prod,
			worker.WithTopic(cfg.Topic),
			worker.WithBatchSize(cfg.OutboxBatchSize),
			worker.WithPollInterval(cfg.OutboxInterval),
			worker.WithMetrics(outboxmetrics.Default()),
			worker.WithLogger(log),
		)
		relay.Start(ctx)
		go reportOutboxDepth(ctx, relay, log)

		stops = append(stops, func(ctx context.Context) {
			if err := relay.Stop(ctx); err != nil {
				log.Warn("outbox worker stop", "error", err)
			}
			if err := prod.Close(); err != nil {
				log.Warn("kafka producer close", "error", err)
			}
		})
	}

	cons, err := consumer.New(consumer.Config{
		Brokers: cfg.Brokers,
		GroupID: cfg.GroupID,
		Topics:  []string{cfg.Topic},
	}, auditconsumer.NewHandler(repo, log), log)
	if err != nil {
		return nil, err
	}
	cons.Start(ctx)
	stops = append(stops, func(ctx context.Context) {
		if err := cons.Stop(ctx); err != nil {
			log.Warn("kafka consumer stop", "error", err)
		}
	})

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		// Reverse start order: consumer, then the outbox relay and producer.
		for i := len(stops) - 1; i >= 0; i-- {
			stops[i](ctx)
		}
	}, nil
}

func reportOutboxDepth(ctx context.Context, relay *worker.Worker, log *slog.Logger) {
	ticker := time.NewTicker(backgroundStatsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := relay.UpdateMetrics(ctx); err != nil {
				log.Warn("outbox depth metrics", "error", err)
			}
		}
	}
}
