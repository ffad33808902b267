// cmd/portal-service/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"portal-service/internal/api"
	"portal-service/internal/common/auth"
	"portal-service/internal/common/config"
	"portal-service/internal/common/database"
	"portal-service/internal/common/logger"
	"portal-service/internal/common/messaging"
	"portal-service/internal/common/observability"
	"portal-service/internal/common/policy"
	"portal-service/internal/common/validation"
	"portal-service/internal/inbox"
	"portal-service/internal/lookup"
	"portal-service/internal/outbox"
	"portal-service/internal/service"
	"portal-service/internal/store"

	psu "portal-service/internal/workers/application/payment-status-updated"
	ls "portal-service/internal/workers/lookup/lookup-sync"
	wlu "portal-service/internal/workers/professional/work-location-updated"
	ra "portal-service/internal/workers/review/review-approved"
	rr "portal-service/internal/workers/review/review-rejected"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.NewWithOptions(logger.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog).WithFields(map[string]interface{}{"version": cfg.App.Version})

	zapLog.Info("Starting portal service...", zap.String("environment", cfg.App.Environment))

	obs, err := observability.New(cfg.App.Name)
	if err != nil {
		zapLog.Fatal("observability init failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Postgres with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Postgres connection")
	if err != nil {
		zapLog.Fatal("postgres unavailable", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Database.Postgres.AutoMigrate {
		if err := pg.EnsureSchema(ctx); err != nil {
			zapLog.Fatal("schema migration failed", zap.Error(err))
		}
	}

	// --- Redis with retry ---
	var rc *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		rc, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return rc.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis unavailable", zap.Error(err))
	}
	defer rc.Close()

	// --- Domain wiring ---
	records := store.NewPostgres(pg, log)
	lookups := lookup.NewService(pg, rc, config.GetDuration(cfg.Lookups.CacheTTL), log)

	producer := messaging.NewProducer(cfg.Kafka, log)
	defer producer.Close()
	publisher := outbox.New(producer, cfg.Kafka.PublishTopic, lookups, log)

	dedup := inbox.NewDeduplicator(rc, config.GetDuration(cfg.Inbox.DedupTTL), config.GetDuration(cfg.Inbox.ClaimLease), log)
	in := inbox.New(dedup, obs, log)

	payment := psu.NewHandler(psu.LoadConfig(), records, publisher, log)
	for _, eventType := range psu.EventTypes {
		in.Register(eventType, payment)
	}
	in.Register(ra.EventType, ra.NewHandler(ra.LoadConfig(), records, publisher, log))
	in.Register(rr.EventType, rr.NewHandler(rr.LoadConfig(), records, publisher, log))
	in.Register(wlu.EventType, wlu.NewHandler(wlu.LoadConfig(), records, log))
	lookupSync := ls.NewHandler(ls.LoadConfig(), lookups, log)
	for _, eventType := range ls.EventTypes {
		in.Register(eventType, lookupSync)
	}
	zapLog.Info("Event handlers registered", zap.Strings("eventTypes", in.EventTypes()))

	reader := messaging.NewReader(cfg.Kafka)
	consumer := messaging.NewConsumer(reader, producer, in.HandleMessage, messaging.ConsumerOptions{
		MaxAttempts:     cfg.Inbox.MaxAttempts,
		BaseBackoff:     config.GetDuration(cfg.Inbox.BaseBackoff),
		MaxBackoff:      config.GetDuration(cfg.Inbox.MaxBackoff),
		DeadLetterTopic: cfg.Kafka.DeadLetterTopic,
	}, log)

	// --- HTTP surface ---
	validator, err := validation.NewValidator()
	if err != nil {
		zapLog.Fatal("schema compilation failed", zap.Error(err))
	}

	var gate policy.Evaluator = policy.AllowAll{}
	if cfg.Policy.Enabled {
		gate = policy.NewClient(cfg.Policy, rc, log)
	} else {
		zapLog.Warn("Policy gate disabled; every authenticated request is permitted")
	}

	svc := service.New(records, publisher, lookups, log)
	ready := func(ctx context.Context) error {
		if err := pg.Ping(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		if err := rc.Ping(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		return nil
	}
	server := api.NewServer(svc, validator, auth.NewVerifier(cfg.Auth), gate, ready, log)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      server.Router(),
		ReadTimeout:  config.GetDuration(cfg.HTTP.ReadTimeout),
		WriteTimeout: config.GetDuration(cfg.HTTP.WriteTimeout),
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			zapLog.Error("Consumer stopped with error", zap.Error(err))
			stop()
		}
	}()
	go func() {
		defer wg.Done()
		zapLog.Info("HTTP server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Error("HTTP server failed", zap.Error(err))
			stop()
		}
	}()

	// --- Graceful Shutdown ---
	<-ctx.Done()
	zapLog.Info("Shutdown signal received, draining...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(cfg.HTTP.ShutdownTimeout))
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error shutting down HTTP server", zap.Error(err))
	}
	wg.Wait()
	if err := consumer.Close(); err != nil {
		zapLog.Error("Error closing consumer", zap.Error(err))
	}
	obs.Shutdown(shutdownCtx)

	zapLog.Info("Portal service stopped gracefully")
}
