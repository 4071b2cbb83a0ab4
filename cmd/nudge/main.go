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

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"go.uber.org/zap"

	"github.com/lalithlochan/nudge/internal/amqp"
	"github.com/lalithlochan/nudge/internal/api"
	"github.com/lalithlochan/nudge/internal/circuitbreaker"
	"github.com/lalithlochan/nudge/internal/config"
	"github.com/lalithlochan/nudge/internal/db"
	"github.com/lalithlochan/nudge/internal/dispatch"
	"github.com/lalithlochan/nudge/internal/ledger"
	"github.com/lalithlochan/nudge/internal/metrics"
	"github.com/lalithlochan/nudge/internal/observ"
	"github.com/lalithlochan/nudge/internal/redis"
	"github.com/lalithlochan/nudge/internal/scheduler"
	"github.com/lalithlochan/nudge/internal/sender"
	"github.com/lalithlochan/nudge/internal/sns"
	"github.com/lalithlochan/nudge/internal/sqs"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.Env == "production" && cfg.TriggerToken == "" {
		return errors.New("TRIGGER_TOKEN is required in production")
	}

	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting nudge",
		zap.Int("port", cfg.Port),
		zap.String("delivery_mode", cfg.DeliveryMode),
		zap.String("ledger_backend", cfg.LedgerBackend),
		zap.String("timezone", cfg.Location.String()),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.New(ctx, db.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		Database: cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
		MaxConns: int32(cfg.DBMaxConns),
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	repo := db.NewRepository(database, logger)

	var ledgerStore ledger.Store = repo
	if cfg.LedgerBackend == config.LedgerMemory {
		logger.Warn("using in-memory ledger; deliveries will repeat after restart")
		ledgerStore = ledger.NewMemoryStore()
	}

	// Redis is optional: without it passes rely on the ledger alone and the
	// trigger endpoint is not rate limited.
	var (
		claims      *redis.ClaimService
		passLimiter *redis.RateLimiter
		ipLimiter   *redis.RateLimiter
	)
	checks := []api.HealthCheck{{Name: "database", Check: database.Health, Required: true}}
	redisClient, err := redis.New(ctx, redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, logger)
	if err != nil {
		logger.Warn("redis unavailable, continuing without claims or rate limiting", zap.Error(err))
	} else {
		defer redisClient.Close()
		checks = append(checks, api.HealthCheck{Name: "redis", Check: redisClient.Ping})
		claims = redis.NewClaimService(redisClient, logger, cfg.ClaimTTL)
		if cfg.RateLimit > 0 {
			passLimiter = redis.NewRateLimiter(redisClient, logger, redis.RateLimitConfig{
				Limit:  cfg.RateLimit,
				Window: time.Minute,
			})
		}
		if cfg.RateLimitPerIP > 0 {
			ipLimiter = redis.NewRateLimiter(redisClient, logger, redis.RateLimitConfig{
				Limit:  cfg.RateLimitPerIP,
				Window: time.Minute,
			})
		}
	}

	out, closeSender, err := newSender(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeSender()

	opts := []dispatch.Option{dispatch.WithLocation(cfg.Location)}
	if claims != nil {
		opts = append(opts, dispatch.WithClaims(claims))
	}
	if cfg.SNSTopicARN != "" {
		events, err := newEventPublisher(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to create SNS publisher: %w", err)
		}
		opts = append(opts, dispatch.WithEvents(events))
		logger.Info("publishing trigger events", zap.String("topic_arn", cfg.SNSTopicARN))
	}

	coordinator := dispatch.New(repo, ledger.New(ledgerStore, logger), out, logger, opts...)

	if cfg.PassInterval > 0 {
		driver := scheduler.New(coordinator, scheduler.Config{
			Interval:   cfg.PassInterval,
			RunOnStart: cfg.RunOnStart,
		}, logger)
		go driver.Start(ctx)
	} else {
		logger.Info("in-process scheduler disabled; passes run only via the trigger endpoint")
	}

	go reportPoolStats(ctx, database)

	handler := api.NewHandler(logger, coordinator, checks, api.Config{
		AllowClockOverride: cfg.AllowClockOverride,
	})
	router := api.NewRouter(handler, api.RouterConfig{
		TriggerToken: cfg.TriggerToken,
		IPLimiter:    ipLimiter,
		PassLimiter:  passLimiter,
	}, logger)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 6 * time.Minute, // a pass may run long
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info("shutdown signal received")

		// Give outstanding requests 10 seconds to complete
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			srv.Close()
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}

		logger.Info("server stopped gracefully")
	}

	return nil
}

// newSender builds the outbound transport for cfg.DeliveryMode. Providers
// called synchronously are wrapped in a circuit breaker.
func newSender(ctx context.Context, cfg *config.Config, logger *zap.Logger) (sender.Sender, func(), error) {
	noop := func() {}

	switch cfg.DeliveryMode {
	case config.DeliverySES:
		ses, err := sender.NewSESSender(ctx, sender.SESConfig{
			Region:    cfg.AWSRegion,
			FromEmail: cfg.SESFromEmail,
		}, logger)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to create SES sender: %w", err)
		}
		return protect("ses", ses, logger), noop, nil

	case config.DeliveryRelay:
		relay := sender.NewRelaySender(sender.RelayConfig{
			URL:     cfg.RelayURL,
			Token:   cfg.RelayToken,
			Timeout: cfg.RelayTimeout,
		}, logger)
		return protect("relay", relay, logger), noop, nil

	case config.DeliverySQS:
		producer, err := sqs.NewProducer(ctx, sqs.Config{
			Region:   cfg.SQSRegion,
			QueueURL: cfg.SQSQueueURL,
		}, logger)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to create SQS producer: %w", err)
		}
		return producer, noop, nil

	case config.DeliveryAMQP:
		pub, err := amqp.Dial(amqp.Config{URL: cfg.AMQPURL, Queue: cfg.AMQPQueue}, logger)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to connect to AMQP: %w", err)
		}
		return pub, func() { _ = pub.Close() }, nil

	default:
		return sender.NewLogSender(logger), noop, nil
	}
}

func protect(name string, s sender.Sender, logger *zap.Logger) sender.Sender {
	cbCfg := circuitbreaker.DefaultConfig(name)
	cbCfg.OnStateChange = func(name string, _, to circuitbreaker.State) {
		metrics.SetBreakerState(name, int(to))
	}
	metrics.SetBreakerState(name, int(circuitbreaker.StateClosed))
	return circuitbreaker.NewProtectedSender(s, circuitbreaker.New(cbCfg, logger), logger)
}

func newEventPublisher(ctx context.Context, cfg *config.Config) (*sns.Publisher, error) {
	if cfg.SNSEndpoint != "" {
		return sns.NewPublisherWithEndpoint(ctx, cfg.SNSTopicARN, cfg.SNSEndpoint, cfg.SNSRegion)
	}
	return sns.NewPublisher(ctx, cfg.SNSTopicARN, awsconfig.WithRegion(cfg.SNSRegion))
}

func reportPoolStats(ctx context.Context, database *db.DB) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.SetDBConnections(int(database.Pool().Stat().AcquiredConns()))
		}
	}
}
