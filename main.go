package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/sync/errgroup"

	"github.com/sarathsp06/hookshot/internal/config"
	connecthealth "github.com/sarathsp06/hookshot/internal/connect"
	"github.com/sarathsp06/hookshot/internal/delivery"
	"github.com/sarathsp06/hookshot/internal/dispatch"
	grpcserver "github.com/sarathsp06/hookshot/internal/grpc"
	"github.com/sarathsp06/hookshot/internal/httpapi"
	"github.com/sarathsp06/hookshot/internal/logger"
	"github.com/sarathsp06/hookshot/internal/observability"
	"github.com/sarathsp06/hookshot/internal/queue"
	"github.com/sarathsp06/hookshot/internal/webhooks"
	"github.com/sarathsp06/hookshot/internal/workers"
)

const (
	shutdownTimeout     = 30 * time.Second
	healthCheckInterval = 10 * time.Second
	eventJobTimeout     = time.Minute
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logger.NewLogger("main").Errorw("Server exited with error", "error", err)
		logger.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := logger.SetLevel(cfg.LogLevel); err != nil {
		return err
	}
	defer logger.Sync()
	log := logger.NewLogger("main")

	shutdownOTel, err := observability.Setup(ctx, observability.FromAppConfig(cfg))
	if err != nil {
		return fmt.Errorf("failed to set up telemetry: %w", err)
	}
	defer func() {
		otelCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(otelCtx); err != nil {
			log.Warnw("Telemetry shutdown failed", "error", err)
		}
	}()

	metrics, err := observability.NewMetrics()
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to create database pool: %w", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB := stdlib.OpenDBFromPool(pool)
	defer sqlDB.Close()

	repo := webhooks.NewRepository(sqlDB)
	var finder dispatch.Finder = repo
	serviceOpts := []webhooks.ServiceOption{webhooks.WithMetrics(metrics)}

	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(redisOpts)
		defer rdb.Close()

		cache := webhooks.NewCache(rdb, cfg.SubscriptionCacheTTL)
		finder = webhooks.NewCachedFinder(repo, cache)
		serviceOpts = append(serviceOpts, webhooks.WithInvalidator(cache))
		log.Infow("Subscription cache enabled", "ttl", cfg.SubscriptionCacheTTL)
	}
	registry := webhooks.NewService(repo, serviceOpts...)

	backoff := queue.NewBackoffPolicy(cfg.DeliveryBaseDelay, cfg.DeliveryMaxAttempts)
	manager, err := queue.NewManager(pool, queue.Options{
		DeliveryConcurrency: cfg.DeliveryConcurrency,
		EventConcurrency:    cfg.EventConcurrency,
		MaxAttempts:         cfg.DeliveryMaxAttempts,
		Backoff:             backoff,
		JobTimeout:          eventJobTimeout,
		Metrics:             metrics,
	})
	if err != nil {
		return err
	}

	dispatcher := dispatch.New(finder, manager,
		dispatch.WithEventSubmitter(manager),
		dispatch.WithMetrics(metrics),
	)

	sender := delivery.NewSender(delivery.Config{
		Timeout:     cfg.DeliveryTimeout,
		UserAgent:   cfg.DeliveryUserAgent,
		BodyLimit:   cfg.ResponseBodyLimit,
		Concurrency: cfg.DeliveryConcurrency,
	}, delivery.WithMetrics(metrics))

	if err := queue.AddWorker(manager, workers.NewWebhookWorker(sender, registry, backoff, cfg.DeliveryTimeout)); err != nil {
		return err
	}
	if err := queue.AddWorker(manager, workers.NewEventProcessingWorker(dispatcher)); err != nil {
		return err
	}

	// The river client outlives the signal context so Stop can drain it.
	if err := manager.Start(context.WithoutCancel(ctx)); err != nil {
		return err
	}

	health := grpcserver.NewHealthServer(manager.Healthy, healthCheckInterval)
	grpcServer := grpcserver.NewServer(health)

	router := httpapi.NewHandler(registry, dispatcher, httpapi.WithHealth(manager.Healthy)).Router()
	healthPath, healthHandler, err := connecthealth.NewHealthHandler(health.Health())
	if err != nil {
		return err
	}
	router.Handle(healthPath, healthHandler)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h2c.NewHandler(otelhttp.NewHandler(router, "hookshot.http"), &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return health.Run(gctx)
	})

	g.Go(func() error {
		log.Infow("HTTP server starting", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", cfg.GRPCAddr, err)
		}
		log.Infow("gRPC server starting", "addr", cfg.GRPCAddr)
		return grpcServer.Serve(lis)
	})

	g.Go(func() error {
		<-gctx.Done()
		return shutdown(log, httpServer, grpcServer.GracefulStop, manager)
	})

	log.Infow("Hookshot is running",
		"http_addr", cfg.HTTPAddr,
		"grpc_addr", cfg.GRPCAddr,
		"delivery_concurrency", cfg.DeliveryConcurrency,
		"max_attempts", cfg.DeliveryMaxAttempts,
	)

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("Shutdown complete")
	return nil
}

func shutdown(log *zap.SugaredLogger, httpServer *http.Server, stopGRPC func(), manager *queue.Manager) error {
	log.Info("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP shutdown: %w", err))
	}
	stopGRPC()
	if err := manager.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
