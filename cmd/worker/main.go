package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"tasklink.app/bridge/common/id"
	"tasklink.app/bridge/common/logger"
	"tasklink.app/bridge/common/otel"
	"tasklink.app/bridge/core/config"
	"tasklink.app/bridge/core/db"
	"tasklink.app/bridge/internal/github"
	"tasklink.app/bridge/internal/lock"
	"tasklink.app/bridge/internal/queue"
	"tasklink.app/bridge/internal/service"
	"tasklink.app/bridge/internal/store"
	"tasklink.app/bridge/internal/tracker"
	"tasklink.app/bridge/internal/worker"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeWorker)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	slog.InfoContext(ctx, "bridge worker starting", "env", cfg.Env, "consumer", cfg.Queue.Consumer)
	if err := id.Init(2); err != nil {
		slog.ErrorContext(ctx, "failed to initialize snowflake id generator", "error", err)
		os.Exit(1)
	}

	database, err := db.New(ctx, cfg.DB)
	if err != nil {
		slog.ErrorContext(ctx, "failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close()
	slog.InfoContext(ctx, "database connected")

	redisOpts, err := redis.ParseURL(cfg.Queue.RedisURL)
	if err != nil {
		slog.ErrorContext(ctx, "failed to parse redis url", "error", err)
		os.Exit(1)
	}

	redisClient := redis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		slog.ErrorContext(ctx, "failed to connect to redis", "error", err)
		os.Exit(1)
	}
	slog.InfoContext(ctx, "redis connected", "stream", cfg.Queue.Stream, "group", cfg.Queue.Group)

	consumer, err := queue.NewRedisConsumer(redisClient, queue.ConsumerConfig{
		Stream:       cfg.Queue.Stream,
		Group:        cfg.Queue.Group,
		Consumer:     cfg.Queue.Consumer,
		DLQStream:    cfg.Queue.DLQStream,
		BatchSize:    10,
		Block:        5 * time.Second,
		MaxAttempts:  cfg.Queue.MaxAttempts,
		RequeueDelay: cfg.Queue.RequeueDelay,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create redis consumer", "error", err)
		os.Exit(1)
	}

	upstream, err := github.NewClient(github.Config{
		Token:   cfg.GitHub.Token,
		BaseURL: cfg.GitHub.BaseURL,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create github client", "error", err)
		os.Exit(1)
	}

	stores := store.NewStores(database.Pool())

	dispatcher := service.NewDispatcher(service.DispatcherConfig{
		Upstream: upstream,
		Tracker: tracker.NewHTTPClient(tracker.Config{
			BaseURL: cfg.Tracker.BaseURL,
			Token:   cfg.Tracker.Token,
		}),
		Stores: stores,
		Locker: lock.NewRedisLocker(redisClient, lock.RedisConfig{
			KeyPrefix:      cfg.Lock.KeyPrefix,
			AcquireTimeout: cfg.Lock.AcquireTimeout,
			RetryInterval:  cfg.Lock.RetryInterval,
		}),
		Features:  cfg.Features,
		ProjectID: cfg.Tracker.ProjectID,
		Lease:     cfg.Lock.LeaseDuration,
		Logger:    slog.Default(),
	})

	w := worker.New(consumer, dispatcher, worker.Config{
		MaxAttempts: cfg.Queue.MaxAttempts,
	})

	reclaimer := worker.NewRedisReclaimer(redisClient, worker.RedisReclaimerConfig{
		Stream:    cfg.Queue.Stream,
		Group:     cfg.Queue.Group,
		Consumer:  cfg.Queue.Consumer + "-reclaimer",
		MinIdle:   time.Minute,
		Interval:  30 * time.Second,
		BatchSize: 10,
	}, consumer, w.ProcessMessage)

	workerCtx, cancelWorker := context.WithCancel(ctx)

	go func() {
		if err := w.Run(workerCtx); err != nil && err != context.Canceled {
			slog.ErrorContext(ctx, "worker stopped with error", "error", err)
		}
	}()
	go reclaimer.Run(workerCtx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down...")

	cancelWorker()
	reclaimer.Stop()
	w.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(shutdownCtx, "shutdown complete")
}
