// Command dispatchd runs kestrelq's dispatch loop and retry scheduler
// as a standalone process: it loads configuration from the
// environment, opens the configured store and queue backends,
// registers the bundled demo handlers, and runs until an interrupt or
// termination signal triggers graceful shutdown.
package main

import (
	"context"
	"database/sql"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"

	_ "modernc.org/sqlite"

	"github.com/kestrelq/kestrelq"
	"github.com/kestrelq/kestrelq/config"
	"github.com/kestrelq/kestrelq/handlers"
	"github.com/kestrelq/kestrelq/queue"
	"github.com/kestrelq/kestrelq/queue/heapqueue"
	"github.com/kestrelq/kestrelq/queue/redismem"
	"github.com/kestrelq/kestrelq/store"
)

const stopTimeout = 10 * time.Second

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	db, err := openDB(cfg)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	if err := store.InitSchema(ctx, db); err != nil {
		log.Fatalf("init schema: %v", err)
	}
	bunStore := store.New(db)

	var q queue.Queue
	if cfg.UseRedis {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("parse redis url: %v", err)
		}
		q = redismem.New(redis.NewClient(opts))
	} else {
		q = heapqueue.New()
	}

	registry := kestrelq.NewRegistry()
	registry.Register("email", handlers.Email)
	registry.Register("ai_task", handlers.AITask)
	registry.Register("data_cleaning", handlers.DataCleaning)

	executor := kestrelq.NewExecutor(bunStore, registry, kestrelq.ExecutorConfig{
		Timeout: cfg.JobTimeoutSeconds,
		Backoff: kestrelq.BackoffConfig{
			InitialInterval: time.Duration(cfg.RetryBackoffBase * float64(time.Second)),
			MaxInterval:     time.Hour,
			Multiplier:      cfg.RetryBackoffBase,
		},
	}, slog.Default())

	dispatcher := kestrelq.NewDispatcher(q, executor, kestrelq.DispatcherConfig{
		Concurrency:  cfg.MaxWorkers,
		QueueSize:    cfg.MaxWorkers,
		PullInterval: cfg.PollIntervalSeconds,
	}, slog.Default())

	retryScheduler := kestrelq.NewRetryScheduler(bunStore, q, kestrelq.RetrySchedulerConfig{
		Interval:  cfg.PollIntervalSeconds,
		BatchSize: cfg.MaxWorkers,
	}, slog.Default())

	if err := dispatcher.Start(ctx); err != nil {
		log.Fatalf("start dispatcher: %v", err)
	}
	if err := retryScheduler.Start(ctx); err != nil {
		log.Fatalf("start retry scheduler: %v", err)
	}

	slog.InfoContext(ctx, "dispatchd started",
		"max_workers", cfg.MaxWorkers,
		"use_redis", cfg.UseRedis,
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.InfoContext(ctx, "received shutdown signal, draining in-flight jobs")
	if err := dispatcher.Stop(stopTimeout); err != nil {
		slog.ErrorContext(ctx, "dispatcher stop", "err", err)
	}
	if err := retryScheduler.Stop(stopTimeout); err != nil {
		slog.ErrorContext(ctx, "retry scheduler stop", "err", err)
	}
	slog.InfoContext(ctx, "dispatchd stopped")
}

func openDB(cfg *config.Config) (*bun.DB, error) {
	if cfg.DatabaseURL == "" || isSQLiteDSN(cfg.DatabaseURL) {
		sqlDB, err := sql.Open("sqlite", cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
		return bun.NewDB(sqlDB, sqlitedialect.New()), nil
	}
	connector := pgdriver.NewConnector(pgdriver.WithDSN(cfg.DatabaseURL))
	sqlDB := sql.OpenDB(connector)
	return bun.NewDB(sqlDB, pgdialect.New()), nil
}

func isSQLiteDSN(dsn string) bool {
	return len(dsn) >= 5 && dsn[:5] == "file:"
}
