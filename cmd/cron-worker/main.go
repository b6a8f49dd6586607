package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/tillq/internal/cron"
	"github.com/angelmondragon/tillq/internal/printqueue"
	"github.com/angelmondragon/tillq/pkg/config"
	"github.com/angelmondragon/tillq/pkg/db"
	"github.com/angelmondragon/tillq/pkg/logger"
	"github.com/angelmondragon/tillq/pkg/metrics"
	"github.com/angelmondragon/tillq/pkg/migrate"
	"github.com/angelmondragon/tillq/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	metricsCollector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	lock, err := cron.NewRedisLock(redisClient, lockKey(redisClient, cfg.App.Env), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	jobs, err := printqueue.NewService(printqueue.ServiceParams{
		Repository: printqueue.NewRepository(dbClient.DB()),
		Logger:     logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create print job service", err)
		os.Exit(1)
	}
	retention, err := cron.NewPrintJobRetentionJob(cron.PrintJobRetentionJobParams{
		Logger:    logg,
		Jobs:      jobs,
		Retention: cfg.PrintQueue.RetentionDays,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create print job retention job", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(retention),
		Lock:     lock,
		Metrics:  metricsCollector,
		Interval: cfg.PrintQueue.CleanupInterval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func lockKey(client *redis.Client, env string) string {
	if env == "" {
		env = "local"
	}
	return client.LockKey("cron-worker:" + env)
}
