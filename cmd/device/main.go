package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/tillq/api/controllers"
	"github.com/angelmondragon/tillq/api/routes"
	"github.com/angelmondragon/tillq/internal/connectivity"
	"github.com/angelmondragon/tillq/internal/cron"
	"github.com/angelmondragon/tillq/internal/notify"
	"github.com/angelmondragon/tillq/internal/printing"
	"github.com/angelmondragon/tillq/internal/printqueue"
	"github.com/angelmondragon/tillq/internal/syncer"
	"github.com/angelmondragon/tillq/internal/worker"
	"github.com/angelmondragon/tillq/pkg/config"
	"github.com/angelmondragon/tillq/pkg/db"
	"github.com/angelmondragon/tillq/pkg/db/models"
	"github.com/angelmondragon/tillq/pkg/idempotency"
	"github.com/angelmondragon/tillq/pkg/logger"
	"github.com/angelmondragon/tillq/pkg/metrics"
	"github.com/angelmondragon/tillq/pkg/migrate"
	"github.com/angelmondragon/tillq/pkg/outbox"
	"github.com/angelmondragon/tillq/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "device"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	if err := cfg.Device.Validate(); err != nil {
		logg.Error(context.Background(), "invalid device identity", err)
		os.Exit(1)
	}
	cfg.Service.Kind = "device"

	logg = logger.New(logger.Options{
		ServiceName: "device",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithDeviceID(ctx, cfg.Device.ID)
	ctx = logg.WithTenantID(ctx, cfg.Device.TenantID)

	local, err := db.New(ctx, cfg.LocalStore.DBConfig(), logg)
	if err != nil {
		logg.Error(ctx, "failed to open local store", err)
		os.Exit(1)
	}
	defer func() {
		if err := local.Close(); err != nil {
			logg.Error(context.Background(), "error closing local store", err)
		}
	}()
	if err := local.Migrate(ctx, models.LocalModels()...); err != nil {
		logg.Error(ctx, "failed to migrate local store", err)
		os.Exit(1)
	}

	var feed redis.PubSub
	var guard *idempotency.Manager
	if cfg.Redis.Enabled() {
		redisClient, err := redis.New(ctx, cfg.Redis, logg)
		if err != nil {
			logg.Warn(logg.WithField(ctx, "error", err.Error()), "redis unavailable; print queue will poll without claim guard")
		} else {
			defer func() {
				if err := redisClient.Close(); err != nil {
					logg.Error(context.Background(), "error closing redis", err)
				}
			}()
			feed = redisClient
			guard, err = idempotency.NewManager(redisClient, cfg.PrintQueue.ClaimTTL)
			exitOnErr(ctx, logg, "print claim guard", err)
		}
	}

	hosted := newHostedStore(cfg.Remote, logg, feed, func(ctx context.Context) (*db.Client, error) {
		client, err := db.New(ctx, cfg.DB, logg)
		if err != nil {
			return nil, err
		}
		if err := migrate.MaybeRunDev(ctx, cfg, logg, client); err != nil {
			_ = client.Close()
			return nil, err
		}
		return client, nil
	}, 0)
	if cfg.DB.ConnectTimeout > 0 {
		hosted.connectTimeout = cfg.DB.ConnectTimeout
	}
	defer func() {
		if err := hosted.Close(); err != nil {
			logg.Error(context.Background(), "error closing hosted store", err)
		}
	}()

	reg := prometheus.DefaultRegisterer
	syncMetrics := metrics.NewSyncMetrics(reg)
	printMetrics := metrics.NewPrintMetrics(reg)
	jobMetrics := metrics.NewCronJobMetrics(reg)

	queue := outbox.NewService(outbox.NewRepository(local.DB()), logg)

	registry := syncer.NewExecutorRegistry()
	hosted.Register(registry)

	runtime, err := worker.NewRuntime(worker.RuntimeParams{
		Logger:     logg,
		Metrics:    jobMetrics,
		QueueLimit: cfg.Notify.QueueLimit,
	})
	exitOnErr(ctx, logg, "worker runtime", err)

	var bridge *notify.Bridge
	engine, err := syncer.NewEngine(syncer.EngineParams{
		Queue:           queue,
		Registry:        registry,
		Logger:          logg,
		Metrics:         syncMetrics,
		ExecutorTimeout: cfg.Sync.ExecutorTimeout,
		OnComplete: func(ctx context.Context, res syncer.Result) {
			if bridge != nil {
				bridge.OnDrainComplete(ctx, res)
			}
		},
	})
	exitOnErr(ctx, logg, "sync engine", err)

	bridge, err = notify.NewBridge(notify.BridgeParams{
		Scheduler:      runtime,
		Queue:          queue,
		Logger:         logg,
		Drainer:        engine,
		StaleThreshold: cfg.Notify.StaleThreshold,
	})
	exitOnErr(ctx, logg, "notification bridge", err)

	hub, err := notify.NewHub(notify.HubParams{Runtime: runtime, Handler: bridge.HandleMessage, Logger: logg})
	exitOnErr(ctx, logg, "websocket hub", err)
	defer hub.Close()

	monitor, err := connectivity.NewMonitor(connectivity.MonitorParams{
		Logger:    logg,
		OnRestore: engine.Trigger,
		Debounce:  cfg.Sync.ConnectivityDebounce,
	})
	exitOnErr(ctx, logg, "connectivity monitor", err)
	defer monitor.Stop()
	runtime.OnConnectivityChange(monitor.Observe)
	source := connectivity.NewInterfaceSource(runtime.NotifyConnectivity, nil, cfg.Sync.ConnectivityPoll, logg)

	staleJob, err := cron.NewStaleOperationsJob(cron.StaleOperationsJobParams{
		Logger:   logg,
		Checker:  bridge,
		Interval: cfg.Notify.CheckInterval,
	})
	exitOnErr(ctx, logg, "stale operations job", err)
	drainJob, err := cron.NewPeriodicDrainJob(cron.PeriodicDrainJobParams{
		Logger:   logg,
		Engine:   engine,
		Queue:    queue,
		Online:   monitor,
		Interval: cfg.Sync.PeriodicInterval,
	})
	exitOnErr(ctx, logg, "periodic drain job", err)
	exitOnErr(ctx, logg, "schedule jobs", cron.NewRegistry(staleJob, drainJob).Schedule(runtime, time.Hour))

	settings, err := printing.NewSettingsStore(local.DB(), printing.PrintRoutingConfig{
		IsPrintServer: cfg.Routing.IsPrintServer,
		UsePrintQueue: cfg.Routing.UsePrintQueue,
	})
	exitOnErr(ctx, logg, "print settings", err)
	printer := printing.NewLogPrinter(logg)
	dispatcher, err := printing.NewDispatcher(printing.DispatcherParams{
		Settings: settings,
		Queue:    hosted,
		Printer:  printer,
		Logger:   logg,
		Metrics:  printMetrics,
		TenantID: cfg.Device.TenantID,
	})
	exitOnErr(ctx, logg, "print dispatcher", err)

	newConsumer := func(jobs *printqueue.Service) (*printqueue.Consumer, error) {
		params := printqueue.ConsumerParams{
			Service:      jobs,
			Printer:      printer,
			Logger:       logg,
			Metrics:      printMetrics,
			DeviceID:     cfg.Device.ID,
			TenantID:     cfg.Device.TenantID,
			PollInterval: cfg.PrintQueue.PollInterval(),
			BatchSize:    cfg.PrintQueue.BatchSize,
			PrintTimeout: cfg.PrintQueue.PrintTimeout,
		}
		if feed != nil {
			params.Feed = feed
		}
		if guard != nil {
			params.Guard = guard
		}
		return printqueue.NewConsumer(params)
	}

	router := routes.NewRouter(routes.Deps{
		Logger:       logg,
		DeviceID:     cfg.Device.ID,
		TenantID:     cfg.Device.TenantID,
		Queue:        queue,
		Engine:       engine,
		Connectivity: monitor,
		Settings:     settings,
		Dispatcher:   dispatcher,
		PrintJobs:    hosted,
		Notify:       bridge,
		Socket:       hub,
		Ready: map[string]controllers.Pinger{
			"local_store": local,
		},
		Gatherer: prometheus.DefaultGatherer,
	})

	server := &http.Server{
		Addr:              net.JoinHostPort("127.0.0.1", cfg.App.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	service, err := NewService(ServiceParams{
		Logger:      logg,
		Server:      server,
		Runtime:     runtime,
		Source:      source,
		Hosted:      hosted,
		Settings:    settings,
		NewConsumer: newConsumer,
		Local:       local,
	})
	exitOnErr(ctx, logg, "device service", err)

	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting device daemon")
	if err := service.Run(ctx); err != nil {
		logg.Error(ctx, "device daemon stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "device daemon shutting down gracefully")
}

func exitOnErr(ctx context.Context, logg *logger.Logger, component string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, "failed to build "+component, err)
	os.Exit(1)
}
