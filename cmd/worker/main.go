package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/madrasa-erp/madrasa/internal/app"
	"github.com/madrasa-erp/madrasa/internal/fees"
	jobmetrics "github.com/madrasa-erp/madrasa/internal/jobs"
	"github.com/madrasa-erp/madrasa/internal/platform/cache"
	"github.com/madrasa-erp/madrasa/internal/platform/db"
	"github.com/madrasa-erp/madrasa/internal/shared"
	"github.com/madrasa-erp/madrasa/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.Redis())
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	loc, _ := cfg.Location()
	weekend, _ := cfg.Weekend()

	feesRepo := fees.NewRepository(pool)
	feesService := fees.NewService(feesRepo, fees.ServiceConfig{
		InvoicePrefix: cfg.InvoicePrefix,
		Calendar:      fees.NewStoreCalendar(feesRepo, weekend...),
		Cache:         fees.NewRedisStatsCache(redisClient, cfg.StatsCacheTTL),
		Audit:         shared.NewAuditLogger(pool),
		Logger:        logger,
		Location:      loc,
	})

	redisOpts := cfg.AsynqRedis()
	client := jobs.NewClient(redisOpts)
	defer func() {
		if err := client.Close(); err != nil {
			logger.Warn("asynq client close", slog.Any("error", err))
		}
	}()

	metrics := jobmetrics.NewMetrics(nil)
	lateFeeJob := jobs.NewLateFeeJob(feesService, logger, metrics)
	expiryJob := jobs.NewWaiverExpiryJob(feesService, logger, metrics)
	warmupJob := jobs.NewStatsWarmupJob(feesService, logger, metrics)
	reminderJob := jobs.NewReminderJob(jobs.ReminderJobConfig{
		Source:    feesService,
		Contacts:  jobs.NewPGContactDirectory(pool),
		Queue:     client,
		Logger:    logger,
		Metrics:   metrics,
		DaysAhead: cfg.ReminderDaysAhead,
		Currency:  cfg.Currency,
		Locale:    cfg.ReminderLocale,
		From:      cfg.ReminderFrom,
		Location:  loc,
	})

	lateFeeTask, err := jobs.NewLateFeeTask(0)
	if err != nil {
		logger.Error("build late fee task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   redisOpts,
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Location:    loc,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeSendEmail, Handler: jobs.NewSendEmailHandler(jobs.LogMailer{Logger: logger})},
			{Type: jobs.TaskLateFees, Handler: lateFeeJob.Handle},
			{Type: jobs.TaskWaiverExpiry, Handler: expiryJob.Handle},
			{Type: jobs.TaskFeeReminders, Handler: reminderJob.Handle},
			{Type: jobs.TaskStatsWarmup, Handler: warmupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.LateFeeCron, Task: lateFeeTask, Options: []asynq.Option{asynq.Unique(time.Hour)}},
			{Spec: cfg.WaiverExpiryCron, Task: jobs.NewWaiverExpiryTask(), Options: []asynq.Option{asynq.Unique(time.Hour)}},
			{Spec: cfg.ReminderCron, Task: jobs.NewFeeRemindersTask(), Options: []asynq.Option{asynq.Unique(time.Hour)}},
			{Spec: cfg.StatsWarmupCron, Task: jobs.NewStatsWarmupTask(), Options: []asynq.Option{asynq.Unique(5 * time.Minute)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := worker.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	if cfg.WorkerMetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			logger.Info("starting worker metrics", slog.String("addr", cfg.WorkerMetricsAddr))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return metricsServer.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
