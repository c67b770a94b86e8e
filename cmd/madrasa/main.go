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
	"golang.org/x/sync/errgroup"

	"github.com/madrasa-erp/madrasa/internal/app"
	"github.com/madrasa-erp/madrasa/internal/fees"
	"github.com/madrasa-erp/madrasa/internal/observability"
	"github.com/madrasa-erp/madrasa/internal/platform/cache"
	"github.com/madrasa-erp/madrasa/internal/platform/db"
	"github.com/madrasa-erp/madrasa/internal/shared"
	"github.com/madrasa-erp/madrasa/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	dbpool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.Redis())
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	// LoadConfig already validated both.
	loc, _ := cfg.Location()
	weekend, _ := cfg.Weekend()

	idempotencyStore := shared.NewIdempotencyStore(dbpool)
	feesRepo := fees.NewRepository(dbpool)
	feesService := fees.NewService(feesRepo, fees.ServiceConfig{
		InvoicePrefix: cfg.InvoicePrefix,
		Calendar:      fees.NewStoreCalendar(feesRepo, weekend...),
		Cache:         fees.NewRedisStatsCache(redisClient, cfg.StatsCacheTTL),
		Audit:         shared.NewAuditLogger(dbpool),
		Idempotency:   idempotencyStore,
		Logger:        logger,
		Location:      loc,
	})
	feesHandler := fees.NewHandler(logger, feesService)

	inspector := asynq.NewInspector(cfg.AsynqRedis())
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobClient := jobs.NewClient(cfg.AsynqRedis())
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("asynq client close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger).WithLateFeeTrigger(jobClient)

	metrics := observability.NewMetrics()

	router := app.NewRouter(app.RouterParams{
		Logger:      logger,
		Config:      cfg,
		FeesHandler: feesHandler,
		JobsHandler: jobHandler,
		Metrics:     metrics,
		Checks: map[string]app.Pinger{
			"postgres": dbpool,
			"redis": app.PingFunc(func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			}),
		},
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				purged, err := idempotencyStore.Cleanup(gctx, cfg.IdempotencyRetention)
				if err != nil {
					logger.Warn("idempotency cleanup", slog.Any("error", err))
					continue
				}
				if purged > 0 {
					logger.Info("idempotency keys purged", slog.Int64("count", purged))
				}
			}
		}
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("http server", slog.Any("error", err))
		os.Exit(1)
	}
}
