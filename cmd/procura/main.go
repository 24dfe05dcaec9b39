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

	"github.com/procura-app/procura/internal/app"
	"github.com/procura-app/procura/internal/export"
	"github.com/procura-app/procura/internal/observability"
	"github.com/procura-app/procura/internal/platform/cache"
	"github.com/procura-app/procura/internal/procurement"
	"github.com/procura-app/procura/internal/shared"
	"github.com/procura-app/procura/jobs"
	"github.com/procura-app/procura/report"
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

	resources, err := app.OpenResources(ctx, cfg, logger)
	if err != nil {
		logger.Error("open resources", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := resources.Close(); err != nil {
			logger.Warn("close resources", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	service := procurement.NewService(resources.Backend,
		procurement.WithKey(cfg.StateKey),
		procurement.WithLogger(logger),
		procurement.WithAudit(resources.Audit),
		procurement.WithEvents(metrics),
	)
	if err := service.Hydrate(ctx); err != nil {
		logger.Error("hydrate state", slog.Any("error", err))
		os.Exit(1)
	}
	defer service.Close()

	deps := procurement.HandlerDeps{Audit: resources.Audit}
	redisClient := resources.Redis
	if redisClient == nil {
		client, err := cache.New(ctx, app.RedisOptions(cfg))
		if err != nil {
			logger.Warn("redis unavailable, idempotency keys disabled", slog.Any("error", err))
		} else {
			redisClient = client
			defer client.Close()
		}
	}
	if redisClient != nil {
		deps.Idempotency = shared.NewIdempotencyStore(redisClient, 24*time.Hour)
	}

	pdfClient := report.NewClient(cfg.GotenbergURL)
	deps.Renderer = export.NewRenderer(pdfClient, nil)

	redisOpts := app.RedisOptions(cfg).Asynq()
	jobClient := jobs.NewClient(redisOpts)
	deps.Exports = jobClient
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		ProcurementHandler: procurement.NewHandler(logger, service, deps),
		ReportHandler:      report.NewHandler(pdfClient, logger),
		JobHandler:         jobs.NewHandler(inspector, resources.Archive, logger),
		Metrics:            metrics,
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
