package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-erp/meridian-erp/internal/app"
	"github.com/meridian-erp/meridian-erp/internal/manualdelivery"
	"github.com/meridian-erp/meridian-erp/internal/masterdata"
	"github.com/meridian-erp/meridian-erp/internal/platform/cache"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
	"github.com/meridian-erp/meridian-erp/internal/sales"
	"github.com/meridian-erp/meridian-erp/internal/shared"
	"github.com/meridian-erp/meridian-erp/internal/stock"
	"github.com/meridian-erp/meridian-erp/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(pool)

	masterdataRepo := masterdata.NewRepository(pool)
	masterdataService := masterdata.NewService(masterdataRepo, logger)
	masterdataHandler := masterdata.NewHandler(masterdataService)

	stockRepo := stock.NewRepository(pool)
	pipeline := stock.NewPipeline(stockRepo, masterdataService, logger)

	salesRepo := sales.NewRepository(pool)
	ledger := sales.NewLedger(stockRepo, masterdataService, logger)
	gate := sales.NewLaunchGate(pipeline, logger)
	salesService := sales.NewService(salesRepo, masterdataService, ledger, gate, auditLogger, logger)
	salesHandler := sales.NewHandler(salesService)

	stockService := stock.NewService(stockRepo, salesService, auditLogger, logger)
	stockHandler := stock.NewHandler(stockService)

	requestStore := manualdelivery.NewRequestStore(redisClient, cfg.DeliveryRequestTTL)
	builder := manualdelivery.NewBuilder(salesService, masterdataService)
	dispatcher := manualdelivery.NewDispatcher(salesService, logger)
	deliveryService := manualdelivery.NewService(
		builder, dispatcher, requestStore,
		salesService, salesService, masterdataService,
		auditLogger, logger,
	)
	deliveryHandler := manualdelivery.NewHandler(deliveryService)

	jobsClient := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()
	adminHandler := app.NewAdminHandler(jobsClient)

	router := app.NewRouter(app.RouterParams{
		Logger:                logger,
		Config:                cfg,
		SalesHandler:          salesHandler,
		StockHandler:          stockHandler,
		ManualDeliveryHandler: deliveryHandler,
		MasterDataHandler:     masterdataHandler,
		AdminHandler:          adminHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
