package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"kharcha/internal/amqp"
	"kharcha/internal/cache"
	"kharcha/internal/cli"
	apphttp "kharcha/internal/http"
	"kharcha/internal/log"
	"kharcha/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	res := cli.OpenBackend(logger, cfg)
	store := res.Store

	// Status views are cached briefly; the manager sweeps expired entries.
	statusCache := cache.NewLRUCache[*services.BudgetStatus](cfg.StatusCacheSize, cfg.StatusCacheTTL)
	cacheManager := cache.NewManager()
	cacheManager.Register(statusCache)
	cacheManager.StartCleanup(10 * time.Minute)

	// AMQP is optional: without it expense writes skip the reconcile
	// message and counters heal on read or via the sweeper.
	var publisher services.ReconcilePublisher
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without reconcile bus",
				log.FieldError, err.Error())
		} else {
			amqpClient = client
			publisher = client
			logger.Info("Initialized AMQP client",
				"exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	}

	notifier := services.NewNotificationService(store, logger)
	budget := services.NewBudgetService(store, store, notifier, statusCache, logger)
	expenses := services.NewExpenseService(store, budget, notifier, publisher, logger)

	srv := apphttp.NewServer(":"+cfg.Port, budget, expenses, notifier, store, logger)
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err.Error())
		}
		cacheManager.Stop()
		if amqpClient != nil {
			amqpClient.Close()
		}
		if res.Cleanup != nil {
			res.Cleanup()
		}
	})

	logger.Info("Starting kharcha server",
		"port", cfg.Port, "backend", cfg.DataBackend)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", log.FieldError, err.Error(), "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
