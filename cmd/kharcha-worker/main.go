package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"kharcha/internal/amqp"
	"kharcha/internal/cli"
	"kharcha/internal/log"
	"kharcha/internal/services"
	"kharcha/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentWorker)
	cfg := cli.LoadAndValidateConfig(logger)

	logger.Info("Starting kharcha-worker")

	res := cli.OpenBackend(logger, cfg)
	store := res.Store
	defer func() {
		if res.Cleanup != nil {
			res.Cleanup()
		}
	}()

	// The worker never publishes reconcile messages itself, it only
	// consumes them, so the expense chain is not wired here.
	notifier := services.NewNotificationService(store, logger)
	budget := services.NewBudgetService(store, store, notifier, nil, logger)

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err.Error())
		os.Exit(1)
	}
	defer amqpClient.Close()

	reconcileWorker := worker.NewReconcileWorker(budget, store, cfg.ReconcileBatchSize)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Heal budgets that went stale while the worker was down.
	if err := reconcileWorker.StartupReconcileCheck(ctx); err != nil {
		logger.Error("Startup reconcile check failed", log.FieldError, err.Error())
		// Keep going, the sweeper retries on its next cycle.
	}

	sweeperConfig := services.DefaultReconcileSweeperConfig()
	sweeperConfig.PollInterval = cfg.ReconcileInterval
	sweeperConfig.BatchSize = cfg.ReconcileBatchSize
	sweeper := services.NewReconcileSweeper(store, budget, sweeperConfig, logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := amqpClient.ConsumeReconcile(gctx, func(msg *amqp.ReconcileMessage) error {
			return reconcileWorker.HandleReconcileMessage(gctx, msg)
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		if err := sweeper.Start(gctx); err != nil {
			return err
		}
		<-gctx.Done()
		return sweeper.Stop(context.Background())
	})

	if err := g.Wait(); err != nil {
		logger.Error("Worker stopped with error", log.FieldError, err.Error())
		os.Exit(1)
	}
	logger.Info("Worker stopped gracefully")
}
