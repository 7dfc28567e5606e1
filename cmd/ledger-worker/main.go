package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"ledgerwidget/internal/amqp"
	"ledgerwidget/internal/backend"
	"ledgerwidget/internal/cli"
	"ledgerwidget/internal/log"
	"ledgerwidget/internal/worker"
)

const summaryInterval = 10 * time.Minute

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), os.Stdout)
	logger.Info("Starting ledger-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the worker")
		os.Exit(1)
	}

	loc, err := cfg.Location()
	if err != nil {
		logger.Error("Invalid timezone", log.FieldError, err)
		os.Exit(1)
	}

	ctx, cancel := cli.SignalContext(context.Background(), logger)
	defer cancel()

	report := worker.NewReportWorker(loc, cfg.Currency, logger)

	// Start from the stored ledger so the open month is complete even if
	// events were published while the worker was down.
	if bcfg, err := backend.FromAppConfig(cfg); err == nil && bcfg.Type != backend.MemoryBackend {
		bcfg.AMQPURL = ""
		res, err := backend.NewFactory(logger).CreateBackend(ctx, bcfg)
		if err != nil {
			logger.Warn("Startup snapshot unavailable", log.FieldError, err)
		} else {
			if state, found, err := res.Store.Load(ctx); err != nil {
				logger.Warn("Failed to load startup snapshot", log.FieldError, err)
			} else if found {
				report.Seed(ctx, state)
			}
			if err := res.Close(); err != nil {
				logger.Warn("Failed to release backend", log.FieldError, err)
			}
		}
	}

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := client.ConsumeEvents(gctx, report.HandleEvent)
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		ticker := time.NewTicker(summaryInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				report.LogSummary(gctx)
			}
		}
	})

	err = g.Wait()
	if err != nil {
		logger.Error("Message consumption failed", log.FieldError, err)
	}

	logger.Info("Shutting down worker...")
	cli.RunCleanup(logger, cfg.ShutdownTimeout, func(context.Context) error {
		report.LogSummary(context.Background())
		return client.Close()
	})
	if err != nil {
		os.Exit(1)
	}
}
