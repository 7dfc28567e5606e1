package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"ledgerwidget/internal/cli"
	apphttp "ledgerwidget/internal/http"
	"ledgerwidget/internal/ledger"
	"ledgerwidget/internal/log"
)

// rolloverInterval is how often a running server checks for a month change.
const rolloverInterval = time.Minute

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), os.Stdout)
	cfg := cli.LoadAndValidateConfig(logger)

	ctx, cancel := cli.SignalContext(context.Background(), logger)
	defer cancel()

	engine, res, err := cli.OpenLedger(ctx, cfg, logger, time.Now())
	if err != nil {
		logger.Error("Failed to open ledger", log.FieldError, err, log.FieldBackend, cfg.DataBackend)
		os.Exit(1)
	}

	srv := apphttp.NewServer(":"+cfg.Port, engine, apphttp.Options{
		Categories:     cfg.Categories,
		Currency:       cfg.Currency,
		TotalsCacheTTL: cfg.TotalsCacheTTL,
		Logger:         logger,
		Ready:          res.Ping,
	})

	// Opening the page also checks, this covers a server left running
	// across the month boundary.
	checkRollover(ctx, srv, engine, logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting ledger server", "port", cfg.Port, log.FieldBackend, cfg.DataBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		ticker := time.NewTicker(rolloverInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				checkRollover(gctx, srv, engine, logger)
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		cli.RunCleanup(logger, cfg.ShutdownTimeout, func(ctx context.Context) error {
			return errors.Join(srv.Shutdown(ctx), res.Close())
		})
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}

func checkRollover(ctx context.Context, srv *apphttp.Server, engine *ledger.Engine, logger *log.Logger) {
	rolled, err := srv.CheckRollover(ctx)
	if err != nil {
		logger.Error("Rollover check failed", log.FieldOperation, log.OpRollover, log.FieldError, err)
		return
	}
	if rolled {
		logger.Info("Rolled over to new month", log.FieldMonth, engine.LastMonth())
	}
}
