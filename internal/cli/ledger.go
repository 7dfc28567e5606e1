package cli

import (
	"context"
	"fmt"
	"time"

	"ledgerwidget/internal/backend"
	"ledgerwidget/internal/config"
	"ledgerwidget/internal/ledger"
	"ledgerwidget/internal/log"
)

// OpenLedger creates the configured backend and an engine on top of it.
// The caller owns the returned backend and must Close it.
func OpenLedger(ctx context.Context, cfg *config.Config, logger *log.Logger, now time.Time) (*ledger.Engine, *backend.BackendResult, error) {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, nil, err
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, nil, fmt.Errorf("resolve timezone: %w", err)
	}
	policy, err := ledger.ParseRolloverPolicy(cfg.RolloverPolicy)
	if err != nil {
		return nil, nil, err
	}

	res, err := backend.NewFactory(logger).CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, nil, err
	}

	opts := append([]ledger.Option{
		ledger.WithLocation(loc),
		ledger.WithRolloverPolicy(policy),
		ledger.WithLogger(logger),
	}, res.EngineOptions()...)

	engine, err := ledger.New(ctx, res.Store, now, opts...)
	if err != nil {
		if cerr := res.Close(); cerr != nil {
			logger.Warn("Failed to release backend", log.FieldError, cerr)
		}
		return nil, nil, fmt.Errorf("open ledger: %w", err)
	}

	logger.Info("Ledger opened",
		log.FieldBackend, cfg.DataBackend,
		log.FieldMonth, engine.LastMonth(),
		"policy", string(policy),
		"events", res.Notifier != nil)

	return engine, res, nil
}
