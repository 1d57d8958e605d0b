package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"

	"github.com/regledger/regledger/pkg/config"
	"github.com/regledger/regledger/pkg/driver"
	"github.com/regledger/regledger/pkg/ledger"
	"github.com/regledger/regledger/pkg/telemetry"
)

// app is the opened ledger stack shared by every command.
type app struct {
	cfg    *config.Config
	tel    *telemetry.Telemetry
	ledger *ledger.Ledger
	driver *driver.Driver
}

func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if ledgerPath != "" {
		cfg.Ledger.Path = ledgerPath
	}
	if verbose {
		cfg.Telemetry.LogLevel = "debug"
	}

	tel, err := telemetry.NewTelemetry(cfg.TelemetryConfig(serviceVersion))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	if err := tel.StartMetricsServer(); err != nil {
		return nil, fmt.Errorf("failed to start metrics server: %w", err)
	}

	l, err := ledger.Open(ctx, cfg.LedgerOptions(), ledger.WithLogger(tel.Logger))
	if err != nil {
		_ = tel.Shutdown(ctx)
		return nil, err
	}

	d, err := driver.New(l, cfg.DriverOptions(tel)...)
	if err != nil {
		_ = l.Close()
		_ = tel.Shutdown(ctx)
		return nil, err
	}

	log.Debug().
		Str("ledger", cfg.Ledger.Path).
		Int("max_sessions", cfg.Driver.MaxSessions).
		Int("max_attempts", cfg.Driver.Retry.MaxAttempts).
		Msg("Ledger opened")

	return &app{cfg: cfg, tel: tel, ledger: l, driver: d}, nil
}

func (a *app) Close(ctx context.Context) {
	if err := a.driver.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close driver")
	}
	if err := a.ledger.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close ledger")
	}
	if err := a.tel.Shutdown(context.WithoutCancel(ctx)); err != nil {
		log.Warn().Err(err).Msg("Failed to shut down telemetry")
	}
}

// withApp opens the ledger, runs fn and closes everything again.
func withApp(ctx context.Context, fn func(a *app) error) error {
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(ctx)
	return fn(a)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
