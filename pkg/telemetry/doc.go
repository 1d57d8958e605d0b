// Package telemetry provides observability instrumentation for regledger.
//
// The package combines structured logging (zerolog), distributed tracing
// (OpenTelemetry) and metrics (Prometheus) behind a single Telemetry value
// that the driver and the registration workflows share.
//
// # Usage
//
// Initialize telemetry at application startup:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceVersion = "1.0.0"
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
// Tests and library callers that want silence use Nop:
//
//	tel := telemetry.Nop()
//
// # Structured Logging
//
// Component loggers carry ledger identifiers as fields:
//
//	logger := tel.Logger.NewComponentLogger("driver")
//	logger.WithTxnID(txn.ID()).WithTable("VehicleRegistration").Debug("Committing")
//	logger.WithError(err).Warn("Commit conflicted, retrying")
//
// Log levels: trace, debug, info, warn, error, fatal
//
// # Distributed Tracing
//
// Every unit of work gets a span, with a child span per attempt:
//
//	ctx, span := tel.Tracer.StartUnitOfWorkSpan(ctx, "transfer")
//	defer span.End()
//
//	ctx, attempt := tel.Tracer.StartAttemptSpan(ctx, txnID, 1)
//	telemetry.AddRetryEvent(span, 1, err)
//
// Supported exporters: "otlp" (gRPC), "stdout" and "none".
//
// # Metrics
//
// Key metrics exposed:
//
//   - regledger_transactions_started_total
//   - regledger_transactions_completed_total{result}
//   - regledger_transaction_attempts
//   - regledger_transaction_duration_seconds{result}
//   - regledger_occ_conflicts_total{table}
//   - regledger_active_sessions
//   - regledger_workflow_outcomes_total{workflow,outcome}
//   - regledger_table_scans_total{table}
//   - regledger_errors_by_class_total{class}
//
// Metrics live on a private registry and are served at Path on
// ListenAddress when both are configured. A disabled Metrics value is safe
// to call and records nothing.
//
// # Configuration
//
//	// Console logging at info, tracing and metrics off
//	cfg := telemetry.DefaultConfig()
//
//	// Production (JSON logs, OTLP traces, 10% sampling, metrics on)
//	cfg := telemetry.ProductionConfig()
//
//	// Tests (error-level JSON logs, metrics without a listener)
//	cfg := telemetry.TestConfig()
//
//	// Any of the above by environment name
//	cfg := telemetry.ForEnvironment("production")
package telemetry
