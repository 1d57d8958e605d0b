package driver

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/regledger/regledger/pkg/ledger"
	"github.com/regledger/regledger/pkg/telemetry"
)

// UnitOfWork is run inside a fresh transaction on every attempt. It must
// be safe to run more than once and should have no side effects outside
// the transaction.
type UnitOfWork func(ctx context.Context, txn ledger.Transaction) (any, error)

// transaction is a ledger transaction the driver can finish.
type transaction interface {
	ledger.Transaction
	Commit(ctx context.Context) error
	Abort() error
}

// backend is the ledger as seen by the driver.
type backend interface {
	Begin(ctx context.Context) (transaction, error)
	HealthCheck(ctx context.Context) error
	TableNames(ctx context.Context) ([]string, error)
}

type ledgerBackend struct {
	l *ledger.Ledger
}

func (b ledgerBackend) Begin(ctx context.Context) (transaction, error) {
	txn, err := b.l.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return txn, nil
}

func (b ledgerBackend) HealthCheck(ctx context.Context) error {
	return b.l.HealthCheck(ctx)
}

func (b ledgerBackend) TableNames(ctx context.Context) ([]string, error) {
	return b.l.TableNames(ctx)
}

// Driver hands out sessions against a ledger and runs units of work with
// automatic retry on commit conflicts.
type Driver struct {
	backend     backend
	sem         *semaphore.Weighted
	maxSessions int
	policy      RetryPolicy
	tel         *telemetry.Telemetry
	logger      *telemetry.Logger
	closed      atomic.Bool
}

// New creates a driver for l.
func New(l *ledger.Ledger, opts ...Option) (*Driver, error) {
	return newDriver(ledgerBackend{l: l}, opts...)
}

func newDriver(b backend, opts ...Option) (*Driver, error) {
	d := &Driver{
		backend:     b,
		maxSessions: 16,
		policy:      DefaultRetryPolicy(),
		tel:         telemetry.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}

	if d.maxSessions < 1 {
		return nil, ledger.NewValidationError("max sessions must be at least 1", nil)
	}
	if err := d.policy.Validate(); err != nil {
		return nil, ledger.NewValidationError("invalid retry policy", err)
	}

	d.sem = semaphore.NewWeighted(int64(d.maxSessions))
	d.logger = d.tel.Logger.NewComponentLogger("driver")
	return d, nil
}

// Policy returns the driver's retry policy.
func (d *Driver) Policy() RetryPolicy {
	return d.policy
}

// MaxSessions returns the session pool size.
func (d *Driver) MaxSessions() int {
	return d.maxSessions
}

// Telemetry returns the telemetry the driver reports to.
func (d *Driver) Telemetry() *telemetry.Telemetry {
	return d.tel
}

// GetSession checks out a session, waiting while MaxSessions are in use.
// It fails with a connectivity error if ctx ends first or the ledger is
// unreachable.
func (d *Driver) GetSession(ctx context.Context) (*Session, error) {
	if d.closed.Load() {
		return nil, ledger.NewConnectivityError("driver is closed", nil)
	}

	timer := telemetry.NewTimer()
	if err := d.sem.Acquire(ctx, 1); err != nil {
		return nil, ledger.NewConnectivityError("timed out waiting for a session", err)
	}

	if err := d.backend.HealthCheck(ctx); err != nil {
		d.sem.Release(1)
		if ledger.IsConnectivity(err) {
			return nil, err
		}
		return nil, ledger.NewConnectivityError("ledger health check failed", err)
	}

	s := &Session{driver: d, id: uuid.NewString()}
	d.tel.Metrics.RecordSessionAcquired(timer.Duration())
	d.logger.WithField("session_id", s.id).Trace("Session opened")
	return s, nil
}

// Execute runs fn in a short-lived session. See Session.Execute.
func (d *Driver) Execute(ctx context.Context, fn UnitOfWork, opts ...ExecuteOption) (any, error) {
	s, err := d.GetSession(ctx)
	if err != nil {
		return nil, err
	}
	defer s.Close()
	return s.Execute(ctx, fn, opts...)
}

// TableNames lists the ledger's tables.
func (d *Driver) TableNames(ctx context.Context) ([]string, error) {
	if d.closed.Load() {
		return nil, ledger.NewConnectivityError("driver is closed", nil)
	}
	return d.backend.TableNames(ctx)
}

// Close stops the driver from handing out new sessions. Sessions already
// checked out keep working until closed.
func (d *Driver) Close() error {
	d.closed.Store(true)
	return nil
}

// run executes fn until it commits, fails with a non-conflict error, runs
// out of attempts or ctx ends.
func (d *Driver) run(ctx context.Context, cfg executeConfig, fn UnitOfWork) (any, error) {
	timer := telemetry.NewTimer()
	ctx = d.tel.WithContext(ctx)
	ctx, span := d.tel.Tracer.StartUnitOfWorkSpan(ctx, cfg.name)
	defer span.End()

	logger := d.logger.WithField("unit_of_work", cfg.name)

	var (
		result   any
		attempts int
	)
	operation := func() error {
		attempts++
		res, err := d.attempt(ctx, logger, attempts, fn)
		if err == nil {
			result = res
			return nil
		}
		if ledger.IsConflict(err) {
			return err
		}
		return backoff.Permanent(err)
	}

	notify := func(err error, delay time.Duration) {
		logger.WithError(err).WithFields(map[string]interface{}{
			"attempt": attempts,
			"delay":   delay.String(),
		}).Warn("Commit conflicted, retrying")
		telemetry.AddRetryEvent(span, attempts, err)
		if cfg.onRetry != nil {
			cfg.onRetry(RetryEvent{Attempt: attempts, Cause: err, Delay: delay})
		}
	}

	err := backoff.RetryNotify(operation, d.policy.backOff(ctx), notify)
	if err != nil && ledger.IsConflict(err) {
		err = ledger.NewExhaustedError(attempts, err)
		logger.WithError(err).Warn("Unit of work exhausted its retries")
	}

	d.tel.Metrics.RecordTransactionCompleted(resultLabel(err), attempts, timer.Duration())
	if err != nil {
		class, code := errorLabels(err)
		d.tel.Metrics.RecordError(class, code)
		telemetry.SetAttributes(span,
			telemetry.AttrErrorClass.String(class),
			telemetry.AttrErrorCode.String(code),
		)
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.RecordSuccess(span)
	return result, nil
}

// attempt runs fn once in a new transaction and commits it.
func (d *Driver) attempt(ctx context.Context, logger *telemetry.Logger, n int, fn UnitOfWork) (any, error) {
	txn, err := d.backend.Begin(ctx)
	if err != nil {
		return nil, err
	}
	d.tel.Metrics.RecordTransactionStarted()

	ctx, span := d.tel.Tracer.StartAttemptSpan(ctx, txn.ID(), n)
	defer span.End()
	logger = logger.WithTxnID(txn.ID())
	ctx, hooks := withCommitHooks(ctx)

	res, err := fn(ctx, txn)
	if err != nil {
		if abortErr := txn.Abort(); abortErr != nil {
			logger.WithError(abortErr).Warn("Failed to abort transaction")
		}
		telemetry.RecordError(span, err)
		return nil, err
	}

	if err := txn.Commit(ctx); err != nil {
		if ledger.IsConflict(err) {
			table := conflictTable(err)
			d.tel.Metrics.RecordConflict(table)
			telemetry.SetAttributes(span, telemetry.AttrTable.String(table))
		}
		telemetry.RecordError(span, err)
		return nil, err
	}

	telemetry.RecordSuccess(span)
	logger.WithField("attempt", n).Trace("Transaction committed")
	hooks.run()
	return res, nil
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "committed"
	case ledger.IsExhausted(err):
		return "exhausted"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "failed"
	}
}

func errorLabels(err error) (class, code string) {
	var le *ledger.LedgerError
	if errors.As(err, &le) {
		return string(le.Class), le.Code
	}
	return "unclassified", ""
}

func conflictTable(err error) string {
	var le *ledger.LedgerError
	if errors.As(err, &le) && le.Table != "" {
		return le.Table
	}
	return "unknown"
}
