package driver

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/regledger/regledger/pkg/ledger"
)

// Session is a checked-out unit of ledger access. A session runs one unit
// of work at a time; concurrent Execute calls on the same session wait
// their turn. Use one session per goroutine for parallelism.
type Session struct {
	driver *Driver
	id     string

	mu        sync.Mutex
	closed    atomic.Bool
	closeOnce sync.Once
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Execute runs fn in a new transaction and commits it. If the commit
// conflicts with a concurrent transaction, fn is run again in a fresh
// transaction, up to the driver's RetryPolicy.MaxAttempts. When every
// attempt conflicts the error is classified ledger.ErrorClassExhausted.
// Any error returned by fn aborts the transaction and is returned as is,
// without retry.
func (s *Session) Execute(ctx context.Context, fn UnitOfWork, opts ...ExecuteOption) (any, error) {
	if s.closed.Load() {
		return nil, ledger.NewConnectivityError("session is closed", nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cfg := executeConfig{name: "unit_of_work"}
	for _, opt := range opts {
		opt(&cfg)
	}
	return s.driver.run(ctx, cfg, fn)
}

// Close returns the session to the driver. Closing twice is a no-op.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.driver.sem.Release(1)
		s.driver.tel.Metrics.RecordSessionReleased()
		s.driver.logger.WithField("session_id", s.id).Trace("Session closed")
	})
	return nil
}

// Execute is the typed form of Session.Execute.
func Execute[T any](ctx context.Context, s *Session, fn func(ctx context.Context, txn ledger.Transaction) (T, error), opts ...ExecuteOption) (T, error) {
	var zero T
	res, err := s.Execute(ctx, func(ctx context.Context, txn ledger.Transaction) (any, error) {
		return fn(ctx, txn)
	}, opts...)
	if err != nil {
		return zero, err
	}
	v, _ := res.(T)
	return v, nil
}

// Run is the typed form of Driver.Execute.
func Run[T any](ctx context.Context, d *Driver, fn func(ctx context.Context, txn ledger.Transaction) (T, error), opts ...ExecuteOption) (T, error) {
	var zero T
	s, err := d.GetSession(ctx)
	if err != nil {
		return zero, err
	}
	defer s.Close()
	return Execute(ctx, s, fn, opts...)
}
