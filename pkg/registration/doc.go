// Package registration implements vehicle registration workflows on top of
// the ledger: ownership transfer, secondary owners, revision history, table
// scans, index setup and seeding.
//
// Workflow functions take a ledger.Transaction and do all of their reads
// and writes in it. Run them through driver.Run so that a commit conflict
// re-executes the whole workflow against fresh data:
//
//	res, err := driver.Run(ctx, d, func(ctx context.Context, txn ledger.Transaction) (registration.TransferResult, error) {
//		return registration.TransferOwnership(ctx, txn, req)
//	})
//
// Business outcomes that are not failures, such as an owner that is
// already listed, are reported through Outcome rather than as errors.
package registration
