// Package driver runs units of work against a ledger.
//
// A Driver hands out Sessions, at most MaxSessions at a time. A session
// executes a unit of work, a function that issues statements on a
// transaction, and commits it. When the commit fails with an optimistic
// concurrency conflict the driver discards the transaction, waits an
// exponentially growing, jittered delay and runs the function again on a
// fresh snapshot:
//
//	d, err := driver.New(l)
//	...
//	id, err := driver.Run(ctx, d, func(ctx context.Context, txn ledger.Transaction) (string, error) {
//		res, err := txn.Execute(ctx, "SELECT id FROM Person AS p BY id WHERE p.GovId = ?", govID)
//		...
//	})
//
// Only conflicts are retried. Errors returned by the function, statement
// errors and connectivity errors abort the transaction and surface
// immediately.
package driver
