package registration

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/regledger/regledger/pkg/document"
	"github.com/regledger/regledger/pkg/driver"
	"github.com/regledger/regledger/pkg/ledger"
)

// TableScan holds every current document of one table.
type TableScan struct {
	Table     string              `json:"table"`
	Documents []document.Document `json:"documents"`
}

// ScanTable reads every current document of table.
func ScanTable(ctx context.Context, txn ledger.Transaction, table string) ([]document.Document, error) {
	if err := checkIdentifier("table", table); err != nil {
		return nil, err
	}
	res, err := txn.Execute(ctx, fmt.Sprintf("SELECT * FROM %s", table))
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", table, err)
	}
	return res.Documents(), nil
}

// ScanTables reads every table in its own transaction. Tables are scanned
// concurrently, at most one per available session, and the results are
// ordered by table name. The first failure cancels the remaining scans.
func ScanTables(ctx context.Context, d *driver.Driver) ([]TableScan, error) {
	tables, err := d.TableNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	sort.Strings(tables)

	scans := make([]TableScan, len(tables))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(d.MaxSessions())

	metrics := d.Telemetry().Metrics
	for i, table := range tables {
		g.Go(func() error {
			docs, err := driver.Run(ctx, d, func(ctx context.Context, txn ledger.Transaction) ([]document.Document, error) {
				return ScanTable(ctx, txn, table)
			}, driver.WithName("scan_"+table))
			if err != nil {
				return err
			}
			metrics.RecordTableScan(table, len(docs))
			scans[i] = TableScan{Table: table, Documents: docs}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return scans, nil
}
