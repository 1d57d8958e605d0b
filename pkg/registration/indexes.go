package registration

import (
	"context"
	"fmt"

	"github.com/regledger/regledger/pkg/ledger"
)

// IndexSpec is an indexed attribute of a table.
type IndexSpec struct {
	Table     string `json:"table"`
	Attribute string `json:"attribute"`
}

// DefaultIndexes are the lookup keys the registration workflows query by.
var DefaultIndexes = []IndexSpec{
	{Table: TablePerson, Attribute: "GovId"},
	{Table: TableVehicle, Attribute: "VIN"},
	{Table: TableVehicleRegistration, Attribute: "VIN"},
	{Table: TableVehicleRegistration, Attribute: "LicensePlateNumber"},
	{Table: TableDriversLicense, Attribute: "PersonId"},
	{Table: TableDriversLicense, Attribute: "LicenseNumber"},
}

// CreateTables creates the registration tables that do not exist yet and
// returns the names of the ones it created.
func CreateTables(ctx context.Context, txn ledger.Transaction) ([]string, error) {
	var created []string
	for _, table := range Tables {
		_, err := txn.Execute(ctx, fmt.Sprintf("CREATE TABLE %s", table))
		switch {
		case err == nil:
			created = append(created, table)
		case ledger.HasCode(err, ledger.ErrCodeTableExists):
		default:
			return nil, fmt.Errorf("create table %s: %w", table, err)
		}
	}
	return created, nil
}

// CreateIndexes creates every index in DefaultIndexes. Indexes that
// already exist are left alone.
func CreateIndexes(ctx context.Context, txn ledger.Transaction) error {
	for _, idx := range DefaultIndexes {
		stmt := fmt.Sprintf("CREATE INDEX ON %s (%s)", idx.Table, idx.Attribute)
		if _, err := txn.Execute(ctx, stmt); err != nil {
			return fmt.Errorf("create index on %s.%s: %w", idx.Table, idx.Attribute, err)
		}
	}
	return nil
}
