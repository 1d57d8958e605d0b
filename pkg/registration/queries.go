package registration

import (
	"context"
	"fmt"

	"github.com/regledger/regledger/pkg/ledger"
)

// FindVehiclesForOwner lists the vehicles whose registration names the
// person with govID as primary owner, ordered by registration document id.
func FindVehiclesForOwner(ctx context.Context, txn ledger.Transaction, govID string) ([]Vehicle, error) {
	personID, err := ResolveDocumentID(ctx, txn, TablePerson, "GovId", govID)
	if err != nil {
		return nil, fmt.Errorf("find vehicles: %w", err)
	}

	regs, err := txn.Execute(ctx,
		"SELECT r.VIN FROM VehicleRegistration AS r WHERE r.Owners.PrimaryOwner.PersonId = ?", personID)
	if err != nil {
		return nil, fmt.Errorf("find vehicles: %w", err)
	}

	vehicles := make([]Vehicle, 0, regs.Len())
	for regs.Next() {
		vin, _ := regs.Document()["VIN"].(string)
		res, err := txn.Execute(ctx, "SELECT * FROM Vehicle AS v WHERE v.VIN = ?", vin)
		if err != nil {
			return nil, fmt.Errorf("find vehicles: %w", err)
		}
		for res.Next() {
			var v Vehicle
			if err := res.Decode(&v); err != nil {
				return nil, ledger.NewValidationError("malformed vehicle document", err).WithTable(TableVehicle)
			}
			vehicles = append(vehicles, v)
		}
	}
	return vehicles, nil
}
