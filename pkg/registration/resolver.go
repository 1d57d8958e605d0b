package registration

import (
	"context"
	"fmt"

	"github.com/regledger/regledger/pkg/ledger"
)

func checkIdentifier(kind, name string) error {
	if !ledger.ValidIdentifier(name) {
		return ledger.NewValidationError(fmt.Sprintf("invalid %s name %q", kind, name), nil)
	}
	return nil
}

// ResolveDocumentID returns the id of the document in table whose
// attribute equals value. If several documents match, the first in id
// order is returned. It fails with a not-found error when none match.
func ResolveDocumentID(ctx context.Context, txn ledger.Transaction, table, attribute string, value any) (string, error) {
	if err := checkIdentifier("table", table); err != nil {
		return "", err
	}
	if err := checkIdentifier("attribute", attribute); err != nil {
		return "", err
	}

	query := fmt.Sprintf("SELECT id FROM %s AS t BY id WHERE t.%s = ?", table, attribute)
	res, err := txn.Execute(ctx, query, value)
	if err != nil {
		return "", fmt.Errorf("resolve %s.%s: %w", table, attribute, err)
	}

	doc, ok := res.First()
	if !ok {
		return "", ledger.NewNotFoundError(
			fmt.Sprintf("no document in %s with %s = %v", table, attribute, value), nil).
			WithTable(table).
			WithOperation("resolve")
	}
	id, ok := doc["id"].(string)
	if !ok {
		return "", ledger.NewStatementError("document id missing from result", nil).WithTable(table)
	}
	return id, nil
}

// FindPersonByDocumentID reads a Person by document id.
func FindPersonByDocumentID(ctx context.Context, txn ledger.Transaction, id string) (Person, error) {
	var p Person
	res, err := txn.Execute(ctx, "SELECT p.* FROM Person AS p BY pid WHERE pid = ?", id)
	if err != nil {
		return p, fmt.Errorf("find person %s: %w", id, err)
	}
	if !res.Next() {
		return p, ledger.NewNotFoundError("person not found", nil).
			WithTable(TablePerson).
			WithDocumentID(id)
	}
	if err := res.Decode(&p); err != nil {
		return p, ledger.NewValidationError("malformed person document", err).
			WithTable(TablePerson).
			WithDocumentID(id)
	}
	return p, nil
}

// FindRegistration reads the registration for vin along with its document
// id.
func FindRegistration(ctx context.Context, txn ledger.Transaction, vin string) (string, VehicleRegistration, error) {
	var reg VehicleRegistration
	res, err := txn.Execute(ctx,
		"SELECT r.*, rid FROM VehicleRegistration AS r BY rid WHERE r.VIN = ?", vin)
	if err != nil {
		return "", reg, fmt.Errorf("find registration %s: %w", vin, err)
	}
	if !res.Next() {
		return "", reg, ledger.NewNotFoundError(fmt.Sprintf("no registration for VIN %s", vin), nil).
			WithTable(TableVehicleRegistration)
	}
	if err := res.Decode(&reg); err != nil {
		return "", reg, ledger.NewValidationError("malformed registration document", err).
			WithTable(TableVehicleRegistration)
	}
	id, _ := res.Document()["rid"].(string)
	return id, reg, nil
}

// FindPrimaryOwner reads the Person registered as primary owner of vin.
func FindPrimaryOwner(ctx context.Context, txn ledger.Transaction, vin string) (string, Person, error) {
	_, reg, err := FindRegistration(ctx, txn, vin)
	if err != nil {
		return "", Person{}, err
	}
	id := reg.Owners.PrimaryOwner.PersonID
	if id == "" {
		return "", Person{}, ledger.NewNotFoundError(fmt.Sprintf("registration %s has no primary owner", vin), nil).
			WithTable(TableVehicleRegistration)
	}
	p, err := FindPersonByDocumentID(ctx, txn, id)
	if err != nil {
		return "", Person{}, err
	}
	return id, p, nil
}

// IsSecondaryOwner reports whether personID is a secondary owner of vin.
func IsSecondaryOwner(ctx context.Context, txn ledger.Transaction, vin, personID string) (bool, error) {
	res, err := txn.Execute(ctx,
		"SELECT Owners.SecondaryOwners FROM VehicleRegistration AS v WHERE v.VIN = ?", vin)
	if err != nil {
		return false, fmt.Errorf("read secondary owners of %s: %w", vin, err)
	}
	if !res.Next() {
		return false, ledger.NewNotFoundError(fmt.Sprintf("no registration for VIN %s", vin), nil).
			WithTable(TableVehicleRegistration)
	}
	var owners Owners
	if err := res.Decode(&owners); err != nil {
		return false, ledger.NewValidationError("malformed secondary owners", err).
			WithTable(TableVehicleRegistration)
	}
	return owners.HasSecondaryOwner(personID), nil
}
