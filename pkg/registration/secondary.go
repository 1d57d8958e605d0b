package registration

import (
	"context"
	"fmt"

	"github.com/regledger/regledger/pkg/ledger"
)

const workflowSecondaryOwner = "add_secondary_owner"

// SecondaryOwnerResult describes an add-secondary-owner attempt.
type SecondaryOwnerResult struct {
	Outcome                Outcome `json:"outcome"`
	VIN                    string  `json:"vin"`
	PersonID               string  `json:"personId,omitempty"`
	RegistrationDocumentID string  `json:"registrationDocumentId,omitempty"`
}

// AddSecondaryOwner adds the person with govID to the secondary owners of
// the registration for vin. Adding an owner that is already listed is not
// an error: the result is OutcomeAlreadyExists and nothing is written.
func AddSecondaryOwner(ctx context.Context, txn ledger.Transaction, vin, govID string) (res SecondaryOwnerResult, err error) {
	ctx, run := startWorkflow(ctx, workflowSecondaryOwner, vin)
	defer func() { run.finish(res.Outcome, err) }()

	res.VIN = vin
	if vin == "" || govID == "" {
		return res, ledger.NewValidationError("vin and gov id are required", nil).WithOperation(workflowSecondaryOwner)
	}

	personID, err := ResolveDocumentID(ctx, txn, TablePerson, "GovId", govID)
	if err != nil {
		return res, fmt.Errorf("add secondary owner: %w", err)
	}
	res.PersonID = personID

	exists, err := IsSecondaryOwner(ctx, txn, vin, personID)
	if err != nil {
		return res, fmt.Errorf("add secondary owner: %w", err)
	}
	if exists {
		run.logger.WithField("person_id", personID).Info("Person is already a secondary owner")
		res.Outcome = OutcomeAlreadyExists
		return res, nil
	}

	inserted, err := txn.Execute(ctx,
		"FROM VehicleRegistration AS v WHERE v.VIN = ? INSERT INTO v.Owners.SecondaryOwners VALUE ?",
		vin, OwnerRef{PersonID: personID})
	if err != nil {
		return res, fmt.Errorf("add secondary owner: %w", err)
	}
	doc, ok := inserted.First()
	if !ok {
		return res, ledger.NewNotFoundError("registration disappeared while adding owner", nil).
			WithTable(TableVehicleRegistration).
			WithCode(ledger.ErrCodeInconsistentUpdate)
	}
	res.RegistrationDocumentID, _ = doc["documentId"].(string)
	res.Outcome = OutcomeSuccess
	return res, nil
}
