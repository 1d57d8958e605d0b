package registration

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/regledger/regledger/pkg/ledger"
)

const workflowTransfer = "transfer_ownership"

var validate = validator.New(validator.WithRequiredStructEnabled())

// TransferRequest names a vehicle, the owner expected to hold it and the
// owner to transfer it to. Owners are identified by GovId.
type TransferRequest struct {
	VIN               string `json:"vin" validate:"required"`
	CurrentOwnerGovID string `json:"currentOwnerGovId" validate:"required"`
	NewOwnerGovID     string `json:"newOwnerGovId" validate:"required,nefield=CurrentOwnerGovID"`
}

// TransferResult describes a transfer attempt.
type TransferResult struct {
	Outcome                Outcome `json:"outcome"`
	VIN                    string  `json:"vin"`
	RegistrationDocumentID string  `json:"registrationDocumentId,omitempty"`
	PreviousOwnerID        string  `json:"previousOwnerId,omitempty"`
	PreviousOwnerGovID     string  `json:"previousOwnerGovId,omitempty"`
	NewOwnerID             string  `json:"newOwnerId,omitempty"`
}

// TransferOwnership replaces the primary owner of a registration. The
// current primary owner must match req.CurrentOwnerGovID, otherwise the
// result is OutcomeValidationFailed and nothing is written.
//
// All reads and the update happen in txn, so a concurrent change to the
// registration or either person makes the commit conflict.
func TransferOwnership(ctx context.Context, txn ledger.Transaction, req TransferRequest) (res TransferResult, err error) {
	ctx, run := startWorkflow(ctx, workflowTransfer, req.VIN)
	defer func() { run.finish(res.Outcome, err) }()

	res.VIN = req.VIN
	if err := validate.Struct(req); err != nil {
		return res, ledger.NewValidationError("invalid transfer request", err).WithOperation(workflowTransfer)
	}

	ownerID, owner, err := FindPrimaryOwner(ctx, txn, req.VIN)
	if err != nil {
		return res, fmt.Errorf("transfer ownership: %w", err)
	}
	res.PreviousOwnerID = ownerID
	res.PreviousOwnerGovID = owner.GovID

	if owner.GovID != req.CurrentOwnerGovID {
		run.logger.WithFields(map[string]interface{}{
			"expected_gov_id": req.CurrentOwnerGovID,
			"actual_gov_id":   owner.GovID,
		}).Info("Current owner does not match, leaving registration unchanged")
		res.Outcome = OutcomeValidationFailed
		return res, nil
	}

	newOwnerID, err := ResolveDocumentID(ctx, txn, TablePerson, "GovId", req.NewOwnerGovID)
	if err != nil {
		return res, fmt.Errorf("transfer ownership: %w", err)
	}
	res.NewOwnerID = newOwnerID

	updated, err := txn.Execute(ctx,
		"UPDATE VehicleRegistration AS r SET r.Owners.PrimaryOwner.PersonId = ? WHERE r.VIN = ?",
		newOwnerID, req.VIN)
	if err != nil {
		return res, fmt.Errorf("transfer ownership: %w", err)
	}
	doc, ok := updated.First()
	if !ok {
		return res, ledger.NewNotFoundError("registration disappeared during transfer", nil).
			WithTable(TableVehicleRegistration).
			WithCode(ledger.ErrCodeInconsistentUpdate)
	}
	res.RegistrationDocumentID, _ = doc["documentId"].(string)

	run.logger.WithDocumentID(res.RegistrationDocumentID).
		WithField("new_owner_id", newOwnerID).
		Debug("Primary owner updated")
	res.Outcome = OutcomeSuccess
	return res, nil
}
