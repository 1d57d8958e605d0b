package registration

import (
	"context"
	"fmt"
	"time"

	"github.com/regledger/regledger/pkg/document"
	"github.com/regledger/regledger/pkg/ledger"
)

// Snapshot is one committed revision of a document.
type Snapshot struct {
	DocumentID  string            `json:"documentId"`
	Version     int64             `json:"version"`
	CommittedAt time.Time         `json:"committedAt"`
	TxnID       string            `json:"txnId"`
	Data        document.Document `json:"data"`
}

// Decode decodes the revision's data into out.
func (s Snapshot) Decode(out any) error {
	return document.Unmarshal(map[string]any(s.Data), out)
}

// SnapshotIterator walks revisions oldest first. It is single-pass.
type SnapshotIterator struct {
	snapshots []Snapshot
	pos       int
}

// Next advances to the next revision and reports whether there is one.
func (it *SnapshotIterator) Next() bool {
	if it.pos >= len(it.snapshots) {
		return false
	}
	it.pos++
	return true
}

// Snapshot returns the revision under the iterator.
func (it *SnapshotIterator) Snapshot() Snapshot {
	if it.pos == 0 || it.pos > len(it.snapshots) {
		return Snapshot{}
	}
	return it.snapshots[it.pos-1]
}

// Remaining returns the revisions not yet visited and exhausts the
// iterator.
func (it *SnapshotIterator) Remaining() []Snapshot {
	rest := it.snapshots[it.pos:]
	it.pos = len(it.snapshots)
	return rest
}

// History returns every committed revision of a document, ordered by
// version. With a non-nil since, revisions committed before it are skipped.
func History(ctx context.Context, txn ledger.Transaction, table, documentID string, since *time.Time) (*SnapshotIterator, error) {
	if err := checkIdentifier("table", table); err != nil {
		return nil, err
	}

	var (
		res *ledger.Result
		err error
	)
	if since != nil {
		res, err = txn.Execute(ctx,
			fmt.Sprintf("SELECT * FROM history(%s, ?) AS h WHERE h.metadata.id = ?", table),
			since.UTC().Format(time.RFC3339Nano), documentID)
	} else {
		res, err = txn.Execute(ctx,
			fmt.Sprintf("SELECT * FROM history(%s) AS h WHERE h.metadata.id = ?", table),
			documentID)
	}
	if err != nil {
		return nil, fmt.Errorf("history of %s %s: %w", table, documentID, err)
	}

	snapshots := make([]Snapshot, 0, res.Len())
	for res.Next() {
		snap, err := snapshotFrom(res.Document())
		if err != nil {
			return nil, ledger.NewValidationError("malformed history record", err).
				WithTable(table).
				WithDocumentID(documentID)
		}
		snapshots = append(snapshots, snap)
	}
	return &SnapshotIterator{snapshots: snapshots}, nil
}

type historyRecord struct {
	Data     map[string]any `json:"data"`
	Metadata struct {
		ID      string `json:"id"`
		Version int64  `json:"version"`
		TxTime  string `json:"txTime"`
		TxID    string `json:"txId"`
	} `json:"metadata"`
}

func snapshotFrom(doc document.Document) (Snapshot, error) {
	var rec historyRecord
	if err := document.Unmarshal(map[string]any(doc), &rec); err != nil {
		return Snapshot{}, err
	}
	committedAt, err := time.Parse(time.RFC3339Nano, rec.Metadata.TxTime)
	if err != nil {
		return Snapshot{}, fmt.Errorf("invalid txTime: %w", err)
	}
	data, err := document.MarshalDocument(rec.Data)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		DocumentID:  rec.Metadata.ID,
		Version:     rec.Metadata.Version,
		CommittedAt: committedAt,
		TxnID:       rec.Metadata.TxID,
		Data:        data,
	}, nil
}

// OwnerChange is one revision of a registration's primary owner.
type OwnerChange struct {
	Version     int64     `json:"version"`
	CommittedAt time.Time `json:"committedAt"`
	PersonID    string    `json:"personId"`
}

// PreviousPrimaryOwners lists the primary owner of the registration for vin
// at every revision since the given time.
func PreviousPrimaryOwners(ctx context.Context, txn ledger.Transaction, vin string, since *time.Time) ([]OwnerChange, error) {
	regID, err := ResolveDocumentID(ctx, txn, TableVehicleRegistration, "VIN", vin)
	if err != nil {
		return nil, fmt.Errorf("previous owners of %s: %w", vin, err)
	}

	it, err := History(ctx, txn, TableVehicleRegistration, regID, since)
	if err != nil {
		return nil, err
	}

	var changes []OwnerChange
	for it.Next() {
		snap := it.Snapshot()
		var reg VehicleRegistration
		if err := snap.Decode(&reg); err != nil {
			return nil, ledger.NewValidationError("malformed registration revision", err).
				WithTable(TableVehicleRegistration).
				WithDocumentID(regID)
		}
		changes = append(changes, OwnerChange{
			Version:     snap.Version,
			CommittedAt: snap.CommittedAt,
			PersonID:    reg.Owners.PrimaryOwner.PersonID,
		})
	}
	return changes, nil
}
