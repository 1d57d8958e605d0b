// Package ledger implements an append-only document ledger on SQLite.
//
// Documents live in named tables and are never modified in place: every
// committed change appends a new revision with the next version number, so
// the full history of a document stays queryable.
//
// Transactions use optimistic concurrency control. A transaction reads the
// snapshot that was current when it began, buffers its writes and records
// what it read. Commit re-checks those reads under the database write lock
// and fails with an ErrorClassConflict error if another transaction changed
// them; the caller is expected to re-run the whole unit of work.
//
// Statements use a small PartiQL subset, see package partiql:
//
//	CREATE TABLE Person
//	CREATE INDEX ON Person (GovId)
//	INSERT INTO Person ?
//	SELECT p.* FROM Person AS p BY pid WHERE p.GovId = ?
//	UPDATE VehicleRegistration AS r SET r.Owners.PrimaryOwner.PersonId = ? WHERE r.VIN = ?
//	FROM VehicleRegistration AS r WHERE r.VIN = ? INSERT INTO r.Owners.SecondaryOwners VALUE ?
//	SELECT * FROM history(VehicleRegistration, ?, ?) AS h WHERE h.metadata.id = ?
package ledger
