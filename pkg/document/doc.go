// Package document is the codec between application values and ledger
// documents.
//
// Application code works with typed records (structs with `json` tags).
// Marshal turns those records into normalized document trees that the ledger
// binds as statement parameters and stores as revisions; Unmarshal turns
// query results back into typed records. Path helpers address nested fields
// such as Owners.SecondaryOwners.
package document
