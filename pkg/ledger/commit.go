package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/regledger/regledger/pkg/document"
)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Commit validates the transaction against everything committed after its
// snapshot and, if nothing it read has changed, appends its writes as a
// single commit. A conflict is reported as an ErrorClassConflict error and
// leaves the ledger unchanged. The transaction is closed either way.
func (t *Txn) Commit(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return NewStatementError("transaction is closed", nil).WithCode(ErrCodeTransactionClosed)
	}
	defer t.close()

	logger := t.ledger.logger.WithTxnID(t.id)
	if t.readOnly() {
		logger.Trace("Read-only transaction closed")
		return nil
	}
	if t.ledger.closed.Load() {
		return NewConnectivityError("ledger is closed", nil)
	}

	// BEGIN IMMEDIATE: validation and append hold the write lock together.
	tx, err := t.ledger.db.BeginTx(ctx, nil)
	if err != nil {
		return commitError(ctx, "failed to begin commit", err)
	}
	done := false
	defer func() {
		if !done {
			_ = tx.Rollback()
		}
	}()

	if err := t.validate(ctx, tx); err != nil {
		logger.WithError(err).Debug("Commit rejected")
		return err
	}

	seq, err := t.apply(ctx, tx)
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return commitError(ctx, "failed to commit", err)
	}
	done = true

	logger.WithFields(map[string]interface{}{
		"commit_seq": seq,
		"revisions":  len(t.writeOrder),
		"tables":     len(t.tableOrder),
		"indexes":    len(t.newIndexes),
	}).Debug("Transaction committed")
	return nil
}

// validate reports a conflict if any document read, any query predicate or
// any table created by the transaction was affected by a later commit.
func (t *Txn) validate(ctx context.Context, q querier) error {
	for _, name := range t.tableOrder {
		var n int
		if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM ledger_tables WHERE name = ?`, name).Scan(&n); err != nil {
			return commitError(ctx, "failed to validate table", err)
		}
		if n > 0 {
			return NewConflictError("table was created concurrently", nil).WithTable(name)
		}
	}

	for key := range t.reads {
		var n int
		err := q.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM revisions WHERE table_name = ? AND doc_id = ? AND commit_seq > ?`,
			key.table, key.id, t.snapshot).Scan(&n)
		if err != nil {
			return commitError(ctx, "failed to validate read", err)
		}
		if n > 0 {
			return NewConflictError("document changed since it was read", nil).
				WithTable(key.table).
				WithDocumentID(key.id)
		}
	}

	for _, pred := range t.predicates {
		var sb strings.Builder
		sb.WriteString(`SELECT doc_id, version, data, committed_at, txn_id FROM revisions
WHERE table_name = ? AND commit_seq > ?`)
		args := appendPushdown(&sb, []any{pred.table, t.snapshot}, pred.conds)

		revs, err := queryRevisions(ctx, q, sb.String(), args...)
		if err != nil {
			return err
		}
		for _, rev := range revs {
			if matches(rev.id, rev.doc, pred.conds) {
				return NewConflictError("query results changed since they were read", nil).
					WithTable(pred.table).
					WithDocumentID(rev.id)
			}
		}
	}
	return nil
}

// apply appends the commit record, new tables, revisions and indexes and
// returns the new commit sequence.
func (t *Txn) apply(ctx context.Context, tx *sql.Tx) (int64, error) {
	now := t.ledger.clock().UTC().UnixNano()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO commits (txn_id, committed_at, revision_count) VALUES (?, ?, ?)`,
		t.id, now, len(t.writeOrder))
	if err != nil {
		return 0, commitError(ctx, "failed to record commit", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return 0, NewConnectivityError("failed to read commit sequence", err)
	}

	for _, name := range t.tableOrder {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO ledger_tables (name, created_at, commit_seq) VALUES (?, ?, ?)`,
			name, now, seq); err != nil {
			return 0, commitError(ctx, "failed to create table", err)
		}
	}

	for _, key := range t.writeOrder {
		w := t.writes[key]
		data, err := document.Encode(w.doc)
		if err != nil {
			return 0, NewValidationError("failed to encode document", err).
				WithTable(key.table).
				WithDocumentID(key.id)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO revisions (table_name, doc_id, version, data, commit_seq, committed_at, txn_id)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			key.table, key.id, w.baseVersion+1, string(data), seq, now, t.id); err != nil {
			return 0, commitError(ctx, "failed to append revision", err)
		}
	}

	for _, idx := range t.newIndexes {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO ledger_indexes (table_name, attribute, created_at) VALUES (?, ?, ?)`,
			idx.table, idx.attribute, now); err != nil {
			return 0, commitError(ctx, "failed to record index", err)
		}
		// table and attribute are validated identifiers
		ddl := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS "idx_%s_%s" ON revisions(table_name, json_extract(data, '$.%s'))`,
			idx.table, idx.attribute, idx.attribute)
		if _, err := tx.ExecContext(ctx, ddl); err != nil {
			return 0, commitError(ctx, "failed to build index", err)
		}
	}
	return seq, nil
}

// appendPushdown adds SQL filters for the conditions SQLite can evaluate.
func appendPushdown(sb *strings.Builder, args []any, conds []condition) []any {
	for _, c := range conds {
		if !pushdown(c) {
			continue
		}
		if c.byID {
			sb.WriteString("\nAND doc_id = ?")
		} else {
			fmt.Fprintf(sb, "\nAND json_extract(data, '%s') = ?", jsonPath(c.path))
		}
		args = append(args, c.value)
	}
	return args
}

// commitError classifies a database error raised while committing. Lock
// contention is a conflict; anything else means the ledger is unreachable.
func commitError(ctx context.Context, message string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if isBusy(err) {
		return NewConflictError("ledger is busy", err)
	}
	return NewConnectivityError(message, err)
}

func isBusy(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	default:
		return false
	}
}
