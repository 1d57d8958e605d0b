package ledger

import (
	"context"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/regledger/regledger/pkg/document"
	"github.com/regledger/regledger/pkg/ledger/partiql"
	"github.com/regledger/regledger/pkg/telemetry"
)

// Transaction is the surface a unit of work uses to run statements. It is
// implemented by *Txn.
type Transaction interface {
	// ID returns the transaction identifier.
	ID() string

	// Execute runs a single statement with positional parameters.
	Execute(ctx context.Context, statement string, params ...any) (*Result, error)
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdentifier reports whether name can be used as a table or
// attribute name in a statement.
func ValidIdentifier(name string) bool {
	return identifierPattern.MatchString(name)
}

type docKey struct {
	table string
	id    string
}

// pendingWrite is a document revision buffered until commit. baseVersion is
// the committed version it replaces, or -1 for a new document.
type pendingWrite struct {
	key         docKey
	doc         document.Document
	baseVersion int64
}

// condition is a bound equality predicate. byID compares against the
// document id instead of a field.
type condition struct {
	path  document.Path
	value any
	byID  bool
}

// predicateRead records a query so commit can detect documents that began
// matching it after the snapshot.
type predicateRead struct {
	table string
	conds []condition
}

type indexSpec struct {
	table     string
	attribute string
}

// Txn is a ledger transaction. It reads a fixed snapshot, buffers writes and
// applies them atomically at Commit if nothing it read has changed since.
type Txn struct {
	ledger    *Ledger
	id        string
	snapshot  int64
	startedAt time.Time

	mu         sync.Mutex
	closed     bool
	statements int

	reads      map[docKey]int64
	predicates []predicateRead
	writes     map[docKey]*pendingWrite
	writeOrder []docKey

	newTables   map[string]bool
	tableOrder  []string
	knownTables map[string]bool
	newIndexes  []indexSpec
}

var _ Transaction = (*Txn)(nil)

// ID returns the transaction identifier.
func (t *Txn) ID() string {
	return t.id
}

// Snapshot returns the commit sequence the transaction reads at.
func (t *Txn) Snapshot() int64 {
	return t.snapshot
}

// Execute runs a statement inside the transaction.
func (t *Txn) Execute(ctx context.Context, statement string, params ...any) (*Result, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, NewStatementError("transaction is closed", nil).WithCode(ErrCodeTransactionClosed)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	parsed, err := partiql.Parse(statement)
	if err != nil {
		return nil, NewStatementError("invalid statement", err)
	}
	if parsed.ParamCount != len(params) {
		return nil, NewStatementError("parameter count mismatch", nil).
			WithCode(ErrCodeInvalidParameter).
			WithDetail("expected", parsed.ParamCount).
			WithDetail("given", len(params))
	}

	bound := make([]any, len(params))
	for i, p := range params {
		v, err := document.Marshal(p)
		if err != nil {
			return nil, NewStatementError("invalid parameter", err).
				WithCode(ErrCodeInvalidParameter).
				WithDetail("position", i)
		}
		bound[i] = v
	}

	t.statements++
	telemetry.AddEvent(telemetry.SpanFromContext(ctx), "ledger.statement",
		telemetry.AttrTxnID.String(t.id),
		telemetry.AttrStatement.String(statement),
	)

	switch s := parsed.Statement.(type) {
	case *partiql.Select:
		if s.Source.History {
			return t.execHistory(ctx, s, bound)
		}
		return t.execSelect(ctx, s, bound)
	case *partiql.Insert:
		return t.execInsert(ctx, s, bound)
	case *partiql.Update:
		return t.execUpdate(ctx, s, bound)
	case *partiql.NestedInsert:
		return t.execNestedInsert(ctx, s, bound)
	case *partiql.CreateTable:
		return t.execCreateTable(ctx, s)
	case *partiql.CreateIndex:
		return t.execCreateIndex(ctx, s)
	default:
		return nil, NewStatementError("unsupported statement", nil)
	}
}

// Abort discards the transaction's buffered writes. Aborting a closed
// transaction is a no-op.
func (t *Txn) Abort() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.close()
	t.ledger.logger.WithTxnID(t.id).Trace("Transaction aborted")
	return nil
}

func (t *Txn) close() {
	t.closed = true
	t.writes = nil
	t.writeOrder = nil
	t.predicates = nil
}

// readOnly reports whether commit has nothing to write.
func (t *Txn) readOnly() bool {
	return len(t.writeOrder) == 0 && len(t.tableOrder) == 0 && len(t.newIndexes) == 0
}

// recordRead remembers the first version of a document the transaction saw.
func (t *Txn) recordRead(key docKey, version int64) {
	if _, seen := t.reads[key]; !seen {
		t.reads[key] = version
	}
}

// stage buffers a document write. A document staged twice keeps its
// original base version.
func (t *Txn) stage(key docKey, doc document.Document, baseVersion int64) {
	if w, ok := t.writes[key]; ok {
		w.doc = doc
		return
	}
	t.writes[key] = &pendingWrite{key: key, doc: doc, baseVersion: baseVersion}
	t.writeOrder = append(t.writeOrder, key)
}

// pendingFor returns buffered writes to table in staging order.
func (t *Txn) pendingFor(table string) []*pendingWrite {
	var out []*pendingWrite
	for _, key := range t.writeOrder {
		if key.table == table {
			out = append(out, t.writes[key])
		}
	}
	return out
}

// requireTable fails with TABLE_NOT_FOUND unless table is visible to the
// transaction.
func (t *Txn) requireTable(ctx context.Context, table string) error {
	exists, err := t.tableExists(ctx, table)
	if err != nil {
		return err
	}
	if !exists {
		return NewStatementError("table not found", nil).
			WithCode(ErrCodeTableNotFound).
			WithTable(table)
	}
	return nil
}

func (t *Txn) tableExists(ctx context.Context, table string) (bool, error) {
	if t.newTables[table] || t.knownTables[table] {
		return true, nil
	}

	var n int
	err := t.ledger.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ledger_tables WHERE name = ? AND commit_seq <= ?`,
		table, t.snapshot).Scan(&n)
	if err != nil {
		return false, NewConnectivityError("failed to look up table", err).WithTable(table)
	}
	if n == 0 {
		return false, nil
	}
	if t.knownTables == nil {
		t.knownTables = make(map[string]bool)
	}
	t.knownTables[table] = true
	return true, nil
}

// revision is one document version visible to a query.
type revision struct {
	id          string
	version     int64
	doc         document.Document
	committedAt time.Time
	txnID       string
}

// current returns the documents of table matching conds as of the snapshot,
// overlaid with the transaction's own writes, ordered by document id. The
// documents read and the predicate are recorded for commit validation.
func (t *Txn) current(ctx context.Context, table string, conds []condition) ([]revision, error) {
	if err := t.requireTable(ctx, table); err != nil {
		return nil, err
	}

	query, args := currentQuery(table, t.snapshot, conds)
	committed, err := queryRevisions(ctx, t.ledger.db, query, args...)
	if err != nil {
		return nil, err
	}

	var out []revision
	for _, rev := range committed {
		key := docKey{table: table, id: rev.id}
		if _, pending := t.writes[key]; pending {
			continue
		}
		if !matches(rev.id, rev.doc, conds) {
			continue
		}
		t.recordRead(key, rev.version)
		out = append(out, rev)
	}

	for _, w := range t.pendingFor(table) {
		if !matches(w.key.id, w.doc, conds) {
			continue
		}
		out = append(out, revision{
			id:      w.key.id,
			version: w.baseVersion + 1,
			doc:     w.doc,
			txnID:   t.id,
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })

	if !isPointRead(conds) {
		t.predicates = append(t.predicates, predicateRead{table: table, conds: conds})
	}
	return out, nil
}

// isPointRead reports whether conds pin a single document id. Point reads
// are fully covered by the read set.
func isPointRead(conds []condition) bool {
	for _, c := range conds {
		if c.byID {
			return true
		}
	}
	return false
}

func queryRevisions(ctx context.Context, q querier, query string, args ...any) ([]revision, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, NewConnectivityError("failed to query revisions", err)
	}
	defer rows.Close()

	var out []revision
	for rows.Next() {
		var (
			rev         revision
			data        string
			committedAt int64
		)
		if err := rows.Scan(&rev.id, &rev.version, &data, &committedAt, &rev.txnID); err != nil {
			return nil, NewConnectivityError("failed to scan revision", err)
		}
		doc, err := document.Decode([]byte(data))
		if err != nil {
			return nil, NewValidationError("stored revision is corrupt", err).WithDocumentID(rev.id)
		}
		rev.doc = doc
		rev.committedAt = time.Unix(0, committedAt).UTC()
		out = append(out, rev)
	}
	if err := rows.Err(); err != nil {
		return nil, NewConnectivityError("failed to read revisions", err)
	}
	return out, nil
}

// matches evaluates bound conditions against a document.
func matches(id string, doc document.Document, conds []condition) bool {
	for _, c := range conds {
		if c.byID {
			if s, ok := c.value.(string); !ok || s != id {
				return false
			}
			continue
		}
		v, ok := document.Get(doc, c.path)
		if !ok || !document.Equal(v, c.value) {
			return false
		}
	}
	return true
}
